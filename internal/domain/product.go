package domain

import "strings"

// Product is a purchasable catalog entry owned by a merchant
type Product struct {
	Name        string   `json:"name"`
	PurchaseURL string   `json:"purchaseUrl"`
	Images      []string `json:"images,omitempty"`
}

// Eligible reports whether the product can be offered to a customer
func (p Product) Eligible() bool {
	return strings.TrimSpace(p.Name) != "" && strings.TrimSpace(p.PurchaseURL) != ""
}

// ProductMatch is a scored candidate produced by the product matcher
type ProductMatch struct {
	Name          string   `json:"name"`
	Score         float64  `json:"score"`
	MatchedTokens []string `json:"matchedTokens,omitempty"`
}

// MatchOptions controls product matching
type MatchOptions struct {
	TopK      int
	Threshold float64
	Strict    bool
}

// Explanation reports the scores behind a purchase decision
type Explanation struct {
	IntentScore     float64        `json:"intentScore"`
	IntentThreshold float64        `json:"intentThreshold"`
	Candidates      []ProductMatch `json:"candidates"`
}
