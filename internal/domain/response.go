package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// ResponseKind tags the outcome of composing a reply to a customer message
type ResponseKind string

const (
	// KindNoIntent means nothing is sent from this pipeline; the caller falls back
	// to the general assistant.
	KindNoIntent ResponseKind = "no_intent"
	// KindMatchedProduct carries a purchase link for the product the customer named.
	KindMatchedProduct ResponseKind = "matched_product"
	// KindUnmatchedIntent asks the customer to name a product, using a catalog example.
	KindUnmatchedIntent ResponseKind = "unmatched_intent"
)

// OrderTemplateSentinel marks a rendered purchase link for the delivery layer,
// which swaps it for the approved "order_temp" WhatsApp template.
const OrderTemplateSentinel = "Order temp"

// legacyTemplateMarker is the marker assistant-written replies use for the same template.
const legacyTemplateMarker = "co temp"

// missingImage is what the delivery layer has always received for products without images.
const missingImage = "None"

// ComposedResponse is the per-message result of the purchase pipeline
type ComposedResponse struct {
	Kind             ResponseKind `json:"kind"`
	PurchaseURL      string       `json:"purchaseUrl,omitempty"`
	ImageURL         string       `json:"imageUrl,omitempty"`
	HasImage         bool         `json:"hasImage"`
	SuggestedProduct string       `json:"suggestedProduct,omitempty"`
}

// NoIntent returns the empty outcome
func NoIntent() *ComposedResponse {
	return &ComposedResponse{Kind: KindNoIntent}
}

// Render produces the text handed to the WhatsApp delivery layer.
// NoIntent renders as the empty string.
func (r *ComposedResponse) Render() string {
	if r == nil {
		return ""
	}

	switch r.Kind {
	case KindMatchedProduct:
		image := missingImage
		if r.HasImage {
			image = r.ImageURL
		}
		return fmt.Sprintf("%s %s  %s", r.PurchaseURL, image, OrderTemplateSentinel)
	case KindUnmatchedIntent:
		return fmt.Sprintf(
			"يرجى كتابة طلب الشراء بهذا الشكل:\n"+
				"أرغب في شراء %s\n\n"+
				"Please write your purchase request like this:\n"+
				"I want to buy %s",
			r.SuggestedProduct, r.SuggestedProduct,
		)
	default:
		return ""
	}
}

var (
	urlPattern      = regexp.MustCompile(`(?i)(https?://\S+)`)
	mediaURLPattern = regexp.MustCompile(`(?i)(https?://\S+\.(?:jpg|jpeg|png|pdf|mp4|ogg|mp3))`)
)

// IsOrderTemplate reports whether text should be delivered as the order
// template: it must carry a template marker and exactly two URLs, at least one
// of which points at media.
func IsOrderTemplate(text string) bool {
	if !strings.Contains(text, OrderTemplateSentinel) && !strings.Contains(text, legacyTemplateMarker) {
		return false
	}
	urls := urlPattern.FindAllString(text, -1)
	media := mediaURLPattern.FindAllString(text, -1)
	return len(urls) == 2 && len(media) >= 1
}
