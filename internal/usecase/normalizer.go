package usecase

import (
	"regexp"
	"strings"

	"github.com/replybot/backend/internal/domain"
)

// Compiled patterns for text normalization. Letters and digits are matched by
// Unicode class so Arabic and Persian messages normalize like English ones.
// RE2's \s is ASCII only, so Unicode separators (NBSP, ideographic space, line
// and paragraph separators) and the remaining control whitespace are listed
// explicitly.
var (
	punctuationRegex = regexp.MustCompile(`[^\p{L}\p{N}_` + whitespaceClass + `]`)
	unsafeInputRegex = regexp.MustCompile(`(?i)\b(import|eval|exec|os\.|subprocess\.|__import__)\b`)
	disallowedRegex  = regexp.MustCompile(`[^\p{L}\p{N}_` + whitespaceClass + `,.?!-]`)
)

const whitespaceClass = `\s\v\p{Z}\x{85}\x{1c}-\x{1f}`

// Normalize lowercases and trims text and removes every character that is not a
// word character or whitespace.
func Normalize(text string) string {
	return punctuationRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "")
}

// Tokens splits normalized text on whitespace
func Tokens(text string) []string {
	return strings.Fields(Normalize(text))
}

// SharedTokens returns the tokens of the normalized name that occur as
// substrings of the normalized query, in name order.
func SharedTokens(query, name string) []string {
	normQuery := Normalize(query)

	var shared []string
	for _, token := range strings.Fields(Normalize(name)) {
		if strings.Contains(normQuery, token) {
			shared = append(shared, token)
		}
	}
	return shared
}

// SanitizeInput prepares customer text for the hosted assistant. Text that looks
// like code is rejected with ErrUnsafeInput; otherwise characters outside
// letters, digits, whitespace and ",.?!-" are dropped.
func SanitizeInput(text string) (string, error) {
	if unsafeInputRegex.MatchString(text) {
		return "", domain.ErrUnsafeInput
	}
	return strings.TrimSpace(disallowedRegex.ReplaceAllString(text, "")), nil
}
