package indexer

import (
	"strings"
	"unicode"
)

// Preprocess collapses whitespace and control characters to single spaces so that stored text
// matches what the keyword analyzer tokenizes.
func Preprocess(text string) string {
	return strings.Join(strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}), " ")
}
