package genesis

import (
	"slices"
	"strings"
	"unicode"
)

const (
	signatureMinLen = 5
	signatureTokens = 3
)

// Signature clusters a query into a coarse topic key: lower-cased,
// punctuation removed, tokens of five or more characters, sorted, first
// three joined. Near-duplicate queries collide on purpose. Queries without
// any long token have an empty signature.
func Signature(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, query)

	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		if len([]rune(tok)) >= signatureMinLen {
			tokens = append(tokens, tok)
		}
	}
	slices.Sort(tokens)
	return strings.Join(tokens[:min(len(tokens), signatureTokens)], "_")
}
