// Package tokenizer normalises free text into comparable lexical units.
// It lower-cases input and keeps identifiers joined by single hyphens or
// underscores ("INC-49217", "user_id") as one token; any other punctuation
// is a delimiter and is discarded.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenize breaks text into lowercase tokens. A token is a maximal run of
// letters and digits, optionally joined by single hyphens or underscores
// that sit between two alphanumeric runes.
func Tokenize(text string) []string {
	runes := []rune(strings.ToLower(text))
	tokens := make([]string, 0, len(runes)/6)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for i, r := range runes {
		switch {
		case isAlnum(r):
			b.WriteRune(r)
		case (r == '-' || r == '_') && b.Len() > 0 && i+1 < len(runes) && isAlnum(runes[i+1]):
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// HasDigit reports whether s contains at least one digit rune.
func HasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
