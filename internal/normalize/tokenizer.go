package normalize

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text, turns punctuation and symbols into separators
// and splits on whitespace. Stop words are kept: captions are short and
// recall matters more than precision. Apostrophes are dropped without
// splitting so "don't" stays one token.
func Tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '\'' || r == '’':
			return -1
		case unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, text)
	return strings.Fields(cleaned)
}

// NormalizedTitle joins tokens with single spaces.
func NormalizedTitle(tokens []string) string {
	return strings.Join(tokens, " ")
}
