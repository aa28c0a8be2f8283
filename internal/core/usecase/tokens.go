package usecase

import (
	"strings"
	"unicode"
)

// splitAlphaNumLower lowercases s and splits it on every rune that is not an
// ASCII letter or digit, so "Tesla's" yields "tesla" and "s".
func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

// containsPhrase reports whether the token sequence of phrase occurs
// contiguously in tokens. Matching on whole tokens gives word boundaries.
func containsPhrase(tokens []string, phrase string) bool {
	want := splitAlphaNumLower(phrase)
	if len(want) == 0 || len(want) > len(tokens) {
		return false
	}
	for i := 0; i+len(want) <= len(tokens); i++ {
		match := true
		for j := range want {
			if tokens[i+j] != want[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func containsAnyPhrase(tokens []string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(tokens, p) {
			return true
		}
	}
	return false
}
