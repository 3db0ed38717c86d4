package token

import (
	"regexp"
	"unicode"
)

var (
	integerPattern   = regexp.MustCompile(`^[+-]?[0-9]+$`)
	camelCasePattern = regexp.MustCompile(`^[a-z]+([A-Z][a-z]*)*$`)
)

// IsAlpha reports whether s is non-empty and made of letters only
func IsAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// IsInteger reports whether s is an integer literal, optionally signed
func IsInteger(s string) bool {
	return integerPattern.MatchString(s)
}

// IsCamelCase reports whether s is a lowerCamelCase identifier. Plain lowercase words qualify.
func IsCamelCase(s string) bool {
	return camelCasePattern.MatchString(s)
}
