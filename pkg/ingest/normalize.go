package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeMessage normalizes a message by enforcing size cap, canonicalizing whitespace, and normalizing UTF-8
func NormalizeMessage(message string, maxBytes int) (string, bool) {
	// Enforce size cap without splitting a rune
	truncated := false
	if maxBytes > 0 && len(message) > maxBytes {
		cut := maxBytes
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut]
		truncated = true
	}

	message = canonicalizeWhitespace(message)

	// Normalize UTF-8 to NFC form
	message = norm.NFC.String(message)

	return message, truncated
}

// canonicalizeWhitespace collapses multiple whitespace characters into single spaces
func canonicalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
