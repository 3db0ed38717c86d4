package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kumarabd/ingestion-plane/miner/pkg/logtypes"
)

var (
	cardSeparators = regexp.MustCompile(`[-\s]`)
	cardDigits     = regexp.MustCompile(`^\d{13,19}$`)
)

type maskRule struct {
	name    string
	pattern *regexp.Regexp
	// valid filters candidate matches; nil accepts all
	valid func(string) bool
}

// Masker replaces variable fragments of a line (addresses, identifiers, numbers)
// with named placeholders such as {ipv4}
type Masker struct {
	rules []maskRule
}

// NewMasker creates a masker with the built-in rules, most specific first
func NewMasker() *Masker {
	return &Masker{
		rules: []maskRule{
			// UUIDs, any version
			{name: "uuid", pattern: regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)},

			// IPv6 addresses
			{name: "ipv6", pattern: regexp.MustCompile(`\b(?:[0-9a-fA-F]{1,4}:){7}[0-9a-fA-F]{1,4}\b`)},

			// IPv4 addresses with an optional port
			{name: "ipv4", pattern: regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)(?::\d{1,5})?\b`)},

			// Email addresses
			{name: "email", pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},

			// URLs
			{name: "url", pattern: regexp.MustCompile(`https?://[^\s]+`)},

			// Credit card numbers (with Luhn check)
			{name: "cc", pattern: regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`), valid: isValidCreditCard},

			// Hex literals
			{name: "hex", pattern: regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b`)},
		},
	}
}

// Rules returns the rule names in application order
func (m *Masker) Rules() []string {
	names := make([]string, 0, len(m.rules))
	for _, r := range m.rules {
		names = append(names, r.name)
	}
	return names
}

// NoisePatterns returns the expressions of rules that need no extra validation.
// They are suitable as template noise patterns for the merge engine.
func (m *Masker) NoisePatterns() []string {
	var patterns []string
	for _, r := range m.rules {
		if r.valid == nil {
			patterns = append(patterns, r.pattern.String())
		}
	}
	return patterns
}

// Mask applies every rule to message and returns the masked message and report
func (m *Masker) Mask(message string) (string, logtypes.MaskReport) {
	report := logtypes.MaskReport{
		Rules: []string{},
	}

	masked := message
	for _, rule := range m.rules {
		matches := rule.pattern.FindAllString(masked, -1)
		if rule.valid != nil {
			kept := matches[:0]
			for _, match := range matches {
				if rule.valid(match) {
					kept = append(kept, match)
				}
			}
			matches = kept
		}
		if len(matches) == 0 {
			continue
		}

		report.Applied = true
		report.Rules = append(report.Rules, rule.name)
		report.Count += len(matches)

		placeholder := "{" + rule.name + "}"
		for _, match := range matches {
			masked = strings.ReplaceAll(masked, match, placeholder)
		}
	}

	return masked, report
}

// isValidCreditCard checks if a credit card number passes the Luhn algorithm
func isValidCreditCard(cc string) bool {
	cc = cardSeparators.ReplaceAllString(cc, "")
	if !cardDigits.MatchString(cc) {
		return false
	}

	sum := 0
	alternate := false

	// Process digits from right to left
	for i := len(cc) - 1; i >= 0; i-- {
		digit, _ := strconv.Atoi(string(cc[i]))

		if alternate {
			digit *= 2
			if digit > 9 {
				digit = (digit % 10) + 1
			}
		}

		sum += digit
		alternate = !alternate
	}

	return sum%10 == 0
}
