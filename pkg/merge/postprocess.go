package merge

import (
	"regexp"
	"strings"
	"unicode"
)

// marker is the working wildcard used while a template is being corrected
const marker = "<*>"

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	digitsOnly    = regexp.MustCompile(`^\d+$`)
	embedsMarker  = regexp.MustCompile(`^[^\s/]*<\*>[^\s/]*$`)
)

// asciiPunct is the punctuation that does not count as static template content
const asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// tokenDelimiters separate the tokens that correction rules look at
const tokenDelimiters = ",!;:=|\"'[](){}.-+@#$%&"

// collapses are applied repeatedly until the template stops changing
var collapses = []struct{ from, to string }{
	{"<*>.<*>", marker},
	{"<*><*>", marker},
	{"#<*>#", marker},
	{"<*>:<*>", marker},
	{"<*>#<*>", marker},
	{"<*>/<*>", marker},
	{"<*>@<*>", marker},
	{" #<*> ", " <*> "},
}

// PostProcess normalizes a template: placeholders and noise matches become
// wildcards, numeric and wildcard-embedding tokens are generalized and runs of
// wildcards joined by a single delimiter collapse. The boolean is false when no
// static content is left, meaning the template is too general to keep.
func (e *Engine) PostProcess(template string) (string, bool) {
	t := strings.ReplaceAll(e.tok.Canonical(template), e.tok.Wildcard(), marker)
	for _, re := range e.noise {
		t = re.ReplaceAllLiteralString(t, marker)
	}
	t = correct(t)

	ok := false
	for _, r := range strings.ReplaceAll(t, marker, "") {
		if !unicode.IsSpace(r) && !strings.ContainsRune(asciiPunct, r) {
			ok = true
			break
		}
	}
	return strings.ReplaceAll(t, marker, e.tok.Placeholder()), ok
}

func correct(t string) string {
	t = whitespaceRun.ReplaceAllString(strings.TrimSpace(t), " ")

	parts := splitKeep(t, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(tokenDelimiters, r)
	})
	for i, p := range parts {
		switch {
		case digitsOnly.MatchString(p):
			parts[i] = marker
		case p != "<*>/<*>" && embedsMarker.MatchString(p):
			parts[i] = marker
		}
	}
	t = strings.Join(parts, "")

	for changed := true; changed; {
		changed = false
		for _, c := range collapses {
			if next := strings.ReplaceAll(t, c.from, c.to); next != t {
				t = next
				changed = true
			}
		}
	}
	return t
}

// splitKeep cuts s at every delimiter rune, keeping delimiters as their own parts
func splitKeep(s string, delim func(rune) bool) []string {
	var parts []string
	start := 0
	for i, r := range s {
		if !delim(r) {
			continue
		}
		if start < i {
			parts = append(parts, s[start:i])
		}
		parts = append(parts, string(r))
		start = i + len(string(r))
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}
