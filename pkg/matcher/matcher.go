package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kumarabd/ingestion-plane/miner/pkg/cache"
	"github.com/kumarabd/ingestion-plane/miner/pkg/token"
)

// wildcardPattern matches one optional run that starts with a non-space character
const wildcardPattern = `(\S.*)?`

// sentinel stands in for wildcards while literal text is escaped
const sentinel = "\x00"

var nonSpaceRun = regexp.MustCompile(`\S+`)

// Compile turns a template into an expression that must consume a whole line.
// Placeholders and wildcard tokens become an optional run starting with a non-space character;
// everything else is matched literally.
func Compile(tok *token.Tokenizer, template string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(Expression(tok, template))
	if err != nil {
		return nil, fmt.Errorf("compile template %q: %w", template, err)
	}
	return re, nil
}

// Expression returns the anchored expression Compile uses for template
func Expression(tok *token.Tokenizer, template string) string {
	if tok == nil {
		tok = token.Default()
	}
	s := strings.ReplaceAll(tok.Canonical(template), tok.Wildcard(), sentinel)
	s = nonSpaceRun.ReplaceAllStringFunc(s, regexp.QuoteMeta)
	s = strings.ReplaceAll(s, sentinel, wildcardPattern)
	return "^(?:" + s + ")$"
}

// Matcher validates lines against templates, caching compiled expressions
type Matcher struct {
	tok   *token.Tokenizer
	cache *cache.Handler
}

// New creates a matcher. A nil cache disables caching.
func New(tok *token.Tokenizer, c *cache.Handler) *Matcher {
	if tok == nil {
		tok = token.Default()
	}
	return &Matcher{tok: tok, cache: c}
}

// Regex returns the compiled expression for template
func (m *Matcher) Regex(template string) (*regexp.Regexp, error) {
	if m.cache != nil {
		if v, ok := m.cache.Get(template); ok {
			if re, ok := v.(*regexp.Regexp); ok {
				return re, nil
			}
		}
	}
	re, err := Compile(m.tok, template)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		m.cache.Set(template, re)
	}
	return re, nil
}

// Match reports whether line is fully described by template
func (m *Matcher) Match(template, line string) bool {
	re, err := m.Regex(template)
	if err != nil {
		return false
	}
	return re.MatchString(line)
}

// Repair tries to make template describe line. A template that already matches is
// returned unchanged. Otherwise, when every token the template has beyond the
// line's tokens is a placeholder, those placeholders are dropped. The boolean
// reports whether the returned template matches line.
func (m *Matcher) Repair(template, line string) (string, bool) {
	if m.Match(template, line) {
		return template, true
	}

	have := make(map[string]struct{})
	for _, f := range strings.Fields(line) {
		have[f] = struct{}{}
	}
	var extra []string
	for _, f := range strings.Fields(template) {
		if _, ok := have[f]; !ok {
			extra = append(extra, f)
		}
	}
	if len(extra) == 0 {
		return template, false
	}
	for _, f := range extra {
		if !m.wildcard(f) {
			return template, false
		}
	}

	var kept []string
	for _, f := range strings.Fields(template) {
		if !m.wildcard(f) {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return template, false
	}
	repaired := strings.Join(kept, " ")
	return repaired, m.Match(repaired, line)
}

func (m *Matcher) wildcard(f string) bool {
	return f == m.tok.Placeholder() || m.tok.IsWildcard(f)
}

// Forget evicts the cached expression for template
func (m *Matcher) Forget(template string) {
	if m.cache != nil {
		m.cache.Delete(template)
	}
}
