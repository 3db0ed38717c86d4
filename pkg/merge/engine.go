package merge

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kumarabd/ingestion-plane/miner/pkg/token"
)

// Rejection names the reason a merge was refused. The empty value means accepted.
type Rejection string

const (
	Accepted                Rejection = ""
	RejectLengthMismatch    Rejection = "length_mismatch"
	RejectCategoryLabel     Rejection = "category_label"
	RejectAlreadyWildcard   Rejection = "already_wildcard"
	RejectAdjacentWildcards Rejection = "adjacent_wildcards"
	RejectTooGeneral        Rejection = "too_general"
	RejectWeakSupport       Rejection = "weak_support"
)

// Engine decides whether structurally similar templates generalize into one
type Engine struct {
	cfg   Config
	tok   *token.Tokenizer
	noise []*regexp.Regexp
}

// New creates a merge engine. Nil arguments select the defaults.
func New(cfg *Config, tok *token.Tokenizer) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if tok == nil {
		tok = token.Default()
	}
	if cfg.WildcardRatio <= 0 || cfg.WildcardRatio > 1 {
		return nil, fmt.Errorf("merge: wildcard ratio %v outside (0,1]", cfg.WildcardRatio)
	}

	e := &Engine{cfg: *cfg, tok: tok}
	for _, p := range cfg.NoisePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("merge: invalid noise pattern %q: %w", p, err)
		}
		e.noise = append(e.noise, re)
	}
	return e, nil
}

// Attempt reports whether a template is worth generalizing: merging is skipped
// once wildcards make up more than the configured share of its tokens.
func (e *Engine) Attempt(template string) bool {
	n := len(e.tok.Split(template))
	if n == 0 {
		return false
	}
	return float64(e.tok.CountWildcards(template)+1)/float64(n) <= e.cfg.WildcardRatio
}

// Merge returns the template generalizing group and template, or "" when the merge is refused
func (e *Engine) Merge(similarity float64, group []string, template string) string {
	merged, _ := e.Evaluate(similarity, group, template)
	return merged
}

// Evaluate aligns group and template on fine-grained tokens and replaces every
// disagreeing column with a placeholder. It returns the merged template, or ""
// together with the reason the merge was refused.
func (e *Engine) Evaluate(similarity float64, group []string, template string) (string, Rejection) {
	all := append(append(make([]string, 0, len(group)+1), group...), template)

	width := len(strings.Fields(template))
	for _, g := range group {
		if len(strings.Fields(g)) != width {
			return "", RejectLengthMismatch
		}
	}

	columns := make([][]string, len(all))
	for i, tpl := range all {
		columns[i] = e.tok.Fine(tpl)
		if len(columns[i]) != len(columns[0]) {
			return "", RejectLengthMismatch
		}
	}

	high := similarity > e.cfg.HighSimilarity
	placeholder := e.tok.Placeholder()

	var (
		b         strings.Builder
		differing [][]string
	)
	col := make([]string, len(all))
	for pos := range columns[0] {
		for i := range columns {
			col[i] = columns[i][pos]
		}
		if same(col) {
			b.WriteString(col[0])
			continue
		}
		if high && len(col) < e.cfg.MaxCategoryVariants && every(col, isLabel) {
			return "", RejectCategoryLabel
		}
		if every(col, e.tok.HasPlaceholder) {
			return "", RejectAlreadyWildcard
		}
		b.WriteString(placeholder)
		differing = append(differing, append([]string(nil), col...))
	}

	merged := b.String()
	if strings.Contains(merged, placeholder+placeholder) {
		return "", RejectAdjacentWildcards
	}
	merged, ok := e.PostProcess(merged)
	if !ok {
		return "", RejectTooGeneral
	}
	if strings.Contains(merged, placeholder+" "+placeholder) {
		return "", RejectAdjacentWildcards
	}
	if !high && !e.supported(differing) {
		return "", RejectWeakSupport
	}
	return merged, Accepted
}

// supported reports whether the disagreeing columns look like variable content:
// some value is short, or every value is a lowerCamelCase identifier
func (e *Engine) supported(differing [][]string) bool {
	if len(differing) == 0 {
		return true
	}
	camel := true
	for _, col := range differing {
		for _, v := range col {
			if utf8.RuneCountInString(v) < e.cfg.ShortTokenLen {
				return true
			}
			camel = camel && token.IsCamelCase(v)
		}
	}
	return camel
}

func isLabel(s string) bool {
	return token.IsAlpha(s) && utf8.RuneCountInString(s) != 1
}

func same(col []string) bool {
	for _, v := range col[1:] {
		if v != col[0] {
			return false
		}
	}
	return true
}

func every(col []string, pred func(string) bool) bool {
	for _, v := range col {
		if !pred(v) {
			return false
		}
	}
	return true
}
