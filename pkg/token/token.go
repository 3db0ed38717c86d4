package token

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Config describes how lines and templates are cut into tokens
type Config struct {
	Punctuation        string `json:"punctuation" yaml:"punctuation" mapstructure:"punctuation"`                               // separators, kept as their own tokens
	Kept               string `json:"kept" yaml:"kept" mapstructure:"kept" default:"=|():/"`                                   // punctuation that survives normalization
	Wildcard           string `json:"wildcard" yaml:"wildcard" mapstructure:"wildcard" default:"<*>"`                          // canonical wildcard token
	Placeholder        string `json:"placeholder" yaml:"placeholder" mapstructure:"placeholder" default:"{variables}"`         // placeholder written into templates
	PlaceholderPattern string `json:"placeholder_pattern" yaml:"placeholder_pattern" mapstructure:"placeholder_pattern"`       // matches a placeholder of any name
	FineSeparators     string `json:"fine_separators" yaml:"fine_separators" mapstructure:"fine_separators" default:" ,():[]"` // separators used for merge alignment
}

// DefaultConfig returns the tokenizer configuration used when nothing else is configured
func DefaultConfig() *Config {
	return &Config{
		Punctuation:        "!\"#$%&'()+,-./:;=?[]^_`{|}~@",
		Kept:               "=|():/",
		Wildcard:           "<*>",
		Placeholder:        "{variables}",
		PlaceholderPattern: `\{\w+}`,
		FineSeparators:     " ,():[]",
	}
}

// Tokenizer splits lines and templates into tokens. It is immutable and safe for concurrent use.
type Tokenizer struct {
	cfg         Config
	placeholder *regexp.Regexp
	separators  map[rune]struct{}
	strip       map[rune]struct{}
	fine        map[rune]struct{}
}

// New compiles a tokenizer from the given configuration
func New(cfg *Config) (*Tokenizer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Wildcard == "" {
		return nil, fmt.Errorf("tokenizer: wildcard token must not be empty")
	}
	if cfg.Placeholder == "" {
		return nil, fmt.Errorf("tokenizer: placeholder must not be empty")
	}

	re, err := regexp.Compile(cfg.PlaceholderPattern)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: invalid placeholder pattern: %w", err)
	}
	if !re.MatchString(cfg.Placeholder) {
		return nil, fmt.Errorf("tokenizer: placeholder %q does not match pattern %q", cfg.Placeholder, cfg.PlaceholderPattern)
	}

	t := &Tokenizer{
		cfg:         *cfg,
		placeholder: re,
		separators:  runeSet(cfg.Punctuation),
		strip:       runeSet(cfg.Punctuation),
		fine:        runeSet(cfg.FineSeparators),
	}
	for _, r := range cfg.Kept {
		delete(t.strip, r)
	}
	return t, nil
}

// MustNew is like New but panics on an invalid configuration
func MustNew(cfg *Config) *Tokenizer {
	t, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return t
}

var defaultTokenizer = MustNew(DefaultConfig())

// Default returns the tokenizer built from DefaultConfig
func Default() *Tokenizer {
	return defaultTokenizer
}

// Wildcard returns the canonical wildcard token
func (t *Tokenizer) Wildcard() string {
	return t.cfg.Wildcard
}

// Placeholder returns the placeholder written into templates
func (t *Tokenizer) Placeholder() string {
	return t.cfg.Placeholder
}

// IsWildcard reports whether tok is the canonical wildcard token
func (t *Tokenizer) IsWildcard(tok string) bool {
	return tok == t.cfg.Wildcard
}

// Canonical replaces every placeholder in a template with the wildcard token
func (t *Tokenizer) Canonical(template string) string {
	return t.placeholder.ReplaceAllLiteralString(template, t.cfg.Wildcard)
}

// HasPlaceholder reports whether s contains a placeholder such as {variables}
// or the wildcard token itself
func (t *Tokenizer) HasPlaceholder(s string) bool {
	return strings.Contains(s, t.cfg.Wildcard) || t.placeholder.MatchString(s)
}

// CountWildcards counts the wildcard tokens of a template after Split, so a
// placeholder of any name and the wildcard token count alike
func (t *Tokenizer) CountWildcards(template string) int {
	n := 0
	for _, tok := range t.Split(template) {
		if tok == t.cfg.Wildcard {
			n++
		}
	}
	return n
}

// Fields splits text on whitespace and punctuation. Punctuation characters are kept
// as their own tokens, whitespace is dropped and placeholders become the wildcard.
func (t *Tokenizer) Fields(text string) []string {
	text = t.Canonical(text)

	var (
		tokens []string
		start  = 0
	)
	flush := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			tokens = append(tokens, s)
		}
	}
	for i, r := range text {
		_, sep := t.separators[r]
		if !sep && !unicode.IsSpace(r) {
			continue
		}
		flush(i)
		if sep {
			tokens = append(tokens, string(r))
		}
		start = i + utf8.RuneLen(r)
	}
	flush(len(text))
	return tokens
}

// Split produces the normalized token sequence stored in the trie: punctuation other
// than the kept set is removed, empty fragments are dropped and runs of wildcard
// tokens collapse into one.
func (t *Tokenizer) Split(text string) []string {
	fields := t.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.Contains(f, t.cfg.Wildcard) {
			if n := len(tokens); n > 0 && tokens[n-1] == t.cfg.Wildcard {
				continue
			}
			tokens = append(tokens, t.cfg.Wildcard)
			continue
		}
		if s := t.stripPunctuation(f); s != "" {
			tokens = append(tokens, s)
		}
	}
	return tokens
}

// Fine splits a template on the fine separator set, keeping every separator and every
// (possibly empty) fragment between them so that aligned templates can be rejoined.
func (t *Tokenizer) Fine(template string) []string {
	var (
		parts []string
		start = 0
	)
	for i, r := range template {
		if _, ok := t.fine[r]; !ok {
			continue
		}
		parts = append(parts, template[start:i], string(r))
		start = i + utf8.RuneLen(r)
	}
	return append(parts, template[start:])
}

func (t *Tokenizer) stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if _, ok := t.strip[r]; ok {
			return -1
		}
		return r
	}, s)
}

func runeSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}
