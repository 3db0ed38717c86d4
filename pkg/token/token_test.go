package token

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tok := Default()

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "plain words",
			input:    "User alice logged in",
			expected: []string{"User", "alice", "logged", "in"},
		},
		{
			name:     "placeholders become wildcard",
			input:    "Connection from {ip} port {port}",
			expected: []string{"Connection", "from", "<*>", "port", "<*>"},
		},
		{
			name:     "adjacent wildcards collapse",
			input:    "took {variables}.{variables} ms",
			expected: []string{"took", "<*>", "ms"},
		},
		{
			name:     "kept punctuation survives",
			input:    "key=value (a:b) /tmp",
			expected: []string{"key", "=", "value", "(", "a", ":", "b", ")", "/", "tmp"},
		},
		{
			name:     "stripped punctuation is dropped",
			input:    "done, ok. [x] user_id",
			expected: []string{"done", "ok", "x", "user", "id"},
		},
		{
			name:     "wildcard embedded in token",
			input:    "blk_{variables} served",
			expected: []string{"blk", "<*>", "served"},
		},
		{
			name:     "whitespace only",
			input:    "  \t ",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tok.Split(tt.input))
		})
	}
}

func TestFields(t *testing.T) {
	tok := Default()

	assert.Equal(t, []string{"a", ",", "b", ".", "c"}, tok.Fields("a, b.c"))
	assert.Equal(t, []string{"port", "<*>", "<*>"}, tok.Fields("port {a}  {b}"))
	assert.Empty(t, tok.Fields(""))
}

func TestFine(t *testing.T) {
	tok := Default()

	tests := []struct {
		input    string
		expected []string
	}{
		{"a b", []string{"a", " ", "b"}},
		{"a, b", []string{"a", ",", "", " ", "b"}},
		{"f(x)", []string{"f", "(", "x", ")", ""}},
		{"[a]", []string{"", "[", "a", "]", ""}},
		{"", []string{""}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, tok.Fine(tt.input))
		})
	}
}

func TestCountWildcards(t *testing.T) {
	tok := Default()

	tests := []struct {
		template string
		expected int
	}{
		{"a {variables} b {variables}", 2},
		{"a {ip} b", 1},
		{"a <*> b", 1},
		{"a <*> b {ip}", 2},
		{"<*> <*> done", 1},
		{"plain text", 0},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.expected, tok.CountWildcards(tt.template))
		})
	}
}

func TestHasPlaceholder(t *testing.T) {
	tok := Default()

	tests := []struct {
		input    string
		expected bool
	}{
		{"a {ip} b", true},
		{"{variables}", true},
		{"a <*> b", true},
		{"<*>", true},
		{"a {} b", false},
		{"plain", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, tok.HasPlaceholder(tt.input))
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PlaceholderPattern = `\{[`
	_, err := New(cfg)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.Placeholder = "%s"
	_, err = New(cfg)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.Wildcard = ""
	_, err = New(cfg)
	require.Error(t, err)
}

func TestCustomWildcard(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Wildcard = "<VAR>"
	tok, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"from", "<VAR>"}, tok.Split("from {ip} {port}"))
	assert.True(t, tok.IsWildcard("<VAR>"))
}

func TestClassify(t *testing.T) {
	assert.True(t, IsAlpha("alice"))
	assert.True(t, IsAlpha("Ünïcode"))
	assert.False(t, IsAlpha(""))
	assert.False(t, IsAlpha("a1"))

	assert.True(t, IsInteger("42"))
	assert.True(t, IsInteger("-7"))
	assert.False(t, IsInteger("4.2"))
	assert.False(t, IsInteger("0x1f"))

	assert.True(t, IsCamelCase("blockManager"))
	assert.True(t, IsCamelCase("alice"))
	assert.False(t, IsCamelCase("BlockManager"))
	assert.False(t, IsCamelCase("user123"))
}

func TestSplitProperties(t *testing.T) {
	tok := Default()

	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 300

	properties := gopter.NewProperties(parameters)
	vocab := []string{"user", "a1", "x_y", "=", "(", ")", ":", "/", ",", ".", "-", "{ip}", "<*>", "[id]"}
	lines := gen.SliceOf(gen.IntRange(0, len(vocab)-1).Map(func(i int) string {
		return vocab[i]
	})).Map(func(words []string) string {
		return strings.Join(words, " ")
	})

	properties.Property("tokens are non-empty and free of whitespace", prop.ForAll(
		func(line string) bool {
			for _, tk := range tok.Split(line) {
				if tk == "" || strings.ContainsAny(tk, " \t\n") {
					return false
				}
			}
			return true
		},
		lines,
	))

	properties.Property("wildcards never repeat", prop.ForAll(
		func(line string) bool {
			tokens := tok.Split(line)
			for i := 1; i < len(tokens); i++ {
				if tokens[i] == tok.Wildcard() && tokens[i-1] == tok.Wildcard() {
					return false
				}
			}
			return true
		},
		lines,
	))

	properties.Property("splitting is idempotent", prop.ForAll(
		func(line string) bool {
			once := tok.Split(line)
			twice := tok.Split(strings.Join(once, " "))
			if len(once) != len(twice) {
				return false
			}
			for i := range once {
				if once[i] != twice[i] {
					return false
				}
			}
			return true
		},
		lines,
	))

	properties.TestingRun(t)
}
