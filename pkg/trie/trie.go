package trie

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/kumarabd/ingestion-plane/miner/pkg/similarity"
	"github.com/kumarabd/ingestion-plane/miner/pkg/token"
)

var (
	// ErrNotFound is returned when a template has no live terminal node
	ErrNotFound = errors.New("template not found")
	// ErrMalformedTemplate is returned for templates that tokenize to nothing
	ErrMalformedTemplate = errors.New("malformed template")
)

// Config contains configuration for the template trie
type Config struct {
	MaxSearchSteps int `json:"max_search_steps" yaml:"max_search_steps" mapstructure:"max_search_steps" default:"0"` // 0 disables the budget
}

// Merger decides whether and how a new template generalizes existing ones
type Merger interface {
	// Attempt reports whether merging should be tried for template at all
	Attempt(template string) bool
	// Merge returns the generalized template, or "" when the group must not be merged
	Merge(similarity float64, group []string, template string) string
}

// Entry is the exported view of one live template
type Entry struct {
	ID       string `json:"id"`
	Template string `json:"template"`
	LineIDs  []int  `json:"line_ids"`
}

// Occurrences returns the number of lines attributed to the template
func (e Entry) Occurrences() int {
	return len(e.LineIDs)
}

// Trie stores templates keyed by their token sequence.
//
// A Trie is not safe for concurrent use. Searches and related-template collection
// may run in parallel with each other, but never alongside Insert, Delete, Attribute
// or Update; callers serialize mutations.
type Trie struct {
	root     *Node
	tok      *token.Tokenizer
	scorer   *similarity.Scorer
	merger   Merger
	maxSteps int
	live     int
}

// Option configures a Trie
type Option func(*Trie)

// WithMerger sets the merge policy used by Update
func WithMerger(m Merger) Option {
	return func(t *Trie) {
		t.merger = m
	}
}

// WithMaxSearchSteps bounds the number of search steps; exhaustion counts as no match
func WithMaxSearchSteps(n int) Option {
	return func(t *Trie) {
		t.maxSteps = n
	}
}

// WithConfig applies a Config
func WithConfig(cfg *Config) Option {
	return func(t *Trie) {
		if cfg != nil {
			t.maxSteps = cfg.MaxSearchSteps
		}
	}
}

// New creates an empty trie. A nil tokenizer selects token.Default().
func New(tok *token.Tokenizer, opts ...Option) *Trie {
	if tok == nil {
		tok = token.Default()
	}
	t := &Trie{
		root:   &Node{},
		tok:    tok,
		scorer: similarity.New(tok),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Root returns the root node
func (t *Trie) Root() *Node {
	return t.root
}

// Len returns the number of live templates
func (t *Trie) Len() int {
	return t.live
}

// Insert admits template, creating nodes as needed, and appends lineIDs to it.
// Re-inserting a live template only accumulates identifiers.
func (t *Trie) Insert(template string, lineIDs ...int) (*Node, error) {
	tokens := t.tok.Split(template)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("insert %q: %w", template, ErrMalformedTemplate)
	}

	node := t.root
	for _, tok := range tokens {
		node = node.ensure(tok, t.tok.IsWildcard(tok))
	}
	if !node.terminal {
		node.terminal = true
		t.live++
	}
	node.template = template
	node.lineIDs = append(node.lineIDs, lineIDs...)

	t.assertInvariants()
	return node, nil
}

// Delete retires template and returns the identifiers it had accumulated.
// Nodes left without children and without a template are pruned bottom-up.
func (t *Trie) Delete(template string) ([]int, error) {
	tokens := t.tok.Split(template)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("delete %q: %w", template, ErrNotFound)
	}

	path := make([]*Node, 0, len(tokens)+1)
	path = append(path, t.root)
	node := t.root
	for _, tok := range tokens {
		node = node.lookup(tok, t.tok.IsWildcard(tok))
		if node == nil {
			return nil, fmt.Errorf("delete %q: %w", template, ErrNotFound)
		}
		path = append(path, node)
	}
	if !node.terminal {
		return nil, fmt.Errorf("delete %q: %w", template, ErrNotFound)
	}

	ids := node.lineIDs
	node.terminal = false
	node.template = ""
	node.lineIDs = nil
	t.live--

	for i := len(path) - 1; i > 0; i-- {
		n := path[i]
		if len(n.children) > 0 || n.terminal {
			break
		}
		path[i-1].remove(n)
	}

	t.assertInvariants()
	return ids, nil
}

// Attribute appends lineIDs to a live template node, typically one returned by Search
func (t *Trie) Attribute(node *Node, lineIDs ...int) error {
	if node == nil || !node.terminal {
		return fmt.Errorf("attribute: %w", ErrNotFound)
	}
	node.lineIDs = append(node.lineIDs, lineIDs...)
	return nil
}

// Lookup returns the live node for template
func (t *Trie) Lookup(template string) (*Node, bool) {
	node := t.root
	for _, tok := range t.tok.Split(template) {
		if node = node.lookup(tok, t.tok.IsWildcard(tok)); node == nil {
			return nil, false
		}
	}
	if node == t.root || !node.terminal {
		return nil, false
	}
	return node, true
}

// Walk visits every live template node in trie order until fn returns false
func (t *Trie) Walk(fn func(*Node) bool) {
	stack := []*Node{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.terminal && !fn(n) {
			return
		}
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, n.children[i])
		}
	}
}

// Templates exports every live template with its identifiers, in trie order
func (t *Trie) Templates() []Entry {
	entries := make([]Entry, 0, t.live)
	t.Walk(func(n *Node) bool {
		entries = append(entries, Entry{
			ID:       TemplateID(n.template),
			Template: n.template,
			LineIDs:  n.LineIDs(),
		})
		return true
	})
	return entries
}

// TemplateID derives the short stable identifier of a template
func TemplateID(template string) string {
	sum := md5.Sum([]byte(template))
	return hex.EncodeToString(sum[:])[:8]
}

// Check verifies the structural invariants and returns the first violation found
func (t *Trie) Check() error {
	if t.root.terminal {
		return errors.New("root is terminal")
	}
	live := 0
	stack := []*Node{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.terminal {
			live++
		} else if len(n.lineIDs) > 0 {
			return fmt.Errorf("non-terminal node %q holds line ids", n.token)
		}
		if n != t.root && !n.terminal && len(n.children) == 0 {
			return fmt.Errorf("dangling node %q", n.token)
		}

		lits := n.literals()
		if !sort.SliceIsSorted(n.children[:lits], func(i, j int) bool {
			return n.children[i].token < n.children[j].token
		}) {
			return fmt.Errorf("children of %q are out of order", n.token)
		}
		for i, c := range n.children {
			if c.wildcard != (i == lits) {
				return fmt.Errorf("wildcard child of %q is misplaced", n.token)
			}
			if i > 0 && c.token == n.children[i-1].token {
				return fmt.Errorf("duplicate child %q under %q", c.token, n.token)
			}
			if c.depth != n.depth+1 {
				return fmt.Errorf("child %q has depth %d under depth %d", c.token, c.depth, n.depth)
			}
			stack = append(stack, c)
		}
	}
	if live != t.live {
		return fmt.Errorf("%d terminal nodes for %d live templates", live, t.live)
	}
	return nil
}

func (t *Trie) assertInvariants() {
	if !debugChecks {
		return
	}
	if err := t.Check(); err != nil {
		panic("trie: " + err.Error())
	}
}
