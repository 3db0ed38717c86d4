package trie

import (
	"slices"
	"sort"
)

// Node is one token position on the path from the root to a template.
// Children are ordered: literal tokens in lexicographic order, then the wildcard.
type Node struct {
	token    string
	wildcard bool
	depth    int
	children []*Node
	terminal bool
	template string
	lineIDs  []int
}

// Token returns the token this node represents. The root has an empty token.
func (n *Node) Token() string {
	return n.token
}

// Depth returns the number of edges between the root and n
func (n *Node) Depth() int {
	return n.depth
}

// Terminal reports whether the path ending at n is a live template
func (n *Node) Terminal() bool {
	return n.terminal
}

// Template returns the canonical template string. Only meaningful when terminal.
func (n *Node) Template() string {
	return n.template
}

// LineIDs returns a copy of the line identifiers attributed to this template
func (n *Node) LineIDs() []int {
	return append([]int(nil), n.lineIDs...)
}

// Children returns the children in traversal order
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// literals returns the number of literal children; the wildcard child, if any, follows them
func (n *Node) literals() int {
	if k := len(n.children); k > 0 && n.children[k-1].wildcard {
		return k - 1
	}
	return len(n.children)
}

// child returns the literal child keyed by tok
func (n *Node) child(tok string) *Node {
	lits := n.literals()
	i := sort.Search(lits, func(i int) bool { return n.children[i].token >= tok })
	if i < lits && n.children[i].token == tok {
		return n.children[i]
	}
	return nil
}

// wildcardChild returns the wildcard child, if any
func (n *Node) wildcardChild() *Node {
	if k := len(n.children); k > 0 && n.children[k-1].wildcard {
		return n.children[k-1]
	}
	return nil
}

// lookup returns the child for tok, treating the wildcard token specially
func (n *Node) lookup(tok string, wildcard bool) *Node {
	if wildcard {
		return n.wildcardChild()
	}
	return n.child(tok)
}

// ensure returns the child for tok, creating it in order when absent
func (n *Node) ensure(tok string, wildcard bool) *Node {
	if c := n.lookup(tok, wildcard); c != nil {
		return c
	}
	c := &Node{token: tok, wildcard: wildcard, depth: n.depth + 1}
	if wildcard {
		n.children = append(n.children, c)
		return c
	}
	lits := n.literals()
	i := sort.Search(lits, func(i int) bool { return n.children[i].token >= tok })
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = c
	return c
}

// remove detaches the child c
func (n *Node) remove(c *Node) {
	if i := slices.Index(n.children, c); i >= 0 {
		n.children = slices.Delete(n.children, i, i+1)
	}
}
