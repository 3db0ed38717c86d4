package trie

import "github.com/kumarabd/ingestion-plane/miner/pkg/token"

// Result describes the outcome of a search
type Result struct {
	// Node is the matched template node, or the deepest node reached when unmatched
	Node *Node
	// Matched is true when Node is a live template covering the whole line
	Matched bool
	// Steps is the number of trie positions visited
	Steps int
	// Exhausted is true when the step budget ran out before a match was found
	Exhausted bool
}

const (
	stageEnter = iota
	stageWildcard
	stageSpan
)

type frame struct {
	node  *Node
	index int
	stage int
	skip  int
	open  bool
}

// Search matches line against the stored templates. See Probe.
func (t *Trie) Search(line string) (*Node, bool) {
	r := t.Probe(line)
	return r.Node, r.Matched
}

// Probe tokenizes line and runs a depth-first backtracking search from the root.
// Literal continuations are tried before the wildcard child, and a wildcard is tried
// with every span of 0..remaining tokens, shortest first. The first completed match wins.
func (t *Trie) Probe(line string) Result {
	return t.probe(t.tok.Split(line))
}

func (t *Trie) probe(tokens []string) Result {
	n := len(tokens)
	res := Result{Node: t.root}
	stack := []frame{{node: t.root}}

	for len(stack) > 0 {
		f := &stack[len(stack)-1]

		switch f.stage {
		case stageEnter:
			res.Steps++
			if t.maxSteps > 0 && res.Steps > t.maxSteps {
				res.Exhausted = true
				return res
			}
			if f.node.depth > res.Node.depth {
				res.Node = f.node
			}

			if f.index == n {
				if f.node.terminal {
					return Result{Node: f.node, Matched: true, Steps: res.Steps}
				}
				if w := f.node.wildcardChild(); w != nil && w.terminal {
					return Result{Node: w, Matched: true, Steps: res.Steps}
				}
				stack = stack[:len(stack)-1]
				continue
			}

			f.stage = stageWildcard
			if c := f.node.child(tokens[f.index]); c != nil {
				stack = append(stack, frame{node: c, index: f.index + 1})
			}

		case stageWildcard:
			// the literal continuation, if any, did not complete the line
			if f.node.wildcardChild() == nil {
				stack = stack[:len(stack)-1]
				continue
			}
			f.stage = stageSpan
			f.skip = f.index
			f.open = true

		case stageSpan:
			if f.skip > n {
				stack = stack[:len(stack)-1]
				continue
			}
			w := f.node.wildcardChild()
			skip := f.skip
			f.skip++

			// key=value spans after an "=" node: a non-numeric value keeps the span
			// open, a numeric one ends it unless an earlier value was non-numeric
			if skip+2 < n &&
				f.node.token == "=" &&
				token.IsAlpha(tokens[skip]) &&
				tokens[skip+1] == f.node.token &&
				w.child(tokens[skip]) == nil {
				if !token.IsInteger(tokens[skip+2]) {
					f.open = false
				} else if f.open {
					stack = stack[:len(stack)-1]
					continue
				}
			}
			stack = append(stack, frame{node: w, index: skip})
		}
	}
	return res
}
