package trie

// Related is a live template found below an anchor, scored against a candidate
type Related struct {
	Template   string  `json:"template"`
	Similarity float64 `json:"similarity"`
}

// CollectRelated returns every live template in the subtree rooted at anchor, in
// pre-order, with its similarity to template. A nil anchor selects the root.
func (t *Trie) CollectRelated(anchor *Node, template string) []Related {
	if anchor == nil {
		anchor = t.root
	}

	var related []Related
	stack := []*Node{anchor}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.terminal {
			related = append(related, Related{
				Template:   n.template,
				Similarity: t.scorer.Score(template, n.template),
			})
		}
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, n.children[i])
		}
	}
	return related
}
