package trie

import "fmt"

// Outcome reports what Update did
type Outcome struct {
	// Node is the terminal node of the admitted template
	Node *Node
	// Template is the admitted template, merged or original
	Template string
	// LineIDs are the identifiers folded into the admitted template by this call
	LineIDs []int
	// Absorbed lists the templates that were merged away, in deletion order
	Absorbed []string
}

// Merged reports whether any existing template was absorbed
func (o Outcome) Merged() bool {
	return len(o.Absorbed) > 0
}

type bucket struct {
	similarity float64
	templates  []string
}

// Update admits template for lineID, first trying to generalize it with related
// templates found below anchor. Related templates are grouped by exact similarity,
// in order of first appearance; every accepted group is deleted, its identifiers are
// folded into the result and the merged template becomes the candidate for the
// following groups. Update always ends with exactly one Insert.
func (t *Trie) Update(template string, anchor *Node, lineID int) (Outcome, error) {
	if len(t.tok.Split(template)) == 0 {
		return Outcome{}, fmt.Errorf("update %q: %w", template, ErrMalformedTemplate)
	}

	out := Outcome{LineIDs: []int{lineID}}
	if t.merger != nil && t.merger.Attempt(template) {
		for _, b := range groupBySimilarity(t.CollectRelated(anchor, template)) {
			merged := t.merger.Merge(b.similarity, b.templates, template)
			if merged == "" || len(t.tok.Split(merged)) == 0 {
				continue
			}
			for _, old := range b.templates {
				ids, err := t.Delete(old)
				if err != nil {
					return out, fmt.Errorf("update %q: absorb %q: %w", template, old, err)
				}
				out.LineIDs = append(out.LineIDs, ids...)
				out.Absorbed = append(out.Absorbed, old)
			}
			template = merged
		}
	}

	node, err := t.Insert(template, out.LineIDs...)
	if err != nil {
		return out, err
	}
	out.Node = node
	out.Template = template
	return out, nil
}

func groupBySimilarity(related []Related) []bucket {
	var buckets []bucket
	index := make(map[float64]int)
	for _, r := range related {
		i, ok := index[r.Similarity]
		if !ok {
			i = len(buckets)
			index[r.Similarity] = i
			buckets = append(buckets, bucket{similarity: r.Similarity})
		}
		buckets[i].templates = append(buckets[i].templates, r.Template)
	}
	return buckets
}
