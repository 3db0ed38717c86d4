package trie

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndSearch(t *testing.T) {
	tr := New(nil)

	node, err := tr.Insert("Connection from {ip} port {port}", 5)
	require.NoError(t, err)
	assert.True(t, node.Terminal())
	assert.Equal(t, []int{5}, node.LineIDs())
	assert.Equal(t, 1, tr.Len())

	got, matched := tr.Search("Connection from 10.0.0.1 port 22")
	assert.True(t, matched)
	assert.Same(t, node, got)

	got, matched = tr.Search("Connection from 10.0.0.1 port")
	assert.True(t, matched, "a trailing wildcard may consume nothing")
	assert.Same(t, node, got)

	_, matched = tr.Search("Connection to 10.0.0.1 port 22")
	assert.False(t, matched)
	require.NoError(t, tr.Check())
}

func TestInsertAccumulatesIDs(t *testing.T) {
	tr := New(nil)

	_, err := tr.Insert("disk full", 1)
	require.NoError(t, err)
	node, err := tr.Insert("disk full", 2, 2)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 2}, node.LineIDs())
	assert.Equal(t, 1, tr.Len())
}

func TestInsertMalformed(t *testing.T) {
	tr := New(nil)

	for _, tpl := range []string{"", "   ", "..., ;"} {
		_, err := tr.Insert(tpl, 1)
		assert.True(t, errors.Is(err, ErrMalformedTemplate), "template %q", tpl)
	}
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, tr.Root().Children())
}

func TestDeleteReclaimsIDs(t *testing.T) {
	tr := New(nil)

	_, err := tr.Insert("worker {id} stopped", 1, 2)
	require.NoError(t, err)

	ids, err := tr.Delete("worker {id} stopped")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)
	assert.Equal(t, 0, tr.Len())

	_, matched := tr.Search("worker 7 stopped")
	assert.False(t, matched)
}

func TestDeleteNotFound(t *testing.T) {
	tr := New(nil)
	_, err := tr.Insert("a b c", 1)
	require.NoError(t, err)

	_, err = tr.Delete("a b")
	assert.True(t, errors.Is(err, ErrNotFound), "prefix of a template is not live")

	_, err = tr.Delete("a x c")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = tr.Delete("a b c")
	require.NoError(t, err)
	_, err = tr.Delete("a b c")
	assert.True(t, errors.Is(err, ErrNotFound), "double delete")

	for _, tpl := range []string{"", "  ", " , "} {
		_, err = tr.Delete(tpl)
		assert.True(t, errors.Is(err, ErrNotFound), "template %q", tpl)
		assert.False(t, errors.Is(err, ErrMalformedTemplate), "template %q", tpl)
	}
}

func TestDeletePrunes(t *testing.T) {
	tr := New(nil)
	_, err := tr.Insert("job started", 1)
	require.NoError(t, err)
	_, err = tr.Insert("job started late", 2)
	require.NoError(t, err)
	_, err = tr.Insert("cache miss", 3)
	require.NoError(t, err)

	_, err = tr.Delete("job started late")
	require.NoError(t, err)
	require.NoError(t, tr.Check())

	// "job started" stays because it is still live
	node, ok := tr.Lookup("job started")
	require.True(t, ok)
	assert.Empty(t, node.Children())

	_, err = tr.Delete("job started")
	require.NoError(t, err)
	require.NoError(t, tr.Check())

	roots := tr.Root().Children()
	require.Len(t, roots, 1)
	assert.Equal(t, "cache", roots[0].Token())
}

func TestDeleteKeepsSharedPrefix(t *testing.T) {
	tr := New(nil)
	_, err := tr.Insert("a b c", 1)
	require.NoError(t, err)
	_, err = tr.Insert("a b d", 2)
	require.NoError(t, err)

	_, err = tr.Delete("a b c")
	require.NoError(t, err)
	require.NoError(t, tr.Check())

	_, matched := tr.Search("a b d")
	assert.True(t, matched)
}

func TestChildOrdering(t *testing.T) {
	tr := New(nil)
	for _, tpl := range []string{"x {v}", "x zeta", "x alpha", "x mid"} {
		_, err := tr.Insert(tpl)
		require.NoError(t, err)
	}

	x := tr.Root().Children()[0]
	var tokens []string
	for _, c := range x.Children() {
		tokens = append(tokens, c.Token())
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta", "<*>"}, tokens)
	require.NoError(t, tr.Check())
}

func TestSearchPrefersLiteral(t *testing.T) {
	tr := New(nil)
	wild, err := tr.Insert("start {v}", 1)
	require.NoError(t, err)
	lit, err := tr.Insert("start stop", 2)
	require.NoError(t, err)

	got, matched := tr.Search("start stop")
	require.True(t, matched)
	assert.Same(t, lit, got)

	got, matched = tr.Search("start go")
	require.True(t, matched)
	assert.Same(t, wild, got)
}

func TestSearchBacktracksIntoWildcard(t *testing.T) {
	tr := New(nil)
	// the literal branch "a b" exists but cannot finish "a b c d"
	_, err := tr.Insert("a b x", 1)
	require.NoError(t, err)
	wild, err := tr.Insert("a {v} d", 2)
	require.NoError(t, err)

	got, matched := tr.Search("a b c d")
	require.True(t, matched)
	assert.Same(t, wild, got)
}

func TestSearchWildcardAtEnd(t *testing.T) {
	tr := New(nil)
	node, err := tr.Insert("shutdown {reason}", 1)
	require.NoError(t, err)

	got, matched := tr.Search("shutdown")
	require.True(t, matched)
	assert.Same(t, node, got)
}

func TestSearchDeepestNode(t *testing.T) {
	tr := New(nil)
	_, err := tr.Insert("User alice logged in", 10)
	require.NoError(t, err)

	got, matched := tr.Search("User bob logged in")
	assert.False(t, matched)
	assert.Equal(t, "User", got.Token())
	assert.Equal(t, 1, got.Depth())

	got, matched = tr.Search("nothing shared")
	assert.False(t, matched)
	assert.Same(t, tr.Root(), got)
}

func TestSearchKeyValueSpans(t *testing.T) {
	tr := New(nil)
	node, err := tr.Insert("args = {v} user = {u}", 1)
	require.NoError(t, err)

	tests := []struct {
		line    string
		matched bool
	}{
		{"args = mode=fast user = root", true},
		// a numeric assignment right after "=" closes the span
		{"args = a=1 b=2 user = root", false},
		// once a non-numeric assignment was seen, numeric ones no longer close it
		{"args = mode=fast b=2 user = root", true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, matched := tr.Search(tt.line)
			assert.Equal(t, tt.matched, matched)
			if tt.matched {
				assert.Same(t, node, got)
			}
		})
	}
}

func TestSearchStepBudget(t *testing.T) {
	tr := New(nil, WithMaxSearchSteps(3))
	_, err := tr.Insert("{a} {b} x {c} y {d} z", 1)
	require.NoError(t, err)

	r := tr.Probe("p q r s t u v w")
	assert.False(t, r.Matched)
	assert.True(t, r.Exhausted)
	assert.NotNil(t, r.Node)
}

func TestCollectRelated(t *testing.T) {
	tr := New(nil)
	for _, tpl := range []string{"User alice logged in", "User alice logged out", "Disk full"} {
		_, err := tr.Insert(tpl)
		require.NoError(t, err)
	}

	anchor, matched := tr.Search("User bob logged in")
	require.False(t, matched)

	related := tr.CollectRelated(anchor, "User bob logged in")
	want := []Related{
		{Template: "User alice logged in", Similarity: 0.75},
		{Template: "User alice logged out", Similarity: 0.5},
	}
	if diff := cmp.Diff(want, related); diff != "" {
		t.Errorf("CollectRelated() mismatch (-want +got):\n%s", diff)
	}

	assert.Len(t, tr.CollectRelated(nil, "x"), 3)
}

func TestTemplatesExport(t *testing.T) {
	tr := New(nil)
	_, err := tr.Insert("b {v}", 2)
	require.NoError(t, err)
	_, err = tr.Insert("a", 1, 3)
	require.NoError(t, err)

	want := []Entry{
		{ID: TemplateID("a"), Template: "a", LineIDs: []int{1, 3}},
		{ID: TemplateID("b {v}"), Template: "b {v}", LineIDs: []int{2}},
	}
	if diff := cmp.Diff(want, tr.Templates()); diff != "" {
		t.Errorf("Templates() mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, TemplateID("a"), 8)
	assert.Equal(t, 2, want[0].Occurrences())
}

func TestAttribute(t *testing.T) {
	tr := New(nil)
	node, err := tr.Insert("ping {host}", 1)
	require.NoError(t, err)

	got, matched := tr.Search("ping example.com")
	require.True(t, matched)
	require.NoError(t, tr.Attribute(got, 2))
	assert.Equal(t, []int{1, 2}, node.LineIDs())

	assert.True(t, errors.Is(tr.Attribute(tr.Root(), 3), ErrNotFound))
	assert.True(t, errors.Is(tr.Attribute(nil, 3), ErrNotFound))
}

type stubMerger struct {
	attempt bool
	merged  map[float64]string
	calls   []float64
}

func (s *stubMerger) Attempt(string) bool { return s.attempt }

func (s *stubMerger) Merge(sim float64, _ []string, _ string) string {
	s.calls = append(s.calls, sim)
	return s.merged[sim]
}

func TestUpdateWithoutMerge(t *testing.T) {
	m := &stubMerger{attempt: true}
	tr := New(nil, WithMerger(m))
	_, err := tr.Insert("User alice logged in", 10)
	require.NoError(t, err)

	out, err := tr.Update("User bob logged in", tr.Root(), 11)
	require.NoError(t, err)
	assert.False(t, out.Merged())
	assert.Equal(t, "User bob logged in", out.Template)
	assert.Equal(t, []int{11}, out.LineIDs)
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, []float64{0.75}, m.calls)
}

func TestUpdateMergesAcrossBuckets(t *testing.T) {
	m := &stubMerger{
		attempt: true,
		merged: map[float64]string{
			0.75: "User {variables} logged in",
			0.5:  "User {variables} logged {variables}",
		},
	}
	tr := New(nil, WithMerger(m))
	_, err := tr.Insert("User alice logged in", 10)
	require.NoError(t, err)
	_, err = tr.Insert("User alice logged out", 12)
	require.NoError(t, err)

	out, err := tr.Update("User bob logged in", tr.Root(), 11)
	require.NoError(t, err)

	assert.Equal(t, "User {variables} logged {variables}", out.Template)
	assert.Equal(t, []int{11, 10, 12}, out.LineIDs)
	assert.Equal(t, []string{"User alice logged in", "User alice logged out"}, out.Absorbed)
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, []int{11, 10, 12}, out.Node.LineIDs())
	require.NoError(t, tr.Check())
}

func TestUpdateSkipsMergeWhenNotAttempted(t *testing.T) {
	m := &stubMerger{attempt: false}
	tr := New(nil, WithMerger(m))
	_, err := tr.Insert("a b", 1)
	require.NoError(t, err)

	out, err := tr.Update("a {v}", nil, 2)
	require.NoError(t, err)
	assert.False(t, out.Merged())
	assert.Empty(t, m.calls)
	assert.Equal(t, 2, tr.Len())
}

func TestUpdateMalformed(t *testing.T) {
	tr := New(nil)
	_, err := tr.Update("  ", nil, 1)
	assert.True(t, errors.Is(err, ErrMalformedTemplate))
	assert.Equal(t, 0, tr.Len())
}

func TestGroupBySimilarity(t *testing.T) {
	got := groupBySimilarity([]Related{
		{Template: "a", Similarity: 0.5},
		{Template: "b", Similarity: 0.9},
		{Template: "c", Similarity: 0.5},
	})
	want := []bucket{
		{similarity: 0.5, templates: []string{"a", "c"}},
		{similarity: 0.9, templates: []string{"b"}},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(bucket{})); diff != "" {
		t.Errorf("groupBySimilarity() mismatch (-want +got):\n%s", diff)
	}
}
