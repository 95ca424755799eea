package revwalk

import (
	"context"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiagokokada/simplegit/internal/giterr"
	"github.com/thiagokokada/simplegit/internal/graph"
)

var epoch = time.Date(2005, 4, 7, 15, 0, 0, 0, time.UTC)

type fixture struct {
	g   *graph.Graph
	ids map[string]plumbing.Hash
}

func newFixture() *fixture {
	return &fixture{g: graph.New(), ids: make(map[string]plumbing.Hash)}
}

func blob(content string) plumbing.Hash {
	return plumbing.ComputeHash(plumbing.BlobObject, []byte(content))
}

// commit adds a node named name, dated epoch+minutes, whose tree holds files.
func (f *fixture) commit(name string, minutes int, files map[string]string, parents ...string) plumbing.Hash {
	id := plumbing.ComputeHash(plumbing.CommitObject, []byte(name))
	tree := plumbing.ComputeHash(plumbing.TreeObject, []byte("tree-"+name))
	entries := make(map[string]plumbing.Hash, len(files))
	for p, content := range files {
		entries[p] = blob(content)
	}
	f.g.SetTree(tree, entries)
	var ps []plumbing.Hash
	for _, p := range parents {
		ps = append(ps, f.ids[p])
	}
	when := epoch.Add(time.Duration(minutes) * time.Minute)
	f.g.Add(graph.Node{
		ID:        id,
		Parents:   ps,
		Author:    graph.Signature{Name: "Author", Email: "author@example.com", When: when},
		Committer: graph.Signature{Name: "Author", Email: "author@example.com", When: when},
		Subject:   name,
		Tree:      tree,
	})
	f.ids[name] = id
	return id
}

func (f *fixture) names(t *testing.T, ids []plumbing.Hash) []string {
	t.Helper()

	byID := make(map[plumbing.Hash]string, len(f.ids))
	for name, id := range f.ids {
		byID[id] = name
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		name, ok := byID[id]
		require.True(t, ok, "unknown id %s", id)
		out = append(out, name)
	}
	return out
}

// history builds:
//
//	A -- B -- C ---- M -- E
//	      \         /
//	       D ------
func history() *fixture {
	f := newFixture()
	f.commit("A", 0, map[string]string{"a.txt": "1"})
	f.commit("B", 10, map[string]string{"a.txt": "1", "docs/x.md": "2"}, "A")
	f.commit("C", 20, map[string]string{"a.txt": "3", "docs/x.md": "2"}, "B")
	f.commit("D", 15, map[string]string{"a.txt": "1", "docs/x.md": "4"}, "B")
	f.commit("M", 30, map[string]string{"a.txt": "3", "docs/x.md": "4"}, "C", "D")
	f.commit("E", 40, map[string]string{"a.txt": "3", "docs/x.md": "4", "src/y.go": "5"}, "M")
	f.g.SetRef("HEAD", f.ids["E"])
	f.g.SetRef("main", f.ids["E"])
	f.g.SetRef("side", f.ids["D"])
	return f
}

func walkNames(t *testing.T, f *fixture, filter Filter) []string {
	t.Helper()

	ids, err := Walk(context.Background(), f.g, filter)
	require.NoError(t, err)
	return f.names(t, ids)
}

func TestWalkUnfilteredIsDateOrdered(t *testing.T) {
	t.Parallel()

	f := history()
	ids, err := Walk(context.Background(), f.g, NewFilter())
	require.NoError(t, err)

	assert.Equal(t, []string{"E", "M", "C", "D", "B", "A"}, f.names(t, ids))
	for i := 1; i < len(ids); i++ {
		prev, err := f.g.Node(ids[i-1])
		require.NoError(t, err)
		cur, err := f.g.Node(ids[i])
		require.NoError(t, err)
		assert.False(t, cur.Committer.When.After(prev.Committer.When), "%s after %s", cur.Subject, prev.Subject)
	}
}

func TestWalkRangeIsSetDifference(t *testing.T) {
	t.Parallel()

	f := history()

	filter := NewFilter()
	filter.Start = []string{"main"}
	filter.Stop = []string{"side"}
	ranged := walkNames(t, f, filter)
	assert.Equal(t, []string{"E", "M", "C"}, ranged)

	filter = NewFilter()
	filter.Start = []string{"side"}
	excluded := walkNames(t, f, filter)
	assert.Equal(t, []string{"D", "B", "A"}, excluded)

	full := walkNames(t, f, NewFilter())
	assert.ElementsMatch(t, full, append(ranged, excluded...))
}

func TestWalkStopOnStartYieldsNothing(t *testing.T) {
	t.Parallel()

	f := history()
	filter := NewFilter()
	filter.Start = []string{"side"}
	filter.Stop = []string{"main"}
	assert.Empty(t, walkNames(t, f, filter))
}

func TestWalkUnreachableStopIsNoop(t *testing.T) {
	t.Parallel()

	f := history()
	f.commit("Z", 5, map[string]string{"z": "z"})
	filter := NewFilter()
	filter.Stop = []string{f.ids["Z"].String()}

	assert.Equal(t, walkNames(t, f, NewFilter()), walkNames(t, f, filter))
}

func TestWalkDateWindow(t *testing.T) {
	t.Parallel()

	f := history()
	full := walkNames(t, f, NewFilter())

	at := func(minutes int) *time.Time {
		ts := epoch.Add(time.Duration(minutes) * time.Minute)
		return &ts
	}
	windows := []struct {
		since, until int
		want         []string
	}{
		{since: 0, until: 40, want: []string{"E", "M", "C", "D", "B", "A"}},
		{since: 10, until: 30, want: []string{"M", "C", "D", "B"}},
		{since: 15, until: 20, want: []string{"C", "D"}},
		{since: 16, until: 19, want: nil},
	}
	prev := len(full)
	for _, w := range windows {
		filter := NewFilter()
		filter.Since = at(w.since)
		filter.Until = at(w.until)
		got := walkNames(t, f, filter)

		assert.Equal(t, w.want, nilIfEmpty(got), "window [%d,%d]", w.since, w.until)
		assert.Subset(t, full, got)
		assert.LessOrEqual(t, len(got), prev)
		prev = len(got)
		for _, name := range got {
			n, err := f.g.Node(f.ids[name])
			require.NoError(t, err)
			assert.False(t, n.Committer.When.Before(*filter.Since))
			assert.False(t, n.Committer.When.After(*filter.Until))
		}
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestWalkMaxCount(t *testing.T) {
	t.Parallel()

	f := history()
	tests := []struct {
		max  int
		want []string
	}{
		{max: 0, want: nil},
		{max: 1, want: []string{"E"}},
		{max: 3, want: []string{"E", "M", "C"}},
		{max: 100, want: []string{"E", "M", "C", "D", "B", "A"}},
		{max: Unbounded, want: []string{"E", "M", "C", "D", "B", "A"}},
	}
	for _, tt := range tests {
		filter := NewFilter()
		filter.MaxCount = tt.max
		assert.Equal(t, tt.want, nilIfEmpty(walkNames(t, f, filter)), "max %d", tt.max)
	}
}

func TestWalkZeroFilterYieldsNothing(t *testing.T) {
	t.Parallel()

	assert.Empty(t, walkNames(t, history(), Filter{}))
}

func TestWalkPathRestriction(t *testing.T) {
	t.Parallel()

	f := history()
	tests := []struct {
		path string
		want []string
	}{
		// M matches D under docs and C under a.txt, so it is never listed.
		{path: "docs", want: []string{"D", "B"}},
		{path: "docs/", want: []string{"D", "B"}},
		{path: "a.txt", want: []string{"C", "A"}},
		{path: "src", want: []string{"E"}},
		{path: "missing", want: nil},
		{path: "doc", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			filter := NewFilter()
			filter.Path = tt.path
			assert.Equal(t, tt.want, nilIfEmpty(walkNames(t, f, filter)))
		})
	}
}

func TestWalkPathAndMaxCount(t *testing.T) {
	t.Parallel()

	f := history()
	filter := NewFilter()
	filter.Path = "docs"
	filter.MaxCount = 1
	assert.Equal(t, []string{"D"}, walkNames(t, f, filter))
}

func TestWalkEqualDatesFollowFirstParent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.commit("R", 0, nil)
	f.commit("X", 10, nil, "R")
	f.commit("Y", 10, nil, "R")
	f.commit("M", 20, nil, "X", "Y")
	f.g.SetRef("HEAD", f.ids["M"])

	assert.Equal(t, []string{"M", "X", "Y", "R"}, walkNames(t, f, NewFilter()))

	f2 := newFixture()
	f2.commit("R", 0, nil)
	f2.commit("X", 10, nil, "R")
	f2.commit("Y", 10, nil, "R")
	f2.commit("M", 20, nil, "Y", "X")
	f2.g.SetRef("HEAD", f2.ids["M"])

	assert.Equal(t, []string{"M", "Y", "X", "R"}, walkNames(t, f2, NewFilter()))
}

func TestWalkTopoOrderHandlesClockSkew(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.commit("R", 0, nil)
	f.commit("S", 100, nil, "R")
	f.commit("T", 50, nil, "S")
	f.g.SetRef("HEAD", f.ids["T"])

	assert.Equal(t, []string{"S", "T", "R"}, walkNames(t, f, NewFilter()))

	filter := NewFilter()
	filter.Order = OrderTopo
	assert.Equal(t, []string{"T", "S", "R"}, walkNames(t, f, filter))

	filter.MaxCount = 1
	assert.Equal(t, []string{"T"}, walkNames(t, f, filter))
}

func TestWalkTopoMatchesDateWithoutSkew(t *testing.T) {
	t.Parallel()

	f := history()
	filter := NewFilter()
	filter.Order = OrderTopo
	assert.Equal(t, walkNames(t, f, NewFilter()), walkNames(t, f, filter))
}

func TestWalkMultipleStarts(t *testing.T) {
	t.Parallel()

	f := history()
	f.commit("F", 50, map[string]string{"a.txt": "9"}, "D")
	f.g.SetRef("other", f.ids["F"])

	filter := NewFilter()
	filter.Start = []string{"main", "other"}
	assert.Equal(t, []string{"F", "E", "M", "C", "D", "B", "A"}, walkNames(t, f, filter))
}

func TestWalkErrors(t *testing.T) {
	t.Parallel()

	f := history()

	filter := NewFilter()
	filter.Start = []string{"nope"}
	_, err := Walk(context.Background(), f.g, filter)
	require.ErrorIs(t, err, giterr.ErrRefNotFound)

	filter = NewFilter()
	filter.Stop = []string{"nope"}
	_, err = Walk(context.Background(), f.g, filter)
	require.ErrorIs(t, err, giterr.ErrRefNotFound)
}

func TestWalkUnbornHeadIsEmpty(t *testing.T) {
	t.Parallel()

	ids, err := Walk(context.Background(), graph.New(), NewFilter())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestWalkHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Walk(ctx, history().g, NewFilter())
	require.ErrorIs(t, err, context.Canceled)
}

func TestEachStopsEarly(t *testing.T) {
	t.Parallel()

	f := history()
	var seen []string
	err := Each(context.Background(), f.g, NewFilter(), func(n *graph.Node) error {
		seen = append(seen, n.Subject)
		if len(seen) == 2 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"E", "M"}, seen)
}
