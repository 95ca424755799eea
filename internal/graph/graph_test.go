package graph

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiagokokada/simplegit/internal/giterr"
	"github.com/thiagokokada/simplegit/internal/testutil"
)

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		in          string
		wantSubject string
		wantBody    string
	}{
		{name: "subject_only", in: "test commit", wantSubject: "test commit"},
		{name: "trailing_newline", in: "test commit\n", wantSubject: "test commit"},
		{name: "subject_and_body", in: "Subject line\n\nBody line\n", wantSubject: "Subject line", wantBody: "Body line"},
		{name: "folded_subject", in: "first\nsecond\n\nbody", wantSubject: "first second", wantBody: "body"},
		{name: "crlf", in: "Subject\r\n\r\nBody\r\n", wantSubject: "Subject", wantBody: "Body"},
		{name: "empty", in: "", wantSubject: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			subject, body := SplitMessage(tt.in)
			assert.Equal(t, tt.wantSubject, subject)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestGraphAddIsIdempotent(t *testing.T) {
	t.Parallel()

	g := New()
	id := plumbing.NewHash("1111111111111111111111111111111111111111")
	first := g.Add(Node{ID: id, Subject: "first"})
	second := g.Add(Node{ID: id, Subject: "second"})

	assert.Equal(t, 1, g.Len())
	assert.Equal(t, "first", first.Subject)
	assert.Equal(t, "first", second.Subject)
}

func TestGraphResolve(t *testing.T) {
	t.Parallel()

	g := New()
	id := plumbing.NewHash("2222222222222222222222222222222222222222")
	g.Add(Node{ID: id})
	g.SetRef("HEAD", id)

	got, err := g.Resolve("HEAD")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	got, err = g.Resolve(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = g.Resolve("missing")
	assert.ErrorIs(t, err, giterr.ErrRefNotFound)

	_, err = g.Resolve("3333333333333333333333333333333333333333")
	assert.ErrorIs(t, err, giterr.ErrRefNotFound)
}

func TestGraphTreeZeroIsEmpty(t *testing.T) {
	t.Parallel()

	entries, err := New().Tree(plumbing.ZeroHash)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreLoadsCommitsLazily(t *testing.T) {
	t.Parallel()

	r := testutil.NewRepo(t)
	first := r.Commit(t, "first", map[string]string{"a.txt": "a"})
	second := r.Commit(t, "second\n\nwith body", map[string]string{"dir/b.txt": "b"})

	store, err := NewStore(r.Repo, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Loaded())

	head, err := store.Resolve("HEAD")
	require.NoError(t, err)
	assert.Equal(t, second, head)

	node, err := store.Node(second)
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{first}, node.Parents)
	assert.Equal(t, "second", node.Subject)
	assert.Equal(t, "with body", node.Body)
	assert.Equal(t, "Test Author", node.Author.Name)

	tree, err := store.Tree(node.Tree)
	require.NoError(t, err)
	assert.Len(t, tree, 2)
	assert.Contains(t, tree, "dir/b.txt")

	_, err = store.Resolve("nope")
	assert.ErrorIs(t, err, giterr.ErrRefNotFound)
}

func TestNewStoreRejectsNilRepository(t *testing.T) {
	t.Parallel()

	_, err := NewStore(nil, 0)
	assert.ErrorIs(t, err, giterr.ErrInvalidArgument)
}
