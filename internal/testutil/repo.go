// Package testutil builds throwaway in-memory repositories for package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

// Epoch is the timestamp of the first commit made by Repo.Commit; every
// following commit is one minute later unless an explicit time is given.
var Epoch = time.Date(2005, 4, 7, 15, 0, 0, 0, time.FixedZone("", -7*3600))

type Repo struct {
	Repo *gitlib.Repository
	FS   billy.Filesystem
	tick int
}

// NewRepo initializes an empty repository backed by memory storage and memfs.
func NewRepo(t *testing.T) *Repo {
	t.Helper()

	fs := memfs.New()
	repo, err := gitlib.Init(memory.NewStorage(), fs)
	require.NoError(t, err, "init repository")
	return &Repo{Repo: repo, FS: fs}
}

func (r *Repo) WriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(r.FS, path, []byte(content), 0o644), "write %s", path)
}

func (r *Repo) RemoveFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, r.FS.Remove(path), "remove %s", path)
}

func (r *Repo) Stage(t *testing.T, paths ...string) {
	t.Helper()
	wt, err := r.Repo.Worktree()
	require.NoError(t, err)
	for _, p := range paths {
		_, err := wt.Add(p)
		require.NoError(t, err, "stage %s", p)
	}
}

// Commit writes files (path -> content), stages them and commits with the next tick timestamp.
func (r *Repo) Commit(t *testing.T, message string, files map[string]string) plumbing.Hash {
	t.Helper()
	r.tick++
	return r.CommitAt(t, message, Epoch.Add(time.Duration(r.tick)*time.Minute), files)
}

func (r *Repo) CommitAt(t *testing.T, message string, when time.Time, files map[string]string) plumbing.Hash {
	t.Helper()
	for p, content := range files {
		r.WriteFile(t, p, content)
		r.Stage(t, p)
	}
	wt, err := r.Repo.Worktree()
	require.NoError(t, err)
	sig := &object.Signature{Name: "Test Author", Email: "author@example.com", When: when}
	hash, err := wt.Commit(message, &gitlib.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	})
	require.NoError(t, err, "commit %q", message)
	return hash
}

// Branch points refs/heads/<name> at hash.
func (r *Repo) Branch(t *testing.T, name string, hash plumbing.Hash) {
	t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), hash)
	require.NoError(t, r.Repo.Storer.SetReference(ref))
}

// Checkout switches HEAD to an existing branch.
func (r *Repo) Checkout(t *testing.T, branch string) {
	t.Helper()
	wt, err := r.Repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&gitlib.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch)}))
}

// MergeCommit records a commit on HEAD with an extra parent without touching the worktree.
func (r *Repo) MergeCommit(t *testing.T, message string, other plumbing.Hash) plumbing.Hash {
	t.Helper()
	r.tick++
	head, err := r.Repo.Head()
	require.NoError(t, err)
	wt, err := r.Repo.Worktree()
	require.NoError(t, err)
	sig := &object.Signature{Name: "Test Author", Email: "author@example.com", When: Epoch.Add(time.Duration(r.tick) * time.Minute)}
	hash, err := wt.Commit(message, &gitlib.CommitOptions{
		Author:            sig,
		Committer:         sig,
		Parents:           []plumbing.Hash{head.Hash(), other},
		AllowEmptyCommits: true,
	})
	require.NoError(t, err)
	return hash
}
