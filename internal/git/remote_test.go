package git

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiagokokada/simplegit/internal/auth"
	"github.com/thiagokokada/simplegit/internal/giterr"
	"github.com/thiagokokada/simplegit/internal/revwalk"
	"github.com/thiagokokada/simplegit/internal/status"
)

func TestCloneHasCleanStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	upstream := newRepo(t)
	commitFiles(t, upstream, "base", 1, map[string]string{"a.txt": "a\n", "src/b.go": "package b\n"})
	tip := commitFiles(t, upstream, "more", 2, map[string]string{"c.txt": "c\n"})

	var progress bytes.Buffer
	clone, err := Clone(ctx, CloneOptions{URL: serve(t, upstream), FS: memfs.New(), Progress: &progress})
	require.NoError(t, err)

	recs, err := clone.Status(ctx, status.Options{})
	require.NoError(t, err)
	assert.Empty(t, recs)

	head, err := clone.Head()
	require.NoError(t, err)
	assert.Equal(t, HeadInfo{Hash: tip, Branch: "master"}, head)
	assert.Equal(t, "c\n", readFile(t, clone, "c.txt"))

	files, err := clone.LsFiles(ctx, LsFilesOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "c.txt", "src/b.go"}, lsPaths(files))
}

func TestCloneFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := Clone(ctx, CloneOptions{URL: "mem://nowhere", FS: memfs.New()})
	assert.ErrorIs(t, err, giterr.ErrTransport)

	_, err = Clone(ctx, CloneOptions{FS: memfs.New()})
	assert.ErrorIs(t, err, giterr.ErrInvalidArgument)

	_, err = Clone(ctx, CloneOptions{URL: "mem://nowhere"})
	assert.ErrorIs(t, err, giterr.ErrInvalidArgument)

	existing := newRepo(t)
	_, err = Clone(ctx, CloneOptions{URL: "mem://nowhere", FS: existing.fs})
	assert.ErrorIs(t, err, giterr.ErrInvalidArgument)
}

func TestCloneRemovesCreatedDirectory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := t.TempDir()

	dest := filepath.Join(base, "bad-key")
	_, err := Clone(ctx, CloneOptions{
		URL: "ssh://git@example.com/project.git",
		Dir: dest,
		Credentials: auth.Credentials{
			SSHKeyPath:      filepath.Join(base, "no-such-key"),
			InsecureHostKey: true,
		},
	})
	assert.ErrorIs(t, err, giterr.ErrInvalidArgument)
	assert.NoDirExists(t, dest)

	dest = filepath.Join(base, "unreachable")
	_, err = Clone(ctx, CloneOptions{URL: "mem://nowhere", Dir: dest})
	assert.ErrorIs(t, err, giterr.ErrTransport)
	assert.NoDirExists(t, dest)

	// a directory that already existed is left in place
	existing := filepath.Join(base, "existing")
	require.NoError(t, os.Mkdir(existing, 0o755))
	_, err = Clone(ctx, CloneOptions{URL: "mem://nowhere", Dir: existing})
	assert.ErrorIs(t, err, giterr.ErrTransport)
	assert.DirExists(t, existing)
}

func TestPushAndFetch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	upstream := newRepo(t)
	commitFiles(t, upstream, "base", 1, map[string]string{"a.txt": "a\n"})
	url := serve(t, upstream)

	clone, err := Clone(ctx, CloneOptions{URL: url, FS: memfs.New()})
	require.NoError(t, err)
	local := commitFiles(t, clone, "local work", 2, map[string]string{"b.txt": "b\n"})

	pushed, err := clone.Push(ctx, auth.Credentials{}, "", "")
	require.NoError(t, err)
	assert.True(t, pushed)

	ref, err := upstream.repo.Reference(plumbing.NewBranchReferenceName("master"), true)
	require.NoError(t, err)
	assert.Equal(t, local, ref.Hash())

	pushed, err = clone.Push(ctx, auth.Credentials{}, DefaultRemote, "master")
	require.NoError(t, err)
	assert.False(t, pushed)

	err = clone.Fetch(ctx, auth.Credentials{}, "")
	assert.ErrorIs(t, err, giterr.ErrAlreadyUpToDate)

	// the upstream worktree still has the base checkout; sync it before committing
	require.NoError(t, upstream.Checkout(ctx, "", "", []string{"."}))
	remoteTip := commitFiles(t, upstream, "upstream work", 3, map[string]string{"c.txt": "c\n"})
	require.NoError(t, clone.Fetch(ctx, auth.Credentials{}, ""))

	tracking, err := clone.repo.Reference(plumbing.NewRemoteReferenceName(DefaultRemote, "master"), true)
	require.NoError(t, err)
	assert.Equal(t, remoteTip, tracking.Hash())

	_, err = clone.Push(ctx, auth.Credentials{}, "", "")
	assert.ErrorIs(t, err, giterr.ErrTransport)

	_, err = clone.Push(ctx, auth.Credentials{}, "missing", "")
	assert.ErrorIs(t, err, giterr.ErrRefNotFound)
	_, err = clone.Push(ctx, auth.Credentials{}, "", "no-branch")
	assert.ErrorIs(t, err, giterr.ErrRefNotFound)
	assert.ErrorIs(t, clone.Fetch(ctx, auth.Credentials{}, "missing"), giterr.ErrRefNotFound)
}

func TestAddRemote(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	upstream := newRepo(t)
	r := newRepo(t)
	tip := commitFiles(t, r, "base", 1, map[string]string{"a.txt": "a\n"})

	require.NoError(t, r.AddRemote("origin", serve(t, upstream)))
	assert.ErrorIs(t, r.AddRemote("origin", "mem://other"), giterr.ErrInvalidArgument)

	pushed, err := r.Push(ctx, auth.Credentials{}, "origin", "")
	require.NoError(t, err)
	assert.True(t, pushed)

	f := revwalk.NewFilter()
	f.Start = []string{"master"}
	got, err := upstream.RevList(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{tip}, got)
}
