package git

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffUnstagedAndStaged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newRepo(t)
	commitFiles(t, r, "base", 1, map[string]string{"a.txt": "one\n", "b.txt": "keep\n"})

	out, err := r.Diff(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, out)

	writeFile(t, r, "a.txt", "one\ntwo\n")
	out, err = r.Diff(ctx, false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, localDiffHeader(false)+"\n"), out)
	assert.Contains(t, out, "diff --git a/a.txt b/a.txt\n")
	assert.Contains(t, out, "+two\n")
	assert.NotContains(t, out, "b.txt")

	staged, err := r.Diff(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, staged)

	require.NoError(t, r.Add(ctx, "a.txt", false))
	staged, err = r.Diff(ctx, true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(staged, localDiffHeader(true)+"\n"), staged)
	assert.Contains(t, staged, "+two\n")

	out, err = r.Diff(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDiffAddedAndDeleted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newRepo(t)
	commitFiles(t, r, "base", 1, map[string]string{"old.txt": "old\n"})

	writeFile(t, r, "new.txt", "new\n")
	require.NoError(t, r.Add(ctx, "new.txt", false))
	require.NoError(t, r.Remove(ctx, "old.txt"))

	out, err := r.Diff(ctx, true)
	require.NoError(t, err)
	assert.Contains(t, out, "diff --git a/new.txt b/new.txt\nnew file mode")
	assert.Contains(t, out, "--- /dev/null\n+++ b/new.txt\n")
	assert.Contains(t, out, "diff --git a/old.txt b/old.txt\ndeleted file mode")
	assert.Contains(t, out, "--- a/old.txt\n+++ /dev/null\n")
	assert.Contains(t, out, "-old\n")
}

func TestDiffUntrackedIsHidden(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newRepo(t)
	commitFiles(t, r, "base", 1, map[string]string{"a.txt": "a\n"})
	writeFile(t, r, "stray.txt", "stray\n")

	out, err := r.Diff(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRenderLocalDiffBinary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newRepo(t)
	commitFiles(t, r, "base", 1, map[string]string{"img.bin": "\x00\x01\x02"})
	writeFile(t, r, "img.bin", "\x00\x01\x02\x03")

	out, err := r.Diff(ctx, false)
	require.NoError(t, err)
	assert.Contains(t, out, "diff --git a/img.bin b/img.bin\n(binary files differ)\n")
}
