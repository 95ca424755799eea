package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiagokokada/simplegit/internal/giterr"
)

type harness struct {
	t      *testing.T
	dir    string
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{t: t, dir: dir, config: filepath.Join(t.TempDir(), "missing.toml")}
}

// run executes one command in the harness directory and returns stdout.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"-C", h.dir, "-config", h.config, "-color", "never"}, args...)
	err := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "simplegit %s", strings.Join(args, " "))
	return out
}

func (h *harness) write(name, content string) {
	h.t.Helper()
	p := filepath.Join(h.dir, filepath.FromSlash(name))
	require.NoError(h.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(h.t, os.WriteFile(p, []byte(content), 0o644))
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"version"}, &stdout, &stderr))
	assert.True(t, strings.HasPrefix(stdout.String(), progName+" "), stdout.String())

	stdout.Reset()
	require.NoError(t, run(context.Background(), []string{"-version"}, &stdout, &stderr))
	assert.True(t, strings.HasPrefix(stdout.String(), progName+" "), stdout.String())
}

func TestRunUsageErrors(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	require.Error(t, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "commands:")

	h := newHarness(t)
	_, err := h.run("frobnicate")
	require.ErrorContains(t, err, `unknown command "frobnicate"`)

	_, err = h.run("status")
	assert.ErrorIs(t, err, giterr.ErrNotARepository)
}

func TestRunWorkflow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	out := h.mustRun("init")
	assert.Contains(t, out, "Initialized empty Git repository")

	h.write("README.md", "# hello\n")
	h.write("src/main.go", "package main\n")
	assert.Equal(t, []string{"?? README.md", "?? src/main.go"}, lines(h.mustRun("status")))

	h.mustRun("add", "README.md")
	h.mustRun("add", "-r", "src")
	assert.Equal(t, []string{"A? README.md", "A? src/main.go"}, lines(h.mustRun("status")))

	out = h.mustRun("commit", "-m", "feat: first", "-author", "Ada <ada@example.com>")
	assert.Contains(t, out, "feat: first")
	assert.Empty(t, h.mustRun("status"))

	_, err := h.run("commit", "-m", "again", "-author", "Ada <ada@example.com>")
	assert.ErrorIs(t, err, giterr.ErrEmptyCommit)

	assert.Equal(t, []string{"README.md", "src/main.go"}, lines(h.mustRun("ls-files")))
	long := h.mustRun("ls-files", "-long")
	assert.Contains(t, long, "100644 ")
	assert.Contains(t, long, "\tsrc/main.go\n")

	h.write("notes.txt", "scratch\n")
	assert.Equal(t, []string{"notes.txt"}, lines(h.mustRun("ls-files", "-others")))
	assert.Equal(t, []string{"README.md", "notes.txt", "src/main.go"}, lines(h.mustRun("ls-files", "-all")))

	h.write("README.md", "# hello\n\nmore words\n")
	diff := h.mustRun("diff")
	assert.Contains(t, diff, "diff --git a/README.md b/README.md\n")
	assert.Contains(t, diff, "+more words\n")
	assert.Empty(t, h.mustRun("diff", "-cached"))

	h.mustRun("add", "README.md")
	h.mustRun("commit", "-m", "docs: expand readme", "-author", "Ada <ada@example.com>")

	ids := lines(h.mustRun("rev-list"))
	require.Len(t, ids, 2)
	assert.Len(t, ids[0], 40)
	assert.Equal(t, ids[:1], lines(h.mustRun("rev-list", "-n", "1")))
	assert.Equal(t, ids[:1], lines(h.mustRun("rev-list", "HEAD", "^"+ids[1])))
	assert.Equal(t, ids[1:], lines(h.mustRun("rev-list", "-path", "src")))

	wc := h.mustRun("whatchanged")
	assert.Contains(t, wc, "commit "+ids[0]+"\n")
	assert.Contains(t, wc, "Author: Ada <ada@example.com>\n")
	assert.Contains(t, wc, ":M\tREADME.md\n")
	assert.Contains(t, wc, ":A\tsrc/main.go\n")
	fuller := h.mustRun("whatchanged", "-n", "1", "-fuller")
	assert.Contains(t, fuller, "Commit:     Ada <ada@example.com>\n")
	assert.Contains(t, fuller, "CommitDate: ")

	assert.Equal(t, "package main\n", h.mustRun("show", "HEAD:src/main.go"))
	assert.Equal(t, "# hello\n", h.mustRun("show", ids[1]+":README.md"))

	h.mustRun("checkout", "-b", "topic")
	assert.Equal(t, []string{"  master", "* topic"}, lines(h.mustRun("branch")))
	h.mustRun("checkout", "master")
	assert.Equal(t, []string{"* master", "  topic"}, lines(h.mustRun("branch")))

	h.write("README.md", "scribbled\n")
	h.mustRun("checkout", "--", "README.md")
	data, err := os.ReadFile(filepath.Join(h.dir, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# hello\n\nmore words\n", string(data))

	h.mustRun("rm", "src/main.go")
	assert.Equal(t, []string{"?? notes.txt", "DD src/main.go"}, lines(h.mustRun("status")))
}

func TestRunAddOutsideRepository(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.mustRun("init")
	_, err := h.run("add", filepath.Join("..", "elsewhere.txt"))
	assert.ErrorIs(t, err, giterr.ErrInvalidArgument)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	got, err := parseDate("since", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseDate("since", "2005-04-07T15:00:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2005, 4, 7, 15, 0, 0, 0, time.UTC)))

	got, err = parseDate("until", "2005-04-07")
	require.NoError(t, err)
	assert.Equal(t, 2005, got.Year())
	assert.Equal(t, time.April, got.Month())

	_, err = parseDate("since", "last tuesday")
	assert.ErrorIs(t, err, giterr.ErrInvalidArgument)
}

func TestSplitRevs(t *testing.T) {
	t.Parallel()

	start, stop := splitRevs([]string{"main", "^v1.0", "topic", "^origin/main"})
	assert.Equal(t, []string{"main", "topic"}, start)
	assert.Equal(t, []string{"v1.0", "origin/main"}, stop)
}
