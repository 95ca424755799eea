// Package worktree lists and hashes files in a working directory.
package worktree

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/thiagokokada/simplegit/internal/giterr"
)

const gitDirName = ".git"

// Entry describes one file as last seen on disk.
type Entry struct {
	Path    string
	ModTime time.Time
	Size    int64
	Mode    filemode.FileMode
	// Submodule marks a nested repository reported as a single opaque leaf.
	Submodule bool
	// Empty marks a submodule directory with no repository checked out.
	Empty bool
}

// Scanner reads a working directory through a billy filesystem rooted at the
// repository top level.
type Scanner struct {
	fs       billy.Filesystem
	gitlinks map[string]bool
}

func New(fs billy.Filesystem) *Scanner {
	return &Scanner{fs: fs}
}

func (s *Scanner) Filesystem() billy.Filesystem { return s.fs }

// WithGitlinks returns a scanner that treats a directory at any of paths as
// a submodule leaf even when nothing is checked out inside it.
func (s *Scanner) WithGitlinks(paths []string) *Scanner {
	links := make(map[string]bool, len(paths))
	for _, p := range paths {
		links[p] = true
	}
	return &Scanner{fs: s.fs, gitlinks: links}
}

// Scan returns every file under the root sorted by path. The top-level .git
// directory is skipped and nested repositories are not descended into.
// Files that disappear while scanning are left out.
func (s *Scanner) Scan(ctx context.Context) ([]Entry, error) {
	var out []Entry
	if err := s.walk(ctx, "", &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	slog.Debug("worktree scanned", slog.Int("files", len(out)))
	return out, nil
}

func (s *Scanner) walk(ctx context.Context, dir string, out *[]Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	infos, err := s.fs.ReadDir(dirOrRoot(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && dir != "" {
			return nil
		}
		return giterr.Join(giterr.ErrIO, err, "read dir "+dirOrRoot(dir))
	}
	for _, info := range infos {
		name := info.Name()
		if dir == "" && name == gitDirName {
			continue
		}
		p := join(dir, name)
		if info.IsDir() {
			if e, ok := s.submodule(p, info); ok {
				*out = append(*out, e)
				continue
			}
			if err := s.walk(ctx, p, out); err != nil {
				return err
			}
			continue
		}
		e, err := s.Stat(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		*out = append(*out, e)
	}
	return nil
}

func (s *Scanner) submodule(p string, info os.FileInfo) (Entry, bool) {
	switch {
	case s.isRepository(p):
		return Entry{Path: p, ModTime: info.ModTime(), Mode: filemode.Submodule, Submodule: true}, true
	case s.gitlinks[p]:
		return Entry{Path: p, ModTime: info.ModTime(), Mode: filemode.Submodule, Submodule: true, Empty: true}, true
	}
	return Entry{}, false
}

func (s *Scanner) isRepository(dir string) bool {
	_, err := s.fs.Lstat(join(dir, gitDirName))
	return err == nil
}

// Stat returns the entry for a single path. A missing file yields an error
// matching os.ErrNotExist.
func (s *Scanner) Stat(p string) (Entry, error) {
	info, err := s.fs.Lstat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, err
		}
		return Entry{}, giterr.Join(giterr.ErrIO, err, "stat "+p)
	}
	if info.IsDir() {
		if e, ok := s.submodule(p, info); ok {
			return e, nil
		}
		return Entry{}, fmt.Errorf("stat %s: %w", p, os.ErrNotExist)
	}
	mode, err := filemode.NewFromOSFileMode(info.Mode())
	if err != nil {
		mode = filemode.Regular
	}
	return Entry{Path: p, ModTime: info.ModTime(), Size: info.Size(), Mode: mode}, nil
}

// ContentHash computes the blob id the file would have if staged. Symlinks
// hash their target.
func (s *Scanner) ContentHash(p string) (plumbing.Hash, error) {
	info, err := s.fs.Lstat(p)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := s.fs.Readlink(p)
		if err != nil {
			return plumbing.ZeroHash, giterr.Join(giterr.ErrIO, err, "readlink "+p)
		}
		return plumbing.ComputeHash(plumbing.BlobObject, []byte(target)), nil
	}
	data, err := s.ReadFile(p)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return plumbing.ComputeHash(plumbing.BlobObject, data), nil
}

func (s *Scanner) ReadFile(p string) ([]byte, error) {
	f, err := s.fs.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, giterr.Join(giterr.ErrIO, err, "open "+p)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, giterr.Join(giterr.ErrIO, err, "read "+p)
	}
	return data, nil
}

// GitDir locates the git directory of the nested repository at dir. A .git
// file is followed through its "gitdir:" line; the result is relative to the
// scanner root unless the file names an absolute path.
func (s *Scanner) GitDir(dir string) (string, error) {
	dotgit := join(dir, gitDirName)
	info, err := s.fs.Lstat(dotgit)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return dotgit, nil
	}
	f, err := s.fs.Open(dotgit)
	if err != nil {
		return "", giterr.Join(giterr.ErrIO, err, "open "+dotgit)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		target, ok := strings.CutPrefix(line, "gitdir:")
		if !ok {
			continue
		}
		target = strings.TrimSpace(target)
		if path.IsAbs(target) {
			return target, nil
		}
		return path.Clean(join(dir, target)), nil
	}
	return "", giterr.Wrapf(giterr.ErrNotARepository, "%s: no gitdir line", dotgit)
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func dirOrRoot(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}
