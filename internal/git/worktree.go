package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/util"
	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/thiagokokada/simplegit/internal/giterr"
	"github.com/thiagokokada/simplegit/internal/graph"
	"github.com/thiagokokada/simplegit/internal/ignore"
	"github.com/thiagokokada/simplegit/internal/index"
	"github.com/thiagokokada/simplegit/internal/worktree"
)

// Add stages p. A directory requires recursive and stages every file below
// it, including deletions; untracked ignored files and nested repositories
// are skipped. Staging a tracked path that no longer exists stages its
// removal.
func (r *Repository) Add(ctx context.Context, p string, recursive bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix, err := pathspec(p)
	if err != nil {
		return err
	}
	if prefix == "" && !recursive {
		return giterr.Wrapf(giterr.ErrInvalidArgument, "%q is the whole tree, add it recursively", p)
	}
	idx, _, err := r.openIndex()
	if err != nil {
		return err
	}
	scanner := r.scanner(idx)
	rules, err := ignore.Load(r.fs)
	if err != nil {
		return err
	}

	staged, removed := 0, 0
	err = idx.Update(func(s *index.Store) error {
		if prefix != "" {
			entry, err := scanner.Stat(prefix)
			switch {
			case err == nil && !entry.Submodule:
				staged++
				return r.stageFile(s, scanner, entry)
			case errors.Is(err, os.ErrNotExist) && !r.isDir(prefix):
				if _, ok := s.Entry(prefix); ok {
					removed++
					_, err := s.RemovePath(prefix)
					return err
				}
				if !r.trackedUnder(s, prefix) {
					return giterr.Wrapf(giterr.ErrInvalidArgument, "pathspec %q did not match any files", p)
				}
			case err != nil && !errors.Is(err, os.ErrNotExist):
				return err
			}
			if !recursive {
				return giterr.Wrapf(giterr.ErrInvalidArgument, "%q is a directory, add it recursively", p)
			}
		}

		files, err := scanner.Scan(ctx)
		if err != nil {
			return err
		}
		present := make(map[string]bool, len(files))
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !underPath(f.Path, prefix) || f.Submodule {
				continue
			}
			present[f.Path] = true
			if _, tracked := s.Entry(f.Path); !tracked && rules.Match(f.Path, false) {
				continue
			}
			if err := r.stageFile(s, scanner, f); err != nil {
				return err
			}
			staged++
		}
		for _, e := range s.Staged() {
			if !underPath(e.Path, prefix) || present[e.Path] || e.Mode == filemode.Submodule {
				continue
			}
			if _, err := s.RemovePath(e.Path); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add %s: %w", p, err)
	}
	slog.Debug("paths staged", slog.String("path", p), slog.Int("staged", staged), slog.Int("removed", removed))
	return nil
}

func (r *Repository) stageFile(s *index.Store, scanner *worktree.Scanner, e worktree.Entry) error {
	data, err := r.fileContent(scanner, e)
	if err != nil {
		return err
	}
	hash, err := r.writeBlob(data)
	if err != nil {
		return err
	}
	return s.AddPath(e.Path, hash, index.Meta{Mode: e.Mode, Size: uint32(e.Size), ModifiedAt: e.ModTime})
}

func (r *Repository) fileContent(scanner *worktree.Scanner, e worktree.Entry) ([]byte, error) {
	if e.Mode == filemode.Symlink {
		target, err := r.fs.Readlink(e.Path)
		if err != nil {
			return nil, giterr.Join(giterr.ErrIO, err, "readlink "+e.Path)
		}
		return []byte(target), nil
	}
	return scanner.ReadFile(e.Path)
}

func (r *Repository) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open blob writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, fmt.Errorf("write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("close blob writer: %w", err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, giterr.Join(giterr.ErrIO, err, "store blob")
	}
	return hash, nil
}

// Remove unstages p (every tracked path below it for a directory) and
// deletes the files from the working tree.
func (r *Repository) Remove(ctx context.Context, p string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix, err := pathspec(p)
	if err != nil {
		return err
	}
	if prefix == "" {
		return giterr.Wrap(giterr.ErrInvalidArgument, "refusing to remove the whole tree")
	}
	idx, _, err := r.openIndex()
	if err != nil {
		return err
	}
	var gone []string
	err = idx.Update(func(s *index.Store) error {
		for _, e := range s.Staged() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !underPath(e.Path, prefix) {
				continue
			}
			if _, err := s.RemovePath(e.Path); err != nil {
				return err
			}
			gone = append(gone, e.Path)
		}
		if len(gone) == 0 {
			return giterr.Wrapf(giterr.ErrInvalidArgument, "pathspec %q did not match any tracked files", p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	for _, name := range gone {
		if err := r.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return giterr.Join(giterr.ErrIO, err, "delete "+name)
		}
	}
	slog.Debug("paths removed", slog.String("path", p), slog.Int("count", len(gone)))
	return nil
}

// Commit records the index as a new commit on HEAD. A zero committer
// defaults to the author and zero dates default to now.
func (r *Repository) Commit(ctx context.Context, author, committer graph.Signature, message string) (plumbing.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return plumbing.ZeroHash, err
	}
	if author.Name == "" || author.Email == "" {
		return plumbing.ZeroHash, giterr.Wrap(giterr.ErrInvalidArgument, "commit: author name and email required")
	}
	if strings.TrimSpace(message) == "" {
		return plumbing.ZeroHash, giterr.Wrap(giterr.ErrInvalidArgument, "commit: empty message")
	}
	if committer.Name == "" {
		committer = author
	}
	now := time.Now()
	if author.When.IsZero() {
		author.When = now
	}
	if committer.When.IsZero() {
		committer.When = now
	}

	idx, head, err := r.openIndex()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if sameSnapshot(idx, head) {
		return plumbing.ZeroHash, giterr.ErrEmptyCommit
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}
	hash, err := wt.Commit(message, &gitlib.CommitOptions{
		Author:    signature(author),
		Committer: signature(committer),
	})
	if err != nil {
		if errors.Is(err, gitlib.ErrEmptyCommit) {
			return plumbing.ZeroHash, giterr.Join(giterr.ErrEmptyCommit, err, "commit")
		}
		return plumbing.ZeroHash, fmt.Errorf("commit: %w", err)
	}
	slog.Debug("commit created", slog.String("hash", hash.String()), slog.Int("entries", idx.Len()))
	return hash, nil
}

func sameSnapshot(idx *index.Store, head map[string]plumbing.Hash) bool {
	if !idx.Materialized() {
		return true
	}
	staged := idx.Staged()
	if len(staged) != len(head) {
		return false
	}
	for _, e := range staged {
		if h, ok := head[e.Path]; !ok || h != e.Hash {
			return false
		}
	}
	return true
}

func signature(s graph.Signature) *object.Signature {
	return &object.Signature{Name: s.Name, Email: s.Email, When: s.When}
}

// Checkout has three forms. With paths, each path is restored from commit
// (HEAD when empty) into the working tree and the index. With a branch, HEAD
// switches to it, creating it at commit when commit is given. With only a
// commit, HEAD is detached there.
func (r *Repository) Checkout(ctx context.Context, commit, branch string, paths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(paths) > 0 {
		if commit == "" {
			commit = "HEAD"
		}
		return r.restorePaths(ctx, commit, paths)
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	opts := &gitlib.CheckoutOptions{}
	switch {
	case branch != "" && commit != "":
		hash, err := r.graph.Resolve(commit)
		if err != nil {
			return err
		}
		opts.Branch = plumbing.NewBranchReferenceName(branch)
		opts.Hash = hash
		opts.Create = true
	case branch != "":
		opts.Branch = plumbing.NewBranchReferenceName(branch)
		if _, err := r.repo.Reference(opts.Branch, false); err != nil {
			return giterr.Join(giterr.ErrRefNotFound, err, "branch "+branch)
		}
	case commit != "":
		hash, err := r.graph.Resolve(commit)
		if err != nil {
			return err
		}
		opts.Hash = hash
	default:
		return giterr.Wrap(giterr.ErrInvalidArgument, "checkout: nothing to check out")
	}
	if err := wt.Checkout(opts); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	slog.Debug("checked out",
		slog.String("commit", commit),
		slog.String("branch", branch),
	)
	return nil
}

func (r *Repository) restorePaths(ctx context.Context, rev string, paths []string) error {
	id, err := r.graph.Resolve(rev)
	if err != nil {
		return err
	}
	c, err := r.repo.CommitObject(id)
	if err != nil {
		return fmt.Errorf("read commit %s: %w", id, err)
	}
	tree, err := c.Tree()
	if err != nil {
		return fmt.Errorf("read tree of %s: %w", id, err)
	}
	flat, err := graph.FlattenTree(tree)
	if err != nil {
		return err
	}

	var wanted []string
	for _, p := range paths {
		prefix, err := pathspec(p)
		if err != nil {
			return err
		}
		n := len(wanted)
		for name := range flat {
			if underPath(name, prefix) {
				wanted = append(wanted, name)
			}
		}
		if len(wanted) == n {
			return giterr.Wrapf(giterr.ErrInvalidArgument, "pathspec %q did not match any file in %s", p, rev)
		}
	}

	idx, _, err := r.openIndex()
	if err != nil {
		return err
	}
	scanner := worktree.New(r.fs)
	err = idx.Update(func(s *index.Store) error {
		for _, name := range wanted {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := tree.File(name)
			if errors.Is(err, object.ErrFileNotFound) {
				// gitlinks have no blob to restore
				continue
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			if err := r.writeWorktreeFile(f); err != nil {
				return err
			}
			entry, err := scanner.Stat(name)
			if err != nil {
				return err
			}
			if err := s.AddPath(name, f.Hash, index.Meta{Mode: f.Mode, Size: uint32(entry.Size), ModifiedAt: entry.ModTime}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("restore paths: %w", err)
	}
	slog.Debug("paths restored", slog.String("rev", rev), slog.Int("files", len(wanted)))
	return nil
}

func (r *Repository) writeWorktreeFile(f *object.File) error {
	if err := r.fs.MkdirAll(path.Dir(f.Name), 0o755); err != nil {
		return giterr.Join(giterr.ErrIO, err, "create directory for "+f.Name)
	}
	if err := r.fs.Remove(f.Name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return giterr.Join(giterr.ErrIO, err, "replace "+f.Name)
	}
	rd, err := f.Reader()
	if err != nil {
		return fmt.Errorf("read blob %s: %w", f.Hash, err)
	}
	defer rd.Close()
	data, err := io.ReadAll(rd)
	if err != nil {
		return fmt.Errorf("read blob %s: %w", f.Hash, err)
	}
	if f.Mode == filemode.Symlink {
		if err := r.fs.Symlink(string(data), f.Name); err != nil {
			return giterr.Join(giterr.ErrIO, err, "symlink "+f.Name)
		}
		return nil
	}
	perm := os.FileMode(0o644)
	if f.Mode == filemode.Executable {
		perm = 0o755
	}
	if err := util.WriteFile(r.fs, f.Name, data, perm); err != nil {
		return giterr.Join(giterr.ErrIO, err, "write "+f.Name)
	}
	return nil
}

func (r *Repository) isDir(p string) bool {
	info, err := r.fs.Lstat(p)
	return err == nil && info.IsDir()
}

func (r *Repository) trackedUnder(s *index.Store, prefix string) bool {
	for _, e := range s.Staged() {
		if underPath(e.Path, prefix) {
			return true
		}
	}
	return false
}

// pathspec cleans a user path. "." and "" select the whole tree and yield
// an empty prefix.
func pathspec(p string) (string, error) {
	if p == "" || p == "." || p == "./" {
		return "", nil
	}
	return index.CleanPath(strings.TrimSuffix(p, "/"))
}

func underPath(name, prefix string) bool {
	return prefix == "" || name == prefix || strings.HasPrefix(name, prefix+"/")
}
