package git

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/thiagokokada/simplegit/internal/ignore"
	"github.com/thiagokokada/simplegit/internal/index"
	"github.com/thiagokokada/simplegit/internal/status"
	"github.com/thiagokokada/simplegit/internal/worktree"
)

// Status classifies every path that differs between HEAD, the index and the
// working tree, sorted by path.
func (r *Repository) Status(ctx context.Context, opts status.Options) ([]status.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked(ctx, opts)
}

func (r *Repository) statusLocked(ctx context.Context, opts status.Options) ([]status.Record, error) {
	idx, head, err := r.openIndex()
	if err != nil {
		return nil, err
	}
	rules, err := ignore.Load(r.fs)
	if err != nil {
		return nil, err
	}
	engine := &status.Engine{
		Head:       head,
		Index:      idx,
		Worktree:   r.scanner(idx),
		Ignore:     rules,
		Submodules: r,
	}
	recs, err := engine.Status(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return recs, nil
}

// SubmoduleStatus opens the nested repository at p and reports its status.
func (r *Repository) SubmoduleStatus(ctx context.Context, p string, opts status.Options) ([]status.Record, error) {
	sub, err := r.openNested(p)
	if err != nil {
		return nil, err
	}
	return sub.statusLocked(ctx, opts)
}

func (r *Repository) openNested(p string) (*Repository, error) {
	gitDir, err := worktree.New(r.fs).GitDir(p)
	if err != nil {
		return nil, fmt.Errorf("submodule %s: %w", p, err)
	}
	wt, err := r.fs.Chroot(p)
	if err != nil {
		return nil, fmt.Errorf("submodule %s: %w", p, err)
	}
	var dotgit billy.Filesystem
	if filepath.IsAbs(gitDir) {
		dotgit = osfs.New(gitDir)
	} else if dotgit, err = r.fs.Chroot(gitDir); err != nil {
		return nil, fmt.Errorf("submodule %s: %w", p, err)
	}
	return openRepository(wt, dotgit, Options{})
}

// LocalChanges summarizes status the way a commit graph view needs it.
type LocalChanges struct {
	HasWorktree bool
	HasStaged   bool
}

func (r *Repository) LocalChanges(ctx context.Context) (LocalChanges, error) {
	var res LocalChanges
	recs, err := r.Status(ctx, status.Options{})
	if err != nil {
		return res, err
	}
	for _, rec := range recs {
		switch rec.Index {
		case status.IndexAdded, status.IndexModified, status.IndexRemoved:
			res.HasStaged = true
		}
		switch rec.Repo {
		case status.RepoModified, status.RepoRemoved:
			if rec.Index != status.IndexRemoved {
				res.HasWorktree = true
			}
		}
		if res.HasStaged && res.HasWorktree {
			break
		}
	}
	return res, nil
}

type LsFilesOptions struct {
	// Others lists untracked files that are not ignored instead of the index.
	Others bool
	// All lists the index together with untracked files that are not ignored.
	All bool
}

type LsFileEntry struct {
	Path  string
	Hash  plumbing.Hash
	Mode  filemode.FileMode
	Size  uint32
	Stage index.StageFlag
}

// LsFiles lists tracked paths (or untracked ones with Others) in path order.
func (r *Repository) LsFiles(ctx context.Context, opts LsFilesOptions) ([]LsFileEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, _, err := r.openIndex()
	if err != nil {
		return nil, err
	}
	var out []LsFileEntry
	if !opts.Others {
		for _, e := range idx.Staged() {
			out = append(out, LsFileEntry{Path: e.Path, Hash: e.Hash, Mode: e.Mode, Size: e.Size, Stage: e.Stage})
		}
		if !opts.All {
			return out, nil
		}
	}

	rules, err := ignore.Load(r.fs)
	if err != nil {
		return nil, err
	}
	files, err := r.scanner(idx).Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if e, tracked := idx.Entry(f.Path); (tracked && e.Stage != index.StageRemoved) || rules.Match(f.Path, false) {
			continue
		}
		out = append(out, LsFileEntry{Path: f.Path, Mode: f.Mode, Size: uint32(f.Size)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
