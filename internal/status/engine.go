package status

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/thiagokokada/simplegit/internal/index"
	"github.com/thiagokokada/simplegit/internal/worktree"
)

type Options struct {
	// IncludeIgnored reports ignored untracked paths with Ignored set.
	IncludeIgnored bool
	// RecurseSubmodules replaces each nested repository's leaf with its own records.
	RecurseSubmodules bool
}

type IndexView interface {
	Entries() []index.Entry
	IsRacy(index.Entry) bool
}

type WorktreeView interface {
	Scan(ctx context.Context) ([]worktree.Entry, error)
	ContentHash(path string) (plumbing.Hash, error)
}

type IgnoreRules interface {
	Match(path string, isDir bool) bool
}

// SubmoduleStatus reports the status of the nested repository at path.
// Returned paths are relative to that repository.
type SubmoduleStatus interface {
	SubmoduleStatus(ctx context.Context, path string, opts Options) ([]Record, error)
}

// Engine computes status from a HEAD snapshot, the index and the working tree.
type Engine struct {
	Head       map[string]plumbing.Hash
	Index      IndexView
	Worktree   WorktreeView
	Ignore     IgnoreRules
	Submodules SubmoduleStatus
}

// Status returns one record per path that differs between any two sources,
// sorted by path.
func (e *Engine) Status(ctx context.Context, opts Options) ([]Record, error) {
	started := time.Now()
	wt, err := e.Worktree.Scan(ctx)
	if err != nil {
		return nil, err
	}
	var entries []index.Entry
	if e.Index != nil {
		entries = e.Index.Entries()
	}
	head := sortedKeys(e.Head)

	var out []Record
	i, j, k := 0, 0, 0
	for i < len(head) || j < len(entries) || k < len(wt) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := minPath(head, i, entries, j, wt, k)

		var row row
		row.path = p
		if i < len(head) && head[i] == p {
			row.head, row.headHash = true, e.Head[p]
			i++
		}
		if j < len(entries) && entries[j].Path == p {
			row.index = &entries[j]
			j++
		}
		if k < len(wt) && wt[k].Path == p {
			row.wt = &wt[k]
			k++
		}

		recs, err := e.classify(ctx, row, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Path < out[b].Path })
	slog.Debug("status computed",
		slog.Int("head", len(head)),
		slog.Int("index", len(entries)),
		slog.Int("worktree", len(wt)),
		slog.Int("records", len(out)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return out, nil
}

type row struct {
	path     string
	head     bool
	headHash plumbing.Hash
	index    *index.Entry
	wt       *worktree.Entry
}

func (r row) submodule() bool {
	return (r.wt != nil && r.wt.Submodule) || (r.index != nil && r.index.Mode == filemode.Submodule)
}

func (e *Engine) classify(ctx context.Context, r row, opts Options) ([]Record, error) {
	if opts.RecurseSubmodules && e.Submodules != nil && r.wt != nil && r.wt.Submodule && !r.wt.Empty {
		return e.nested(ctx, r.path, opts)
	}

	in := Input{Head: r.head, Worktree: r.wt != nil}
	if r.index != nil {
		switch r.index.Stage {
		case index.StageRemoved:
			in.Index = RemovedPending
		default:
			in.Index = Staged
			in.IndexMatchesHead = r.head && r.index.Hash == r.headHash
		}
	}

	if in.Worktree && in.Index != RemovedPending && (in.Index == Staged || in.Head) {
		matches, present, err := e.worktreeMatches(r)
		if err != nil {
			return nil, err
		}
		in.Worktree = present
		in.WorktreeMatches = matches
	}

	idx, repo, ok := Classify(in)
	if !ok {
		return nil, nil
	}
	rec := Record{Path: r.path, Index: idx, Repo: repo}
	if idx == IndexUntracked && e.Ignore != nil && e.Ignore.Match(r.path, false) {
		if !opts.IncludeIgnored {
			return nil, nil
		}
		rec.Ignored = true
	}
	return []Record{rec}, nil
}

// worktreeMatches compares the working file against the index entry, or HEAD
// when there is none. The second result is false if the file vanished.
func (e *Engine) worktreeMatches(r row) (bool, bool, error) {
	if r.submodule() {
		// nested repositories are compared by existence only
		gitlink := r.index == nil || r.index.Mode == filemode.Submodule
		return r.wt.Submodule && gitlink, true, nil
	}
	want := r.headHash
	if r.index != nil {
		ie := *r.index
		if ie.Mode != filemode.Empty && r.wt.Mode != filemode.Empty && ie.Mode != r.wt.Mode {
			return false, true, nil
		}
		if uint32(r.wt.Size) != ie.Size {
			return false, true, nil
		}
		if r.wt.ModTime.Equal(ie.ModifiedAt) && !e.Index.IsRacy(ie) {
			return true, true, nil
		}
		want = ie.Hash
	}
	got, err := e.Worktree.ContentHash(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("file vanished during status", slog.String("path", r.path))
			return false, false, nil
		}
		return false, false, err
	}
	return got == want, true, nil
}

func (e *Engine) nested(ctx context.Context, prefix string, opts Options) ([]Record, error) {
	recs, err := e.Submodules.SubmoduleStatus(ctx, prefix, opts)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].Path = prefix + "/" + recs[i].Path
	}
	return recs, nil
}

func sortedKeys(m map[string]plumbing.Hash) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func minPath(head []string, i int, entries []index.Entry, j int, wt []worktree.Entry, k int) string {
	var p string
	set := false
	pick := func(c string) {
		if !set || c < p {
			p, set = c, true
		}
	}
	if i < len(head) {
		pick(head[i])
	}
	if j < len(entries) {
		pick(entries[j].Path)
	}
	if k < len(wt) {
		pick(wt[k].Path)
	}
	return p
}
