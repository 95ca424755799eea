package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/thiagokokada/simplegit/internal/index"
	"github.com/thiagokokada/simplegit/internal/status"
	"github.com/thiagokokada/simplegit/internal/worktree"
)

type localChange struct {
	path string
	from *object.File
	to   *object.File
}

// Diff renders a unified diff of local changes: HEAD against the index when
// staged is set, otherwise the index against the working tree. The result
// is empty when there is nothing to show.
func (r *Repository) Diff(ctx context.Context, staged bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs, err := r.statusLocked(ctx, status.Options{})
	if err != nil {
		return "", err
	}
	idx, head, err := r.openIndex()
	if err != nil {
		return "", err
	}
	scanner := r.scanner(idx)

	var diffs []localChange
	for _, rec := range recs {
		if !includeInDiff(rec, staged) {
			continue
		}
		entry, inIndex := idx.Entry(rec.Path)
		if inIndex && entry.Stage == index.StageRemoved {
			inIndex = false
		}
		var ch localChange
		ch.path = rec.Path
		if staged {
			if ch.from, err = r.fileFromHash(rec.Path, head[rec.Path], filemode.Regular); err != nil {
				return "", err
			}
			if inIndex {
				if ch.to, err = r.fileFromHash(rec.Path, entry.Hash, entry.Mode); err != nil {
					return "", err
				}
			}
		} else {
			base, mode := head[rec.Path], filemode.Regular
			if inIndex {
				base, mode = entry.Hash, entry.Mode
			}
			if ch.from, err = r.fileFromHash(rec.Path, base, mode); err != nil {
				return "", err
			}
			if ch.to, err = fileFromDisk(scanner, rec.Path); err != nil {
				return "", err
			}
		}
		if ch.from == nil && ch.to == nil {
			continue
		}
		diffs = append(diffs, ch)
	}
	if len(diffs) == 0 {
		return "", nil
	}
	return renderLocalDiff(localDiffHeader(staged), diffs)
}

func includeInDiff(rec status.Record, staged bool) bool {
	if staged {
		switch rec.Index {
		case status.IndexAdded, status.IndexModified, status.IndexRemoved:
			return true
		}
		return false
	}
	if rec.Index == status.IndexUntracked || rec.Index == status.IndexRemoved {
		return false
	}
	return rec.Repo == status.RepoModified || rec.Repo == status.RepoRemoved
}

func localDiffHeader(staged bool) string {
	if staged {
		return "Local changes checked into index but not committed"
	}
	return "Local uncommitted changes, not checked in to index"
}

func (r *Repository) fileFromHash(name string, hash plumbing.Hash, mode filemode.FileMode) (*object.File, error) {
	if hash.IsZero() || mode == filemode.Submodule {
		return nil, nil
	}
	blob, err := object.GetBlob(r.repo.Storer, hash)
	if err != nil {
		return nil, fmt.Errorf("read blob %s for %s: %w", hash, name, err)
	}
	return object.NewFile(name, mode, blob), nil
}

func fileFromDisk(scanner *worktree.Scanner, name string) (*object.File, error) {
	entry, err := scanner.Stat(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if entry.Submodule {
		return nil, nil
	}
	data, err := scanner.ReadFile(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	mem := &plumbing.MemoryObject{}
	mem.SetType(plumbing.BlobObject)
	if _, err := mem.Write(data); err != nil {
		return nil, err
	}
	blob, err := object.DecodeBlob(mem)
	if err != nil {
		return nil, err
	}
	return object.NewFile(name, entry.Mode, blob), nil
}

func renderLocalDiff(header string, diffs []localChange) (string, error) {
	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		if !strings.HasSuffix(header, "\n") {
			b.WriteByte('\n')
		}
	}
	for _, item := range diffs {
		if item.path == "" {
			continue
		}
		fmt.Fprintf(&b, "diff --git a/%s b/%s\n", item.path, item.path)
		switch {
		case item.from == nil:
			fmt.Fprintf(&b, "new file mode %s\n", item.to.Mode)
		case item.to == nil:
			fmt.Fprintf(&b, "deleted file mode %s\n", item.from.Mode)
		}

		isBinary, err := binaryChange(item)
		if err != nil {
			return "", err
		}
		if isBinary {
			b.WriteString("(binary files differ)\n")
			continue
		}

		fromLines, err := fileLines(item.from)
		if err != nil {
			return "", err
		}
		toLines, err := fileLines(item.to)
		if err != nil {
			return "", err
		}
		fromName, toName := "a/"+item.path, "b/"+item.path
		if item.from == nil {
			fromName = "/dev/null"
		}
		if item.to == nil {
			toName = "/dev/null"
		}
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        fromLines,
			B:        toLines,
			FromFile: fromName,
			ToFile:   toName,
			Context:  3,
		})
		if err != nil {
			return "", err
		}
		if text == "" {
			b.WriteString("(no textual changes)\n")
			continue
		}
		b.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

func binaryChange(ch localChange) (bool, error) {
	for _, f := range []*object.File{ch.from, ch.to} {
		if f == nil {
			continue
		}
		bin, err := f.IsBinary()
		if err != nil {
			return false, err
		}
		if bin {
			return true, nil
		}
	}
	return false, nil
}

func fileLines(f *object.File) ([]string, error) {
	if f == nil {
		return []string{}, nil
	}
	content, err := f.Contents()
	if err != nil {
		return nil, err
	}
	return difflib.SplitLines(content), nil
}
