// Package change describes what a commit did: its metadata and the paths it
// added, modified, deleted or renamed relative to its first parent.
package change

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/thiagokokada/simplegit/internal/graph"
)

type Kind uint8

const (
	Added Kind = iota
	Modified
	Deleted
	Renamed
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return "modified"
	}
}

// Letter is the one-letter code used in raw change lines.
func (k Kind) Letter() byte {
	switch k {
	case Added:
		return 'A'
	case Deleted:
		return 'D'
	case Renamed:
		return 'R'
	default:
		return 'M'
	}
}

// PathChange is one changed path. From is only set for renames.
type PathChange struct {
	Path string
	From string
	Kind Kind
}

type Record struct {
	Hash         plumbing.Hash
	Parents      []plumbing.Hash
	Author       graph.Signature
	Committer    graph.Signature
	Subject      string
	Body         string
	Changes      []PathChange
	Conventional *Conventional
}

// Formatter loads trees from Objects to compute per-commit changes.
type Formatter struct {
	Objects       storer.EncodedObjectStorer
	DetectRenames bool
}

// Format describes n. Root commits are compared against the empty tree.
func (f *Formatter) Format(ctx context.Context, n *graph.Node) (Record, error) {
	rec := Record{
		Hash:         n.ID,
		Parents:      n.Parents,
		Author:       n.Author,
		Committer:    n.Committer,
		Subject:      n.Subject,
		Body:         n.Body,
		Conventional: ParseConventional(n.Message()),
	}
	to, err := object.GetTree(f.Objects, n.Tree)
	if err != nil {
		return Record{}, fmt.Errorf("load tree of %s: %w", n.ID, err)
	}
	var from *object.Tree
	if !n.IsRoot() {
		parent, err := object.GetCommit(f.Objects, n.Parents[0])
		if err != nil {
			return Record{}, fmt.Errorf("load parent of %s: %w", n.ID, err)
		}
		if from, err = parent.Tree(); err != nil {
			return Record{}, fmt.Errorf("load parent tree of %s: %w", n.ID, err)
		}
	}
	rec.Changes, err = f.diff(ctx, from, to)
	if err != nil {
		return Record{}, fmt.Errorf("diff %s: %w", n.ID, err)
	}
	return rec, nil
}

func (f *Formatter) diff(ctx context.Context, from, to *object.Tree) ([]PathChange, error) {
	opts := *object.DefaultDiffTreeOptions
	opts.DetectRenames = f.DetectRenames
	changes, err := object.DiffTreeWithOptions(ctx, from, to, &opts)
	if err != nil {
		return nil, err
	}
	out := make([]PathChange, 0, len(changes))
	for _, ch := range changes {
		action, err := ch.Action()
		if err != nil {
			return nil, err
		}
		switch action {
		case merkletrie.Insert:
			out = append(out, PathChange{Path: ch.To.Name, Kind: Added})
		case merkletrie.Delete:
			out = append(out, PathChange{Path: ch.From.Name, Kind: Deleted})
		default:
			if ch.From.Name != ch.To.Name {
				out = append(out, PathChange{Path: ch.To.Name, From: ch.From.Name, Kind: Renamed})
				continue
			}
			out = append(out, PathChange{Path: ch.To.Name, Kind: Modified})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
