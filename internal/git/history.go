package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/thiagokokada/simplegit/internal/change"
	"github.com/thiagokokada/simplegit/internal/giterr"
	"github.com/thiagokokada/simplegit/internal/graph"
	"github.com/thiagokokada/simplegit/internal/index"
	"github.com/thiagokokada/simplegit/internal/revwalk"
)

// RevList returns the ids of the commits selected by f, newest first.
func (r *Repository) RevList(ctx context.Context, f revwalk.Filter) ([]plumbing.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return revwalk.Walk(ctx, r.graph, f)
}

// CommitNode resolves rev and loads its commit.
func (r *Repository) CommitNode(rev string) (*graph.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.graph.Resolve(rev)
	if err != nil {
		return nil, err
	}
	return r.graph.Node(id)
}

type WhatChangedOptions struct {
	DetectRenames bool
}

// WhatChanged formats every commit selected by f with its changed paths.
func (r *Repository) WhatChanged(ctx context.Context, f revwalk.Filter, opts WhatChangedOptions) ([]change.Record, error) {
	var out []change.Record
	err := r.EachChange(ctx, f, opts, func(rec change.Record) error {
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EachChange streams WhatChanged records to fn. Returning revwalk.ErrStop
// ends the walk early.
func (r *Repository) EachChange(ctx context.Context, f revwalk.Filter, opts WhatChangedOptions, fn func(change.Record) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	formatter := &change.Formatter{Objects: r.repo.Storer, DetectRenames: opts.DetectRenames}
	count := 0
	err := revwalk.Each(ctx, r.graph, f, func(n *graph.Node) error {
		rec, err := formatter.Format(ctx, n)
		if err != nil {
			return err
		}
		count++
		return fn(rec)
	})
	slog.Debug("whatchanged done", slog.Int("commits", count), slog.Int("loaded", r.graph.Loaded()))
	return err
}

// FileAt returns the content of name as recorded in rev.
func (r *Repository) FileAt(rev, name string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clean, err := index.CleanPath(name)
	if err != nil {
		return nil, err
	}
	id, err := r.graph.Resolve(rev)
	if err != nil {
		return nil, err
	}
	c, err := r.repo.CommitObject(id)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", id, err)
	}
	f, err := c.File(clean)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, giterr.Wrapf(giterr.ErrInvalidArgument, "%s does not exist in %s", clean, rev)
		}
		return nil, fmt.Errorf("read %s at %s: %w", clean, rev, err)
	}
	content, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s at %s: %w", clean, rev, err)
	}
	return []byte(content), nil
}
