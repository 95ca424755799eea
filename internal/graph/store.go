package graph

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	gitlib "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/thiagokokada/simplegit/internal/giterr"
)

const DefaultTreeCacheSize = 256

// Store lazily loads commits from a go-git repository into an arena. Flattened
// trees are kept in an LRU since path-restricted walks look at every tree twice
// (once as a commit, once as a parent).
type Store struct {
	mu    sync.Mutex
	repo  *gitlib.Repository
	arena *Graph
	trees *lru.Cache[plumbing.Hash, map[string]plumbing.Hash]
}

func NewStore(repo *gitlib.Repository, treeCacheSize int) (*Store, error) {
	if repo == nil {
		return nil, giterr.Wrap(giterr.ErrInvalidArgument, "nil repository")
	}
	if treeCacheSize <= 0 {
		treeCacheSize = DefaultTreeCacheSize
	}
	trees, err := lru.New[plumbing.Hash, map[string]plumbing.Hash](treeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("tree cache: %w", err)
	}
	return &Store{repo: repo, arena: New(), trees: trees}, nil
}

// Resolve maps a revision (branch, tag, remote ref, HEAD, hash) to a commit id.
func (s *Store) Resolve(name string) (plumbing.Hash, error) {
	hash, err := s.repo.ResolveRevision(plumbing.Revision(name))
	if err != nil {
		return plumbing.ZeroHash, giterr.Join(giterr.ErrRefNotFound, err, fmt.Sprintf("resolve %q", name))
	}
	if _, err := s.Node(*hash); err != nil {
		return plumbing.ZeroHash, err
	}
	return *hash, nil
}

func (s *Store) Node(id plumbing.Hash) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.arena.Lookup(id); ok {
		return n, nil
	}
	c, err := object.GetCommit(s.repo.Storer, id)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, giterr.Join(giterr.ErrRefNotFound, err, fmt.Sprintf("commit %s", id))
		}
		return nil, fmt.Errorf("read commit %s: %w", id, err)
	}
	return s.arena.Add(NodeFromCommit(c)), nil
}

func (s *Store) Tree(id plumbing.Hash) (map[string]plumbing.Hash, error) {
	if id.IsZero() {
		return map[string]plumbing.Hash{}, nil
	}
	if t, ok := s.trees.Get(id); ok {
		return t, nil
	}
	tree, err := object.GetTree(s.repo.Storer, id)
	if err != nil {
		return nil, fmt.Errorf("read tree %s: %w", id, err)
	}
	entries, err := FlattenTree(tree)
	if err != nil {
		return nil, err
	}
	s.trees.Add(id, entries)
	slog.Debug("tree cached", slog.String("tree", id.String()), slog.Int("entries", len(entries)))
	return entries, nil
}

// Loaded reports how many commits have been materialized in the arena.
func (s *Store) Loaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena.Len()
}

// FlattenTree returns every non-directory entry of tree keyed by slash path.
// Submodule gitlinks are included with the commit hash they point at.
func FlattenTree(tree *object.Tree) (map[string]plumbing.Hash, error) {
	entries := make(map[string]plumbing.Hash)
	if tree == nil {
		return entries, nil
	}
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walk tree %s: %w", tree.Hash, err)
		}
		if entry.Mode == filemode.Dir {
			continue
		}
		entries[name] = entry.Hash
	}
	return entries, nil
}
