// Package revwalk lists commits reachable from a set of start points, newest
// first, under range, date, path and count filters.
//
// The walk is a best-first traversal keyed by committer date. Filters are
// applied when a commit is emitted, never when deciding whether to follow its
// parents, so a commit outside the date window still links its in-window
// descendants to their ancestors.
package revwalk

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/thiagokokada/simplegit/internal/giterr"
	"github.com/thiagokokada/simplegit/internal/graph"
)

const (
	// DefaultStart is walked when a Filter names no start points.
	DefaultStart = "HEAD"
	// Unbounded disables the MaxCount limit.
	Unbounded = -1
)

type Order uint8

const (
	// OrderDate emits commits by committer date, newest first.
	OrderDate Order = iota
	// OrderTopo additionally guarantees no commit is emitted before any of its children.
	OrderTopo
)

func (o Order) String() string {
	if o == OrderTopo {
		return "topo"
	}
	return "date"
}

// Source is the read side of the object store the walker needs.
type Source interface {
	Resolve(name string) (plumbing.Hash, error)
	Node(id plumbing.Hash) (*graph.Node, error)
	Tree(id plumbing.Hash) (map[string]plumbing.Hash, error)
}

// Filter selects commits. The zero value emits nothing because MaxCount is
// zero; start from NewFilter for an unbounded listing of HEAD.
type Filter struct {
	// Start lists refs or commit ids to walk from. Empty means HEAD.
	Start []string
	// Stop lists refs or commit ids whose ancestry (inclusive) is excluded.
	Stop []string
	// Path restricts output to commits that change something under this prefix.
	Path string
	// Since and Until bound the committer date, both inclusive.
	Since *time.Time
	Until *time.Time
	// MaxCount truncates the output; Unbounded (-1) disables the limit.
	MaxCount int
	Order    Order
}

func NewFilter() Filter {
	return Filter{MaxCount: Unbounded}
}

func (f Filter) inWindow(when time.Time) bool {
	if f.Since != nil && when.Before(*f.Since) {
		return false
	}
	if f.Until != nil && when.After(*f.Until) {
		return false
	}
	return true
}

// Walk returns the ids of the selected commits in output order.
func Walk(ctx context.Context, src Source, f Filter) ([]plumbing.Hash, error) {
	var ids []plumbing.Hash
	err := Each(ctx, src, f, func(n *graph.Node) error {
		ids = append(ids, n.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ErrStop can be returned by an Each callback to end the walk early without error.
var ErrStop = errors.New("stop walk")

// Each calls fn for every selected commit in output order.
func Each(ctx context.Context, src Source, f Filter, fn func(*graph.Node) error) error {
	if f.MaxCount == 0 {
		return nil
	}
	w := &walker{ctx: ctx, src: src, filter: f, prefix: normalizePrefix(f.Path)}
	starts, err := w.resolveStarts()
	if err != nil || len(starts) == 0 {
		return err
	}
	if err := w.markExcluded(); err != nil {
		return err
	}
	emit := func(n *graph.Node) (bool, error) {
		if err := fn(n); err != nil {
			if errors.Is(err, ErrStop) {
				return false, nil
			}
			return false, err
		}
		w.emitted++
		return f.MaxCount < 0 || w.emitted < f.MaxCount, nil
	}
	if f.Order == OrderTopo {
		err = w.walkTopo(starts, emit)
	} else {
		err = w.walkDate(starts, emit)
	}
	slog.Debug("revwalk done",
		slog.Int("visited", len(w.seen)),
		slog.Int("excluded", len(w.excluded)),
		slog.Int("emitted", w.emitted),
		slog.String("order", f.Order.String()),
	)
	return err
}

type walker struct {
	ctx      context.Context
	src      Source
	filter   Filter
	prefix   string
	seen     map[plumbing.Hash]struct{}
	excluded map[plumbing.Hash]struct{}
	seq      int
	emitted  int
}

func (w *walker) resolveStarts() ([]*graph.Node, error) {
	names := w.filter.Start
	explicit := len(names) > 0
	if !explicit {
		names = []string{DefaultStart}
	}
	var nodes []*graph.Node
	for _, name := range names {
		id, err := w.src.Resolve(name)
		if err != nil {
			if !explicit && errors.Is(err, giterr.ErrRefNotFound) {
				// unborn HEAD: nothing to list
				return nil, nil
			}
			return nil, err
		}
		n, err := w.src.Node(id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// markExcluded collects the stop points and all of their ancestors.
func (w *walker) markExcluded() error {
	w.excluded = make(map[plumbing.Hash]struct{})
	var queue []plumbing.Hash
	for _, name := range w.filter.Stop {
		id, err := w.src.Resolve(name)
		if err != nil {
			return err
		}
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		id := queue[0]
		queue = queue[1:]
		if _, ok := w.excluded[id]; ok {
			continue
		}
		w.excluded[id] = struct{}{}
		n, err := w.loadParent(id)
		if err != nil {
			return err
		}
		if n == nil {
			continue
		}
		queue = append(queue, n.Parents...)
	}
	return nil
}

// loadParent returns nil for commits missing from the store (shallow boundary).
func (w *walker) loadParent(id plumbing.Hash) (*graph.Node, error) {
	n, err := w.src.Node(id)
	if err != nil {
		if errors.Is(err, giterr.ErrRefNotFound) {
			slog.Debug("revwalk boundary", slog.String("commit", id.String()))
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

func (w *walker) isExcluded(id plumbing.Hash) bool {
	_, ok := w.excluded[id]
	return ok
}

func (w *walker) push(q *dateQueue, n *graph.Node) {
	if _, ok := w.seen[n.ID]; ok || w.isExcluded(n.ID) {
		return
	}
	w.seen[n.ID] = struct{}{}
	heap.Push(q, queued{node: n, seq: w.seq})
	w.seq++
}

// traverse pops commits in date order and hands each to visit. Parents are
// enqueued in order, so on equal dates the first parent comes out first.
func (w *walker) traverse(starts []*graph.Node, visit func(*graph.Node) (bool, error)) error {
	w.seen = make(map[plumbing.Hash]struct{})
	q := &dateQueue{}
	for _, n := range starts {
		w.push(q, n)
	}
	for q.Len() > 0 {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		n := heap.Pop(q).(queued).node
		for _, pid := range n.Parents {
			if _, ok := w.seen[pid]; ok || w.isExcluded(pid) {
				continue
			}
			p, err := w.loadParent(pid)
			if err != nil {
				return err
			}
			if p != nil {
				w.push(q, p)
			}
		}
		more, err := visit(n)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

func (w *walker) walkDate(starts []*graph.Node, emit func(*graph.Node) (bool, error)) error {
	return w.traverse(starts, func(n *graph.Node) (bool, error) {
		ok, err := w.selected(n)
		if err != nil || !ok {
			return true, err
		}
		return emit(n)
	})
}

// walkTopo collects the whole reachable set, then releases commits once all of
// their children have been released, newest first among the ready ones.
func (w *walker) walkTopo(starts []*graph.Node, emit func(*graph.Node) (bool, error)) error {
	var order []*graph.Node
	err := w.traverse(starts, func(n *graph.Node) (bool, error) {
		order = append(order, n)
		return true, nil
	})
	if err != nil {
		return err
	}
	rank := make(map[plumbing.Hash]int, len(order))
	for i, n := range order {
		rank[n.ID] = i
	}
	children := make(map[plumbing.Hash]int, len(order))
	for _, n := range order {
		for _, p := range n.Parents {
			if _, ok := rank[p]; ok {
				children[p]++
			}
		}
	}
	ready := &dateQueue{}
	for _, n := range order {
		if children[n.ID] == 0 {
			heap.Push(ready, queued{node: n, seq: rank[n.ID]})
		}
	}
	for ready.Len() > 0 {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		n := heap.Pop(ready).(queued).node
		for _, p := range n.Parents {
			if _, ok := rank[p]; !ok {
				continue
			}
			children[p]--
			if children[p] == 0 {
				pn, err := w.src.Node(p)
				if err != nil {
					return err
				}
				heap.Push(ready, queued{node: pn, seq: rank[p]})
			}
		}
		ok, err := w.selected(n)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		more, err := emit(n)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

func (w *walker) selected(n *graph.Node) (bool, error) {
	if !w.filter.inWindow(n.Committer.When) {
		return false, nil
	}
	if w.prefix == "" {
		return true, nil
	}
	return w.touchesPath(n)
}

// touchesPath reports whether n differs under the prefix from every parent.
// A merge identical to any one parent under the prefix is skipped.
func (w *walker) touchesPath(n *graph.Node) (bool, error) {
	tree, err := w.subtree(n.Tree)
	if err != nil {
		return false, err
	}
	if n.IsRoot() {
		return len(tree) > 0, nil
	}
	for _, pid := range n.Parents {
		p, err := w.loadParent(pid)
		if err != nil {
			return false, err
		}
		parentTree := map[string]plumbing.Hash{}
		if p != nil {
			if parentTree, err = w.subtree(p.Tree); err != nil {
				return false, err
			}
		}
		if sameEntries(tree, parentTree) {
			return false, nil
		}
	}
	return true, nil
}

func (w *walker) subtree(id plumbing.Hash) (map[string]plumbing.Hash, error) {
	entries, err := w.src.Tree(id)
	if err != nil {
		return nil, err
	}
	out := make(map[string]plumbing.Hash)
	for p, h := range entries {
		if underPrefix(p, w.prefix) {
			out[p] = h
		}
	}
	return out, nil
}

func normalizePrefix(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	return strings.Trim(p, "/")
}

func underPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func sameEntries(a, b map[string]plumbing.Hash) bool {
	if len(a) != len(b) {
		return false
	}
	for p, h := range a {
		if b[p] != h {
			return false
		}
	}
	return true
}
