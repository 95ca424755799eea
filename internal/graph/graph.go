// Package graph holds the commit graph as an arena of immutable nodes indexed
// by content hash. Parents are referenced by hash, never by pointer, so a walk
// over the arena is independent of allocation order and can be replayed
// deterministically in tests.
package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/thiagokokada/simplegit/internal/giterr"
)

type Signature struct {
	Name  string
	Email string
	When  time.Time
}

func (s Signature) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// Node is a single commit. Nodes are never mutated after being added to a Graph.
type Node struct {
	ID        plumbing.Hash
	Parents   []plumbing.Hash
	Author    Signature
	Committer Signature
	Subject   string
	Body      string
	Tree      plumbing.Hash
}

func (n *Node) IsMerge() bool { return len(n.Parents) > 1 }

func (n *Node) IsRoot() bool { return len(n.Parents) == 0 }

// Message reassembles the full commit message.
func (n *Node) Message() string {
	if n.Body == "" {
		return n.Subject
	}
	return n.Subject + "\n\n" + n.Body
}

// NodeFromCommit projects a go-git commit object into a Node.
func NodeFromCommit(c *object.Commit) Node {
	subject, body := SplitMessage(c.Message)
	parents := make([]plumbing.Hash, len(c.ParentHashes))
	copy(parents, c.ParentHashes)
	committer := c.Committer
	if committer.Name == "" && committer.Email == "" && committer.When.IsZero() {
		committer = c.Author
	}
	return Node{
		ID:        c.Hash,
		Parents:   parents,
		Author:    Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.When},
		Committer: Signature{Name: committer.Name, Email: committer.Email, When: committer.When},
		Subject:   subject,
		Body:      body,
		Tree:      c.TreeHash,
	}
}

// SplitMessage splits a commit message into its subject (first paragraph,
// folded onto one line) and body (everything after the first blank line).
func SplitMessage(message string) (subject, body string) {
	message = strings.TrimLeft(strings.ReplaceAll(message, "\r\n", "\n"), "\n")
	head, rest, _ := strings.Cut(message, "\n\n")
	subject = strings.Join(strings.Fields(strings.ReplaceAll(head, "\n", " ")), " ")
	body = strings.TrimRight(strings.TrimLeft(rest, "\n"), "\n \t")
	return subject, body
}

// Graph is an in-memory arena of commit nodes plus the refs and trees needed
// to walk it. The zero value is not usable; call New.
type Graph struct {
	nodes []Node
	index map[plumbing.Hash]int
	refs  map[string]plumbing.Hash
	trees map[plumbing.Hash]map[string]plumbing.Hash
}

func New() *Graph {
	return &Graph{
		index: make(map[plumbing.Hash]int),
		refs:  make(map[string]plumbing.Hash),
		trees: make(map[plumbing.Hash]map[string]plumbing.Hash),
	}
}

// Add stores n and returns the arena copy. Adding an id twice keeps the first node.
func (g *Graph) Add(n Node) *Node {
	if i, ok := g.index[n.ID]; ok {
		return &g.nodes[i]
	}
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return &g.nodes[len(g.nodes)-1]
}

func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) Lookup(id plumbing.Hash) (*Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return &g.nodes[i], true
}

func (g *Graph) Node(id plumbing.Hash) (*Node, error) {
	if n, ok := g.Lookup(id); ok {
		return n, nil
	}
	return nil, giterr.Wrapf(giterr.ErrRefNotFound, "commit %s", id)
}

func (g *Graph) SetRef(name string, id plumbing.Hash) {
	g.refs[name] = id
}

func (g *Graph) SetTree(id plumbing.Hash, entries map[string]plumbing.Hash) {
	g.trees[id] = entries
}

// Resolve maps a ref name or full hex hash to a commit id in the arena.
func (g *Graph) Resolve(name string) (plumbing.Hash, error) {
	if id, ok := g.refs[name]; ok {
		return id, nil
	}
	if plumbing.IsHash(name) {
		id := plumbing.NewHash(name)
		if _, ok := g.index[id]; ok {
			return id, nil
		}
	}
	return plumbing.ZeroHash, giterr.Wrapf(giterr.ErrRefNotFound, "resolve %q", name)
}

// Tree returns the flattened path->blob mapping of a tree. The zero hash is the empty tree.
func (g *Graph) Tree(id plumbing.Hash) (map[string]plumbing.Hash, error) {
	if id.IsZero() {
		return map[string]plumbing.Hash{}, nil
	}
	if t, ok := g.trees[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("tree %s: %w", id, plumbing.ErrObjectNotFound)
}
