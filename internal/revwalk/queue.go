package revwalk

import "github.com/thiagokokada/simplegit/internal/graph"

type queued struct {
	node *graph.Node
	seq  int
}

// dateQueue is a max-heap on committer date; seq breaks ties in insertion order.
type dateQueue []queued

func (q dateQueue) Len() int { return len(q) }

func (q dateQueue) Less(i, j int) bool {
	a, b := q[i].node.Committer.When, q[j].node.Committer.When
	if !a.Equal(b) {
		return a.After(b)
	}
	return q[i].seq < q[j].seq
}

func (q dateQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *dateQueue) Push(x any) { *q = append(*q, x.(queued)) }

func (q *dateQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
