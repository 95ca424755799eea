package git

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	"github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/stretchr/testify/require"

	"github.com/thiagokokada/simplegit/internal/graph"
)

var epoch = time.Date(2005, 4, 7, 15, 0, 0, 0, time.UTC)

// remotes serves repositories registered with serve over mem:// urls.
var remotes = &memLoader{repos: make(map[string]storer.Storer)}

func TestMain(m *testing.M) {
	client.InstallProtocol("mem", server.NewClient(remotes))
	os.Exit(m.Run())
}

type memLoader struct {
	mu    sync.Mutex
	repos map[string]storer.Storer
	next  atomic.Int64
}

func (l *memLoader) Load(ep *transport.Endpoint) (storer.Storer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.repos[ep.Host]
	if !ok {
		return nil, transport.ErrRepositoryNotFound
	}
	return s, nil
}

// serve exposes r to clone/fetch/push and returns its url.
func serve(t *testing.T, r *Repository) string {
	t.Helper()
	host := fmt.Sprintf("repo%d", remotes.next.Add(1))
	remotes.mu.Lock()
	remotes.repos[host] = r.repo.Storer
	remotes.mu.Unlock()
	t.Cleanup(func() {
		remotes.mu.Lock()
		delete(remotes.repos, host)
		remotes.mu.Unlock()
	})
	return "mem://" + host
}

func newRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := InitFS(memfs.New(), Options{})
	require.NoError(t, err)
	return r
}

func writeFile(t *testing.T, r *Repository, name, content string) {
	t.Helper()
	require.NoError(t, util.WriteFile(r.fs, name, []byte(content), 0o644), "write %s", name)
}

func readFile(t *testing.T, r *Repository, name string) string {
	t.Helper()
	data, err := util.ReadFile(r.fs, name)
	require.NoError(t, err, "read %s", name)
	return string(data)
}

func sig(minutes int) graph.Signature {
	return graph.Signature{Name: "Test Author", Email: "author@example.com", When: epoch.Add(time.Duration(minutes) * time.Minute)}
}

// commitFiles writes, stages and commits files at epoch+minutes.
func commitFiles(t *testing.T, r *Repository, msg string, minutes int, files map[string]string) plumbing.Hash {
	t.Helper()
	ctx := context.Background()
	for name, content := range files {
		writeFile(t, r, name, content)
		require.NoError(t, r.Add(ctx, name, false))
	}
	hash, err := r.Commit(ctx, sig(minutes), graph.Signature{}, msg)
	require.NoError(t, err, "commit %q", msg)
	return hash
}
