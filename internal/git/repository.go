// Package git is the repository facade: an explicit handle that wires the
// object store (go-git) to the index, status, history and change packages.
package git

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	gitlib "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/thiagokokada/simplegit/internal/giterr"
	"github.com/thiagokokada/simplegit/internal/graph"
	"github.com/thiagokokada/simplegit/internal/index"
	"github.com/thiagokokada/simplegit/internal/worktree"
)

const (
	gitDirName = ".git"
	// DefaultObjectCacheSize is the object cache budget in MiB.
	DefaultObjectCacheSize = 96
)

// Options tunes the caches of a handle. The zero value uses defaults.
type Options struct {
	// TreeCacheSize is the number of flattened trees kept for history walks.
	TreeCacheSize int
	// ObjectCacheSize is the decoded object cache budget in MiB.
	ObjectCacheSize int
}

// Repository is an open repository with a working tree. Calls on the same
// handle are serialized; distinct handles are independent.
type Repository struct {
	// mu serializes facade calls that read-modify-write the index or refs.
	mu sync.Mutex

	repo   *gitlib.Repository
	fs     billy.Filesystem
	dotgit billy.Filesystem
	path   string
	graph  *graph.Store
}

// HeadInfo describes where HEAD points. Hash is zero on an unborn branch.
type HeadInfo struct {
	Hash   plumbing.Hash
	Branch string
}

func (h HeadInfo) Detached() bool { return h.Branch == "" }

func (h HeadInfo) Unborn() bool { return h.Hash.IsZero() }

// Init creates a repository at dir, creating the directory if needed.
func Init(dir string, opts Options) (*Repository, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, giterr.Join(giterr.ErrIO, err, "resolve path")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, giterr.Join(giterr.ErrNotARepository, err, "create "+abs)
	}
	wt := osfs.New(abs)
	r, err := initRepository(wt, osfs.New(filepath.Join(abs, gitDirName)), opts)
	if err != nil {
		return nil, err
	}
	r.path = abs
	return r, nil
}

// InitFS creates a repository whose working tree is fs and whose git
// directory is fs/.git.
func InitFS(fs billy.Filesystem, opts Options) (*Repository, error) {
	dotgit, err := fs.Chroot(gitDirName)
	if err != nil {
		return nil, giterr.Join(giterr.ErrNotARepository, err, "chroot git directory")
	}
	return initRepository(fs, dotgit, opts)
}

func initRepository(wt, dotgit billy.Filesystem, opts Options) (*Repository, error) {
	repo, err := gitlib.Init(newStorage(dotgit, opts), wt)
	if err != nil {
		if errors.Is(err, gitlib.ErrRepositoryAlreadyExists) {
			return nil, giterr.Join(giterr.ErrNotARepository, err, "init repository")
		}
		return nil, fmt.Errorf("init repository: %w", err)
	}
	slog.Debug("repository initialized", slog.String("root", wt.Root()))
	return newRepository(repo, wt, dotgit, opts)
}

// Existing opens the repository containing dir, searching parent
// directories for a .git entry the way git itself does.
func Existing(dir string, opts Options) (*Repository, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, giterr.Join(giterr.ErrIO, err, "resolve path")
	}
	root, err := findRoot(abs)
	if err != nil {
		return nil, err
	}
	wt := osfs.New(root)
	gitDir, err := worktree.New(wt).GitDir("")
	if err != nil {
		return nil, giterr.Join(giterr.ErrNotARepository, err, root)
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(root, filepath.FromSlash(gitDir))
	}
	r, err := openRepository(wt, osfs.New(gitDir), opts)
	if err != nil {
		return nil, err
	}
	r.path = root
	return r, nil
}

// OpenFS opens the repository whose working tree is fs.
func OpenFS(fs billy.Filesystem, opts Options) (*Repository, error) {
	dotgit, err := fs.Chroot(gitDirName)
	if err != nil {
		return nil, giterr.Join(giterr.ErrNotARepository, err, "chroot git directory")
	}
	return openRepository(fs, dotgit, opts)
}

func openRepository(wt, dotgit billy.Filesystem, opts Options) (*Repository, error) {
	repo, err := gitlib.Open(newStorage(dotgit, opts), wt)
	if err != nil {
		if errors.Is(err, gitlib.ErrRepositoryNotExists) {
			return nil, giterr.Join(giterr.ErrNotARepository, err, wt.Root())
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return newRepository(repo, wt, dotgit, opts)
}

func newRepository(repo *gitlib.Repository, wt, dotgit billy.Filesystem, opts Options) (*Repository, error) {
	store, err := graph.NewStore(repo, opts.TreeCacheSize)
	if err != nil {
		return nil, err
	}
	return &Repository{repo: repo, fs: wt, dotgit: dotgit, path: wt.Root(), graph: store}, nil
}

func newStorage(dotgit billy.Filesystem, opts Options) *filesystem.Storage {
	size := opts.ObjectCacheSize
	if size <= 0 {
		size = DefaultObjectCacheSize
	}
	return filesystem.NewStorage(dotgit, cache.NewObjectLRU(cache.FileSize(size)*cache.MiByte))
}

func findRoot(dir string) (string, error) {
	for cur := dir; ; {
		if _, err := os.Lstat(filepath.Join(cur, gitDirName)); err == nil {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", giterr.Wrapf(giterr.ErrNotARepository, "%s (or any parent)", dir)
		}
		cur = parent
	}
}

// Path returns the working tree root.
func (r *Repository) Path() string { return r.path }

// Filesystem returns the working tree.
func (r *Repository) Filesystem() billy.Filesystem { return r.fs }

// Config returns the repository-local git config.
func (r *Repository) Config() (*gitconfig.Config, error) {
	cfg, err := r.repo.Config()
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

// Head reports the commit and branch HEAD points at.
func (r *Repository) Head() (HeadInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headLocked()
}

func (r *Repository) headLocked() (HeadInfo, error) {
	sym, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return HeadInfo{}, giterr.Join(giterr.ErrRefNotFound, err, "read HEAD")
	}
	var info HeadInfo
	if sym.Type() == plumbing.SymbolicReference && sym.Target().IsBranch() {
		info.Branch = sym.Target().Short()
	}
	ref, err := r.repo.Head()
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return info, nil
	case err != nil:
		return HeadInfo{}, fmt.Errorf("resolve HEAD: %w", err)
	}
	info.Hash = ref.Hash()
	return info, nil
}

// headTree returns the flattened tree of HEAD, empty on an unborn branch.
func (r *Repository) headTree() (map[string]plumbing.Hash, error) {
	head, err := r.headLocked()
	if err != nil {
		return nil, err
	}
	if head.Unborn() {
		return map[string]plumbing.Hash{}, nil
	}
	node, err := r.graph.Node(head.Hash)
	if err != nil {
		return nil, err
	}
	return r.graph.Tree(node.Tree)
}

// openIndex loads the index with stage flags relative to HEAD.
func (r *Repository) openIndex() (*index.Store, map[string]plumbing.Hash, error) {
	head, err := r.headTree()
	if err != nil {
		return nil, nil, err
	}
	idx, err := index.Open(r.dotgit, index.DefaultName)
	if err != nil {
		return nil, nil, err
	}
	idx.SetBaseline(head)
	return idx, head, nil
}

// scanner returns a worktree scanner that knows the gitlinks recorded in idx.
func (r *Repository) scanner(idx *index.Store) *worktree.Scanner {
	var links []string
	for _, e := range idx.Entries() {
		if e.Mode == filemode.Submodule {
			links = append(links, e.Path)
		}
	}
	return worktree.New(r.fs).WithGitlinks(links)
}
