package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	gitlib "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/thiagokokada/simplegit/internal/auth"
	"github.com/thiagokokada/simplegit/internal/giterr"
)

// DefaultRemote is used when no remote name is given.
const DefaultRemote = gitlib.DefaultRemoteName

type CloneOptions struct {
	URL string
	// Remote names the remote created for URL; defaults to DefaultRemote.
	Remote string
	// Branch checks out and fetches only this branch; empty follows the
	// remote HEAD.
	Branch      string
	Credentials auth.Credentials
	// Progress receives the server's sideband messages.
	Progress io.Writer
	// Depth limits history to that many commits; zero fetches everything.
	Depth int

	// Dir is the destination on disk. FS replaces it when set.
	Dir string
	FS  billy.Filesystem

	Cache Options
}

// Clone copies a remote repository into a new working tree. A directory
// created by a failed clone is removed again.
func Clone(ctx context.Context, opts CloneOptions) (_ *Repository, err error) {
	if opts.URL == "" {
		return nil, giterr.Wrap(giterr.ErrInvalidArgument, "clone: empty url")
	}
	if opts.Remote == "" {
		opts.Remote = DefaultRemote
	}
	wt := opts.FS
	var created string
	if wt == nil {
		if opts.Dir == "" {
			return nil, giterr.Wrap(giterr.ErrInvalidArgument, "clone: no destination")
		}
		var abs string
		abs, err = filepath.Abs(opts.Dir)
		if err != nil {
			return nil, giterr.Join(giterr.ErrIO, err, "resolve path")
		}
		if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
			created = abs
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, giterr.Join(giterr.ErrIO, err, "create "+abs)
		}
		defer func() {
			if err != nil && created != "" {
				if rmErr := os.RemoveAll(created); rmErr != nil {
					slog.Warn("remove failed clone", slog.String("path", created), slog.Any("error", rmErr))
				}
			}
		}()
		wt = osfs.New(abs)
	}
	if _, err := wt.Lstat(gitDirName); err == nil {
		return nil, giterr.Wrapf(giterr.ErrInvalidArgument, "clone: %s already holds a repository", wt.Root())
	}
	dotgit, err := wt.Chroot(gitDirName)
	if err != nil {
		return nil, giterr.Join(giterr.ErrIO, err, "chroot git directory")
	}

	method, err := opts.Credentials.Method(opts.URL)
	if err != nil {
		return nil, err
	}
	cloneOpts := &gitlib.CloneOptions{
		URL:        opts.URL,
		Auth:       method,
		RemoteName: opts.Remote,
		Depth:      opts.Depth,
		Progress:   opts.Progress,
		Tags:       gitlib.AllTags,
	}
	if opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
		cloneOpts.SingleBranch = true
	}

	slog.Debug("clone start", slog.String("url", opts.URL), slog.String("root", wt.Root()))
	repo, err := gitlib.CloneContext(ctx, newStorage(dotgit, opts.Cache), wt, cloneOpts)
	if err != nil {
		return nil, transportError(err, "clone "+opts.URL)
	}
	r, err := newRepository(repo, wt, dotgit, opts.Cache)
	if err != nil {
		return nil, err
	}
	slog.Debug("clone done", slog.String("url", opts.URL))
	return r, nil
}

// AddRemote registers a remote with a single fetch url.
func (r *Repository) AddRemote(name, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.repo.CreateRemote(&gitconfig.RemoteConfig{Name: name, URLs: []string{url}})
	if err != nil {
		if errors.Is(err, gitlib.ErrRemoteExists) {
			return giterr.Join(giterr.ErrInvalidArgument, err, "remote "+name)
		}
		return fmt.Errorf("add remote %s: %w", name, err)
	}
	return nil
}

// Push sends branch (the current branch when empty) to the same name on
// remote. The result is false when the remote was already up to date.
func (r *Repository) Push(ctx context.Context, creds auth.Credentials, remote, branch string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if remote == "" {
		remote = DefaultRemote
	}
	if branch == "" {
		head, err := r.headLocked()
		if err != nil {
			return false, err
		}
		if head.Detached() {
			return false, giterr.Wrap(giterr.ErrInvalidArgument, "push: HEAD is detached, name a branch")
		}
		branch = head.Branch
	}
	name := plumbing.NewBranchReferenceName(branch)
	if _, err := r.repo.Reference(name, false); err != nil {
		return false, giterr.Join(giterr.ErrRefNotFound, err, "branch "+branch)
	}
	method, err := r.remoteAuth(creds, remote)
	if err != nil {
		return false, err
	}

	err = r.repo.PushContext(ctx, &gitlib.PushOptions{
		RemoteName: remote,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("%s:%s", name, name))},
		Auth:       method,
	})
	switch {
	case errors.Is(err, gitlib.NoErrAlreadyUpToDate):
		slog.Debug("push up to date", slog.String("remote", remote), slog.String("branch", branch))
		return false, nil
	case err != nil:
		return false, transportError(err, "push "+branch+" to "+remote)
	}
	slog.Debug("pushed", slog.String("remote", remote), slog.String("branch", branch))
	return true, nil
}

// Fetch updates the remote-tracking refs of remote. It returns
// giterr.ErrAlreadyUpToDate when nothing changed.
func (r *Repository) Fetch(ctx context.Context, creds auth.Credentials, remote string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if remote == "" {
		remote = DefaultRemote
	}
	method, err := r.remoteAuth(creds, remote)
	if err != nil {
		return err
	}
	err = r.repo.FetchContext(ctx, &gitlib.FetchOptions{
		RemoteName: remote,
		Auth:       method,
		Tags:       gitlib.AllTags,
	})
	switch {
	case errors.Is(err, gitlib.NoErrAlreadyUpToDate):
		return giterr.ErrAlreadyUpToDate
	case err != nil:
		return transportError(err, "fetch "+remote)
	}
	slog.Debug("fetched", slog.String("remote", remote))
	return nil
}

func (r *Repository) remoteAuth(creds auth.Credentials, name string) (transport.AuthMethod, error) {
	remote, err := r.repo.Remote(name)
	if err != nil {
		if errors.Is(err, gitlib.ErrRemoteNotFound) {
			return nil, giterr.Join(giterr.ErrRefNotFound, err, "remote "+name)
		}
		return nil, fmt.Errorf("read remote %s: %w", name, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return nil, giterr.Wrapf(giterr.ErrInvalidArgument, "remote %s has no url", name)
	}
	return creds.Method(urls[0])
}

// transportError tags network failures; cancellation passes through as is.
func transportError(err error, msg string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return giterr.Join(giterr.ErrTransport, err, msg)
}
