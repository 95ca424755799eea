package cmd

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/mail"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/thiagokokada/simplegit/internal/auth"
	"github.com/thiagokokada/simplegit/internal/buildinfo"
	"github.com/thiagokokada/simplegit/internal/change"
	"github.com/thiagokokada/simplegit/internal/git"
	"github.com/thiagokokada/simplegit/internal/giterr"
	"github.com/thiagokokada/simplegit/internal/graph"
	"github.com/thiagokokada/simplegit/internal/revwalk"
	"github.com/thiagokokada/simplegit/internal/status"
	"github.com/thiagokokada/simplegit/internal/watch"
)

func runVersion(_ context.Context, a *app, _ []string) error {
	a.printf("%s %s\n", progName, buildinfo.VersionWithTags())
	return nil
}

func runInit(_ context.Context, a *app, args []string) error {
	fs := a.subcommand("init")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir := a.dir
	if fs.NArg() > 0 {
		dir = a.resolve(fs.Arg(0))
	}
	repo, err := git.Init(dir, a.repoOptions())
	if err != nil {
		return err
	}
	a.printf("Initialized empty Git repository in %s\n", filepath.Join(repo.Path(), ".git"))
	return nil
}

// authFlags registers the credential flags shared by network commands.
func authFlags(fs *flag.FlagSet) *auth.Credentials {
	var c auth.Credentials
	fs.StringVar(&c.Username, "user", "", "username for HTTP(S) remotes")
	fs.StringVar(&c.Password, "password", "", "password for HTTP(S) remotes")
	fs.StringVar(&c.Token, "token", "", "access token for HTTP(S) remotes")
	fs.StringVar(&c.SSHKeyPath, "ssh-key", "", "private key for SSH remotes")
	fs.StringVar(&c.SSHPassphrase, "ssh-passphrase", "", "passphrase for -ssh-key")
	fs.BoolVar(&c.SSHAgent, "ssh-agent", false, "authenticate SSH remotes through ssh-agent")
	fs.StringVar(&c.KnownHosts, "known-hosts", "", "known_hosts file for SSH host key checks")
	fs.BoolVar(&c.InsecureHostKey, "insecure-host-key", false, "skip SSH host key verification")
	return &c
}

func runClone(ctx context.Context, a *app, args []string) error {
	fs := a.subcommand("clone")
	creds := authFlags(fs)
	branch := fs.String("branch", "", "check out this branch only")
	depth := fs.Int("depth", 0, "limit history to this many commits")
	origin := fs.String("origin", "", "name of the remote (default "+a.cfg.Remote.Default+")")
	quiet := fs.Bool("quiet", false, "suppress progress output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return giterr.Wrap(giterr.ErrInvalidArgument, "clone: want <url> [dir]")
	}
	url := fs.Arg(0)
	dir := fs.Arg(1)
	if dir == "" {
		dir = strings.TrimSuffix(path.Base(strings.TrimRight(url, "/")), ".git")
	}
	remote := *origin
	if remote == "" {
		remote = a.cfg.Remote.Default
	}
	opts := git.CloneOptions{
		URL:         url,
		Remote:      remote,
		Branch:      *branch,
		Credentials: *creds,
		Depth:       *depth,
		Dir:         a.resolve(dir),
		Cache:       a.repoOptions(),
	}
	if !*quiet {
		opts.Progress = a.stderr
	}
	repo, err := git.Clone(ctx, opts)
	if err != nil {
		return err
	}
	a.printf("Cloned into %s\n", repo.Path())
	return nil
}

func runCheckout(ctx context.Context, a *app, args []string) error {
	fs := a.subcommand("checkout")
	newBranch := fs.String("b", "", "create and switch to a new branch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	var paths []string
	for i, arg := range rest {
		if arg == "--" {
			paths = rest[i+1:]
			rest = rest[:i]
			break
		}
	}
	if len(rest) > 1 {
		fs.Usage()
		return giterr.Wrap(giterr.ErrInvalidArgument, "checkout: too many revisions")
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	var target string
	if len(rest) == 1 {
		target = rest[0]
	}
	if len(paths) > 0 {
		if *newBranch != "" {
			return giterr.Wrap(giterr.ErrInvalidArgument, "checkout: -b cannot be used with paths")
		}
		rels := make([]string, 0, len(paths))
		for _, p := range paths {
			rel, err := a.repoPath(repo, p)
			if err != nil {
				return err
			}
			rels = append(rels, rel)
		}
		return repo.Checkout(ctx, target, "", rels)
	}
	if *newBranch != "" {
		if target == "" {
			target = "HEAD"
		}
		if err := repo.Checkout(ctx, target, *newBranch, nil); err != nil {
			return err
		}
		a.printf("Switched to a new branch '%s'\n", *newBranch)
		return nil
	}
	if target == "" {
		fs.Usage()
		return giterr.Wrap(giterr.ErrInvalidArgument, "checkout: nothing to check out")
	}
	branches, _, err := repo.LocalBranchNames()
	if err != nil {
		return err
	}
	for _, b := range branches {
		if b == target {
			if err := repo.Checkout(ctx, "", target, nil); err != nil {
				return err
			}
			a.printf("Switched to branch '%s'\n", target)
			return nil
		}
	}
	if err := repo.Checkout(ctx, target, "", nil); err != nil {
		return err
	}
	head, err := repo.Head()
	if err != nil {
		return err
	}
	a.printf("HEAD is now at %s\n", head.Hash.String()[:7])
	return nil
}

func runBranch(_ context.Context, a *app, args []string) error {
	fs := a.subcommand("branch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	branches, headName, err := repo.LocalBranchNames()
	if err != nil {
		return err
	}
	if headName == "HEAD" {
		a.printf("* (HEAD detached)\n")
	}
	for _, b := range branches {
		marker := " "
		if b == headName {
			marker = "*"
		}
		a.printf("%s %s\n", marker, b)
	}
	return nil
}

func runAdd(ctx context.Context, a *app, args []string) error {
	fs := a.subcommand("add")
	recursive := fs.Bool("r", false, "stage directories recursively")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return giterr.Wrap(giterr.ErrInvalidArgument, "add: no paths given")
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	for _, p := range fs.Args() {
		rel, err := a.repoPath(repo, p)
		if err != nil {
			return err
		}
		if err := repo.Add(ctx, rel, *recursive); err != nil {
			return err
		}
	}
	return nil
}

func runRemove(ctx context.Context, a *app, args []string) error {
	fs := a.subcommand("rm")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return giterr.Wrap(giterr.ErrInvalidArgument, "rm: no paths given")
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	for _, p := range fs.Args() {
		rel, err := a.repoPath(repo, p)
		if err != nil {
			return err
		}
		if err := repo.Remove(ctx, rel); err != nil {
			return err
		}
		a.printf("rm '%s'\n", rel)
	}
	return nil
}

func runCommit(ctx context.Context, a *app, args []string) error {
	fs := a.subcommand("commit")
	message := fs.String("m", "", "commit message")
	author := fs.String("author", "", "override the author, as 'Name <email>'")
	if err := fs.Parse(args); err != nil {
		return err
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	local, err := repo.Config()
	if err != nil {
		return err
	}
	name, email := a.cfg.Identity(local)
	committer := graph.Signature{Name: name, Email: email, When: time.Now()}
	sig := committer
	if *author != "" {
		addr, err := mail.ParseAddress(*author)
		if err != nil {
			return giterr.Join(giterr.ErrInvalidArgument, err, "parse -author")
		}
		sig = graph.Signature{Name: addr.Name, Email: addr.Address, When: committer.When}
	}
	if committer.Name == "" && committer.Email == "" {
		committer = sig
	}
	hash, err := repo.Commit(ctx, sig, committer, *message)
	if err != nil {
		return err
	}
	head, err := repo.Head()
	if err != nil {
		return err
	}
	label := head.Branch
	if head.Detached() {
		label = "detached HEAD"
	}
	subject, _, _ := strings.Cut(strings.TrimSpace(*message), "\n")
	a.printf("[%s %s] %s\n", label, hash.String()[:7], subject)
	return nil
}

func runPush(ctx context.Context, a *app, args []string) error {
	fs := a.subcommand("push")
	creds := authFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 2 {
		fs.Usage()
		return giterr.Wrap(giterr.ErrInvalidArgument, "push: want [remote] [branch]")
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	remote := fs.Arg(0)
	if remote == "" {
		remote = a.cfg.Remote.Default
	}
	pushed, err := repo.Push(ctx, *creds, remote, fs.Arg(1))
	if err != nil {
		return err
	}
	if !pushed {
		a.printf("Everything up-to-date\n")
	}
	return nil
}

func runFetch(ctx context.Context, a *app, args []string) error {
	fs := a.subcommand("fetch")
	creds := authFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return giterr.Wrap(giterr.ErrInvalidArgument, "fetch: want [remote]")
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	remote := fs.Arg(0)
	if remote == "" {
		remote = a.cfg.Remote.Default
	}
	err = repo.Fetch(ctx, *creds, remote)
	if errors.Is(err, giterr.ErrAlreadyUpToDate) {
		a.printf("Already up to date.\n")
		return nil
	}
	return err
}

func runRemote(_ context.Context, a *app, args []string) error {
	fs := a.subcommand("remote")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 || fs.Arg(0) != "add" {
		fs.Usage()
		return giterr.Wrap(giterr.ErrInvalidArgument, "remote: want add <name> <url>")
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	return repo.AddRemote(fs.Arg(1), fs.Arg(2))
}

func runStatus(ctx context.Context, a *app, args []string) error {
	fs := a.subcommand("status")
	var opts status.Options
	fs.BoolVar(&opts.IncludeIgnored, "ignored", false, "show ignored files")
	fs.BoolVar(&opts.RecurseSubmodules, "submodules", false, "recurse into submodules")
	follow := fs.Bool("watch", false, "print status again whenever the working tree changes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	if err := a.printStatus(ctx, repo, opts); err != nil {
		return err
	}
	if !*follow {
		return nil
	}
	return watch.Run(ctx, repo.Path(), watch.DefaultDelay, func() {
		a.printf("\n")
		if err := a.printStatus(ctx, repo, opts); err != nil {
			slog.Error("status", slog.Any("error", err))
		}
	})
}

func (a *app) printStatus(ctx context.Context, repo *git.Repository, opts status.Options) error {
	recs, err := repo.Status(ctx, opts)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		a.printf("%s\n", rec)
	}
	return nil
}

// historyFlags registers the revision filters shared by rev-list and whatchanged.
type historyFlags struct {
	since, until string
	max          int
	path         string
	topo         bool
}

func (h *historyFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&h.since, "since", "", "only commits on or after this date")
	fs.StringVar(&h.until, "until", "", "only commits on or before this date")
	fs.IntVar(&h.max, "n", revwalk.Unbounded, "limit the number of commits")
	fs.StringVar(&h.path, "path", "", "only commits touching this path")
	fs.BoolVar(&h.topo, "topo", false, "never show a parent before its children")
}

func (h *historyFlags) filter(args []string) (revwalk.Filter, error) {
	f := revwalk.NewFilter()
	f.Start, f.Stop = splitRevs(args)
	f.MaxCount = h.max
	f.Path = h.path
	if h.topo {
		f.Order = revwalk.OrderTopo
	}
	var err error
	if f.Since, err = parseDate("since", h.since); err != nil {
		return f, err
	}
	if f.Until, err = parseDate("until", h.until); err != nil {
		return f, err
	}
	return f, nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseDate(flagName, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, giterr.Wrapf(giterr.ErrInvalidArgument, "-%s %q: want YYYY-MM-DD, YYYY-MM-DD HH:MM:SS or RFC 3339", flagName, value)
}

func runRevList(ctx context.Context, a *app, args []string) error {
	fs := a.subcommand("rev-list")
	var h historyFlags
	h.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := h.filter(fs.Args())
	if err != nil {
		return err
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	ids, err := repo.RevList(ctx, f)
	if err != nil {
		return err
	}
	for _, id := range ids {
		a.printf("%s\n", id)
	}
	return nil
}

func runWhatChanged(ctx context.Context, a *app, args []string) error {
	fs := a.subcommand("whatchanged")
	var h historyFlags
	h.register(fs)
	renames := fs.Bool("renames", false, "detect renamed files")
	relative := fs.Bool("relative", a.cfg.UI.RelativeDates, "show relative dates")
	fuller := fs.Bool("fuller", false, "show committer and both dates")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := h.filter(fs.Args())
	if err != nil {
		return err
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	render := change.RenderOptions{RelativeDates: *relative, Fuller: *fuller}
	first := true
	return repo.EachChange(ctx, f, git.WhatChangedOptions{DetectRenames: *renames}, func(rec change.Record) error {
		if !first {
			a.printf("\n")
		}
		first = false
		return change.WriteRecord(a.stdout, rec, render)
	})
}

func runLsFiles(ctx context.Context, a *app, args []string) error {
	fs := a.subcommand("ls-files")
	var opts git.LsFilesOptions
	fs.BoolVar(&opts.Others, "others", false, "list untracked files instead")
	fs.BoolVar(&opts.All, "all", false, "list tracked and untracked files")
	long := fs.Bool("long", false, "show mode, object id and stage")
	if err := fs.Parse(args); err != nil {
		return err
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	files, err := repo.LsFiles(ctx, opts)
	if err != nil {
		return err
	}
	for _, e := range files {
		if *long && !e.Hash.IsZero() {
			a.printf("%06o %s %-7s\t%s\n", uint32(e.Mode), e.Hash, e.Stage, e.Path)
			continue
		}
		a.printf("%s\n", e.Path)
	}
	return nil
}

func runDiff(ctx context.Context, a *app, args []string) error {
	fs := a.subcommand("diff")
	cached := fs.Bool("cached", false, "compare the index with HEAD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	text, err := repo.Diff(ctx, *cached)
	if err != nil || text == "" {
		return err
	}
	return a.out.Diff(a.stdout, text)
}

func runShow(_ context.Context, a *app, args []string) error {
	fs := a.subcommand("show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rev, name, ok := strings.Cut(fs.Arg(0), ":")
	if fs.NArg() != 1 || !ok || name == "" {
		fs.Usage()
		return giterr.Wrap(giterr.ErrInvalidArgument, "show: want <rev>:<path>")
	}
	if rev == "" {
		rev = "HEAD"
	}
	repo, err := a.open()
	if err != nil {
		return err
	}
	data, err := repo.FileAt(rev, name)
	if err != nil {
		return err
	}
	return a.out.Source(a.stdout, name, string(data))
}

func (a *app) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.dir, p)
}

// repoPath turns a command-line path into a slash-separated path relative
// to the repository root.
func (a *app) repoPath(repo *git.Repository, p string) (string, error) {
	abs, err := filepath.Abs(a.resolve(p))
	if err != nil {
		return "", giterr.Join(giterr.ErrInvalidArgument, err, "resolve "+p)
	}
	root, err := filepath.Abs(repo.Path())
	if err != nil {
		return "", giterr.Join(giterr.ErrInvalidArgument, err, "resolve repository root")
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", giterr.Wrapf(giterr.ErrInvalidArgument, "%s is outside repository at %s", p, root)
	}
	return filepath.ToSlash(rel), nil
}
