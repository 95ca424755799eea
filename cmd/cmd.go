package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/thiagokokada/simplegit/internal/buildinfo"
	"github.com/thiagokokada/simplegit/internal/config"
	"github.com/thiagokokada/simplegit/internal/git"
	"github.com/thiagokokada/simplegit/internal/render"
)

const progName = "simplegit"

// app carries what every subcommand needs.
type app struct {
	stdout io.Writer
	stderr io.Writer
	dir    string
	cfg    config.Config
	out    *render.Renderer
}

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"init":        {"init [dir]", "create an empty repository", runInit},
		"clone":       {"clone [flags] <url> [dir]", "copy a remote repository", runClone},
		"checkout":    {"checkout [-b branch] [commit] [-- path...]", "switch branches or restore files", runCheckout},
		"branch":      {"branch", "list local branches", runBranch},
		"add":         {"add [-r] <path>...", "stage file contents", runAdd},
		"rm":          {"rm <path>...", "remove files from the index and working tree", runRemove},
		"commit":      {"commit -m <msg> [-author 'Name <email>']", "record staged changes", runCommit},
		"push":        {"push [flags] [remote] [branch]", "update a remote branch", runPush},
		"fetch":       {"fetch [flags] [remote]", "download remote refs", runFetch},
		"remote":      {"remote add <name> <url>", "register a remote", runRemote},
		"status":      {"status [-ignored] [-submodules] [-watch]", "show working tree status", runStatus},
		"rev-list":    {"rev-list [filters] [rev...] [^rev...]", "list commit ids", runRevList},
		"whatchanged": {"whatchanged [-fuller] [filters] [rev...] [^rev...]", "show commits with the paths they changed", runWhatChanged},
		"ls-files":    {"ls-files [-others|-all] [-long]", "list tracked files", runLsFiles},
		"diff":        {"diff [-cached]", "show local changes", runDiff},
		"show":        {"show <rev>:<path>", "print a file as of a revision", runShow},
		"version":     {"version", "print version information", runVersion},
	}
}

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(progName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("C", ".", "run as if started in this directory")
	configPath := fs.String("config", "", "config file (default "+config.Path()+")")
	color := fs.String("color", "", "colour output: auto, always or never")
	verbose := fs.Bool("verbose", false, "enable verbose logging")
	showVersion := fs.Bool("version", false, "print version information and exit")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	if *showVersion {
		return runVersion(ctx, &app{stdout: stdout}, nil)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr, fs)
		return errors.New("no command given")
	}
	c, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *color != "" {
		cfg.UI.Color = *color
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	installTransports(buildinfo.UserAgent())

	a := &app{
		stdout: stdout,
		stderr: stderr,
		dir:    *dir,
		cfg:    cfg,
		out:    render.New(stdout, render.Options{Color: cfg.UI.Color, Theme: cfg.UI.Theme}),
	}
	if err := c.run(ctx, a, rest[1:]); !errors.Is(err, flag.ErrHelp) {
		return err
	}
	return nil
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "usage: %s [flags] <command> [args]\n\nflags:\n", progName)
	fs.PrintDefaults()
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands[name].help)
	}
}

// subcommand builds the flag set for one command.
func (a *app) subcommand(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(progName+" "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "usage: %s %s\n", progName, commands[name].usage)
		fs.PrintDefaults()
	}
	return fs
}

func (a *app) repoOptions() git.Options {
	return git.Options{TreeCacheSize: a.cfg.Storage.CacheSize}
}

func (a *app) open() (*git.Repository, error) {
	return git.Existing(a.dir, a.repoOptions())
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}

// splitRevs separates "^rev" exclusions from start revisions.
func splitRevs(args []string) (start, stop []string) {
	for _, arg := range args {
		if rev, ok := strings.CutPrefix(arg, "^"); ok {
			stop = append(stop, rev)
			continue
		}
		start = append(start, arg)
	}
	return start, stop
}
