// Package ignore decides which untracked paths are hidden from status, using
// gitignore pattern files found in the working tree.
package ignore

import (
	"bufio"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/thiagokokada/simplegit/internal/giterr"
)

const excludeFile = ".git/info/exclude"

// Matcher matches slash-separated paths relative to the repository root.
// A nil Matcher ignores nothing.
type Matcher struct {
	m        gitignore.Matcher
	patterns int
}

// Load reads .git/info/exclude and every .gitignore below the root of fs.
// extra patterns are applied last and win over file patterns.
func Load(fs billy.Filesystem, extra ...string) (*Matcher, error) {
	var ps []gitignore.Pattern
	excludes, err := readExclude(fs)
	if err != nil {
		return nil, err
	}
	ps = append(ps, excludes...)

	files, err := gitignore.ReadPatterns(fs, nil)
	if err != nil {
		return nil, giterr.Join(giterr.ErrIO, err, "read gitignore")
	}
	ps = append(ps, files...)
	ps = append(ps, parse(extra, nil)...)

	slog.Debug("ignore rules loaded", slog.Int("patterns", len(ps)))
	return &Matcher{m: gitignore.NewMatcher(ps), patterns: len(ps)}, nil
}

// New builds a Matcher from root-level patterns only.
func New(patterns ...string) *Matcher {
	ps := parse(patterns, nil)
	return &Matcher{m: gitignore.NewMatcher(ps), patterns: len(ps)}
}

func parse(lines []string, domain []string) []gitignore.Pattern {
	var ps []gitignore.Pattern
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(line, domain))
	}
	return ps
}

func readExclude(fs billy.Filesystem) ([]gitignore.Pattern, error) {
	f, err := fs.Open(excludeFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, giterr.Join(giterr.ErrIO, err, "open "+excludeFile)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, giterr.Join(giterr.ErrIO, err, "read "+excludeFile)
	}
	return parse(lines, nil), nil
}

// Match reports whether path is ignored. Parent directories matching a
// directory pattern ignore everything below them.
func (m *Matcher) Match(path string, isDir bool) bool {
	if m == nil || m.patterns == 0 || path == "" {
		return false
	}
	return m.m.Match(strings.Split(strings.Trim(path, "/"), "/"), isDir)
}

func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return m.patterns
}
