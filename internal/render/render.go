// Package render colours diffs and source text for terminal output.
package render

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/mattn/go-isatty"
	darkmode "github.com/thiagokokada/dark-mode-go"

	"github.com/thiagokokada/simplegit/internal/config"
)

const (
	lightStyle = "github"
	darkStyle  = "github-dark"
	// terminal256 degrades reasonably on 16-colour terminals too.
	formatterName = "terminal256"
)

var (
	detectDarkMode = darkmode.IsDarkMode
	isTerminal     = func(fd uintptr) bool { return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) }
)

type Options struct {
	// Color is one of config.ColorAuto, ColorAlways or ColorNever.
	Color string
	// Theme is one of config.ThemeAuto, ThemeLight or ThemeDark.
	Theme string
}

// Renderer writes text, highlighted when colour is enabled.
type Renderer struct {
	enabled   bool
	style     *chroma.Style
	formatter chroma.Formatter
}

// New decides whether out gets colour and which style to use.
func New(out io.Writer, opts Options) *Renderer {
	r := &Renderer{enabled: colorEnabled(out, opts.Color)}
	if !r.enabled {
		return r
	}
	r.style = styleFor(opts.Theme)
	r.formatter = formatters.Get(formatterName)
	if r.formatter == nil {
		r.formatter = formatters.Fallback
	}
	return r
}

func (r *Renderer) Enabled() bool { return r.enabled }

func colorEnabled(out io.Writer, mode string) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isTerminal(f.Fd())
}

func styleFor(theme string) *chroma.Style {
	dark := theme == config.ThemeDark
	if theme != config.ThemeDark && theme != config.ThemeLight && detectDarkMode != nil {
		if d, err := detectDarkMode(); err == nil {
			dark = d
		} else {
			slog.Debug("dark mode detection failed", slog.Any("err", err))
		}
	}
	name := lightStyle
	if dark {
		name = darkStyle
	}
	if st := styles.Get(name); st != nil {
		return st
	}
	return styles.Fallback
}

// Diff writes a unified diff.
func (r *Renderer) Diff(w io.Writer, text string) error {
	return r.highlight(w, lexers.Get("diff"), text)
}

// Source writes file content highlighted by the lexer matching path.
func (r *Renderer) Source(w io.Writer, path, text string) error {
	return r.highlight(w, lexerForPath(path), text)
}

func (r *Renderer) highlight(w io.Writer, lexer chroma.Lexer, text string) error {
	if !r.enabled || lexer == nil {
		_, err := io.WriteString(w, text)
		return err
	}
	it, err := chroma.Coalesce(lexer).Tokenise(nil, text)
	if err != nil {
		_, werr := io.WriteString(w, text)
		return werr
	}
	return r.formatter.Format(w, r.style, it)
}

func lexerForPath(path string) chroma.Lexer {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	lexer := lexers.Match(path)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return lexer
}
