// Package watch reports changes below a working directory, coalesced so a
// burst of writes triggers one callback.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thiagokokada/simplegit/internal/debounce"
)

const DefaultDelay = 350 * time.Millisecond

// Run watches root until ctx is done, calling onChange after each quiet
// period following a change. Inside .git only the directory itself is
// watched, which is enough to see index and HEAD updates.
func Run(ctx context.Context, root string, delay time.Duration, onChange func()) error {
	if delay <= 0 {
		delay = DefaultDelay
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			slog.Error("watcher close", slog.Any("error", err))
		}
	}()

	for path := range watchDirs(root) {
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}

	d := debounce.New(delay, onChange)
	defer d.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if shouldIgnore(root, ev.Name) {
				continue
			}
			slog.Debug("fsnotify event",
				slog.String("op", ev.Op.String()),
				slog.String("path", ev.Name),
			)
			if ev.Op&fsnotify.Create != 0 {
				addIfDir(w, root, ev.Name)
			}
			d.Trigger()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("fsnotify error", slog.Any("error", err))
		}
	}
}

// watchDirs yields root, its .git directory and every directory of the
// working tree.
func watchDirs(root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			if d.Name() == ".git" && path != root {
				return filepath.SkipDir
			}
			return nil
		})
	}
}

func addIfDir(w *fsnotify.Watcher, root, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	for dir := range watchDirs(path) {
		if strings.HasPrefix(dir, filepath.Join(root, ".git")+string(filepath.Separator)) {
			continue
		}
		if err := w.Add(dir); err != nil {
			slog.Debug("watch new directory", slog.String("path", dir), slog.Any("error", err))
		}
	}
}

func shouldIgnore(root, name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".lock" || ext == ".ipc" {
		return true
	}
	rel, err := filepath.Rel(root, name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	// objects and logs churn during commits; index and refs are what matter
	return strings.HasPrefix(rel, ".git/objects") || strings.HasPrefix(rel, ".git/logs")
}
