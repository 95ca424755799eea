// Package index keeps the staging area: one entry per path recording the blob
// that will be committed next, stored in git's index file format.
//
// The store tracks a HEAD baseline so every entry carries a stage flag: a path
// present in both is normal, a path only in the index is added, and a HEAD
// path missing from a materialized index is removed-pending.
package index

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	format "github.com/go-git/go-git/v5/plumbing/format/index"

	"github.com/thiagokokada/simplegit/internal/giterr"
)

const (
	// DefaultName is the index file name inside the git directory.
	DefaultName = "index"
	lockSuffix  = ".lock"
	fileVersion = 2
)

type StageFlag uint8

const (
	StageNormal StageFlag = iota
	StageAdded
	StageRemoved
)

func (f StageFlag) String() string {
	switch f {
	case StageAdded:
		return "added"
	case StageRemoved:
		return "removed"
	default:
		return "normal"
	}
}

type Entry struct {
	Path       string
	Hash       plumbing.Hash
	Mode       filemode.FileMode
	Size       uint32
	ModifiedAt time.Time
	Stage      StageFlag
}

// Meta is the working-tree metadata captured when a path is staged.
type Meta struct {
	Mode       filemode.FileMode
	Size       uint32
	ModifiedAt time.Time
}

// Store is the in-memory view of an index file. It is not safe for
// concurrent use; cross-process writers are excluded by the lock file.
type Store struct {
	fs   billy.Filesystem
	name string

	entries  map[string]Entry
	baseline map[string]plumbing.Hash
	// materialized is false until an index file was read or the store was
	// modified. Without it, HEAD paths are not reported as removed.
	materialized bool
	// stamp is the index file mtime; entries modified at or after it are racy.
	stamp time.Time
}

// Open loads name from fs. A missing file yields an empty store.
func Open(fs billy.Filesystem, name string) (*Store, error) {
	if fs == nil {
		return nil, giterr.Wrap(giterr.ErrInvalidArgument, "open index: nil filesystem")
	}
	if name == "" {
		name = DefaultName
	}
	s := &Store{fs: fs, name: name, entries: make(map[string]Entry)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload discards in-memory changes and re-reads the file.
func (s *Store) Reload() error {
	entries, stamp, found, err := s.read()
	if err != nil {
		return err
	}
	s.entries = entries
	s.stamp = stamp
	s.materialized = found
	s.restage()
	slog.Debug("index loaded",
		slog.String("file", s.name),
		slog.Int("entries", len(entries)),
		slog.Bool("found", found),
	)
	return nil
}

func (s *Store) read() (map[string]Entry, time.Time, bool, error) {
	entries := make(map[string]Entry)
	f, err := s.fs.Open(s.name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, giterr.Join(giterr.ErrIO, err, "open index")
	}
	defer f.Close()

	var stamp time.Time
	if info, err := s.fs.Stat(s.name); err == nil {
		stamp = info.ModTime()
	}

	idx := &format.Index{}
	if err := format.NewDecoder(f).Decode(idx); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, time.Time{}, false, giterr.Join(giterr.ErrIndexCorrupt, err, "decode index: truncated")
		}
		return nil, time.Time{}, false, giterr.Join(giterr.ErrIndexCorrupt, err, "decode index")
	}
	for _, e := range idx.Entries {
		if e.Stage != 0 {
			// conflict stages are not tracked
			continue
		}
		entries[e.Name] = Entry{
			Path:       e.Name,
			Hash:       e.Hash,
			Mode:       e.Mode,
			Size:       e.Size,
			ModifiedAt: e.ModifiedAt,
		}
	}
	return entries, stamp, true, nil
}

// SetBaseline records the HEAD tree (path -> blob) the stage flags are derived from.
func (s *Store) SetBaseline(head map[string]plumbing.Hash) {
	s.baseline = head
	s.restage()
}

func (s *Store) restage() {
	for p, e := range s.entries {
		if _, ok := s.baseline[p]; ok {
			e.Stage = StageNormal
		} else {
			e.Stage = StageAdded
		}
		s.entries[p] = e
	}
}

// Materialized reports whether the store reflects a real index file or local changes.
func (s *Store) Materialized() bool { return s.materialized }

// IsRacy reports whether e was modified too close to the last index write for
// its mtime to be trusted.
func (s *Store) IsRacy(e Entry) bool {
	if s.stamp.IsZero() || e.ModifiedAt.IsZero() {
		return true
	}
	return !e.ModifiedAt.Before(s.stamp)
}

// AddPath stages hash for path, replacing any previous entry.
func (s *Store) AddPath(p string, hash plumbing.Hash, meta Meta) error {
	clean, err := CleanPath(p)
	if err != nil {
		return err
	}
	if hash.IsZero() {
		return giterr.Wrapf(giterr.ErrInvalidArgument, "add %q: zero hash", clean)
	}
	mode := meta.Mode
	if mode == filemode.Empty {
		mode = filemode.Regular
	}
	stage := StageAdded
	if _, ok := s.baseline[clean]; ok {
		stage = StageNormal
	}
	s.entries[clean] = Entry{
		Path:       clean,
		Hash:       hash,
		Mode:       mode,
		Size:       meta.Size,
		ModifiedAt: meta.ModifiedAt,
		Stage:      stage,
	}
	s.materialized = true
	return nil
}

// RemovePath unstages path and reports whether it was present.
func (s *Store) RemovePath(p string) (bool, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return false, err
	}
	if _, ok := s.entries[clean]; !ok {
		return false, nil
	}
	delete(s.entries, clean)
	s.materialized = true
	return true, nil
}

// Entry returns the staged entry for path, including removed-pending ones.
func (s *Store) Entry(p string) (Entry, bool) {
	clean, err := CleanPath(p)
	if err != nil {
		return Entry{}, false
	}
	if e, ok := s.entries[clean]; ok {
		return e, true
	}
	if h, ok := s.removed(clean); ok {
		return Entry{Path: clean, Hash: h, Mode: filemode.Regular, Stage: StageRemoved}, true
	}
	return Entry{}, false
}

func (s *Store) removed(p string) (plumbing.Hash, bool) {
	if !s.materialized {
		return plumbing.ZeroHash, false
	}
	h, ok := s.baseline[p]
	return h, ok
}

// Entries returns every entry, removed-pending included, sorted by path.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	if s.materialized {
		for p, h := range s.baseline {
			if _, ok := s.entries[p]; !ok {
				out = append(out, Entry{Path: p, Hash: h, Mode: filemode.Regular, Stage: StageRemoved})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Staged returns only the entries that would be written to disk, sorted by path.
func (s *Store) Staged() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (s *Store) Len() int { return len(s.entries) }

// Persist writes the in-memory entries to disk.
func (s *Store) Persist() error {
	return s.commit(nil)
}

// Update re-reads the index under the lock, applies fn and writes the result.
// If fn or the write fails, the file is untouched and the in-memory state is
// restored.
func (s *Store) Update(fn func(*Store) error) error {
	return s.commit(func() error {
		if err := s.Reload(); err != nil {
			return err
		}
		if fn == nil {
			return nil
		}
		return fn(s)
	})
}

func (s *Store) commit(mutate func() error) (err error) {
	lockName := s.name + lockSuffix
	lock, err := s.fs.OpenFile(lockName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return giterr.Wrapf(giterr.ErrLockHeld, "lock %s", lockName)
		}
		return giterr.Join(giterr.ErrIO, err, "create index lock")
	}

	snapshot := s.snapshot()
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = lock.Close()
		}
		_ = s.fs.Remove(lockName)
		s.restore(snapshot)
	}()

	if mutate != nil {
		if err = mutate(); err != nil {
			return err
		}
	}
	if err = format.NewEncoder(lock).Encode(s.encode()); err != nil {
		return giterr.Join(giterr.ErrIO, err, "encode index")
	}
	closed = true
	if err = lock.Close(); err != nil {
		return giterr.Join(giterr.ErrIO, err, "close index lock")
	}
	if err = s.fs.Rename(lockName, s.name); err != nil {
		return giterr.Join(giterr.ErrIO, err, "replace index")
	}
	s.materialized = true
	if info, statErr := s.fs.Stat(s.name); statErr == nil {
		s.stamp = info.ModTime()
	}
	slog.Debug("index written", slog.String("file", s.name), slog.Int("entries", len(s.entries)))
	return nil
}

func (s *Store) encode() *format.Index {
	idx := &format.Index{Version: fileVersion}
	for _, e := range s.Staged() {
		idx.Entries = append(idx.Entries, &format.Entry{
			Hash:       e.Hash,
			Name:       e.Path,
			CreatedAt:  e.ModifiedAt,
			ModifiedAt: e.ModifiedAt,
			Mode:       e.Mode,
			Size:       e.Size,
		})
	}
	return idx
}

type snapshot struct {
	entries      map[string]Entry
	materialized bool
	stamp        time.Time
}

func (s *Store) snapshot() snapshot {
	entries := make(map[string]Entry, len(s.entries))
	for p, e := range s.entries {
		entries[p] = e
	}
	return snapshot{entries: entries, materialized: s.materialized, stamp: s.stamp}
}

func (s *Store) restore(snap snapshot) {
	s.entries = snap.entries
	s.materialized = snap.materialized
	s.stamp = snap.stamp
}

// CleanPath normalizes a repository-relative path to slash form and rejects
// paths that escape the root or point into the git directory.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	clean := path.Clean(p)
	switch {
	case p == "" || clean == "." || clean == "/":
		return "", giterr.Wrapf(giterr.ErrInvalidArgument, "path %q: empty", p)
	case strings.HasPrefix(clean, "/"):
		return "", giterr.Wrapf(giterr.ErrInvalidArgument, "path %q: absolute", p)
	case clean == ".." || strings.HasPrefix(clean, "../"):
		return "", giterr.Wrapf(giterr.ErrInvalidArgument, "path %q: outside repository", p)
	case clean == ".git" || strings.HasPrefix(clean, ".git/"):
		return "", giterr.Wrapf(giterr.ErrInvalidArgument, "path %q: inside git directory", p)
	}
	return clean, nil
}

func (e Entry) String() string {
	return fmt.Sprintf("%06o %s %d\t%s", uint32(e.Mode), e.Hash, e.Stage, e.Path)
}
