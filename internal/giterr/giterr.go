// Package giterr defines the error taxonomy shared by the repository packages.
// All errors can be checked using errors.Is() regardless of how much context
// has been wrapped around them.
package giterr

import (
	"errors"
	"fmt"
)

// ErrNotARepository is returned when a repository is opened or initialized on a
// location that does not hold (or cannot hold) a git repository.
var ErrNotARepository = errors.New("not a git repository")

// ErrRefNotFound is returned when an explicitly named revision cannot be
// resolved to a commit.
var ErrRefNotFound = errors.New("reference not found")

// ErrIndexCorrupt is returned when the on-disk index cannot be decoded.
var ErrIndexCorrupt = errors.New("index file corrupt")

// ErrTransport is returned when a network operation (clone, fetch, push) fails.
var ErrTransport = errors.New("transport failure")

// ErrLockHeld is returned when another writer holds the index lock.
var ErrLockHeld = errors.New("index lock held")

// ErrIO is returned for filesystem failures while scanning or writing.
var ErrIO = errors.New("i/o failure")

// ErrAlreadyUpToDate is returned by fetch when the remote has nothing new.
var ErrAlreadyUpToDate = errors.New("already up to date")

// ErrEmptyCommit is returned when a commit would record no changes.
var ErrEmptyCommit = errors.New("nothing to commit")

// ErrInvalidArgument is returned when a caller passes an unusable argument.
var ErrInvalidArgument = errors.New("invalid argument")

// Wrap wraps err with msg while preserving errors.Is matching.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Join attaches a sentinel kind to a concrete cause so that both
// errors.Is(err, kind) and errors.Is(err, cause) hold.
func Join(kind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", msg, kind, cause)
}
