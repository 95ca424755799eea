// Package status classifies every path by comparing the HEAD tree, the index
// and the working tree.
package status

type IndexStatus uint8

const (
	IndexUnchanged IndexStatus = iota
	IndexAdded
	IndexRemoved
	IndexUntracked
	IndexModified
)

func (s IndexStatus) String() string {
	switch s {
	case IndexAdded:
		return "added"
	case IndexRemoved:
		return "removed"
	case IndexUntracked:
		return "untracked"
	case IndexModified:
		return "modified"
	default:
		return "unchanged"
	}
}

// Code is the single-letter porcelain code.
func (s IndexStatus) Code() byte {
	switch s {
	case IndexAdded:
		return 'A'
	case IndexRemoved:
		return 'D'
	case IndexUntracked:
		return '?'
	case IndexModified:
		return 'M'
	default:
		return ' '
	}
}

type RepoStatus uint8

const (
	RepoUnchanged RepoStatus = iota
	RepoUntracked
	RepoModified
	RepoRemoved
)

func (s RepoStatus) String() string {
	switch s {
	case RepoUntracked:
		return "untracked"
	case RepoModified:
		return "modified"
	case RepoRemoved:
		return "removed"
	default:
		return "unchanged"
	}
}

func (s RepoStatus) Code() byte {
	switch s {
	case RepoUntracked:
		return '?'
	case RepoModified:
		return 'M'
	case RepoRemoved:
		return 'D'
	default:
		return ' '
	}
}

type Record struct {
	Path    string
	Index   IndexStatus
	Repo    RepoStatus
	Ignored bool
}

func (r Record) String() string {
	if r.Ignored {
		return "!! " + r.Path
	}
	return string([]byte{r.Index.Code(), r.Repo.Code(), ' '}) + r.Path
}

// IndexState is what the index holds for a path.
type IndexState uint8

const (
	NoEntry IndexState = iota
	Staged
	RemovedPending
)

// Input is everything known about one path. WorktreeMatches compares the
// working file with the index entry, or with HEAD when there is no entry.
type Input struct {
	Head             bool
	Index            IndexState
	IndexMatchesHead bool
	Worktree         bool
	WorktreeMatches  bool
}

// Classify maps one path's observations to its statuses. The boolean is
// false for paths that are identical everywhere and must be omitted.
func Classify(in Input) (IndexStatus, RepoStatus, bool) {
	if !in.Head {
		switch in.Index {
		case Staged:
			if in.Worktree {
				return IndexAdded, RepoUntracked, true
			}
			return IndexAdded, RepoRemoved, true
		case NoEntry:
			if in.Worktree {
				return IndexUntracked, RepoUntracked, true
			}
		}
		return IndexUnchanged, RepoUnchanged, false
	}

	switch in.Index {
	case RemovedPending:
		if in.Worktree {
			return IndexRemoved, RepoUntracked, true
		}
		return IndexRemoved, RepoRemoved, true
	case NoEntry:
		switch {
		case !in.Worktree:
			return IndexUnchanged, RepoRemoved, true
		case in.WorktreeMatches:
			return IndexUnchanged, RepoUnchanged, false
		default:
			return IndexUnchanged, RepoModified, true
		}
	}

	idx := IndexUnchanged
	if !in.IndexMatchesHead {
		idx = IndexModified
	}
	switch {
	case !in.Worktree:
		return idx, RepoRemoved, true
	case in.WorktreeMatches:
		return idx, RepoUnchanged, idx != IndexUnchanged
	default:
		return idx, RepoModified, true
	}
}
