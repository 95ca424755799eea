package git

import (
	"slices"
)

// LocalBranchNames returns the sorted local branch names and the branch HEAD
// is on, or "HEAD" when detached.
func (r *Repository) LocalBranchNames() (branches []string, headName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	refs, err := r.refsLocked()
	if err != nil {
		return nil, "", err
	}
	for _, ref := range refs {
		if ref.Kind == RefKindBranch {
			branches = append(branches, ref.Name)
		}
	}
	slices.Sort(branches)
	branches = slices.Compact(branches)

	head, err := r.headLocked()
	if err != nil {
		return nil, "", err
	}
	headName = head.Branch
	if head.Detached() {
		headName = "HEAD"
	}
	return branches, headName, nil
}
