package git

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

type RefKind int

const (
	RefKindBranch RefKind = iota
	RefKindRemoteBranch
	RefKindTag
)

// Ref is a branch, remote branch or tag resolved to the commit it names.
// Annotated tags are peeled.
type Ref struct {
	Name string
	Kind RefKind
	Hash plumbing.Hash
}

// Refs lists branches, remote branches and tags sorted by full name.
// Remote HEAD aliases are left out.
func (r *Repository) Refs() ([]Ref, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refsLocked()
}

func (r *Repository) refsLocked() ([]Ref, error) {
	iter, err := r.repo.References()
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer iter.Close()

	type named struct {
		full string
		ref  Ref
	}
	var all []named
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		out := Ref{Name: name.Short(), Hash: ref.Hash()}
		switch {
		case name.IsBranch():
			out.Kind = RefKindBranch
		case name.IsRemote():
			if strings.HasSuffix(out.Name, "/HEAD") {
				return nil
			}
			out.Kind = RefKindRemoteBranch
		case name.IsTag():
			out.Kind = RefKindTag
			peeled, ok := r.peelTagCommitHash(out.Hash)
			if !ok {
				return nil
			}
			out.Hash = peeled
		default:
			return nil
		}
		all = append(all, named{full: name.String(), ref: out})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].full < all[j].full })
	refs := make([]Ref, len(all))
	for i, n := range all {
		refs[i] = n.ref
	}
	return refs, nil
}

// Decorations maps commit ids to their ref labels, HEAD first, in the
// "HEAD -> main", "origin/main", "tag: v1" style of git log --decorate.
func (r *Repository) Decorations() (map[plumbing.Hash][]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	refs, err := r.refsLocked()
	if err != nil {
		return nil, err
	}
	head, err := r.headLocked()
	if err != nil {
		return nil, err
	}
	labels := make(map[plumbing.Hash][]string)
	for _, ref := range refs {
		label := ref.Name
		switch {
		case ref.Kind == RefKindTag:
			label = "tag: " + ref.Name
		case ref.Kind == RefKindBranch && ref.Name == head.Branch:
			// folded into the HEAD label
			continue
		}
		labels[ref.Hash] = append(labels[ref.Hash], label)
	}
	if head.Unborn() {
		return labels, nil
	}
	label := "HEAD"
	if !head.Detached() {
		label = "HEAD -> " + head.Branch
	}
	labels[head.Hash] = append([]string{label}, labels[head.Hash]...)
	return labels, nil
}

func (r *Repository) peelTagCommitHash(hash plumbing.Hash) (plumbing.Hash, bool) {
	if hash.IsZero() {
		return plumbing.ZeroHash, false
	}
	// Lightweight tags point directly at a commit; annotated tags point at a tag object.
	if _, err := r.repo.CommitObject(hash); err == nil {
		return hash, true
	}
	cur := hash
	for range 8 {
		tag, err := r.repo.TagObject(cur)
		if err != nil {
			return plumbing.ZeroHash, false
		}
		switch tag.TargetType {
		case plumbing.CommitObject:
			return tag.Target, true
		case plumbing.TagObject:
			cur = tag.Target
		default:
			return plumbing.ZeroHash, false
		}
	}
	return plumbing.ZeroHash, false
}
