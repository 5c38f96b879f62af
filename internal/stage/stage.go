// Package stage holds the pending additions and removals for the next commit.
package stage

import (
	"fmt"
	"sort"

	"gitlet/internal/errors"
)

// Area is the staging area. A path is never both staged for addition and
// staged for removal.
type Area struct {
	Additions map[string]string   `json:"additions"`
	Removals  map[string]struct{} `json:"removals"`
}

func New() *Area {
	a := &Area{}
	a.ensure()
	return a
}

func (a *Area) ensure() {
	if a.Additions == nil {
		a.Additions = make(map[string]string)
	}
	if a.Removals == nil {
		a.Removals = make(map[string]struct{})
	}
}

// Stage records path for addition with the given content digest. If the
// content matches what HEAD already tracks (headDigest), any pending
// addition or removal for path is dropped instead.
func (a *Area) Stage(path, digest, headDigest string) {
	a.ensure()
	delete(a.Removals, path)
	if digest == headDigest {
		delete(a.Additions, path)
		return
	}
	a.Additions[path] = digest
}

// Unstage drops a pending addition for path.
func (a *Area) Unstage(path string, trackedByHead bool) error {
	a.ensure()
	if _, ok := a.Additions[path]; ok {
		delete(a.Additions, path)
		return nil
	}
	if !trackedByHead {
		return errors.NothingToRemove(path)
	}
	return nil
}

// Remove implements rm: a pending addition is dropped, and a path tracked by
// HEAD is staged for removal. It reports whether the path was staged for
// removal, in which case the caller deletes the working file.
func (a *Area) Remove(path string, trackedByHead bool) (bool, error) {
	a.ensure()
	_, staged := a.Additions[path]
	if !staged && !trackedByHead {
		return false, errors.NothingToRemove(path)
	}

	delete(a.Additions, path)
	if trackedByHead {
		a.Removals[path] = struct{}{}
		return true, nil
	}
	return false, nil
}

// Staged returns the digest staged for path.
func (a *Area) Staged(path string) (string, bool) {
	digest, ok := a.Additions[path]
	return digest, ok
}

// Removed reports whether path is staged for removal.
func (a *Area) Removed(path string) bool {
	_, ok := a.Removals[path]
	return ok
}

func (a *Area) Empty() bool {
	return len(a.Additions) == 0 && len(a.Removals) == 0
}

func (a *Area) Clear() {
	a.Additions = make(map[string]string)
	a.Removals = make(map[string]struct{})
}

// AddedPaths returns the paths staged for addition, sorted.
func (a *Area) AddedPaths() []string {
	paths := make([]string, 0, len(a.Additions))
	for p := range a.Additions {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// RemovedPaths returns the paths staged for removal, sorted.
func (a *Area) RemovedPaths() []string {
	paths := make([]string, 0, len(a.Removals))
	for p := range a.Removals {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Apply overlays the staged changes on a parent tracked-set and returns the
// resulting snapshot. parent is not modified.
func (a *Area) Apply(parent map[string]string) map[string]string {
	out := make(map[string]string, len(parent)+len(a.Additions))
	for p, d := range parent {
		out[p] = d
	}
	for p, d := range a.Additions {
		out[p] = d
	}
	for p := range a.Removals {
		delete(out, p)
	}
	return out
}

// Clone returns a deep copy.
func (a *Area) Clone() *Area {
	c := New()
	for p, d := range a.Additions {
		c.Additions[p] = d
	}
	for p := range a.Removals {
		c.Removals[p] = struct{}{}
	}
	return c
}

// Validate checks the addition/removal invariant.
func (a *Area) Validate() error {
	for p := range a.Removals {
		if _, ok := a.Additions[p]; ok {
			return errors.Internal(fmt.Sprintf("path %q is staged for both addition and removal", p), nil)
		}
	}
	return nil
}
