package repository

import (
	"fmt"
	"sort"

	"gitlet/internal/commit"
	"gitlet/internal/diff"
	gerrors "gitlet/internal/errors"
	"gitlet/internal/safe"
	"gitlet/internal/validation"
	"gitlet/internal/workspace"

	"go.uber.org/zap"
)

// Add stages the working versions of paths. All paths are read before any is
// staged, so a missing file leaves the staging area untouched.
func (r *Repository) Add(paths ...string) error {
	log := r.op("add")

	head, err := r.head()
	if err != nil {
		return err
	}

	contents := make(map[string][]byte, len(paths))
	order := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := validation.CleanPath(p)
		if err != nil {
			return err
		}
		data, err := r.Workspace.Read(rel)
		if err != nil {
			return err
		}
		if _, seen := contents[rel]; !seen {
			order = append(order, rel)
		}
		contents[rel] = data
	}

	for _, rel := range order {
		data := contents[rel]
		headDigest, _ := head.Tracks(rel)

		digest := safe.Digest(data)
		if digest != headDigest {
			if digest, err = r.Safe.Put(data); err != nil {
				return fmt.Errorf("storing %s: %w", rel, err)
			}
		}
		r.Stage.Stage(rel, digest, headDigest)
		log.Debug("staged file", zap.String("path", rel), zap.String("digest", digest))
	}

	return r.save()
}

// Commit records the staging area as a new commit on the current branch.
func (r *Repository) Commit(message string) (*commit.Commit, error) {
	c, err := r.Graph.Commit(message, r.clock(), r.Stage, "")
	if err != nil {
		return nil, err
	}
	if err := r.save(); err != nil {
		return nil, err
	}

	r.op("commit").Info("committed",
		zap.String("id", c.ID()),
		zap.String("branch", r.CurrentBranch()))
	return c, nil
}

// Remove unstages paths and, for files tracked by HEAD, stages their removal
// and deletes them from the working tree.
func (r *Repository) Remove(paths ...string) error {
	log := r.op("rm")

	head, err := r.head()
	if err != nil {
		return err
	}

	rels := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := validation.CleanPath(p)
		if err != nil {
			return err
		}
		_, staged := r.Stage.Staged(rel)
		_, tracked := head.Tracks(rel)
		if !staged && !tracked {
			return gerrors.NothingToRemove(rel)
		}
		rels = append(rels, rel)
	}

	for _, rel := range rels {
		_, tracked := head.Tracks(rel)
		removed, err := r.Stage.Remove(rel, tracked)
		if err != nil {
			return err
		}
		if removed {
			if err := r.Workspace.Delete(rel); err != nil {
				return err
			}
		}
		log.Debug("removed file", zap.String("path", rel), zap.Bool("staged_removal", removed))
	}

	return r.save()
}

// Log returns the first-parent history of the current branch.
func (r *Repository) Log() ([]*commit.Commit, error) {
	return r.Graph.Log(r.CurrentBranch())
}

// GlobalLog returns every commit ever made.
func (r *Repository) GlobalLog() ([]*commit.Commit, error) {
	return r.Graph.GlobalLog()
}

// Find returns the ids of commits with the given message.
func (r *Repository) Find(message string) ([]string, error) {
	return r.Graph.FindByMessage(message)
}

// Status is the output of the status command.
type Status struct {
	Current  string
	Branches []string
	workspace.Status
}

// Status classifies the working tree against HEAD and the staging area.
func (r *Repository) Status() (*Status, error) {
	head, err := r.head()
	if err != nil {
		return nil, err
	}
	snap, err := r.Workspace.Snapshot()
	if err != nil {
		return nil, err
	}

	return &Status{
		Current:  r.CurrentBranch(),
		Branches: r.Graph.Branches(),
		Status:   *workspace.Classify(head.Tracked(), r.Stage, snap),
	}, nil
}

// CheckoutFile restores path from HEAD.
func (r *Repository) CheckoutFile(path string) error {
	return r.CheckoutFileAt(r.Graph.HeadID(), path)
}

// CheckoutFileAt restores path from the commit named by a full or
// abbreviated id. The staging area is not changed.
func (r *Repository) CheckoutFileAt(id, path string) error {
	c, err := r.Graph.Resolve(id)
	if err != nil {
		return err
	}
	rel, err := validation.CleanPath(path)
	if err != nil {
		return err
	}
	if err := r.Workspace.CheckoutPath(r.Safe, c, rel); err != nil {
		return err
	}

	r.op("checkout").Debug("restored file", zap.String("path", rel), zap.String("commit", c.ID()))
	return nil
}

// guardUntracked fails if checking out target would overwrite an untracked
// working file.
func (r *Repository) guardUntracked(head *commit.Commit, target map[string]string) error {
	snap, err := r.Workspace.Snapshot()
	if err != nil {
		return err
	}
	if blocked := workspace.UntrackedInWay(head.Tracked(), r.Stage, snap, target); len(blocked) > 0 {
		return gerrors.UntrackedInWay(blocked)
	}
	return nil
}

// checkoutCommit replaces the working tree with target's snapshot, clears the
// staging area and lets move update the branch table.
func (r *Repository) checkoutCommit(head, target *commit.Commit, move func() error) error {
	if err := r.guardUntracked(head, target.Tracked()); err != nil {
		return err
	}
	if err := r.Workspace.CheckoutAll(r.Safe, head, target); err != nil {
		return err
	}
	if err := move(); err != nil {
		return err
	}
	r.Stage.Clear()
	return r.save()
}

// SwitchBranch makes name the current branch and checks out its tip.
func (r *Repository) SwitchBranch(name string) error {
	tip, ok := r.Graph.Tip(name)
	if !ok {
		return gerrors.NoSuchBranch(name)
	}
	if name == r.CurrentBranch() {
		return gerrors.AlreadyCurrent()
	}

	head, err := r.head()
	if err != nil {
		return err
	}
	target, err := r.Graph.Get(tip)
	if err != nil {
		return err
	}

	err = r.checkoutCommit(head, target, func() error { return r.Graph.SetCurrent(name) })
	if err != nil {
		return err
	}

	r.op("checkout").Info("switched branch", zap.String("branch", name), zap.String("head", tip))
	return nil
}

// Branch creates a branch at HEAD.
func (r *Repository) Branch(name string) error {
	if err := r.Graph.AddBranch(name); err != nil {
		return err
	}
	return r.save()
}

// RemoveBranch deletes a branch pointer.
func (r *Repository) RemoveBranch(name string) error {
	if err := r.Graph.RemoveBranch(name); err != nil {
		return err
	}
	return r.save()
}

// Reset checks out the commit named by id and moves the current branch to it.
func (r *Repository) Reset(id string) (*commit.Commit, error) {
	target, err := r.Graph.Resolve(id)
	if err != nil {
		return nil, err
	}
	head, err := r.head()
	if err != nil {
		return nil, err
	}

	err = r.checkoutCommit(head, target, func() error { return r.Graph.MoveHead(target.ID()) })
	if err != nil {
		return nil, err
	}

	r.op("reset").Info("reset branch",
		zap.String("branch", r.CurrentBranch()),
		zap.String("head", target.ID()))
	return target, nil
}

// FileDiff is the difference between the committed (or staged) version of a
// file and its working copy.
type FileDiff struct {
	Path    string
	Deleted bool
	Result  *diff.DiffResult
}

// Diff compares modified and deleted files against their staged version, or
// HEAD's when nothing is staged. With paths, only those files are compared.
func (r *Repository) Diff(paths ...string) ([]FileDiff, error) {
	st, err := r.Status()
	if err != nil {
		return nil, err
	}
	head, err := r.head()
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		rel, err := validation.CleanPath(p)
		if err != nil {
			return nil, err
		}
		want[rel] = true
	}

	deleted := make(map[string]bool, len(st.Deleted))
	candidates := append([]string{}, st.Modified...)
	for _, p := range st.Deleted {
		deleted[p] = true
		candidates = append(candidates, p)
	}
	sort.Strings(candidates)

	var out []FileDiff
	for _, p := range candidates {
		if len(want) > 0 && !want[p] {
			continue
		}

		base, ok := r.Stage.Staged(p)
		if !ok {
			base, _ = head.Tracks(p)
		}
		old, err := r.Safe.Get(base)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", p, err)
		}

		var cur []byte
		gone := deleted[p] || !r.Workspace.Exists(p)
		if !gone {
			if cur, err = r.Workspace.Read(p); err != nil {
				return nil, err
			}
		}

		res, err := r.diff.Diff(old, cur)
		if err != nil {
			return nil, err
		}
		out = append(out, FileDiff{Path: p, Deleted: gone, Result: res})
	}
	return out, nil
}
