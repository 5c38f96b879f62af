package repository

import (
	"fmt"

	"gitlet/internal/commit"
	gerrors "gitlet/internal/errors"
	"gitlet/internal/merge"

	"go.uber.org/zap"
)

// Messages reported by merge.
const (
	MsgGivenIsAncestor = "Given branch is an ancestor of the current branch."
	MsgFastForwarded   = "Current branch fast-forwarded."
	MsgMergeConflict   = "Encountered a merge conflict."
)

// MergeOutcome says how a merge completed.
type MergeOutcome int

const (
	// Merged produced a merge commit.
	Merged MergeOutcome = iota
	// AlreadyAncestor changed nothing: the given branch was already merged.
	AlreadyAncestor
	// FastForward moved the current branch to the given tip without a commit.
	FastForward
)

// MergeResult describes a completed merge.
type MergeResult struct {
	Outcome   MergeOutcome
	Commit    *commit.Commit
	Conflicts []string
}

// Message returns the line the merge command prints, if any.
func (m *MergeResult) Message() string {
	switch {
	case m.Outcome == AlreadyAncestor:
		return MsgGivenIsAncestor
	case m.Outcome == FastForward:
		return MsgFastForwarded
	case len(m.Conflicts) > 0:
		return MsgMergeConflict
	default:
		return ""
	}
}

// MergeMessage is the commit message of a merge commit.
func MergeMessage(given, current string) string {
	return fmt.Sprintf("Merged %s into %s", given, current)
}

// Merge merges branch into the current branch. Every precondition is checked
// before the working tree is touched.
func (r *Repository) Merge(branch string) (*MergeResult, error) {
	log := r.op("merge")

	givenTip, ok := r.Graph.Tip(branch)
	if !ok {
		return nil, gerrors.BranchNotExists(branch)
	}
	if !r.Stage.Empty() {
		return nil, gerrors.UncommittedChanges()
	}
	current := r.CurrentBranch()
	if branch == current {
		return nil, gerrors.SelfMerge()
	}

	head, err := r.head()
	if err != nil {
		return nil, err
	}
	given, err := r.Graph.Get(givenTip)
	if err != nil {
		return nil, err
	}

	splitID, err := r.Graph.BranchSplitPoint(current, branch)
	if err != nil {
		return nil, err
	}
	log.Debug("found split point",
		zap.String("current", head.ID()),
		zap.String("given", givenTip),
		zap.String("split", splitID))

	if splitID == givenTip {
		return &MergeResult{Outcome: AlreadyAncestor}, nil
	}
	if splitID == head.ID() {
		err := r.checkoutCommit(head, given, func() error { return r.Graph.MoveHead(givenTip) })
		if err != nil {
			return nil, err
		}
		log.Info("fast-forwarded", zap.String("branch", current), zap.String("head", givenTip))
		return &MergeResult{Outcome: FastForward, Commit: given}, nil
	}

	split, err := r.Graph.Get(splitID)
	if err != nil {
		return nil, err
	}
	decisions := merge.Plan(head.Tracked(), split.Tracked(), given.Tracked())

	writes := make(map[string]string)
	for _, d := range decisions {
		if d.Action == merge.TakeGiven || d.Action == merge.Conflict {
			writes[d.Path] = d.Given
		}
	}
	if err := r.guardUntracked(head, writes); err != nil {
		return nil, err
	}

	// Render conflicts before the first write.
	rendered := make(map[string][]byte)
	for _, d := range decisions {
		if d.Action != merge.Conflict {
			continue
		}
		cur, err := r.blob(d.Current)
		if err != nil {
			return nil, err
		}
		giv, err := r.blob(d.Given)
		if err != nil {
			return nil, err
		}
		rendered[d.Path] = merge.ConflictContent(cur, giv, branch)
	}

	for _, d := range decisions {
		switch d.Action {
		case merge.TakeGiven:
			if err := r.Workspace.CheckoutPath(r.Safe, given, d.Path); err != nil {
				return nil, err
			}
			r.Stage.Stage(d.Path, d.Given, d.Current)
		case merge.Remove:
			if err := r.Workspace.Delete(d.Path); err != nil {
				return nil, err
			}
			if _, err := r.Stage.Remove(d.Path, true); err != nil {
				return nil, err
			}
		case merge.Conflict:
			content := rendered[d.Path]
			digest, err := r.Safe.Put(content)
			if err != nil {
				return nil, fmt.Errorf("storing conflict for %s: %w", d.Path, err)
			}
			if err := r.Workspace.Write(d.Path, content); err != nil {
				return nil, err
			}
			r.Stage.Stage(d.Path, digest, d.Current)
		}
	}

	c, err := r.Graph.Commit(MergeMessage(branch, current), r.clock(), r.Stage, givenTip)
	if err != nil {
		return nil, err
	}
	if err := r.save(); err != nil {
		return nil, err
	}

	conflicts := merge.Conflicts(decisions)
	log.Info("merged",
		zap.String("given", branch),
		zap.String("into", current),
		zap.String("commit", c.ID()),
		zap.Strings("conflicts", conflicts))
	return &MergeResult{Outcome: Merged, Commit: c, Conflicts: conflicts}, nil
}

// blob returns the content for digest, or nil when the digest is empty.
func (r *Repository) blob(digest string) ([]byte, error) {
	if digest == "" {
		return nil, nil
	}
	data, err := r.Safe.Get(digest)
	if err != nil {
		return nil, fmt.Errorf("loading blob %s: %w", digest, err)
	}
	return data, nil
}
