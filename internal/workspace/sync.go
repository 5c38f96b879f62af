package workspace

import (
	"fmt"

	"gitlet/internal/commit"
	gerrors "gitlet/internal/errors"
	"gitlet/internal/stage"

	"go.uber.org/zap"
)

// BlobReader is the subset of the content store checkout needs.
type BlobReader interface {
	Get(hash string) ([]byte, error)
}

// Status is the classification of every path known to HEAD, the staging
// area or the working tree. All slices are sorted.
type Status struct {
	Staged    []string
	Removed   []string
	Modified  []string
	Deleted   []string
	Untracked []string
}

// Clean reports whether nothing is staged, modified, deleted or untracked.
func (s *Status) Clean() bool {
	return len(s.Staged)+len(s.Removed)+len(s.Modified)+len(s.Deleted)+len(s.Untracked) == 0
}

// Classify compares HEAD's tracked-set, the staging area and a working tree
// snapshot. A file staged for removal that reappears in the working tree is
// reported as untracked; a staged or tracked file missing from it is deleted.
func Classify(head map[string]string, area *stage.Area, snapshot map[string]string) *Status {
	st := &Status{
		Staged:  area.AddedPaths(),
		Removed: area.RemovedPaths(),
	}

	paths := make(map[string]struct{}, len(head)+len(snapshot))
	for p := range head {
		paths[p] = struct{}{}
	}
	for p := range snapshot {
		paths[p] = struct{}{}
	}
	for p := range area.Additions {
		paths[p] = struct{}{}
	}

	for _, p := range sortedKeys(paths) {
		live, present := snapshot[p]
		staged, isStaged := area.Staged(p)
		headDigest, inHead := head[p]

		switch {
		case area.Removed(p):
			if present {
				st.Untracked = append(st.Untracked, p)
			}
		case isStaged:
			if !present {
				st.Deleted = append(st.Deleted, p)
			} else if live != staged {
				st.Modified = append(st.Modified, p)
			}
		case inHead:
			if !present {
				st.Deleted = append(st.Deleted, p)
			} else if live != headDigest {
				st.Modified = append(st.Modified, p)
			}
		case present:
			st.Untracked = append(st.Untracked, p)
		}
	}
	return st
}

// HasUntracked reports whether any working file is untracked.
func HasUntracked(head map[string]string, area *stage.Area, snapshot map[string]string) bool {
	return len(Classify(head, area, snapshot).Untracked) > 0
}

// UntrackedInWay returns the untracked working files that a checkout of
// target would overwrite. Checkout, reset and merge refuse to run while this
// list is non-empty.
func UntrackedInWay(head map[string]string, area *stage.Area, snapshot, target map[string]string) []string {
	var blocked []string
	for _, p := range Classify(head, area, snapshot).Untracked {
		if _, ok := target[p]; ok {
			blocked = append(blocked, p)
		}
	}
	return blocked
}

// CheckoutPath writes the version of path recorded in c to the working tree.
func (w *Workspace) CheckoutPath(blobs BlobReader, c *commit.Commit, path string) error {
	digest, ok := c.Tracks(path)
	if !ok {
		return gerrors.FileNotInCommit(path)
	}
	return w.restore(blobs, path, digest)
}

func (w *Workspace) restore(blobs BlobReader, path, digest string) error {
	data, err := blobs.Get(digest)
	if err != nil {
		return fmt.Errorf("loading blob for %s: %w", path, err)
	}
	return w.Write(path, data)
}

// CheckoutAll replaces the tracked files of current with the snapshot of
// target. Files tracked by current and absent from target are deleted;
// untracked files are left alone.
func (w *Workspace) CheckoutAll(blobs BlobReader, current, target *commit.Commit) error {
	tracked := target.Tracked()

	// All blobs are loaded before the tree is touched.
	contents := make(map[string][]byte, len(tracked))
	for path, digest := range tracked {
		data, err := blobs.Get(digest)
		if err != nil {
			return fmt.Errorf("loading blob for %s: %w", path, err)
		}
		contents[path] = data
	}

	var deleted int
	for _, path := range current.Paths() {
		if _, ok := tracked[path]; ok {
			continue
		}
		if err := w.Delete(path); err != nil {
			return err
		}
		deleted++
	}

	for _, path := range sortedKeys(contents) {
		if err := w.Write(path, contents[path]); err != nil {
			return err
		}
	}

	w.logger.Debug("checked out commit",
		zap.String("from", current.ShortID()),
		zap.String("to", target.ShortID()),
		zap.Int("written", len(contents)),
		zap.Int("deleted", deleted))
	return nil
}
