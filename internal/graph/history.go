package graph

import (
	"fmt"
	"sort"

	"gitlet/internal/commit"
	gerrors "gitlet/internal/errors"
	"gitlet/internal/safe"

	"go.uber.org/zap"
)

// distances walks every parent edge from id and returns the minimum number of
// hops to each ancestor. id itself is at distance 0.
func (g *Graph) distances(id string) (map[string]int, error) {
	dist := map[string]int{id: 0}
	queue := []string{id}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		c, err := g.Get(cur)
		if err != nil {
			return nil, err
		}
		for _, p := range c.Parents() {
			if _, seen := dist[p]; seen {
				continue
			}
			dist[p] = dist[cur] + 1
			queue = append(queue, p)
		}
	}
	return dist, nil
}

// AncestorsOf returns every commit reachable from id through parent edges,
// including id itself.
func (g *Graph) AncestorsOf(id string) (map[string]struct{}, error) {
	dist, err := g.distances(id)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(dist))
	for a := range dist {
		out[a] = struct{}{}
	}
	return out, nil
}

// IsAncestor reports whether ancestor is reachable from id (or equal to it).
func (g *Graph) IsAncestor(ancestor, id string) (bool, error) {
	set, err := g.AncestorsOf(id)
	if err != nil {
		return false, err
	}
	_, ok := set[ancestor]
	return ok, nil
}

// SplitPoint returns the latest common ancestor of two commits.
//
// Of the common ancestors, only those that are not themselves ancestors of
// another common ancestor are candidates. When several remain (criss-cross
// histories) the one closest to either side wins; ties go to the smaller
// total distance and then to the lexicographically smaller id.
func (g *Graph) SplitPoint(a, b string) (string, error) {
	distA, err := g.distances(a)
	if err != nil {
		return "", err
	}
	distB, err := g.distances(b)
	if err != nil {
		return "", err
	}

	common := make(map[string]struct{})
	for id := range distA {
		if _, ok := distB[id]; ok {
			common[id] = struct{}{}
		}
	}
	if len(common) == 0 {
		return "", gerrors.Internal(fmt.Sprintf("commits %s and %s share no ancestor", a, b), nil)
	}

	candidates := make(map[string]struct{}, len(common))
	for id := range common {
		candidates[id] = struct{}{}
	}
	for id := range common {
		c, err := g.Get(id)
		if err != nil {
			return "", err
		}
		for _, p := range c.Parents() {
			delete(candidates, p)
		}
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		x, y := ids[i], ids[j]
		mx, my := min(distA[x], distB[x]), min(distA[y], distB[y])
		if mx != my {
			return mx < my
		}
		sx, sy := distA[x]+distB[x], distA[y]+distB[y]
		if sx != sy {
			return sx < sy
		}
		return x < y
	})

	if len(ids) > 1 {
		g.logger.Debug("multiple split point candidates",
			zap.Strings("candidates", ids),
			zap.String("chosen", ids[0]))
	}
	return ids[0], nil
}

// BranchSplitPoint returns the split point of two branch tips.
func (g *Graph) BranchSplitPoint(branchA, branchB string) (string, error) {
	a, ok := g.Tip(branchA)
	if !ok {
		return "", gerrors.BranchNotExists(branchA)
	}
	b, ok := g.Tip(branchB)
	if !ok {
		return "", gerrors.BranchNotExists(branchB)
	}
	return g.SplitPoint(a, b)
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// FindByPrefix resolves an abbreviated commit id.
func (g *Graph) FindByPrefix(prefix string) (string, error) {
	if prefix == "" || len(prefix) > safe.DigestLen || !isHex(prefix) {
		return "", gerrors.NoSuchCommit(prefix)
	}

	ids, err := g.index.IDs(prefix)
	if err != nil {
		return "", fmt.Errorf("searching commit index: %w", err)
	}

	matches := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		matches[id] = struct{}{}
	}
	for _, m := range g.pending {
		if len(m.ID) >= len(prefix) && m.ID[:len(prefix)] == prefix {
			matches[m.ID] = struct{}{}
		}
	}

	switch len(matches) {
	case 0:
		return "", gerrors.NoSuchCommit(prefix)
	case 1:
		for id := range matches {
			return id, nil
		}
	}

	found := make([]string, 0, len(matches))
	for id := range matches {
		found = append(found, id)
	}
	sort.Strings(found)
	return "", gerrors.AmbiguousID(prefix, found)
}

// Resolve returns the commit named by a full or abbreviated id.
func (g *Graph) Resolve(idOrPrefix string) (*commit.Commit, error) {
	if safe.ValidDigest(idOrPrefix) {
		if c, err := g.Get(idOrPrefix); err == nil {
			return c, nil
		}
	}
	id, err := g.FindByPrefix(idOrPrefix)
	if err != nil {
		return nil, err
	}
	return g.Get(id)
}

// Log returns the first-parent history of a branch, newest first.
func (g *Graph) Log(branch string) ([]*commit.Commit, error) {
	tip, ok := g.Tip(branch)
	if !ok {
		return nil, gerrors.NoSuchBranch(branch)
	}

	var out []*commit.Commit
	for id := tip; id != ""; {
		c, err := g.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		id = c.FirstParent()
	}
	return out, nil
}

// metas returns every index record, persisted and pending, in creation order.
func (g *Graph) metas() ([]*CommitMeta, error) {
	var stored []*CommitMeta
	if err := g.index.List(&stored); err != nil {
		return nil, fmt.Errorf("reading commit index: %w", err)
	}

	seen := make(map[string]struct{}, len(stored)+len(g.pending))
	out := make([]*CommitMeta, 0, len(stored)+len(g.pending))
	for _, m := range append(stored, g.pending...) {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GlobalLog returns every commit ever made, in creation order.
func (g *Graph) GlobalLog() ([]*commit.Commit, error) {
	metas, err := g.metas()
	if err != nil {
		return nil, err
	}
	out := make([]*commit.Commit, 0, len(metas))
	for _, m := range metas {
		c, err := g.Get(m.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// FindByMessage returns the ids of all commits whose message equals message
// exactly, in creation order.
func (g *Graph) FindByMessage(message string) ([]string, error) {
	metas, err := g.metas()
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, m := range metas {
		if m.Message == message {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil, gerrors.NotFound("Found no commit with that message.")
	}
	return ids, nil
}
