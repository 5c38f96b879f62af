// Package graph maintains the commit DAG and the branch table.
//
// Commits live in an arena keyed by digest; every edge (parent, branch tip)
// is a digest, never a pointer. Commit bodies are kept in the content store,
// and a small per-commit index record (sequence number, message, timestamp)
// is kept in badger for id-prefix lookups, global-log and find.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gitlet/internal/commit"
	gerrors "gitlet/internal/errors"
	"gitlet/internal/safe"
	"gitlet/internal/stage"
	"gitlet/internal/storage"
	"gitlet/internal/validation"

	"go.uber.org/zap"
)

// IndexPrefix is the badger key prefix of commit index records.
const IndexPrefix = "commit"

// ObjectStore is the subset of the content store the graph needs.
type ObjectStore interface {
	Put(content []byte) (string, error)
	Get(hash string) ([]byte, error)
}

// State is the persisted part of the graph: the branch table and the current
// branch. HEAD is always Branches[Current].
type State struct {
	Current  string            `json:"current"`
	Branches map[string]string `json:"branches"`
	NextSeq  int64             `json:"next_seq"`
}

// CommitMeta is the index record written for every commit.
type CommitMeta struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *CommitMeta) GetID() string { return m.ID }

// Node is a commit's position in the graph: its parent edges and the
// branches currently pointing at it.
type Node struct {
	ID       string
	Parents  []string
	Branches []string
}

type Graph struct {
	store   ObjectStore
	index   *storage.BadgerStore
	state   State
	arena   map[string]*commit.Commit
	pending []*CommitMeta
	logger  *zap.Logger
}

func newGraph(store ObjectStore, index *storage.BadgerStore, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{
		store:  store,
		index:  index,
		arena:  make(map[string]*commit.Commit),
		logger: logger,
		state:  State{Branches: make(map[string]string)},
	}
}

// Init creates the root commit and a single branch pointing at it.
func Init(store ObjectStore, index *storage.BadgerStore, branch string, logger *zap.Logger) (*Graph, string, error) {
	if err := validation.ValidateBranchName(branch); err != nil {
		return nil, "", err
	}

	g := newGraph(store, index, logger)
	root := commit.Initial()
	if err := g.put(root); err != nil {
		return nil, "", err
	}

	g.state.Current = branch
	g.state.Branches[branch] = root.ID()
	g.logger.Debug("initialized commit graph",
		zap.String("branch", branch),
		zap.String("root", root.ID()))

	return g, root.ID(), nil
}

// Load restores a graph from its persisted state.
func Load(store ObjectStore, index *storage.BadgerStore, state State, logger *zap.Logger) (*Graph, error) {
	g := newGraph(store, index, logger)
	if state.Branches != nil {
		for name, tip := range state.Branches {
			g.state.Branches[name] = tip
		}
	}
	g.state.Current = state.Current
	g.state.NextSeq = state.NextSeq

	if _, ok := g.state.Branches[g.state.Current]; !ok {
		return nil, gerrors.Internal(fmt.Sprintf("current branch %q has no tip", g.state.Current), nil)
	}
	return g, nil
}

// State returns a copy of the persisted state.
func (g *Graph) State() State {
	s := State{
		Current:  g.state.Current,
		NextSeq:  g.state.NextSeq,
		Branches: make(map[string]string, len(g.state.Branches)),
	}
	for name, tip := range g.state.Branches {
		s.Branches[name] = tip
	}
	return s
}

// Pending returns index records created since the last ClearPending.
func (g *Graph) Pending() []*CommitMeta {
	return append([]*CommitMeta(nil), g.pending...)
}

// ClearPending forgets pending index records once they are persisted.
func (g *Graph) ClearPending() {
	g.pending = nil
}

// recorded reports whether id has an index record, persisted or pending.
// Only recorded ids are commits; any other digest is a blob.
func (g *Graph) recorded(id string) (bool, error) {
	for _, m := range g.pending {
		if m.ID == id {
			return true, nil
		}
	}
	var meta CommitMeta
	err := g.index.Get(id, &meta)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading commit index: %w", err)
	}
	return true, nil
}

// put stores c in the content store and arena and queues its index record.
// Storing a commit that is already recorded changes nothing.
func (g *Graph) put(c *commit.Commit) error {
	if _, ok := g.arena[c.ID()]; ok {
		return nil
	}
	known, err := g.recorded(c.ID())
	if err != nil {
		return err
	}
	if known {
		g.arena[c.ID()] = c
		return nil
	}

	data, err := c.Encode()
	if err != nil {
		return err
	}
	id, err := g.store.Put(data)
	if err != nil {
		return fmt.Errorf("storing commit: %w", err)
	}
	if id != c.ID() {
		return gerrors.Internal(fmt.Sprintf("stored commit digest %s does not match id %s", id, c.ID()), nil)
	}

	g.arena[id] = c
	g.pending = append(g.pending, &CommitMeta{
		ID:        id,
		Seq:       g.state.NextSeq,
		Message:   c.Message(),
		Timestamp: c.Timestamp(),
	})
	g.state.NextSeq++
	return nil
}

// Get returns the commit with the full id.
func (g *Graph) Get(id string) (*commit.Commit, error) {
	if c, ok := g.arena[id]; ok {
		return c, nil
	}
	if !safe.ValidDigest(id) {
		return nil, gerrors.NoSuchCommit(id)
	}
	known, err := g.recorded(id)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, gerrors.NoSuchCommit(id)
	}

	data, err := g.store.Get(id)
	if err != nil {
		if errors.Is(err, safe.ErrContentNotFound) {
			return nil, gerrors.NoSuchCommit(id)
		}
		return nil, fmt.Errorf("reading commit %s: %w", id, err)
	}
	c, err := commit.Decode(data)
	if err != nil {
		return nil, gerrors.Internal(fmt.Sprintf("indexed commit %s does not decode", id), err)
	}
	if c.ID() != id {
		return nil, gerrors.Internal(fmt.Sprintf("commit %s decoded to id %s", id, c.ID()), nil)
	}

	g.arena[id] = c
	return c, nil
}

// CurrentBranch returns the name of the active branch.
func (g *Graph) CurrentBranch() string {
	return g.state.Current
}

// HeadID returns the tip of the current branch.
func (g *Graph) HeadID() string {
	return g.state.Branches[g.state.Current]
}

// Head returns the commit HEAD points at.
func (g *Graph) Head() (*commit.Commit, error) {
	return g.Get(g.HeadID())
}

// Tip returns the commit id a branch points at.
func (g *Graph) Tip(branch string) (string, bool) {
	tip, ok := g.state.Branches[branch]
	return tip, ok
}

// Branches returns all branch names, sorted.
func (g *Graph) Branches() []string {
	names := make([]string, 0, len(g.state.Branches))
	for name := range g.state.Branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Commit records the staged changes as a new commit on the current branch and
// clears the staging area. A non-empty mergeParent makes a merge commit, which
// is allowed even when nothing is staged.
func (g *Graph) Commit(message string, timestamp time.Time, area *stage.Area, mergeParent string) (*commit.Commit, error) {
	if mergeParent == "" && area.Empty() {
		return nil, gerrors.NothingToCommit()
	}
	if strings.TrimSpace(message) == "" {
		return nil, gerrors.EmptyMessage()
	}
	if err := area.Validate(); err != nil {
		g.logger.Error("staging area invariant violated", zap.Error(err))
		return nil, err
	}

	head, err := g.Head()
	if err != nil {
		return nil, err
	}

	parents := []string{head.ID()}
	if mergeParent != "" {
		if _, err := g.Get(mergeParent); err != nil {
			return nil, err
		}
		parents = append(parents, mergeParent)
	}

	c, err := commit.New(message, timestamp, parents, area.Apply(head.Tracked()))
	if err != nil {
		return nil, err
	}
	if err := g.put(c); err != nil {
		return nil, err
	}

	g.state.Branches[g.state.Current] = c.ID()
	area.Clear()

	g.logger.Debug("created commit",
		zap.String("id", c.ID()),
		zap.String("branch", g.state.Current),
		zap.Strings("parents", parents),
		zap.Int("tracked", len(c.Paths())))
	return c, nil
}

// AddBranch creates a branch pointing at HEAD.
func (g *Graph) AddBranch(name string) error {
	if err := validation.ValidateBranchName(name); err != nil {
		return err
	}
	if _, ok := g.state.Branches[name]; ok {
		return gerrors.BranchExists(name)
	}
	g.state.Branches[name] = g.HeadID()
	return nil
}

// RemoveBranch deletes a branch pointer. Its commits stay in the graph.
func (g *Graph) RemoveBranch(name string) error {
	if name == g.state.Current {
		return gerrors.CannotRemoveCurrent()
	}
	if _, ok := g.state.Branches[name]; !ok {
		return gerrors.BranchNotExists(name)
	}
	delete(g.state.Branches, name)
	return nil
}

// SetCurrent makes name the active branch. It does not touch the working tree.
func (g *Graph) SetCurrent(name string) error {
	if _, ok := g.state.Branches[name]; !ok {
		return gerrors.NoSuchBranch(name)
	}
	g.state.Current = name
	return nil
}

// MoveHead points the current branch at id.
func (g *Graph) MoveHead(id string) error {
	if _, err := g.Get(id); err != nil {
		return err
	}
	g.state.Branches[g.state.Current] = id
	return nil
}

// Node returns the graph node for id.
func (g *Graph) Node(id string) (Node, error) {
	c, err := g.Get(id)
	if err != nil {
		return Node{}, err
	}
	n := Node{ID: id, Parents: c.Parents()}
	for _, name := range g.Branches() {
		if g.state.Branches[name] == id {
			n.Branches = append(n.Branches, name)
		}
	}
	return n, nil
}
