package graph

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gitlet/internal/commit"
	"gitlet/internal/errors"
	"gitlet/internal/safe"
	"gitlet/internal/stage"
	"gitlet/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	g     *Graph
	db    *badger.DB
	store *safe.Safe
	index *storage.BadgerStore
	now   time.Time
}

func setupTestGraph(t *testing.T) *fixture {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests
	db, err := badger.Open(opts)
	require.NoError(t, err)

	store, err := safe.New(db, safe.Options{Root: filepath.Join(t.TempDir(), "objects")})
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		db.Close()
	})

	index := storage.NewBadgerStore(db, IndexPrefix)
	g, _, err := Init(store, index, "master", nil)
	require.NoError(t, err)

	return &fixture{
		g:     g,
		db:    db,
		store: store,
		index: index,
		now:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// commit stages a file named after msg and commits it on the current branch.
func (f *fixture) commit(t *testing.T, msg, mergeParent string) string {
	t.Helper()

	area := stage.New()
	digest, err := f.store.Put([]byte(msg))
	require.NoError(t, err)
	area.Stage(msg+".txt", digest, "")

	f.now = f.now.Add(time.Minute)
	c, err := f.g.Commit(msg, f.now, area, mergeParent)
	require.NoError(t, err)
	return c.ID()
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	err := f.db.Update(func(txn *badger.Txn) error {
		for _, m := range f.g.Pending() {
			if err := f.index.CreateTxn(txn, m); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	f.g.ClearPending()
}

func TestInit(t *testing.T) {
	f := setupTestGraph(t)

	head, err := f.g.Head()
	require.NoError(t, err)
	assert.Equal(t, commit.Initial().ID(), head.ID())
	assert.Equal(t, "master", f.g.CurrentBranch())
	assert.Equal(t, []string{"master"}, f.g.Branches())

	history, err := f.g.Log("master")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, commit.InitialMessage, history[0].Message())
}

func TestCommit_Preconditions(t *testing.T) {
	f := setupTestGraph(t)

	_, err := f.g.Commit("m", f.now, stage.New(), "")
	assert.True(t, errors.Is(err, errors.ErrorTypeNothingToCommit))

	area := stage.New()
	area.Stage("a.txt", safe.Digest([]byte("a")), "")
	_, err = f.g.Commit("   ", f.now, area, "")
	assert.True(t, errors.Is(err, errors.ErrorTypeEmptyMessage))
	assert.False(t, area.Empty(), "a rejected commit leaves the stage alone")
}

func TestCommit_SnapshotInheritsParent(t *testing.T) {
	f := setupTestGraph(t)
	first := f.commit(t, "a", "")
	second := f.commit(t, "b", "")

	c, err := f.g.Get(second)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, c.Paths())
	assert.Equal(t, first, c.FirstParent())
	assert.Equal(t, second, f.g.HeadID())

	area := stage.New()
	_, err = area.Remove("a.txt", true)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	third, err := f.g.Commit("drop a", f.now, area, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, third.Paths())
	assert.True(t, area.Empty())
}

func TestCommit_MergeWithEmptyStage(t *testing.T) {
	f := setupTestGraph(t)
	require.NoError(t, f.g.AddBranch("other"))
	require.NoError(t, f.g.SetCurrent("other"))
	given := f.commit(t, "given", "")
	require.NoError(t, f.g.SetCurrent("master"))
	current := f.commit(t, "current", "")

	merge, err := f.g.Commit("Merged other into master", f.now.Add(time.Minute), stage.New(), given)
	require.NoError(t, err)
	assert.True(t, merge.IsMerge())
	assert.Equal(t, []string{current, given}, merge.Parents())
}

func TestLog_FollowsFirstParent(t *testing.T) {
	f := setupTestGraph(t)
	require.NoError(t, f.g.AddBranch("other"))
	require.NoError(t, f.g.SetCurrent("other"))
	f.commit(t, "side", "")
	side := f.g.HeadID()
	require.NoError(t, f.g.SetCurrent("master"))
	f.commit(t, "main", "")
	f.commit(t, "merge", side)

	history, err := f.g.Log("master")
	require.NoError(t, err)
	var messages []string
	for _, c := range history {
		messages = append(messages, c.Message())
	}
	assert.Equal(t, []string{"merge", "main", commit.InitialMessage}, messages)

	_, err = f.g.Log("nope")
	assert.True(t, errors.Is(err, errors.ErrorTypeNoSuchBranch))
}

func TestSplitPoint(t *testing.T) {
	t.Run("ancestor", func(t *testing.T) {
		f := setupTestGraph(t)
		base := f.commit(t, "base", "")
		require.NoError(t, f.g.AddBranch("other"))
		tip := f.commit(t, "ahead", "")

		sp, err := f.g.SplitPoint(tip, base)
		require.NoError(t, err)
		assert.Equal(t, base, sp)

		sp, err = f.g.BranchSplitPoint("master", "other")
		require.NoError(t, err)
		assert.Equal(t, base, sp)
	})

	t.Run("fork", func(t *testing.T) {
		f := setupTestGraph(t)
		base := f.commit(t, "base", "")
		require.NoError(t, f.g.AddBranch("other"))
		a := f.commit(t, "a1", "")
		require.NoError(t, f.g.SetCurrent("other"))
		b := f.commit(t, "b1", "")

		sp, err := f.g.SplitPoint(a, b)
		require.NoError(t, err)
		assert.Equal(t, base, sp)
	})

	t.Run("after merge", func(t *testing.T) {
		f := setupTestGraph(t)
		require.NoError(t, f.g.AddBranch("other"))
		require.NoError(t, f.g.SetCurrent("other"))
		b1 := f.commit(t, "b1", "")
		require.NoError(t, f.g.SetCurrent("master"))
		f.commit(t, "a1", "")
		f.commit(t, "merge", b1)
		require.NoError(t, f.g.SetCurrent("other"))
		f.commit(t, "b2", "")

		sp, err := f.g.BranchSplitPoint("master", "other")
		require.NoError(t, err)
		assert.Equal(t, b1, sp)
	})

	t.Run("criss-cross picks the closer candidate", func(t *testing.T) {
		f := setupTestGraph(t)
		require.NoError(t, f.g.AddBranch("b"))
		a1 := f.commit(t, "a1", "")
		require.NoError(t, f.g.SetCurrent("b"))
		b1 := f.commit(t, "b1", "")
		f.commit(t, "b2", "")
		bTip := f.commit(t, "b3", a1)
		require.NoError(t, f.g.SetCurrent("master"))
		aTip := f.commit(t, "a2", b1)

		// a1 is one hop from both tips; b1 is one hop from aTip but two from bTip.
		sp, err := f.g.SplitPoint(aTip, bTip)
		require.NoError(t, err)
		assert.Equal(t, a1, sp)
	})

	t.Run("criss-cross symmetric tie", func(t *testing.T) {
		f := setupTestGraph(t)
		require.NoError(t, f.g.AddBranch("b"))
		a1 := f.commit(t, "a1", "")
		require.NoError(t, f.g.SetCurrent("b"))
		b1 := f.commit(t, "b1", "")
		bTip := f.commit(t, "b2", a1)
		require.NoError(t, f.g.SetCurrent("master"))
		aTip := f.commit(t, "a2", b1)

		want := a1
		if b1 < a1 {
			want = b1
		}
		for i := 0; i < 5; i++ {
			sp, err := f.g.SplitPoint(aTip, bTip)
			require.NoError(t, err)
			assert.Equal(t, want, sp)
			sp, err = f.g.SplitPoint(bTip, aTip)
			require.NoError(t, err)
			assert.Equal(t, want, sp)
		}
	})
}

func TestAncestorsOf(t *testing.T) {
	f := setupTestGraph(t)
	a := f.commit(t, "a", "")
	b := f.commit(t, "b", "")

	set, err := f.g.AncestorsOf(b)
	require.NoError(t, err)
	assert.Len(t, set, 3)
	assert.Contains(t, set, a)
	assert.Contains(t, set, commit.Initial().ID())

	ok, err := f.g.IsAncestor(a, b)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.g.IsAncestor(b, a)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindByPrefix(t *testing.T) {
	f := setupTestGraph(t)
	ids := []string{commit.Initial().ID()}
	for i := 0; i < 16; i++ {
		ids = append(ids, f.commit(t, fmt.Sprintf("c%d", i), ""))
	}
	// Half are indexed, half are still pending; lookups see both.
	f.flush(t)
	for i := 16; i < 20; i++ {
		ids = append(ids, f.commit(t, fmt.Sprintf("c%d", i), ""))
	}

	for _, id := range ids {
		got, err := f.g.FindByPrefix(id[:12])
		require.NoError(t, err)
		assert.Equal(t, id, got)

		c, err := f.g.Resolve(id)
		require.NoError(t, err)
		assert.Equal(t, id, c.ID())
	}

	// Twenty ids over sixteen hex digits: some first character repeats.
	byFirst := map[byte]int{}
	for _, id := range ids {
		byFirst[id[0]]++
	}
	for ch, n := range byFirst {
		if n > 1 {
			_, err := f.g.FindByPrefix(string(ch))
			assert.True(t, errors.Is(err, errors.ErrorTypeAmbiguousID))
			break
		}
	}

	for _, bad := range []string{"", "zz", safe.Digest([]byte("nope")), ids[0] + "0"} {
		_, err := f.g.FindByPrefix(bad)
		assert.True(t, errors.Is(err, errors.ErrorTypeNoSuchCommit), bad)
	}
}

func TestGet_BlobIsNotACommit(t *testing.T) {
	f := setupTestGraph(t)
	digest, err := f.store.Put([]byte("hello"))
	require.NoError(t, err)

	_, err = f.g.Get(digest)
	assert.True(t, errors.Is(err, errors.ErrorTypeNoSuchCommit))
}

func TestGet_CommitShapedBlobIsNotACommit(t *testing.T) {
	f := setupTestGraph(t)
	tip := f.commit(t, "recorded", "")
	f.flush(t)

	// Bytes that decode as a commit but were never recorded in the index.
	forged, err := commit.New("forged", f.now, []string{tip}, nil)
	require.NoError(t, err)
	data, err := forged.Encode()
	require.NoError(t, err)
	digest, err := f.store.Put(data)
	require.NoError(t, err)
	require.Equal(t, forged.ID(), digest)

	_, err = f.g.Get(digest)
	assert.True(t, errors.Is(err, errors.ErrorTypeNoSuchCommit))
	_, err = f.g.Resolve(digest)
	assert.True(t, errors.Is(err, errors.ErrorTypeNoSuchCommit))
	assert.Error(t, f.g.MoveHead(digest))
	assert.Equal(t, tip, f.g.HeadID())

	// A recorded commit still loads into a fresh arena.
	loaded, err := Load(f.store, f.index, f.g.State(), nil)
	require.NoError(t, err)
	c, err := loaded.Get(tip)
	require.NoError(t, err)
	assert.Equal(t, "recorded", c.Message())
}

func TestCommit_DuplicateIsRecordedOnce(t *testing.T) {
	f := setupTestGraph(t)
	head := f.g.HeadID()

	area := stage.New()
	digest, err := f.store.Put([]byte("same"))
	require.NoError(t, err)

	area.Stage("f.txt", digest, "")
	first, err := f.g.Commit("same", f.now, area, "")
	require.NoError(t, err)
	f.flush(t)

	require.NoError(t, f.g.MoveHead(head))
	area.Stage("f.txt", digest, "")
	second, err := f.g.Commit("same", f.now, area, "")
	require.NoError(t, err)

	assert.Equal(t, first.ID(), second.ID())
	assert.Empty(t, f.g.Pending())
	f.flush(t)

	all, err := f.g.GlobalLog()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBranches(t *testing.T) {
	f := setupTestGraph(t)
	f.commit(t, "a", "")

	require.NoError(t, f.g.AddBranch("feature"))
	assert.True(t, errors.Is(f.g.AddBranch("feature"), errors.ErrorTypeBranchExists))
	assert.True(t, errors.Is(f.g.AddBranch("bad name"), errors.ErrorTypeInvalidArgument))
	tip, ok := f.g.Tip("feature")
	require.True(t, ok)
	assert.Equal(t, f.g.HeadID(), tip)

	node, err := f.g.Node(tip)
	require.NoError(t, err)
	assert.Equal(t, []string{"feature", "master"}, node.Branches)

	require.NoError(t, f.g.SetCurrent("feature"))
	gone := f.commit(t, "only on feature", "")
	require.NoError(t, f.g.SetCurrent("master"))

	assert.True(t, errors.Is(f.g.RemoveBranch("master"), errors.ErrorTypeCannotRemoveCurrent))
	assert.True(t, errors.Is(f.g.RemoveBranch("nope"), errors.ErrorTypeNoSuchBranch))
	require.NoError(t, f.g.RemoveBranch("feature"))
	assert.Equal(t, []string{"master"}, f.g.Branches())

	// The commit outlives its branch.
	all, err := f.g.GlobalLog()
	require.NoError(t, err)
	var found bool
	for _, c := range all {
		found = found || c.ID() == gone
	}
	assert.True(t, found)
}

func TestPersistAndLoad(t *testing.T) {
	f := setupTestGraph(t)
	f.commit(t, "same", "")
	require.NoError(t, f.g.AddBranch("other"))
	f.commit(t, "unique", "")
	require.NoError(t, f.g.SetCurrent("other"))
	f.commit(t, "same", "")
	f.flush(t)

	state := f.g.State()
	loaded, err := Load(f.store, f.index, state, nil)
	require.NoError(t, err)
	assert.Equal(t, "other", loaded.CurrentBranch())
	assert.Equal(t, f.g.HeadID(), loaded.HeadID())

	all, err := loaded.GlobalLog()
	require.NoError(t, err)
	var messages []string
	for _, c := range all {
		messages = append(messages, c.Message())
	}
	assert.Equal(t, []string{commit.InitialMessage, "same", "unique", "same"}, messages)

	ids, err := loaded.FindByMessage("same")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	_, err = loaded.FindByMessage("absent")
	assert.True(t, errors.Is(err, errors.ErrorTypeNotFound))

	_, err = Load(f.store, f.index, State{Current: "ghost", Branches: state.Branches}, nil)
	assert.True(t, errors.Is(err, errors.ErrorTypeInternal))
}
