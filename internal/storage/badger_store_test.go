package storage

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func (r *record) GetID() string { return r.ID }

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBadgerStore_CreateGet(t *testing.T) {
	store := NewBadgerStore(setupTestDB(t), "rec")

	require.NoError(t, store.Create(&record{ID: "a", Value: 1}))
	assert.ErrorIs(t, store.Create(&record{ID: "a", Value: 2}), ErrExists)
	assert.Error(t, store.Create(&record{}), "empty ID must fail")

	var got record
	require.NoError(t, store.Get("a", &got))
	assert.Equal(t, 1, got.Value)

	err := store.Get("missing", &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_PutOverwrites(t *testing.T) {
	store := NewBadgerStore(setupTestDB(t), "rec")

	require.NoError(t, store.Put(&record{ID: "a", Value: 1}))
	require.NoError(t, store.Put(&record{ID: "a", Value: 5}))

	var got record
	require.NoError(t, store.Get("a", &got))
	assert.Equal(t, 5, got.Value)
}

func TestBadgerStore_PutTxnGroupsWrites(t *testing.T) {
	db := setupTestDB(t)
	left := NewBadgerStore(db, "left")
	right := NewBadgerStore(db, "right")

	err := db.Update(func(txn *badger.Txn) error {
		if err := left.PutTxn(txn, &record{ID: "x", Value: 1}); err != nil {
			return err
		}
		return right.PutTxn(txn, &record{ID: "x", Value: 2})
	})
	require.NoError(t, err)

	var l, r record
	require.NoError(t, left.Get("x", &l))
	require.NoError(t, right.Get("x", &r))
	assert.Equal(t, 1, l.Value)
	assert.Equal(t, 2, r.Value)
}

func TestBadgerStore_CreateTxnRejectsDuplicates(t *testing.T) {
	db := setupTestDB(t)
	store := NewBadgerStore(db, "rec")
	require.NoError(t, store.Put(&record{ID: "a", Value: 1}))

	err := db.Update(func(txn *badger.Txn) error {
		if err := store.CreateTxn(txn, &record{ID: "b", Value: 2}); err != nil {
			return err
		}
		return store.CreateTxn(txn, &record{ID: "a", Value: 3})
	})
	assert.ErrorIs(t, err, ErrExists)

	// The failed transaction wrote nothing.
	var got record
	assert.ErrorIs(t, store.Get("b", &got), ErrNotFound)
	require.NoError(t, store.Get("a", &got))
	assert.Equal(t, 1, got.Value)
}

func TestBadgerStore_IDsAndList(t *testing.T) {
	db := setupTestDB(t)
	store := NewBadgerStore(db, "rec")
	other := NewBadgerStore(db, "recx")

	for i, id := range []string{"abc1", "abd2", "bcd3"} {
		require.NoError(t, store.Put(&record{ID: id, Value: i}))
	}
	require.NoError(t, other.Put(&record{ID: "abc9"}))

	ids, err := store.IDs("ab")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc1", "abd2"}, ids)

	all, err := store.IDs("")
	require.NoError(t, err)
	assert.Len(t, all, 3, "prefix scan must not leak into other stores")

	var records []record
	require.NoError(t, store.List(&records))
	assert.Len(t, records, 3)
}
