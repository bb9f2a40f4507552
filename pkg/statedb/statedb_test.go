package statedb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap/zaptest"
)

func setupTestStore(t *testing.T) *Store {
	s, err := OpenMemory(Options{CacheSize: 16, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTxnReadYourWrites(t *testing.T) {
	s := setupTestStore(t)

	tx := s.Begin()
	tx.Put([]byte("k/1"), []byte("one"))

	v, err := tx.Get([]byte("k/1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), v)

	_, err = s.Get([]byte("k/1"))
	assert.ErrorIs(t, err, ErrNotFound, "uncommitted write must not be visible")

	require.NoError(t, tx.Commit())

	v, err = s.Get([]byte("k/1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), v)
}

func TestTxnRollbackDiscards(t *testing.T) {
	s := setupTestStore(t)

	seed := s.Begin()
	seed.Put([]byte("k/1"), []byte("one"))
	require.NoError(t, seed.Commit())

	tx := s.Begin()
	tx.Put([]byte("k/1"), []byte("changed"))
	tx.Put([]byte("k/2"), []byte("two"))
	tx.Rollback()

	v, err := s.Get([]byte("k/1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), v)

	ok, err := s.Has([]byte("k/2"))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, tx.Commit(), ErrTxnClosed)
}

func TestTxnDelete(t *testing.T) {
	s := setupTestStore(t)

	seed := s.Begin()
	seed.Put([]byte("k/1"), []byte("one"))
	require.NoError(t, seed.Commit())

	// warm the cache so the delete has to invalidate it
	_, err := s.Get([]byte("k/1"))
	require.NoError(t, err)

	tx := s.Begin()
	tx.Delete([]byte("k/1"))
	_, err = tx.Get([]byte("k/1"))
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, tx.Commit())

	_, err = s.Get([]byte("k/1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIterateMergesStagedWrites(t *testing.T) {
	s := setupTestStore(t)

	seed := s.Begin()
	seed.Put([]byte("n/1"), []byte("a"))
	seed.Put([]byte("n/3"), []byte("c"))
	seed.Put([]byte("x/1"), []byte("other"))
	require.NoError(t, seed.Commit())

	tx := s.Begin()
	tx.Put([]byte("n/2"), []byte("b"))
	tx.Delete([]byte("n/3"))

	var keys []string
	err := tx.Iterate([]byte("n/"), func(k, v []byte) error {
		keys = append(keys, string(k)+"="+string(v))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"n/1=a", "n/2=b"}, keys)

	keys = keys[:0]
	err = s.Iterate([]byte("n/"), func(k, v []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"n/1", "n/3"}, keys)
}

func TestIterateRange(t *testing.T) {
	s := setupTestStore(t)

	seed := s.Begin()
	for _, k := range []string{"n/1", "n/2", "n/4", "x/1"} {
		seed.Put([]byte(k), []byte("v"))
	}
	require.NoError(t, seed.Commit())

	tx := s.Begin()
	tx.Put([]byte("n/3"), []byte("v"))
	tx.Put([]byte("n/0"), []byte("v"))
	tx.Delete([]byte("n/4"))

	r := &util.Range{Start: []byte("n/2"), Limit: util.BytesPrefix([]byte("n/")).Limit}
	var keys []string
	collect := func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	}
	require.NoError(t, tx.IterateRange(r, collect))
	assert.Equal(t, []string{"n/2", "n/3"}, keys)

	keys = keys[:0]
	require.NoError(t, s.IterateRange(r, collect))
	assert.Equal(t, []string{"n/2", "n/4"}, keys)
}

func TestCacheStats(t *testing.T) {
	s := setupTestStore(t)

	tx := s.Begin()
	tx.Put([]byte("k"), []byte("v"))
	require.NoError(t, tx.Commit())

	_, err := s.Get([]byte("k"))
	require.NoError(t, err)
	_, err = s.Get([]byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	hits, misses := s.CacheStats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestOpenOnDiskPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	s, err := Open(dir, Options{SyncWrites: true})
	require.NoError(t, err)
	tx := s.Begin()
	tx.Put([]byte("g/state"), []byte{7})
	require.NoError(t, tx.Commit())
	require.NoError(t, s.Close())

	s, err = Open(dir, Options{})
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get([]byte("g/state"))
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, v)
}
