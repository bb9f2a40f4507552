// Package statedb is the leveldb-backed key/value store behind the network
// state. All mutations go through a Txn that stages writes in a leveldb batch
// and lands them with a single Write.
package statedb

import (
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("statedb: not found")

const DefaultCacheSize = 4096

// Reader is the read side shared by Store and Txn.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Iterate(prefix []byte, fn func(key, value []byte) error) error
	IterateRange(r *util.Range, fn func(key, value []byte) error) error
}

// Writer is a Reader that can stage mutations. *Txn implements it.
type Writer interface {
	Reader
	Put(key, value []byte)
	Delete(key []byte)
}

type Options struct {
	CacheSize  int
	SyncWrites bool
	Logger     *zap.Logger
}

type Store struct {
	db     *leveldb.DB
	cache  *lru.Cache
	wopts  *opt.WriteOptions
	logger *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Open opens (or creates) a store on disk.
func Open(path string, o Options) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open state db at %s: %w", path, err)
	}
	return newStore(db, o)
}

// OpenMemory opens a store backed by leveldb's in-memory storage.
func OpenMemory(o Options) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory state db: %w", err)
	}
	return newStore(db, o)
}

func newStore(db *leveldb.DB, o Options) (*Store, error) {
	size := o.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		cache:  cache,
		wopts:  &opt.WriteOptions{Sync: o.SyncWrites},
		logger: logger.Named("statedb"),
	}, nil
}

func (s *Store) Close() error {
	s.cache.Purge()
	return s.db.Close()
}

func (s *Store) Get(key []byte) ([]byte, error) {
	if v, ok := s.cache.Get(string(key)); ok {
		s.hits.Add(1)
		return append([]byte(nil), v.([]byte)...), nil
	}
	s.misses.Add(1)
	v, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.cache.Add(string(key), append([]byte(nil), v...))
	return v, nil
}

func (s *Store) Has(key []byte) (bool, error) {
	if s.cache.Contains(string(key)) {
		return true, nil
	}
	return s.db.Has(key, nil)
}

// Iterate calls fn for every committed key under prefix in key order. The
// slices passed to fn are only valid for the duration of the call.
func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	return s.IterateRange(util.BytesPrefix(prefix), fn)
}

// IterateRange is Iterate over the keys in [r.Start, r.Limit). A nil bound
// is open.
func (s *Store) IterateRange(r *util.Range, fn func(key, value []byte) error) error {
	iter := s.db.NewIterator(r, nil)
	defer iter.Release()

	for iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// CacheStats returns the read cache hit and miss counters.
func (s *Store) CacheStats() (hits, misses uint64) {
	return s.hits.Load(), s.misses.Load()
}

func (s *Store) Begin() *Txn {
	return &Txn{
		store:  s,
		batch:  new(leveldb.Batch),
		staged: make(map[string]stagedWrite),
	}
}

func (s *Store) write(batch *leveldb.Batch) error {
	if err := s.db.Write(batch, s.wopts); err != nil {
		s.logger.Error("batch write failed", zap.Int("ops", batch.Len()), zap.Error(err))
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}
