package statedb

import (
	"bytes"
	"errors"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var ErrTxnClosed = errors.New("statedb: transaction already finished")

type stagedWrite struct {
	value   []byte
	deleted bool
}

// Txn stages writes against a Store. Reads see the transaction's own writes
// first. Nothing reaches disk until Commit; Rollback drops everything.
//
// A Txn is not safe for concurrent use. Callers serialise transactions
// themselves.
type Txn struct {
	store  *Store
	batch  *leveldb.Batch
	staged map[string]stagedWrite
	done   bool
}

func (tx *Txn) Get(key []byte) ([]byte, error) {
	if w, ok := tx.staged[string(key)]; ok {
		if w.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), w.value...), nil
	}
	return tx.store.Get(key)
}

func (tx *Txn) Has(key []byte) (bool, error) {
	if w, ok := tx.staged[string(key)]; ok {
		return !w.deleted, nil
	}
	return tx.store.Has(key)
}

// Iterate merges committed entries with staged writes under prefix.
func (tx *Txn) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	return tx.IterateRange(util.BytesPrefix(prefix), fn)
}

func (tx *Txn) IterateRange(r *util.Range, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	err := tx.store.IterateRange(r, func(k, v []byte) error {
		merged[string(k)] = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return err
	}
	for k, w := range tx.staged {
		if !inRange([]byte(k), r) {
			continue
		}
		if w.deleted {
			delete(merged, k)
		} else {
			merged[k] = w.value
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), merged[k]); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Txn) Put(key, value []byte) {
	v := append([]byte(nil), value...)
	tx.batch.Put(key, v)
	tx.staged[string(key)] = stagedWrite{value: v}
}

func (tx *Txn) Delete(key []byte) {
	tx.batch.Delete(key)
	tx.staged[string(key)] = stagedWrite{deleted: true}
}

// Len is the number of staged operations.
func (tx *Txn) Len() int {
	return tx.batch.Len()
}

// Commit writes the batch atomically and refreshes the read cache. A failed
// commit leaves the store untouched and the transaction finished.
func (tx *Txn) Commit() error {
	if tx.done {
		return ErrTxnClosed
	}
	tx.done = true

	if tx.batch.Len() == 0 {
		return nil
	}
	if err := tx.store.write(tx.batch); err != nil {
		return err
	}
	for k, w := range tx.staged {
		if w.deleted {
			tx.store.cache.Remove(k)
		} else {
			tx.store.cache.Add(k, w.value)
		}
	}
	return nil
}

func (tx *Txn) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	tx.batch.Reset()
	tx.staged = nil
}

func inRange(k []byte, r *util.Range) bool {
	if r == nil {
		return true
	}
	if r.Start != nil && bytes.Compare(k, r.Start) < 0 {
		return false
	}
	return r.Limit == nil || bytes.Compare(k, r.Limit) < 0
}
