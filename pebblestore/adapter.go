// Package pebblestore wraps Pebble (CockroachDB's LSM storage engine)
// behind the common Store interface so it can be benchmarked alongside
// the copy-on-write B+Tree.
package pebblestore

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/notjustinshaw/btree/common"
)

type Store struct {
	db *pebble.DB

	numKeys    atomic.Int64
	writeCount atomic.Int64
	readCount  atomic.Int64
}

// Open opens (or creates) a Pebble database at the given directory.
func Open(dir string) (*Store, error) {
	opts := &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("pebblestore: open: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert implements common.Store
func (s *Store) Insert(key, value []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	_, closer, err := s.db.Get(key)
	if err == nil {
		closer.Close()
	} else if err == pebble.ErrNotFound {
		s.numKeys.Add(1)
	} else {
		return fmt.Errorf("pebblestore: insert: %w", err)
	}
	s.writeCount.Add(1)
	return s.db.Set(key, value, pebble.NoSync)
}

// Search implements common.Store
func (s *Store) Search(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, common.ErrKeyEmpty
	}
	s.readCount.Add(1)
	val, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, common.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pebblestore: search: %w", err)
	}
	// val is only valid until closer.Close(), so copy it out.
	result := make([]byte, len(val))
	copy(result, val)
	closer.Close()
	return result, nil
}

// Delete implements common.Store
func (s *Store) Delete(key []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	_, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return common.ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("pebblestore: delete: %w", err)
	}
	closer.Close()
	s.writeCount.Add(1)
	s.numKeys.Add(-1)
	return s.db.Delete(key, pebble.NoSync)
}

// Sync implements common.Store
func (s *Store) Sync() error {
	return s.db.Flush()
}

// Stats implements common.Store
func (s *Store) Stats() common.Stats {
	m := s.db.Metrics()
	return common.Stats{
		NumKeys:       s.numKeys.Load(),
		TotalDiskSize: int64(m.DiskSpaceUsage()),
		WriteCount:    s.writeCount.Load(),
		ReadCount:     s.readCount.Load(),
	}
}

// Close implements common.Store
func (s *Store) Close() error {
	return s.db.Close()
}
