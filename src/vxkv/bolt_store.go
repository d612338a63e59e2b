package vxkv

import (
	"fmt"
	"strconv"

	bolt "go.etcd.io/bbolt"
)

var (
	metaBucket = []byte("vector_meta")
	dataBucket = []byte("vector_data")
)

// BoltStore is the default MetaStore+Store implementation, backed by a
// single embedded bbolt database file. bbolt's cursor Seek/Next is the
// direct match for the [start, end) range-iterator contract Store
// requires.
type BoltStore struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt database at path and ensures
// its buckets exist.
func Open(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("vxkv: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(metaBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(dataBucket); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("vxkv: init buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func applyLogKey(indexID uint64) []byte {
	return []byte("vector_apply_log_id_" + strconv.FormatUint(indexID, 10))
}

func snapshotLogKey(indexID uint64) []byte {
	return []byte("vector_snapshot_log_id_" + strconv.FormatUint(indexID, 10))
}

// loadUint64 reads a decimal-encoded key, treating an absent or empty
// value as 0 rather than an error — an unset watermark simply means
// "nothing applied or snapshotted yet."
func (s *BoltStore) loadUint64(key []byte) (uint64, error) {
	var val uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket).Get(key)
		if len(b) == 0 {
			return nil
		}
		v, err := strconv.ParseUint(string(b), 10, 64)
		if err != nil {
			return fmt.Errorf("vxkv: malformed value for %s: %w", key, err)
		}
		val = v
		return nil
	})
	return val, err
}

func (s *BoltStore) saveUint64(key []byte, val uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(key, []byte(strconv.FormatUint(val, 10)))
	})
}

func (s *BoltStore) LoadApplyLogID(indexID uint64) (uint64, error) {
	return s.loadUint64(applyLogKey(indexID))
}

func (s *BoltStore) SaveApplyLogID(indexID, logID uint64) error {
	return s.saveUint64(applyLogKey(indexID), logID)
}

func (s *BoltStore) LoadSnapshotLogID(indexID uint64) (uint64, error) {
	return s.loadUint64(snapshotLogKey(indexID))
}

func (s *BoltStore) SaveSnapshotLogID(indexID, logID uint64) error {
	return s.saveUint64(snapshotLogKey(indexID), logID)
}

// Put stores one raw row in the data bucket — used by tests and by
// any ingestion path feeding the KV store directly.
func (s *BoltStore) Put(key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dataBucket).Put(key, value)
	})
}

// Scan iterates [start, end) over the data bucket in key order,
// invoking fn for each row. An end of nil scans to the last key.
func (s *BoltStore) Scan(start, end []byte, fn func(KV) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			if end != nil && string(k) >= string(end) {
				break
			}
			// Both slices are copied out of the transaction, so fn may
			// retain them past this call.
			row := KV{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)}
			if err := fn(row); err != nil {
				return err
			}
		}
		return nil
	})
}
