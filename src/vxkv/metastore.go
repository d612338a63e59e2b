// Package vxkv declares the MetaStore and Store collaborators this
// subsystem consumes for persisted log-id bookkeeping and for the raw
// key/value range it scans during a full rebuild, with a bbolt-backed
// default implementation of both.
package vxkv

// MetaStore persists the two log-id bookkeeping keys per index id that
// BuildVectorIndex seeds a freshly constructed index from, independent
// of any snapshot directory's own meta file.
type MetaStore interface {
	LoadApplyLogID(indexID uint64) (uint64, error)
	SaveApplyLogID(indexID, logID uint64) error
	LoadSnapshotLogID(indexID uint64) (uint64, error)
	SaveSnapshotLogID(indexID, logID uint64) error
}

// KV is one row observed while scanning an index's key range.
type KV struct {
	Key   []byte
	Value []byte
}

// Store exposes the raw-engine range scan BuildVectorIndex performs
// over [start, end).
type Store interface {
	Scan(start, end []byte, fn func(KV) error) error
}
