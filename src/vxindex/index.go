// Package vxindex declares the Index collaborator contract this
// subsystem consumes but does not implement for production use — real
// ANN engines (HNSW, IVF, flat) live outside this repository. The
// memindex subpackage provides a default brute-force implementation
// used by tests and by any caller that has not wired a real engine.
package vxindex

// Status is the lifecycle state of one live index instance.
type Status int

const (
	None Status = iota
	Normal
	Building
	Rebuilding
	Loading
	Snapshotting
	Replaying
	Error
	Delete
)

func (s Status) String() string {
	switch s {
	case None:
		return "none"
	case Normal:
		return "normal"
	case Building:
		return "building"
	case Rebuilding:
		return "rebuilding"
	case Loading:
		return "loading"
	case Snapshotting:
		return "snapshotting"
	case Replaying:
		return "replaying"
	case Error:
		return "error"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Vector is one entry a caller upserts into an Index.
type Vector struct {
	ID     uint64
	Values []float64
}

// Index is the external collaborator every component in this
// repository reads and writes through. Save/Load persist and restore
// an opaque on-disk representation; the rest of the interface tracks
// the bookkeeping the snapshot/rebuild/scrub protocols depend on.
type Index interface {
	// Save serializes a point-in-time view of the index to path. The
	// caller must hold the write lock (LockWrite) before calling Save
	// and must not release it until Save signals copied — Save takes
	// its bounded internal copy synchronously under that lock and, if
	// copied is non-nil, closes it the instant the copy has been taken.
	// Everything after that (encode, disk write) runs without the lock
	// held, so a caller waiting on copied can UnlockWrite immediately
	// and let concurrent writers proceed while the slow part happens in
	// the background. See the writer package for the handoff this
	// replaces a fork()-based capture with.
	//
	// An index kind that has nothing to persist (e.g. one backed
	// entirely by the KV store it can always rebuild from) may return
	// an error carrying vxerr.NotSupported instead of writing path; the
	// writer treats that as a successful no-op admission rather than a
	// failure.
	Save(path string, copied chan<- struct{}) error
	Load(path string) error

	Upsert(batch []Vector) error
	Delete(ids []uint64) error

	ApplyLogIndex() uint64
	SetApplyLogIndex(uint64)
	SnapshotLogIndex() uint64
	SetSnapshotLogIndex(uint64)

	LockWrite()
	UnlockWrite()

	SnapshotDoing() bool
	SetSnapshotDoing(bool)

	Status() Status
	SetStatus(Status)

	// NeedSave/NeedRebuild are index-supplied heuristics consulted by
	// the scrubber; lag is applyLogIndex - lastSnapshotLogID.
	NeedSave(lag uint64) bool
	NeedRebuild(lag uint64) bool

	Version() uint64
}

// Factory constructs a fresh, empty Index for a given index id and
// dimensionality — the seam IndexMaterializer uses to build or rebuild
// without depending on a concrete engine.
type Factory func(indexID uint64, dim int) Index
