package vxwriter

import (
	"testing"

	"github.com/danmuck/vectorkeep/src/vxerr"
	"github.com/danmuck/vectorkeep/src/vxindex"
	"github.com/danmuck/vectorkeep/src/vxindex/memindex"
	"github.com/danmuck/vectorkeep/src/vxsnap"
	"github.com/danmuck/vectorkeep/src/wal"
)

func newTestIndex(t *testing.T, applyLogIndex uint64) vxindex.Index {
	t.Helper()
	idx := memindex.New(memindex.DefaultConfig())(1, 2)
	if err := idx.Upsert([]vxindex.Vector{{ID: 1, Values: []float64{1, 1}}}); err != nil {
		t.Fatal(err)
	}
	idx.SetApplyLogIndex(applyLogIndex)
	return idx
}

func TestRunAdmitsSnapshotAndSetsSnapshotLogIndex(t *testing.T) {
	registry := vxsnap.NewRegistry(t.TempDir())
	log := wal.NewMemLog()
	w := New(registry, log)
	idx := newTestIndex(t, 7)

	logID, err := w.Run(1, idx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if logID != 7 {
		t.Errorf("got logID %d, want 7", logID)
	}
	if idx.SnapshotLogIndex() != 7 {
		t.Errorf("SnapshotLogIndex = %d, want 7", idx.SnapshotLogIndex())
	}
	if !registry.IsExist(1, 7) {
		t.Error("expected the registry to carry the new snapshot")
	}
	if got := log.TruncateLogIndex(1); got != 7 {
		t.Errorf("TruncateLogIndex = %d, want 7", got)
	}
}

func TestRunIsNoopWhenSnapshotAlreadyCurrent(t *testing.T) {
	registry := vxsnap.NewRegistry(t.TempDir())
	w := New(registry, nil)
	idx := newTestIndex(t, 3)

	if _, err := w.Run(1, idx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before := registry.GetAll(1)
	beforeCount := len(before)
	releaseAll(before)

	logID, err := w.Run(1, idx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if logID != 3 {
		t.Errorf("got logID %d, want 3", logID)
	}
	after := registry.GetAll(1)
	defer releaseAll(after)
	if len(after) != beforeCount {
		t.Errorf("expected no new snapshot to be admitted, got %d entries", len(after))
	}
}

func TestRunRotatesStaleSnapshots(t *testing.T) {
	registry := vxsnap.NewRegistry(t.TempDir())
	w := New(registry, nil)

	idx := newTestIndex(t, 1)
	if _, err := w.Run(1, idx); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	idx.SetApplyLogIndex(2)
	if _, err := w.Run(1, idx); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	all := registry.GetAll(1)
	defer releaseAll(all)
	if len(all) != 1 {
		t.Fatalf("expected exactly 1 surviving snapshot, got %d", len(all))
	}
	if all[0].LogID() != 2 {
		t.Errorf("surviving snapshot has LogID %d, want 2", all[0].LogID())
	}
}

func TestRunRejectsConcurrentAttempt(t *testing.T) {
	registry := vxsnap.NewRegistry(t.TempDir())
	w := New(registry, nil)
	idx := newTestIndex(t, 1)
	idx.SetSnapshotDoing(true)

	if _, err := w.Run(1, idx); err == nil {
		t.Error("expected Run to reject a concurrent snapshot attempt")
	}
}

// notSupportedSaveIndex wraps a real Index but reports Save as
// unsupported, the way an index kind with nothing to persist would.
type notSupportedSaveIndex struct {
	vxindex.Index
}

func (n *notSupportedSaveIndex) Save(path string, copied chan<- struct{}) error {
	if copied != nil {
		close(copied)
	}
	return vxerr.New(vxerr.NotSupported, "save not supported")
}

func TestRunAdmitsLogOnlySnapshotWhenSaveNotSupported(t *testing.T) {
	registry := vxsnap.NewRegistry(t.TempDir())
	w := New(registry, nil)
	idx := &notSupportedSaveIndex{Index: newTestIndex(t, 5)}

	logID, err := w.Run(1, idx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if logID != 5 {
		t.Errorf("got logID %d, want 5", logID)
	}
	if !registry.IsExist(1, 5) {
		t.Error("expected a log-only snapshot to be admitted despite NotSupported")
	}
}

func releaseAll(metas []*vxsnap.Meta) {
	for _, m := range metas {
		m.Release()
	}
}
