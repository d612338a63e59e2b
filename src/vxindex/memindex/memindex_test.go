package memindex

import (
	"path/filepath"
	"testing"

	"github.com/danmuck/vectorkeep/src/vxindex"
)

func newTestIndex(t *testing.T, dim int) *Index {
	t.Helper()
	factory := New(DefaultConfig())
	idx := factory(1, dim).(*Index)
	return idx
}

// saveIndex mirrors the writer package's lock/copy/unlock handoff: hold
// the write lock until Save signals its copy has been taken, then
// release it and wait for the (now unlocked) disk write to finish.
func saveIndex(t *testing.T, idx *Index, path string) error {
	t.Helper()
	idx.LockWrite()
	copied := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- idx.Save(path, copied) }()
	<-copied
	idx.UnlockWrite()
	return <-errCh
}

func TestUpsertAndSearchFindsNearest(t *testing.T) {
	idx := newTestIndex(t, 2)

	err := idx.Upsert([]vxindex.Vector{
		{ID: 1, Values: []float64{0, 0}},
		{ID: 2, Values: []float64{10, 10}},
		{ID: 3, Values: []float64{1, 1}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got := idx.Search([]float64{0, 0}, 1)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("Search nearest to origin = %v, want [1]", got)
	}
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	idx := newTestIndex(t, 3)
	err := idx.Upsert([]vxindex.Vector{{ID: 1, Values: []float64{1, 2}}})
	if err == nil {
		t.Error("expected a dimension mismatch error")
	}
}

func TestDeleteRemovesVector(t *testing.T) {
	idx := newTestIndex(t, 2)
	if err := idx.Upsert([]vxindex.Vector{{ID: 1, Values: []float64{1, 1}}}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete([]uint64{1}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := idx.Search([]float64{1, 1}, 5); len(got) != 0 {
		t.Errorf("expected empty result after delete, got %v", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := newTestIndex(t, 2)
	if err := idx.Upsert([]vxindex.Vector{
		{ID: 1, Values: []float64{1, 2}},
		{ID: 2, Values: []float64{3, 4}},
	}); err != nil {
		t.Fatal(err)
	}
	idx.SetApplyLogIndex(10)
	idx.SetSnapshotLogIndex(5)

	path := filepath.Join(t.TempDir(), "snapshot.idx")
	if err := saveIndex(t, idx, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	factory := New(DefaultConfig())
	reloaded := factory(1, 2).(*Index)
	if err := reloaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if reloaded.ApplyLogIndex() != 10 {
		t.Errorf("ApplyLogIndex = %d, want 10", reloaded.ApplyLogIndex())
	}
	if reloaded.SnapshotLogIndex() != 5 {
		t.Errorf("SnapshotLogIndex = %d, want 5", reloaded.SnapshotLogIndex())
	}
	got := reloaded.Search([]float64{1, 2}, 1)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("Search after reload = %v, want [1]", got)
	}
}

func TestSaveDoesNotBlockConcurrentReaders(t *testing.T) {
	idx := newTestIndex(t, 2)
	if err := idx.Upsert([]vxindex.Vector{{ID: 1, Values: []float64{1, 1}}}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "snapshot.idx")
	idx.LockWrite()
	copied := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- idx.Save(path, copied) }()
	<-copied
	idx.UnlockWrite()

	// Save's disk I/O runs unlocked once copied fires, so a concurrent
	// Search started right after UnlockWrite should never block on it.
	idx.Search([]float64{1, 1}, 1)

	if err := <-done; err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestNeedSaveAndNeedRebuildThresholds(t *testing.T) {
	idx := newTestIndex(t, 2)
	if idx.NeedSave(0) {
		t.Error("NeedSave(0) should be false")
	}
	if !idx.NeedSave(DefaultConfig().SaveLagThreshold + 1) {
		t.Error("NeedSave should be true once lag exceeds the threshold")
	}
	if idx.NeedRebuild(DefaultConfig().SaveLagThreshold + 1) {
		t.Error("NeedRebuild should stay false below its own, larger threshold")
	}
	if !idx.NeedRebuild(DefaultConfig().RebuildLagThreshold + 1) {
		t.Error("NeedRebuild should be true once lag exceeds the rebuild threshold")
	}
}

func TestVersionIncrementsOnMutation(t *testing.T) {
	idx := newTestIndex(t, 2)
	start := idx.Version()
	if err := idx.Upsert([]vxindex.Vector{{ID: 1, Values: []float64{1, 1}}}); err != nil {
		t.Fatal(err)
	}
	if idx.Version() == start {
		t.Error("expected Version to change after Upsert")
	}
}
