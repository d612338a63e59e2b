package vxscrub

import (
	"path/filepath"
	"testing"

	"github.com/danmuck/vectorkeep/src/vxindex"
	"github.com/danmuck/vectorkeep/src/vxindex/memindex"
	"github.com/danmuck/vectorkeep/src/vxkv"
	"github.com/danmuck/vectorkeep/src/vxmaterializer"
	"github.com/danmuck/vectorkeep/src/vxsnap"
	"github.com/danmuck/vectorkeep/src/vxwriter"
	"github.com/danmuck/vectorkeep/src/wal"
)

func newTestScrubber(t *testing.T) (*Scrubber, *vxmaterializer.Manager, *vxsnap.Registry) {
	t.Helper()

	kv, err := vxkv.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	registry := vxsnap.NewRegistry(t.TempDir())
	log := wal.NewMemLog()
	factory := memindex.New(memindex.DefaultConfig())
	manager := vxmaterializer.NewManager()
	mat := vxmaterializer.New(vxmaterializer.DefaultConfig(), registry, kv, kv, log, factory, manager, func() bool { return true })
	writer := vxwriter.New(registry, log)

	region := vxmaterializer.Region{IndexID: 1, Dim: 2}
	cfg := Config{Interval: 0, Concurrency: 2}
	s := New(cfg, registry, manager, writer, mat, []vxmaterializer.Region{region})
	return s, manager, registry
}

func TestScrubOneSkipsNonNormalIndex(t *testing.T) {
	s, manager, _ := newTestScrubber(t)
	idx := memindex.New(memindex.DefaultConfig())(1, 2)
	idx.SetStatus(vxindex.Building)
	if err := manager.Publish(1, idx, false, false); err != nil {
		t.Fatal(err)
	}

	s.Sweep()

	if idx.SnapshotLogIndex() != 0 {
		t.Error("expected a non-Normal index to be left untouched by the sweep")
	}
}

func TestScrubOneSavesWhenLagExceedsSaveThreshold(t *testing.T) {
	s, manager, registry := newTestScrubber(t)
	idx := memindex.New(memindex.DefaultConfig())(1, 2)
	idx.SetStatus(vxindex.Normal)
	idx.SetApplyLogIndex(memindex.DefaultConfig().SaveLagThreshold + 1)
	if err := manager.Publish(1, idx, false, false); err != nil {
		t.Fatal(err)
	}

	s.Sweep()

	if !registry.IsExist(1, idx.ApplyLogIndex()) {
		t.Error("expected the sweep to admit a new snapshot once the save threshold was exceeded")
	}
}

func TestScrubOneLeavesIndexUntouchedBelowThresholds(t *testing.T) {
	s, manager, registry := newTestScrubber(t)
	idx := memindex.New(memindex.DefaultConfig())(1, 2)
	idx.SetStatus(vxindex.Normal)
	idx.SetApplyLogIndex(1)
	if err := manager.Publish(1, idx, false, false); err != nil {
		t.Fatal(err)
	}

	s.Sweep()

	all := registry.GetAll(1)
	for _, m := range all {
		m.Release()
	}
	if len(all) != 0 {
		t.Error("expected no snapshot to be admitted below either threshold")
	}
}
