package vxmaterializer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/danmuck/vectorkeep/src/vxerr"
	"github.com/danmuck/vectorkeep/src/vxindex"
	"github.com/danmuck/vectorkeep/src/vxkv"
	"github.com/danmuck/vectorkeep/src/vxsnap"
	"github.com/danmuck/vectorkeep/src/vxwriter"
	"github.com/danmuck/vectorkeep/src/wal"
	logs "github.com/danmuck/smplog"
	"github.com/sourcegraph/conc/pool"
)

// Config bounds materializer batching and concurrency.
type Config struct {
	BuildBatchSize           int
	LoadOrBuildConcurrency   int
	EnableFollowerHoldIndex  bool
}

func DefaultConfig() Config {
	return Config{
		BuildBatchSize:          10000,
		LoadOrBuildConcurrency:  4,
		EnableFollowerHoldIndex: true,
	}
}

// Materializer wires the snapshot registry, the KV store, the WAL, and
// an index factory together to load, build, and rebuild indexes.
type Materializer struct {
	cfg      Config
	registry *vxsnap.Registry
	kv       vxkv.Store
	meta     vxkv.MetaStore
	log      wal.Log
	factory  vxindex.Factory
	writer   *vxwriter.Writer
	manager  *Manager
	isLeader func() bool
}

func New(cfg Config, registry *vxsnap.Registry, kv vxkv.Store, meta vxkv.MetaStore, log wal.Log, factory vxindex.Factory, manager *Manager, isLeader func() bool) *Materializer {
	return &Materializer{
		cfg:      cfg,
		registry: registry,
		kv:       kv,
		meta:     meta,
		log:      log,
		factory:  factory,
		writer:   vxwriter.New(registry, log),
		manager:  manager,
		isLeader: isLeader,
	}
}

// LoadOrBuild tries a snapshot load plus WAL-tail replay; any failure
// along that path (missing snapshot, missing data file, load error)
// falls through to a full Build rather than failing outright.
func (m *Materializer) LoadOrBuild(r Region) (vxindex.Index, error) {
	if idx, err := m.tryLoad(r); err == nil {
		m.manager.Publish(r.IndexID, idx, false, false)
		return idx, nil
	} else {
		logs.Infof("vxmaterializer: index %d: load failed (%v), falling back to build", r.IndexID, err)
	}

	idx, err := m.Build(r)
	if err != nil {
		return nil, err
	}
	m.manager.Publish(r.IndexID, idx, false, false)
	return idx, nil
}

func (m *Materializer) tryLoad(r Region) (vxindex.Index, error) {
	meta, ok := m.registry.GetLast(r.IndexID)
	if !ok {
		return nil, vxerr.New(vxerr.SnapshotNotFound, "no snapshot to load")
	}
	defer meta.Release()

	idx := m.factory(r.IndexID, r.Dim)
	if err := idx.Load(meta.DataPath()); err != nil {
		return nil, fmt.Errorf("load %s: %w", meta.DataPath(), err)
	}
	idx.SetApplyLogIndex(meta.LogID())
	idx.SetSnapshotLogIndex(meta.LogID())
	idx.SetStatus(vxindex.Normal)

	// The snapshot's log id is a lower bound, not the tip — the WAL may
	// hold entries past it, so always replay the tail after a load.
	if err := m.replayRange(idx, r.IndexID, meta.LogID()+1, 0); err != nil {
		return nil, fmt.Errorf("replay tail after load: %w", err)
	}
	return idx, nil
}

// Build constructs a fresh index by scanning the KV store's key range
// for r, seeding its applied/snapshot log ids from persisted meta.
func (m *Materializer) Build(r Region) (vxindex.Index, error) {
	idx := m.factory(r.IndexID, r.Dim)
	idx.SetStatus(vxindex.Building)

	applyLogID, err := m.meta.LoadApplyLogID(r.IndexID)
	if err != nil {
		return nil, vxerr.Wrap(vxerr.Internal, "load apply log id", err)
	}
	snapshotLogID, err := m.meta.LoadSnapshotLogID(r.IndexID)
	if err != nil {
		return nil, vxerr.Wrap(vxerr.Internal, "load snapshot log id", err)
	}
	idx.SetApplyLogIndex(applyLogID)
	idx.SetSnapshotLogIndex(snapshotLogID)

	batch := make([]vxindex.Vector, 0, m.cfg.BuildBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := idx.Upsert(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	err = m.kv.Scan(r.StartKey, r.EndKey, func(row vxkv.KV) error {
		v, ok := decodeVector(row)
		if !ok || len(v.Values) == 0 {
			return nil // skip rows with zero-dimension or unparseable vectors
		}
		batch = append(batch, v)
		if len(batch) >= m.cfg.BuildBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, vxerr.Wrap(vxerr.Internal, "scan kv store", err)
	}
	if err := flush(); err != nil {
		return nil, vxerr.Wrap(vxerr.Internal, "flush build batch", err)
	}

	idx.SetStatus(vxindex.Normal)
	return idx, nil
}

// decodeVector is the seam between raw KV rows and vxindex.Vector.
// The on-disk row encoding is an external collaborator's choice, not
// this subsystem's; this default reads row.Value as an 8-byte
// big-endian ID prefix followed by big-endian float64 values. It is
// unrelated to memindex's gob-based Save/Load encoding.
func decodeVector(row vxkv.KV) (vxindex.Vector, bool) {
	if len(row.Value) < 8 || (len(row.Value)-8)%8 != 0 {
		return vxindex.Vector{}, false
	}
	id := binary.BigEndian.Uint64(row.Value[:8])
	n := (len(row.Value) - 8) / 8
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		bits := binary.BigEndian.Uint64(row.Value[8+i*8 : 16+i*8])
		values[i] = math.Float64frombits(bits)
	}
	return vxindex.Vector{ID: id, Values: values}, true
}

// CheckRebuildStatus rejects a rebuild unless the current status is
// one that is safe to replace.
func (m *Materializer) CheckRebuildStatus(r Region) error {
	idx, ok := m.manager.Get(r.IndexID)
	if !ok {
		return nil
	}
	switch idx.Status() {
	case vxindex.Normal, vxindex.Error, vxindex.None:
		return nil
	default:
		return vxerr.New(vxerr.Internal, fmt.Sprintf("index %d: rebuild rejected in status %s", r.IndexID, idx.Status()))
	}
}

// Rebuild performs a full rebuild from the KV store, then catches the
// new index up to the WAL tip in two rounds around an optional save —
// save happens before the first replay round specifically to keep the
// save's own write-lock window from landing inside the (much larger)
// first-round replay.
func (m *Materializer) Rebuild(r Region, needSave bool) (vxindex.Index, error) {
	if err := m.CheckRebuildStatus(r); err != nil {
		return nil, err
	}
	prev, hadPrev := m.manager.Get(r.IndexID)
	if hadPrev {
		prev.SetStatus(vxindex.Rebuilding)
	}

	newIdx, err := m.Build(r)
	if err != nil {
		if hadPrev {
			prev.SetStatus(vxindex.Error)
		}
		return nil, err
	}

	if needSave {
		if _, err := m.writer.Run(r.IndexID, newIdx); err != nil {
			logs.Warnf("vxmaterializer: index %d: pre-replay save failed: %v", r.IndexID, err)
		}
	}

	if err := m.replayRange(newIdx, r.IndexID, newIdx.ApplyLogIndex()+1, 0); err != nil {
		return nil, vxerr.Wrap(vxerr.Internal, "first-round replay", err)
	}

	m.manager.SetSwitching(r.IndexID, true)
	defer m.manager.SetSwitching(r.IndexID, false)

	if err := m.replayRange(newIdx, r.IndexID, newIdx.ApplyLogIndex()+1, 0); err != nil {
		return nil, vxerr.Wrap(vxerr.Internal, "catch-up replay", err)
	}

	newIdx.SetStatus(vxindex.Normal)
	// expectDeleted mirrors hadPrev: if an entry existed when this
	// rebuild started, its disappearance by now means a concurrent
	// delete raced us and Publish must reject the stale replace; if no
	// entry existed (a Build-only region never previously published),
	// there is nothing to have been concurrently deleted.
	if err := m.manager.Publish(r.IndexID, newIdx, true, hadPrev); err != nil {
		return nil, err
	}

	if !m.cfg.EnableFollowerHoldIndex && m.isLeader != nil && !m.isLeader() {
		m.manager.Delete(r.IndexID)
	}

	return newIdx, nil
}

// AsyncRebuild spawns a goroutine that polls idx's status until it
// leaves a mid-transition state, then calls Rebuild.
func (m *Materializer) AsyncRebuild(r Region, needSave bool, idx vxindex.Index, pollInterval func() <-chan struct{}) {
	go func() {
		for {
			switch idx.Status() {
			case vxindex.Rebuilding, vxindex.Snapshotting, vxindex.Building, vxindex.Replaying:
				<-pollInterval()
				continue
			}
			break
		}
		if _, err := m.Rebuild(r, needSave); err != nil {
			logs.Warnf("vxmaterializer: async rebuild of index %d failed: %v", r.IndexID, err)
		}
	}()
}

// replayRange translates WAL entries for r's index in [from, to] into
// Upsert/Delete calls, batching upserts and tracking in-batch deletes
// with a 64-bit roaring bitmap (vector ids are uint64) so a delete
// immediately following an add in the same batch still resolves
// correctly before the batch is flushed. Updates idx's ApplyLogIndex
// to the last entry replayed.
func (m *Materializer) replayRange(idx vxindex.Index, indexID, from, to uint64) error {
	all, err := m.log.Entries(from, to)
	if err != nil {
		return err
	}
	entries := make([]wal.Entry, 0, len(all))
	for _, e := range all {
		if e.Command.IndexID == indexID {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	batch := make([]vxindex.Vector, 0, 1000)
	pendingDeletes := roaring64.New()

	flush := func() error {
		if pendingDeletes.GetCardinality() > 0 {
			ids := make([]uint64, 0, pendingDeletes.GetCardinality())
			it := pendingDeletes.Iterator()
			for it.HasNext() {
				ids = append(ids, it.Next())
			}
			if err := idx.Delete(ids); err != nil {
				return err
			}
			pendingDeletes.Clear()
		}
		if len(batch) > 0 {
			if err := idx.Upsert(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
		return nil
	}

	const batchSize = 10000
	for _, e := range entries {
		switch e.Command.Kind {
		case wal.VectorAdd:
			batch = append(batch, vxindex.Vector{ID: e.Command.ID, Values: e.Command.Values})
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case wal.VectorDelete:
			if err := flush(); err != nil { // flush pending upserts before deleting
				return err
			}
			for _, id := range e.Command.DeleteIDs {
				pendingDeletes.Add(id)
			}
			if err := flush(); err != nil {
				return err
			}
		}
		idx.SetApplyLogIndex(e.Index)
	}
	return flush()
}

// ParallelLoadOrBuild runs LoadOrBuild across regions on a bounded
// worker pool. It fails only once every region has settled, aggregating every
// per-region error rather than failing fast.
func (m *Materializer) ParallelLoadOrBuild(regions []Region) error {
	p := pool.New().WithMaxGoroutines(m.cfg.LoadOrBuildConcurrency)
	errs := make([]error, len(regions))
	for i, r := range regions {
		i, r := i, r
		p.Go(func() {
			if _, err := m.LoadOrBuild(r); err != nil {
				errs[i] = fmt.Errorf("index %d: %w", r.IndexID, err)
			}
		})
	}
	p.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("parallel load-or-build: %d of %d regions failed: %v", len(failed), len(regions), failed)
	}
	return nil
}
