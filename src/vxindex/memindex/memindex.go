// Package memindex is a default brute-force flat vector index used by
// tests and by any deployment that has not wired a real ANN engine. It
// exists to give the rest of this repository a concrete vxindex.Index
// to exercise, not as a production nearest-neighbor engine.
package memindex

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/danmuck/vectorkeep/src/vxindex"
	"gonum.org/v1/gonum/floats"
)

// Config bounds the scrub heuristics this index reports.
type Config struct {
	// RebuildLagThreshold: NeedRebuild reports true once lag exceeds this.
	RebuildLagThreshold uint64
	// SaveLagThreshold: NeedSave reports true once lag exceeds this.
	SaveLagThreshold uint64
}

func DefaultConfig() Config {
	return Config{
		RebuildLagThreshold: 200000,
		SaveLagThreshold:    20000,
	}
}

// Index is a brute-force, mutex-guarded flat vector index.
type Index struct {
	indexID uint64
	dim     int
	cfg     Config

	mu      sync.RWMutex
	vectors map[uint64][]float64

	applyLogIndex    atomic.Uint64
	snapshotLogIndex atomic.Uint64
	version          atomic.Uint64
	status           atomic.Int32
	snapshotting     atomic.Bool
}

// New returns a Factory-shaped constructor bound to cfg, suitable for
// vxindex.Factory.
func New(cfg Config) vxindex.Factory {
	return func(indexID uint64, dim int) vxindex.Index {
		idx := &Index{
			indexID: indexID,
			dim:     dim,
			cfg:     cfg,
			vectors: make(map[uint64][]float64),
		}
		return idx
	}
}

// gobImage is the on-disk shape Save/Load exchange.
type gobImage struct {
	IndexID          uint64
	Dim              int
	ApplyLogIndex    uint64
	SnapshotLogIndex uint64
	Version          uint64
	Vectors          map[uint64][]float64
}

// Save takes a bounded deep copy of the vector map and signals copied
// the instant that copy is taken, then serializes the copy without
// holding any lock. The caller is required to already hold the write
// lock (via LockWrite) when calling Save and must not call UnlockWrite
// until copied fires — that ordering is what makes the copy and the
// applyLogIndex a caller reads alongside it a single atomic snapshot,
// rather than two reads a concurrent Upsert/Delete can split apart.
func (idx *Index) Save(path string, copied chan<- struct{}) error {
	copyOf := make(map[uint64][]float64, len(idx.vectors))
	for id, v := range idx.vectors {
		copyOf[id] = append([]float64(nil), v...)
	}
	img := gobImage{
		IndexID:          idx.indexID,
		Dim:              idx.dim,
		ApplyLogIndex:    idx.applyLogIndex.Load(),
		SnapshotLogIndex: idx.snapshotLogIndex.Load(),
		Version:          idx.version.Load(),
		Vectors:          copyOf,
	}
	if copied != nil {
		close(copied)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(img); err != nil {
		return fmt.Errorf("memindex: encode: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("memindex: write %s: %w", path, err)
	}
	return nil
}

func (idx *Index) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("memindex: read %s: %w", path, err)
	}
	var img gobImage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&img); err != nil {
		return fmt.Errorf("memindex: decode %s: %w", path, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.dim = img.Dim
	idx.vectors = img.Vectors
	if idx.vectors == nil {
		idx.vectors = make(map[uint64][]float64)
	}
	idx.applyLogIndex.Store(img.ApplyLogIndex)
	idx.snapshotLogIndex.Store(img.SnapshotLogIndex)
	idx.version.Store(img.Version)
	return nil
}

func (idx *Index) Upsert(batch []vxindex.Vector) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, v := range batch {
		if idx.dim != 0 && len(v.Values) != idx.dim {
			return fmt.Errorf("memindex: vector %d has dimension %d, want %d", v.ID, len(v.Values), idx.dim)
		}
		idx.vectors[v.ID] = append([]float64(nil), v.Values...)
	}
	idx.version.Add(1)
	return nil
}

func (idx *Index) Delete(ids []uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, id := range ids {
		delete(idx.vectors, id)
	}
	idx.version.Add(1)
	return nil
}

func (idx *Index) ApplyLogIndex() uint64          { return idx.applyLogIndex.Load() }
func (idx *Index) SetApplyLogIndex(v uint64)      { idx.applyLogIndex.Store(v) }
func (idx *Index) SetSnapshotLogIndex(v uint64)   { idx.snapshotLogIndex.Store(v) }
func (idx *Index) SnapshotLogIndex() uint64       { return idx.snapshotLogIndex.Load() }

func (idx *Index) LockWrite()   { idx.mu.Lock() }
func (idx *Index) UnlockWrite() { idx.mu.Unlock() }

func (idx *Index) SnapshotDoing() bool     { return idx.snapshotting.Load() }
func (idx *Index) SetSnapshotDoing(v bool) { idx.snapshotting.Store(v) }

func (idx *Index) Status() vxindex.Status     { return vxindex.Status(idx.status.Load()) }
func (idx *Index) SetStatus(s vxindex.Status) { idx.status.Store(int32(s)) }

func (idx *Index) NeedSave(lag uint64) bool    { return lag > idx.cfg.SaveLagThreshold }
func (idx *Index) NeedRebuild(lag uint64) bool { return lag > idx.cfg.RebuildLagThreshold }

func (idx *Index) Version() uint64 { return idx.version.Load() }

// Search returns the k nearest neighbors to query by L2 distance. Not
// part of the vxindex.Index contract (the contract has no query
// surface to specify) — exposed for tests and for operators who wire
// memindex in directly rather than a real engine.
func (idx *Index) Search(query []float64, k int) []uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		id   uint64
		dist float64
	}
	results := make([]scored, 0, len(idx.vectors))
	for id, v := range idx.vectors {
		results = append(results, scored{id: id, dist: l2(query, v)})
	}
	// partial selection sort is sufficient; memindex is not meant to scale
	for i := 0; i < k && i < len(results); i++ {
		best := i
		for j := i + 1; j < len(results); j++ {
			if results[j].dist < results[best].dist {
				best = j
			}
		}
		results[i], results[best] = results[best], results[i]
	}
	if k > len(results) {
		k = len(results)
	}
	out := make([]uint64, k)
	for i := 0; i < k; i++ {
		out[i] = results[i].id
	}
	return out
}

func l2(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return floats.Distance(a[:n], b[:n], 2)
}
