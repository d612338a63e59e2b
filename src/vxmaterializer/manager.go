// Package vxmaterializer implements the load-or-build and rebuild
// controllers: on boot, try a snapshot load plus WAL-tail replay,
// falling back to a full KV-store rebuild on any failure; during a
// live rebuild, replay the WAL in two rounds around a save, guarded by
// a per-region switching flag new writes can poll.
package vxmaterializer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/vectorkeep/src/vxerr"
	"github.com/danmuck/vectorkeep/src/vxindex"
)

// Region names one index's identity, dimensionality, and KV key range
// — everything Build needs to construct and populate a fresh index.
type Region struct {
	IndexID  uint64
	Dim      int
	StartKey []byte
	EndKey   []byte
}

// live is one materialized index plus the switching flag the raft
// write path polls during a live rebuild.
type live struct {
	idx       vxindex.Index
	switching atomic.Bool
}

// Manager is the process-wide table of materialized indexes.
// Publish/Delete/Switching give the rest of this package (and the
// scrubber) a single place to coordinate concurrent rebuilds.
type Manager struct {
	mu   sync.RWMutex
	byID map[uint64]*live
}

func NewManager() *Manager {
	return &Manager{byID: make(map[uint64]*live)}
}

func (m *Manager) Get(indexID uint64) (vxindex.Index, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.byID[indexID]
	if !ok {
		return nil, false
	}
	return l.idx, true
}

// Publish installs idx as the live index for indexID. If force is
// false, publish fails when an entry already exists. If expectDeleted
// is true (the rebuild path, when an entry existed as the rebuild
// started), publish fails if no entry is present any more, i.e. it was
// concurrently deleted out from under the rebuild — the caller must
// treat that as INTERNAL, matching AddVectorIndex's own force-overwrite
// contract.
func (m *Manager) Publish(indexID uint64, idx vxindex.Index, force bool, expectDeleted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.byID[indexID]
	if exists && !force {
		return vxerr.New(vxerr.Internal, fmt.Sprintf("index %d already materialized", indexID))
	}
	if expectDeleted && !exists {
		return vxerr.New(vxerr.Internal, fmt.Sprintf("index %d was concurrently deleted during rebuild", indexID))
	}
	m.byID[indexID] = &live{idx: idx}
	return nil
}

func (m *Manager) Delete(indexID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, indexID)
}

// SetSwitching sets the switching flag for a live index, if present.
func (m *Manager) SetSwitching(indexID uint64, v bool) {
	m.mu.RLock()
	l, ok := m.byID[indexID]
	m.mu.RUnlock()
	if ok {
		l.switching.Store(v)
	}
}

// IsSwitching reports whether indexID is currently mid-rebuild handoff
// — the raft write path polls this to steer writes away from the
// index being replaced.
func (m *Manager) IsSwitching(indexID uint64) bool {
	m.mu.RLock()
	l, ok := m.byID[indexID]
	m.mu.RUnlock()
	return ok && l.switching.Load()
}
