package vxsnap

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	logs "github.com/danmuck/smplog"
)

// Registry is the per-process authoritative list of admitted snapshots,
// keyed by IndexId then LogId. All operations serialize on a single
// mutex; every operation is allocation-bounded and short so the lock
// is never held across disk I/O.
type Registry struct {
	root string // index_root: <root>/<index_id>/snapshot_<log_id>

	mu    sync.Mutex
	byIdx map[uint64]map[uint64]*Meta
}

// NewRegistry creates an empty registry rooted at root. Call Bootstrap
// to populate it from disk.
func NewRegistry(root string) *Registry {
	return &Registry{
		root:  root,
		byIdx: make(map[uint64]map[uint64]*Meta),
	}
}

func (r *Registry) IndexDir(indexID uint64) string {
	return filepath.Join(r.root, strconv.FormatUint(indexID, 10))
}

// Bootstrap scans <root>/<index_id>/ for each of the given index ids and
// admits every well-formed snapshot directory found. A directory that
// fails to parse aborts bootstrap for that region only (logged at
// warning) rather than the whole call — a single corrupted directory
// must not keep every other region from starting.
func (r *Registry) Bootstrap(indexIDs []uint64) {
	for _, id := range indexIDs {
		dir := r.IndexDir(id)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				logs.Warnf("vxsnap: bootstrap: read %s: %v", dir, err)
			}
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || strings.Contains(e.Name(), "tmp") {
				continue
			}
			if !IsSnapshotDir(e.Name()) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			raw, err := os.ReadFile(filepath.Join(path, metaFileName))
			if err == nil {
				_, err = strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
			}
			if err != nil {
				logs.Warnf("vxsnap: bootstrap: index %d: rejecting snapshot dir %s with missing or corrupt meta file: %v", id, path, err)
				continue
			}
			meta, err := NewMeta(id, path)
			if err != nil {
				logs.Warnf("vxsnap: bootstrap: index %d: rejecting corrupt snapshot dir %s: %v", id, path, err)
				continue
			}
			if !r.Add(meta) {
				logs.Warnf("vxsnap: bootstrap: index %d: duplicate log id %d, keeping first seen", id, meta.LogID())
				meta.Release()
			}
		}
	}
}

// Add admits meta unless an entry already exists for (IndexID, LogID).
// Returns whether it was inserted. On success the registry holds one
// reference to meta.
func (r *Registry) Add(meta *Meta) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.byIdx[meta.IndexID()]
	if m == nil {
		m = make(map[uint64]*Meta)
		r.byIdx[meta.IndexID()] = m
	}
	if _, exists := m[meta.LogID()]; exists {
		return false
	}
	m[meta.LogID()] = meta
	return true
}

// Delete removes the exact (IndexID, LogID) entry and releases the
// registry's reference to it.
func (r *Registry) Delete(meta *Meta) {
	r.mu.Lock()
	m, ok := r.byIdx[meta.IndexID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	stored, ok := m[meta.LogID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(m, meta.LogID())
	r.mu.Unlock()
	stored.Release()
}

// DeleteAll drops every entry for indexID.
func (r *Registry) DeleteAll(indexID uint64) {
	r.mu.Lock()
	m := r.byIdx[indexID]
	delete(r.byIdx, indexID)
	r.mu.Unlock()

	for _, meta := range m {
		meta.Release()
	}
}

// GetLast returns the entry with the greatest LogId for indexID.
func (r *Registry) GetLast(indexID uint64) (*Meta, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.byIdx[indexID]
	var best *Meta
	for _, meta := range m {
		if best == nil || meta.LogID() > best.LogID() {
			best = meta
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Acquire(), true
}

// GetAll returns every entry for indexID in ascending LogId order. Each
// returned Meta carries an additional reference the caller must Release.
func (r *Registry) GetAll(indexID uint64) []*Meta {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.byIdx[indexID]
	out := make([]*Meta, 0, len(m))
	for _, meta := range m {
		out = append(out, meta.Acquire())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogID() < out[j].LogID() })
	return out
}

// IsExist reports whether the greatest stored LogId for indexID is at
// least logID.
func (r *Registry) IsExist(indexID, logID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.byIdx[indexID]
	var maxLogID uint64
	found := false
	for id := range m {
		found = true
		if id > maxLogID {
			maxLogID = id
		}
	}
	return found && maxLogID >= logID
}
