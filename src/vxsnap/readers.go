package vxsnap

import "sync"

// ReaderRegistry is the process-wide table mapping opaque, monotonically
// allocated reader ids to the Meta handle they expose to a peer during
// one install or pull. 0 is reserved as the invalid reader id.
type ReaderRegistry struct {
	mu      sync.Mutex
	next    uint64
	readers map[uint64]*Meta
}

func NewReaderRegistry() *ReaderRegistry {
	return &ReaderRegistry{readers: make(map[uint64]*Meta)}
}

// Add registers meta under a freshly allocated reader id and returns it.
// The registry holds its own reference to meta (Acquire is called on its
// behalf), released when Delete is called.
func (rr *ReaderRegistry) Add(meta *Meta) uint64 {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	rr.next++
	id := rr.next
	rr.readers[id] = meta.Acquire()
	return id
}

// Get resolves a reader id to its Meta handle.
func (rr *ReaderRegistry) Get(id uint64) (*Meta, bool) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	m, ok := rr.readers[id]
	return m, ok
}

// Delete releases the handle identified by id.
func (rr *ReaderRegistry) Delete(id uint64) {
	rr.mu.Lock()
	m, ok := rr.readers[id]
	delete(rr.readers, id)
	rr.mu.Unlock()

	if ok {
		m.Release()
	}
}
