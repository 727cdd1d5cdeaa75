package cas

import (
	"runtime"
	"sync"
	"weak"
)

// canonicalHandles maps record ids to the one Handle instance currently in
// use for them. Entries hold weak pointers only; a cleanup removes an entry
// once its Handle has been collected.
//
// The map is safe for concurrent use, but a result is only meaningful to
// the caller holding the stripe lock for that id.
type canonicalHandles struct {
	mu      sync.Mutex
	entries map[int64]weak.Pointer[Handle]
}

type canonicalEntry struct {
	id  int64
	ptr weak.Pointer[Handle]
}

func newCanonicalHandles() *canonicalHandles {
	return &canonicalHandles{entries: make(map[int64]weak.Pointer[Handle])}
}

// get returns the live Handle for id, or nil if none is reachable.
func (c *canonicalHandles) get(id int64) *Handle {
	c.mu.Lock()
	ptr, ok := c.entries[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return ptr.Value()
}

// put registers h as the canonical Handle for its id.
func (c *canonicalHandles) put(h *Handle) {
	ptr := weak.Make(h)
	c.mu.Lock()
	c.entries[h.id] = ptr
	c.mu.Unlock()
	runtime.AddCleanup(h, c.evict, canonicalEntry{id: h.id, ptr: ptr})
}

// evict drops the entry for a collected Handle unless a newer Handle has
// replaced it in the meantime.
func (c *canonicalHandles) evict(e canonicalEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[e.id]; ok && cur == e.ptr {
		delete(c.entries, e.id)
	}
}

func (c *canonicalHandles) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
