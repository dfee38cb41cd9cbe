package session

import (
	"container/list"
	"sync"
)

// DefaultDedupCapacity bounds the per-worker seen-id set.
const DefaultDedupCapacity = 512

// DedupCache is a capacity-bounded set of recently seen envelope ids,
// evicting oldest-first. It is built per worker instance and injected, never
// shared across processes; it exists to stop a worker from reprocessing an
// envelope it already handled within this run when mailbox rewrites race.
type DedupCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

// NewDedupCache creates a cache; capacity <= 0 uses DefaultDedupCapacity.
func NewDedupCache(capacity int) *DedupCache {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &DedupCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// Seen marks id as seen and reports whether it was already present.
func (c *DedupCache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[id]; ok {
		return true
	}
	c.index[id] = c.order.PushBack(id)
	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(string))
	}
	return false
}

// Contains reports presence without marking.
func (c *DedupCache) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[id]
	return ok
}

// Len returns the number of tracked ids.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Reset empties the cache.
func (c *DedupCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[string]*list.Element, c.capacity)
}
