package annotations

import (
	"sort"
	"sync"
)

// Cache holds one MemberMap per class key. Entries are inserted once and
// read many times; only explicit invalidation removes them.
type Cache interface {
	Get(classKey string) (MemberMap, bool)
	// PutIfAbsent stores m unless the key is present and returns the map
	// that is stored afterwards.
	PutIfAbsent(classKey string, m MemberMap) MemberMap
	Invalidate(classKey string) bool
	InvalidateAll() int
	Len() int
	Keys() []string
}

// MemoryCache is an in-process Cache. It is not persisted.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]MemberMap
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]MemberMap)}
}

// Get implements Cache.
func (c *MemoryCache) Get(classKey string) (MemberMap, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[classKey]
	return m, ok
}

// PutIfAbsent implements Cache.
func (c *MemoryCache) PutIfAbsent(classKey string, m MemberMap) MemberMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[classKey]; ok {
		return existing
	}
	if m == nil {
		m = MemberMap{}
	}
	c.entries[classKey] = m
	return m
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(classKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[classKey]
	delete(c.entries, classKey)
	return ok
}

// InvalidateAll implements Cache.
func (c *MemoryCache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]MemberMap)
	return n
}

// Len implements Cache.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys implements Cache. Keys are sorted.
func (c *MemoryCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
