package symbolize

import "sync"

type cacheKey struct {
	scope Scope
	pid   int32
	addr  uint64
}

// Cache remembers every resolution, misses included. Entries are never
// evicted or invalidated for the lifetime of the cache.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]Symbol
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]Symbol)}
}

// Find returns the cached symbol for (scope, pid, addr).
func (c *Cache) Find(scope Scope, pid int32, addr uint64) (Symbol, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sym, ok := c.entries[cacheKey{scope: scope, pid: pid, addr: addr}]
	return sym, ok
}

// Put stores sym for (scope, pid, addr).
func (c *Cache) Put(scope Scope, pid int32, addr uint64, sym Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{scope: scope, pid: pid, addr: addr}] = sym
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
