// Package datasource coordinates fetch-or-reuse of per-month assets:
// monthly rasters, city timepoint JSON and static reference data.
package datasource

import (
	"sync"
)

// Cache is a keyed payload cache for decoded period assets. Entries live
// until Clear is called (data-source reconfiguration).
//
// Concurrent requests for the same uncached key are not deduplicated:
// simultaneous callers may each run the loader. That is duplicate work,
// not a correctness hazard; loads are idempotent and the last write wins.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]interface{}
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]interface{})}
}

// Get returns the cached payload for key, invoking loader on first use.
// Loader errors are not cached; the next Get retries.
func (c *Cache) Get(key string, loader func() (interface{}, error)) (interface{}, error) {
	c.mu.RLock()
	if payload, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return payload, nil
	}
	c.mu.RUnlock()

	payload, err := loader()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = payload
	c.mu.Unlock()
	return payload, nil
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]interface{})
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
