package cache

import (
	"path"
	"sync"
	"time"
)

type memoryEntry struct {
	value     interface{}
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is the process-local first level. Values are stored as given
// and copied out on read by MultiLevelCache.
type MemoryCache struct {
	mu      sync.RWMutex
	items   map[string]memoryEntry
	metrics *levelCounters
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items:   make(map[string]memoryEntry),
		metrics: newLevelCounters(time.Now()),
		now:     time.Now,
	}
}

// Set stores value for ttl. A ttl of zero never expires.
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.items[key] = entry
	c.mu.Unlock()
	c.metrics.sets.Add(1)
}

func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		c.metrics.read(ErrCacheMiss)
		return nil, false
	}
	if entry.expired(c.now()) {
		c.Delete(key)
		c.metrics.read(ErrCacheMiss)
		return nil, false
	}
	c.metrics.read(nil)
	return entry.value, true
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	c.metrics.deletes.Add(1)
}

// DeletePattern removes keys matching a glob pattern, the same syntax redis
// KEYS accepts for the patterns used here.
func (c *MemoryCache) DeletePattern(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.items, key)
			c.metrics.deletes.Add(1)
		}
	}
}

// Purge drops expired entries.
func (c *MemoryCache) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.items {
		if entry.expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *MemoryCache) Stats() map[string]interface{} {
	m := c.metrics.snapshot()
	return map[string]interface{}{
		"items":    c.Len(),
		"hits":     m.Hits,
		"misses":   m.Misses,
		"sets":     m.Sets,
		"deletes":  m.Deletes,
		"hit_rate": m.HitRate,
	}
}
