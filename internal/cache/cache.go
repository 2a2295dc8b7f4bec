// Package cache is the process-wide result cache: short-TTL memoization of
// search results and long-TTL memoization of query embeddings.
package cache

import (
	"sync"
	"time"
)

const defaultMaxSize = 1000

type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
}

// Cache is a mutex-guarded TTL cache. When full, the globally oldest-created
// entry is evicted to admit a new one (insertion-order eviction, not LRU —
// a hit does not refresh an entry's position).
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
}

// Stats is a point-in-time snapshot of cache occupancy.
type Stats struct {
	TotalEntries   int `json:"total_entries"`
	ValidEntries   int `json:"valid_entries"`
	ExpiredEntries int `json:"expired_entries"`
	MaxSize        int `json:"max_size"`
}

// New creates a cache with the given default TTL and capacity.
// maxSize <= 0 falls back to the default capacity.
func New(defaultTTL time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &Cache{
		entries:    make(map[string]entry),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns the cached value for key. A read after the entry's expiry is a
// miss, not a stale hit; the expired entry is dropped on the spot.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key with an explicit TTL.
func (c *Cache) SetTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := c.now()
	c.entries[key] = entry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
}

// Delete removes a single entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Snapshot returns occupancy stats.
func (c *Cache) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	valid := 0
	for _, e := range c.entries {
		if e.expiresAt.After(now) {
			valid++
		}
	}
	return Stats{
		TotalEntries:   len(c.entries),
		ValidEntries:   valid,
		ExpiredEntries: len(c.entries) - valid,
		MaxSize:        c.maxSize,
	}
}

// evictOldest removes the entry with the earliest creation time.
// O(n) scan; acceptable at the configured capacities.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.createdAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.createdAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
