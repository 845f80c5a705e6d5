// Package cache provides an in-memory LRU cache with TTL for caching
// form analytics responses per tenant.
package cache

import (
	"strings"
	"sync"
	"time"
)

// entry holds a cached value with its expiration and last access time.
type entry struct {
	value       []byte
	contentType string
	expiresAt   time.Time
	lastUsed    time.Time
}

// LRUCache is a thread-safe in-memory cache with TTL and max-size eviction.
// When the cache reaches maxSize, the least recently used entry is evicted
// to make room for new entries. Expired entries are lazily evicted on Get.
type LRUCache struct {
	mu      sync.Mutex
	items   map[string]*entry
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewLRUCache creates a new LRU cache with the given maximum size and TTL.
// maxSize must be >= 1; ttl must be > 0.
func NewLRUCache(maxSize int, ttl time.Duration) *LRUCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LRUCache{
		items:   make(map[string]*entry, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a cached value and its content type. Returns ok=false if the
// key is missing or expired.
func (c *LRUCache) Get(key string) (value []byte, contentType string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.items[key]
	if !found {
		return nil, "", false
	}

	now := c.now()
	if now.After(e.expiresAt) {
		delete(c.items, key)
		return nil, "", false
	}

	e.lastUsed = now
	return e.value, e.contentType, true
}

// Set stores a value in the cache, evicting the least recently used entry
// when a new key would exceed the capacity.
func (c *LRUCache) Set(key string, value []byte, contentType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; !ok && len(c.items) >= c.maxSize {
		c.evictLeastRecent()
	}

	now := c.now()
	c.items[key] = &entry{
		value:       value,
		contentType: contentType,
		expiresAt:   now.Add(c.ttl),
		lastUsed:    now,
	}
}

// Invalidate removes a specific key from the cache.
func (c *LRUCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// InvalidatePrefix removes every key starting with prefix and returns how
// many were removed.
func (c *LRUCache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// InvalidateAll removes all entries from the cache.
func (c *LRUCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry, c.maxSize)
}

// Size returns the number of entries currently in the cache (including
// potentially expired ones that haven't been lazily cleaned).
func (c *LRUCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictLeastRecent removes the entry with the oldest lastUsed timestamp.
// Must be called with c.mu held.
func (c *LRUCache) evictLeastRecent() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for k, e := range c.items {
		if first || e.lastUsed.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.lastUsed
			first = false
		}
	}

	if !first {
		delete(c.items, oldestKey)
	}
}
