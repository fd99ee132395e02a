package domain

import (
	"sync"
	"time"
)

// Cache stores classification results keyed by normalized query text, with
// TTL-based expiry. Expired entries are evicted lazily on the next lookup.
//
// Cache is an explicit dependency passed into the Router rather than package
// state, so tests can substitute it and deployments can size it per worker.
// It is safe for concurrent use; concurrent writes to the same key are
// last-write-wins, which is acceptable because classification is idempotent.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

type cacheEntry struct {
	result    Classification
	expiresAt time.Time
}

// NewCache creates a classification cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached classification for query, if present and fresh.
// An expired entry is removed and reported as a miss.
func (c *Cache) Get(query string) (Classification, bool) {
	key := NormalizeQuery(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Classification{}, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return Classification{}, false
	}
	return entry.result, true
}

// Put stores the classification for query.
func (c *Cache) Put(query string, result Classification) {
	key := NormalizeQuery(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		result:    result,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of entries, including any not yet lazily evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
