package cache

import (
	"sync"
	"time"

	"github.com/gostash/tierstore/internal/core"
)

const (
	// DefaultTTL is how long a cache entry stays valid.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxSize is the entry count beyond which the oldest
	// entries are evicted.
	DefaultMaxSize = 50
)

// entry holds a cached value and the time it was stored. expiresAt,
// when set, is a value-level deadline that misses the entry even
// inside the cache TTL.
type entry struct {
	value     string
	storedAt  time.Time
	expiresAt time.Time
}

// Cache is a bounded in-memory read cache with TTL expiry and
// oldest-first eviction. Expired entries are purged opportunistically
// by the router before each read and write rather than on a timer, so
// memory stays bounded without a background scheduler.
type Cache struct {
	mu      sync.Mutex
	clock   core.Clock
	ttl     time.Duration
	maxSize int
	entries map[string]*entry
	order   []string

	hits   int64
	misses int64
}

// New creates a cache with the given TTL and maximum size.
// Non-positive values fall back to the defaults.
func New(clock core.Clock, ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		clock:   clock,
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]*entry),
	}
}

// Get returns the cached value for a key. It misses if the key is
// absent or the entry is older than the TTL.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		c.misses++
		return "", false
	}
	c.hits++
	return e.value, true
}

// Put stores a value. Re-storing an existing key refreshes its
// timestamp and moves it to the back of the eviction order. Entries
// beyond the maximum size are evicted oldest-first.
func (c *Cache) Put(key, value string) {
	c.put(key, value, time.Time{})
}

// PutUntil stores a value that also expires at the given absolute
// time. The entry misses at the earlier of the cache TTL and
// expiresAt, so the cache never outlives the value it holds.
func (c *Cache) PutUntil(key, value string, expiresAt time.Time) {
	c.put(key, value, expiresAt)
}

func (c *Cache) put(key, value string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.removeFromOrder(key)
	}
	c.entries[key] = &entry{value: value, storedAt: c.clock.Now(), expiresAt: expiresAt}
	c.order = append(c.order, key)

	for len(c.entries) > c.maxSize {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Delete removes a key from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	c.removeFromOrder(key)
}

// PurgeExpired drops every entry older than the TTL.
func (c *Cache) PurgeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.order[:0]
	for _, key := range c.order {
		e, ok := c.entries[key]
		if !ok {
			continue
		}
		if c.expired(e) {
			delete(c.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order = nil
}

// Len returns the current number of entries, including any that have
// expired but not yet been purged.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the keys currently held, oldest first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// HitRate returns the fraction of Get calls that hit, or zero if no
// lookups have happened yet.
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

func (c *Cache) expired(e *entry) bool {
	now := c.clock.Now()
	if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
		return true
	}
	return now.Sub(e.storedAt) > c.ttl
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
