package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCacheTTL bounds how stale a cached identity may be served.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	expiresAt time.Time
	identity  Identity
}

// Cache is a process-local map from token identifier to resolved identity
// with a cache-local expiry, distinct from the token's storage expiry. It
// is a performance optimization only: its absence never changes
// authorization outcomes. All operations are mutually exclusive; the lock
// is never held across storage I/O.
type Cache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache constructs an empty cache. A non-positive ttl falls back to
// DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries: make(map[uuid.UUID]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// TTL returns the configured cache lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the cached identity and its expiry. It performs no
// time-based filtering itself; callers wanting up-to-date data sweep
// first.
func (c *Cache) Get(id uuid.UUID) (Identity, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return Identity{}, time.Time{}, false
	}
	return entry.identity, entry.expiresAt, true
}

// Set stores the identity under the token identifier with an absolute
// expiry, overwriting any previous entry.
func (c *Cache) Set(id uuid.UUID, expiresAt time.Time, identity Identity) Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = cacheEntry{expiresAt: expiresAt, identity: identity}
	return identity
}

// Remove evicts a single entry.
func (c *Cache) Remove(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Sweep evicts every entry whose expiry has passed. O(n) in cached
// sessions, which stay small relative to request volume.
func (c *Cache) Sweep() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
		}
	}
}

// Len reports the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
