package pipeline

import (
	"sync"
	"time"

	"github.com/interop/gateway/internal/platform/fhir"
)

// Cache holds canonical (unfiltered) bundles keyed by fingerprint.
// Consent is applied after retrieval on every request, so a cached
// bundle never bypasses the gate.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	bundle  *fhir.Bundle
	expires time.Time
}

// NewCache creates a cache whose entries live for ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: map[string]cacheEntry{},
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a clone of the cached bundle, or nil.
func (c *Cache) Get(fingerprint string) *fhir.Bundle {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expires) {
		return nil
	}
	return entry.bundle.Clone()
}

// Put stores a clone of the bundle.
func (c *Cache) Put(fingerprint string, bundle *fhir.Bundle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = cacheEntry{
		bundle:  bundle.Clone(),
		expires: c.now().Add(c.ttl),
	}
	// Lazy sweep: drop expired entries while the lock is held.
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
}

// Len returns the live entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	now := c.now()
	for _, e := range c.entries {
		if !now.After(e.expires) {
			n++
		}
	}
	return n
}
