// Package cache provides the in-memory TTL cache for receiver probe
// results, keyed by normalized receiver URL.
package cache

import (
	"sync"
	"time"

	"sdrwatch/internal/model"
)

// DefaultTTL is the default validity window for a cached probe result.
const DefaultTTL = 15 * time.Minute

// ResultCache is a thread-safe TTL cache. Eviction is lazy: an expired
// entry is removed on the Get that observes it. There is no background
// sweep and no capacity bound; memory grows with the number of distinct
// receivers ever probed.
type ResultCache struct {
	mu     sync.RWMutex
	items  map[string]*cacheItem
	ttl    time.Duration
	hits   uint64
	misses uint64

	// now is swappable for tests
	now func() time.Time
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Entries    int     `json:"entries"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
	TTLSeconds int     `json:"ttl_seconds"`
}

type cacheItem struct {
	status   model.ReceiverStatus
	storedAt time.Time
}

// New creates a ResultCache with the given TTL. A non-positive TTL
// falls back to DefaultTTL.
func New(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{
		items: make(map[string]*cacheItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Put stores a probe result under the normalized URL.
func (c *ResultCache) Put(normalizedURL string, status model.ReceiverStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[normalizedURL] = &cacheItem{
		status:   status,
		storedAt: c.now(),
	}
}

// Get returns the cached result for the normalized URL, stamped with
// from_cache=true. An entry past its TTL is evicted and reported absent.
func (c *ResultCache) Get(normalizedURL string) (model.ReceiverStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[normalizedURL]
	if !ok {
		c.misses++
		return model.ReceiverStatus{}, false
	}
	if c.now().Sub(item.storedAt) > c.ttl {
		delete(c.items, normalizedURL)
		c.misses++
		return model.ReceiverStatus{}, false
	}

	c.hits++
	status := item.status
	status.FromCache = true
	return status, true
}

// Clear drops every entry. The auto-refresh scheduler calls this before
// each cycle so every receiver gets a fresh probe.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*cacheItem)
}

// Size returns the number of stored entries, expired ones included.
func (c *ResultCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns hit and miss counters since process start.
func (c *ResultCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Entries:    len(c.items),
		Hits:       c.hits,
		Misses:     c.misses,
		TTLSeconds: int(c.ttl.Seconds()),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
