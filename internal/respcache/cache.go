// Package respcache holds the gateway's per-session cache of upstream GET
// responses, the analogue of the frontend's HTTP response cache layer.
package respcache

import (
	"sync"
	"time"
)

// Entry is one cached upstream response.
type Entry struct {
	Status      int
	ContentType string
	Body        []byte
	StoredAt    time.Time
}

// Cache is an in-memory, TTL-bounded response cache keyed by session ID and
// request path. It also tracks in-flight requests so that of identical
// concurrent GETs only the first one populates the cache; the others are
// still forwarded and served from the upstream response.
type Cache struct {
	mu       sync.RWMutex
	ttl      time.Duration
	entries  map[string]map[string]*Entry
	inflight map[string]map[string]struct{}
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		ttl:      ttl,
		entries:  make(map[string]map[string]*Entry),
		inflight: make(map[string]map[string]struct{}),
	}
}

// Get returns the cached entry for (sid, key) when present and fresh.
func (c *Cache) Get(sid, key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[sid][key]
	if !ok {
		return nil, false
	}
	if time.Since(e.StoredAt) > c.ttl {
		return nil, false
	}
	return e, true
}

func (c *Cache) Put(sid, key string, e *Entry) {
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[sid] == nil {
		c.entries[sid] = make(map[string]*Entry)
	}
	c.entries[sid][key] = e
}

// MarkInflight records that a request for (sid, key) is being forwarded.
// Returns false when one is already in flight.
func (c *Cache) MarkInflight(sid, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[sid][key]; ok {
		return false
	}
	if c.inflight[sid] == nil {
		c.inflight[sid] = make(map[string]struct{})
	}
	c.inflight[sid][key] = struct{}{}
	return true
}

func (c *Cache) DoneInflight(sid, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight[sid], key)
}

// Reset drops every cached entry and in-flight marker for sid. First step of
// the logout teardown.
func (c *Cache) Reset(sid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sid)
	delete(c.inflight, sid)
}

// ResetAll drops the whole cache.
func (c *Cache) ResetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]map[string]*Entry)
	c.inflight = make(map[string]map[string]struct{})
}

// Len reports the number of cached entries for sid.
func (c *Cache) Len(sid string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries[sid])
}
