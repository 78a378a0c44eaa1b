// Package cache holds the single in-process copy of the most recent
// aggregation result.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is how long an entry reads as fresh.
const DefaultTTL = 5 * time.Minute

// Entry is one stored aggregation result.
type Entry struct {
	Texts      []string
	CapturedAt time.Time
	Count      int
}

// Status describes the cache for the status endpoint. Timestamp and
// AgeSeconds are nil when nothing has been stored.
type Status struct {
	Cached       bool       `json:"cached"`
	Count        int        `json:"count"`
	Timestamp    *time.Time `json:"timestamp"`
	AgeSeconds   *int       `json:"age_seconds"`
	TTLSeconds   int        `json:"ttl_seconds"`
	RemainingTTL int        `json:"remaining_ttl"`
}

// Cache keeps at most one entry. Staleness is computed on read: an entry
// past its TTL reads as a miss but stays in place until the next Put or
// Clear, so its metadata remains visible on the status endpoint.
type Cache struct {
	mu    sync.RWMutex
	entry *Entry
	ttl   time.Duration
	now   func() time.Time
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache{ttl: ttl, now: time.Now}
}

// WithClock swaps the time source, letting tests control freshness without
// sleeping.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the entry while it is still fresh, or reports a miss.
func (c *Cache) Get() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.entry == nil || c.now().Sub(c.entry.CapturedAt) >= c.ttl {
		return Entry{}, false
	}

	return *c.entry, true
}

// Put replaces the entry wholesale, stamped with the current time.
func (c *Cache) Put(texts []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entry = &Entry{
		Texts:      texts,
		CapturedAt: c.now(),
		Count:      len(texts),
	}
}

// Clear drops the entry regardless of freshness.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entry = nil
}

// CurrentStatus reports on the entry, stale or not.
func (c *Cache) CurrentStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ttlSeconds := int(c.ttl.Seconds())
	if c.entry == nil {
		return Status{
			TTLSeconds: ttlSeconds,
		}
	}

	age := int(c.now().Sub(c.entry.CapturedAt).Seconds())
	remaining := max(0, ttlSeconds-age)

	capturedAt := c.entry.CapturedAt
	return Status{
		Cached:       c.now().Sub(capturedAt) < c.ttl,
		Count:        c.entry.Count,
		Timestamp:    &capturedAt,
		AgeSeconds:   &age,
		TTLSeconds:   ttlSeconds,
		RemainingTTL: remaining,
	}
}
