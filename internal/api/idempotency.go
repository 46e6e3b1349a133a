package api

import (
	"sync"
	"time"
)

// idempotencyTTL is how long a finished checkout is replayed for its key.
const idempotencyTTL = 24 * time.Hour

// idempotencyCache remembers successful checkouts by the client's
// Idempotency-Key so a resubmitted request returns the first sale.
// Failed attempts are forgotten and may be retried with the same key.
// Finished entries expire ttl after they were stored.
type idempotencyCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*idempotencyEntry
}

type idempotencyEntry struct {
	done     bool
	body     any
	finished time.Time
}

func newIdempotencyCache(ttl time.Duration) *idempotencyCache {
	return &idempotencyCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*idempotencyEntry),
	}
}

// begin claims key. It returns the stored body when the key already
// succeeded, and inFlight when another request holds it.
func (c *idempotencyCache) begin(key string) (body any, done, inFlight bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evict()
	if e, ok := c.entries[key]; ok {
		return e.body, e.done, !e.done
	}
	c.entries[key] = &idempotencyEntry{}
	return nil, false, false
}

func (c *idempotencyCache) finish(key string, body any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &idempotencyEntry{done: true, body: body, finished: c.now()}
}

func (c *idempotencyCache) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// evict drops finished entries older than ttl. In-flight claims are kept.
// Callers hold mu.
func (c *idempotencyCache) evict() {
	cutoff := c.now().Add(-c.ttl)
	for k, e := range c.entries {
		if e.done && e.finished.Before(cutoff) {
			delete(c.entries, k)
		}
	}
}

func (c *idempotencyCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
