// Package dedupe remembers recently seen keys for a bounded time.
package dedupe

import (
	"sync"
	"time"
)

type entry[K comparable] struct {
	key K
	ts  time.Time
}

// Cache keeps a fixed-size set of recently seen keys, such as article ids
// announced more than once on the trigger topic.
type Cache[K comparable] struct {
	mu       sync.Mutex
	items    map[K]time.Time
	order    []entry[K]
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache[K comparable](capacity int, ttl time.Duration) *Cache[K] {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache[K]{
		items:    make(map[K]time.Time, capacity),
		order:    make([]entry[K], 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// CheckAndMark reports whether key was already seen inside the ttl window
// and records it either way.
func (c *Cache[K]) CheckAndMark(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.seen(key, now) {
		return true
	}
	c.mark(key, now)
	return false
}

func (c *Cache[K]) seen(key K, now time.Time) bool {
	ts, ok := c.items[key]
	return ok && now.Sub(ts) <= c.ttl
}

func (c *Cache[K]) mark(key K, now time.Time) {
	c.items[key] = now
	c.order = append(c.order, entry[K]{key: key, ts: now})
	c.compact(now)
}

func (c *Cache[K]) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		if ts, ok := c.items[oldest.key]; ok {
			if ts == oldest.ts {
				delete(c.items, oldest.key)
			}
		}
	}
}
