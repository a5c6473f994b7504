package eventsub

import (
	"sync"
	"time"
)

// dedupeCache remembers recently seen EventSub message ids. Twitch retries
// deliveries it thinks failed, and the game state must not absorb a bonus
// twice.
type dedupeCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

func newDedupeCache(ttl time.Duration) *dedupeCache {
	return &dedupeCache{ttl: ttl, seen: map[string]time.Time{}}
}

// add records the id and reports whether it was new.
func (c *dedupeCache) add(id string) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.seen[id]; ok && now.Sub(t) < c.ttl {
		return false
	}
	c.seen[id] = now
	if len(c.seen) > 4096 {
		c.evictLocked(now)
	}
	return true
}

func (c *dedupeCache) evictLocked(now time.Time) {
	for id, t := range c.seen {
		if now.Sub(t) >= c.ttl {
			delete(c.seen, id)
		}
	}
}
