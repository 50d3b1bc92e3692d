package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a TTLCache built without an explicit size.
const DefaultMaxEntries = 4096

type entry struct {
	b   []byte
	exp time.Time
}

// TTLCache is a process-local BytesCache holding at most max entries. When
// full, expired entries are swept first and then the entry closest to expiry
// is evicted.
type TTLCache struct {
	mu  sync.Mutex
	m   map[string]entry
	max int
	now func() time.Time
}

func NewTTLCache(maxEntries int) *TTLCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &TTLCache{m: make(map[string]entry), max: maxEntries, now: time.Now}
}

func (c *TTLCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false, nil
	}
	if c.expired(e, c.now()) {
		delete(c.m, key)
		return nil, false, nil
	}
	return e.b, true, nil
}

func (c *TTLCache) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := c.now()
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[key]; !ok && len(c.m) >= c.max {
		c.evict(now)
	}
	c.m[key] = entry{b: value, exp: exp}
	return nil
}

func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func (c *TTLCache) expired(e entry, now time.Time) bool {
	return !e.exp.IsZero() && now.After(e.exp)
}

// evict must be called with mu held.
func (c *TTLCache) evict(now time.Time) {
	var (
		victim string
		soon   time.Time
	)
	for k, e := range c.m {
		if c.expired(e, now) {
			delete(c.m, k)
			continue
		}
		if victim == "" || (!e.exp.IsZero() && (soon.IsZero() || e.exp.Before(soon))) {
			victim, soon = k, e.exp
		}
	}
	if len(c.m) >= c.max && victim != "" {
		delete(c.m, victim)
	}
}
