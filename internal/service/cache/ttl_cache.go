package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	v   any
	exp time.Time
	seq uint64
}

// TTLCache is an in-process cache with per-entry expiry and an optional capacity.
// When full, the oldest inserted entry is evicted.
type TTLCache struct {
	mu       sync.RWMutex
	m        map[string]entry
	capacity int
	seq      uint64
	now      func() time.Time
}

type TTLOption func(*TTLCache)

// WithCapacity bounds the number of live entries (0 = unbounded).
func WithCapacity(n int) TTLOption { return func(c *TTLCache) { c.capacity = n } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) TTLOption { return func(c *TTLCache) { c.now = now } }

func NewTTLCache(opts ...TTLOption) *TTLCache {
	c := &TTLCache{m: make(map[string]entry), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.v, true
}

func (c *TTLCache) Set(key string, v any, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[key]; !exists && c.capacity > 0 && len(c.m) >= c.capacity {
		c.evictLocked()
	}
	c.seq++
	c.m[key] = entry{v: v, exp: exp, seq: c.seq}
}

func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// evictLocked drops expired entries, or the oldest one if none expired.
func (c *TTLCache) evictLocked() {
	now := c.now()
	var (
		oldestKey string
		oldestSeq uint64
		expired   bool
	)
	for k, e := range c.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.m, k)
			expired = true
			continue
		}
		if oldestKey == "" || e.seq < oldestSeq {
			oldestKey, oldestSeq = k, e.seq
		}
	}
	if !expired && oldestKey != "" {
		delete(c.m, oldestKey)
	}
}

// Implement BytesCache
func (c *TTLCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	if v, ok := c.Get(key); ok {
		if b, ok2 := v.([]byte); ok2 {
			return b, true, nil
		}
		return nil, false, nil
	}
	return nil, false, nil
}

func (c *TTLCache) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.Set(key, value, ttl)
	return nil
}
