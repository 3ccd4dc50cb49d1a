package cache

import (
	"context"
	"time"
)

// LayeredCache implements a two-level BytesCache (L1: process memory, L2: shared store).
type LayeredCache struct {
	mem    *TTLCache
	shared BytesCache
	l1TTL  time.Duration
}

// NewLayeredCache keeps up to memSize entries in memory; L1 entries never outlive l1TTL.
func NewLayeredCache(shared BytesCache, memSize int, l1TTL time.Duration) *LayeredCache {
	return &LayeredCache{mem: NewTTLCache(WithCapacity(memSize)), shared: shared, l1TTL: l1TTL}
}

func (lc *LayeredCache) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	if b, ok, _ := lc.mem.GetBytes(ctx, key); ok {
		return b, true, nil
	}
	b, ok, err := lc.shared.GetBytes(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = lc.mem.SetBytes(ctx, key, b, lc.l1TTL)
	return b, true, nil
}

// SetBytes writes through: shared store first, then memory.
func (lc *LayeredCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := lc.shared.SetBytes(ctx, key, value, ttl); err != nil {
		return err
	}
	l1 := ttl
	if lc.l1TTL > 0 && (l1 <= 0 || lc.l1TTL < l1) {
		l1 = lc.l1TTL
	}
	return lc.mem.SetBytes(ctx, key, value, l1)
}
