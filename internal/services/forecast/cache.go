package forecast

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"PricePulse/internal/domain/models"
	"PricePulse/internal/service/cache"
)

// ModelCache memoises fitted ensembles for the lifetime of its owner.
type ModelCache struct {
	store *cache.TTLCache
	ttl   time.Duration
}

// NewModelCache creates a cache holding at most capacity ensembles for ttl each.
func NewModelCache(ttl time.Duration, capacity int) *ModelCache {
	return &ModelCache{store: cache.NewTTLCache(cache.WithCapacity(capacity)), ttl: ttl}
}

func (c *ModelCache) Get(key string) (*Ensemble, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	e, ok := v.(*Ensemble)
	return e, ok
}

func (c *ModelCache) Put(key string, e *Ensemble) {
	if c == nil {
		return
	}
	c.store.Set(key, e, c.ttl)
}

func (c *ModelCache) Len() int {
	if c == nil {
		return 0
	}
	return c.store.Len()
}

// Fingerprint identifies a training series together with the model settings.
func Fingerprint(s models.PriceSeries, cfg Config) string {
	h := fnv.New64a()
	var buf [8]byte
	for _, p := range s.Points {
		binary.LittleEndian.PutUint64(buf[:], uint64(p.Date.Unix()))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(p.Price))
		h.Write(buf[:])
	}
	fmt.Fprintf(h, "|%d|%d|%d|%d|%d|%g|%d", cfg.Trees, cfg.TreeDepth, cfg.MaxFeatures, cfg.BoostRounds, cfg.BoostDepth, cfg.LearningRate, cfg.Seed)

	last := ""
	if n := s.Len(); n > 0 {
		last = s.Last().Date.Format(time.DateOnly)
	}
	return fmt.Sprintf("%s:%s:%d:%s:%016x", s.ProductID, s.Retailer, s.Len(), last, h.Sum64())
}
