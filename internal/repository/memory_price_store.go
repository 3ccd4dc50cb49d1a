package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	applogger "PricePulse/pkg/logger"
)

var _ domrepo.PriceStore = (*MemoryPriceStore)(nil)

// MemoryPriceStore keeps observations per product in date/retailer order.
// Readers always receive copies.
type MemoryPriceStore struct {
	mu        sync.RWMutex
	byProduct map[string][]models.PricePoint
	latest    time.Time
	seed      func() ([]models.PricePoint, error)
	seeded    bool
	l         *applogger.Logger
}

// NewMemoryPriceStore creates a store; seed (optional) is loaded by Init.
func NewMemoryPriceStore(seed func() ([]models.PricePoint, error)) *MemoryPriceStore {
	return &MemoryPriceStore{byProduct: make(map[string][]models.PricePoint), seed: seed}
}

func (s *MemoryPriceStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *MemoryPriceStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seed == nil || s.seeded {
		return nil
	}
	start := time.Now()
	points, err := s.seed()
	if err != nil {
		return fmt.Errorf("seed price store: %w", err)
	}
	for _, p := range points {
		s.upsert(p)
	}
	s.seeded = true
	if s.l != nil {
		s.l.Info("memory price store seeded",
			applogger.Int("rows", len(points)),
			applogger.Int("products", len(s.byProduct)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func (s *MemoryPriceStore) LoadProduct(ctx context.Context, productID string) ([]models.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pts := s.byProduct[productID]
	out := make([]models.PricePoint, len(pts))
	copy(out, pts)
	return out, nil
}

func (s *MemoryPriceStore) ProductIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byProduct))
	for id := range s.byProduct {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryPriceStore) Snapshot(ctx context.Context, lookbackDays int) ([]models.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cutoff time.Time
	if lookbackDays > 0 {
		cutoff = s.latest.AddDate(0, 0, -lookbackDays)
	}
	ids := make([]string, 0, len(s.byProduct))
	for id := range s.byProduct {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []models.PricePoint
	for _, id := range ids {
		for _, p := range s.byProduct[id] {
			if !p.Date.Before(cutoff) {
				out = append(out, p)
			}
		}
	}
	models.SortPoints(out)
	return out, nil
}

// Append inserts p, replacing an existing observation of the same product, retailer and day.
func (s *MemoryPriceStore) Append(ctx context.Context, p models.PricePoint) error {
	if p.ProductID == "" || p.Retailer == "" || p.Price <= 0 {
		return fmt.Errorf("%w: observation %+v", models.ErrInvalidInput, p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsert(p)
	return nil
}

func (s *MemoryPriceStore) upsert(p models.PricePoint) {
	p.Date = models.Day(p.Date)
	pts := s.byProduct[p.ProductID]
	i := sort.Search(len(pts), func(i int) bool {
		q := pts[i]
		if !q.Date.Equal(p.Date) {
			return q.Date.After(p.Date)
		}
		return q.Retailer >= p.Retailer
	})
	if i < len(pts) && pts[i].Date.Equal(p.Date) && pts[i].Retailer == p.Retailer {
		pts[i] = p
	} else {
		pts = append(pts, models.PricePoint{})
		copy(pts[i+1:], pts[i:])
		pts[i] = p
	}
	s.byProduct[p.ProductID] = pts
	if p.Date.After(s.latest) {
		s.latest = p.Date
	}
}

func (s *MemoryPriceStore) Health(ctx context.Context) error { return nil }

func (s *MemoryPriceStore) Close() error { return nil }
