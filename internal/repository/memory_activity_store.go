package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
)

var _ domrepo.ActivityStore = (*MemoryActivityStore)(nil)

type activity struct {
	views   map[string]int
	tracked map[string]struct{}
}

// MemoryActivityStore keeps activity per identity key in process memory.
type MemoryActivityStore struct {
	mu   sync.Mutex
	byID map[string]*activity
}

func NewMemoryActivityStore() *MemoryActivityStore {
	return &MemoryActivityStore{byID: make(map[string]*activity)}
}

func (s *MemoryActivityStore) entry(id models.Identity) (*activity, error) {
	key := id.Key()
	if key == "" {
		return nil, fmt.Errorf("%w: user_id or session_id required", models.ErrInvalidInput)
	}
	a, ok := s.byID[key]
	if !ok {
		a = &activity{views: make(map[string]int), tracked: make(map[string]struct{})}
		s.byID[key] = a
	}
	return a, nil
}

func (s *MemoryActivityStore) RecordView(ctx context.Context, id models.Identity, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.entry(id)
	if err != nil {
		return err
	}
	a.views[productID]++
	return nil
}

func (s *MemoryActivityStore) Track(ctx context.Context, id models.Identity, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.entry(id)
	if err != nil {
		return err
	}
	a.tracked[productID] = struct{}{}
	return nil
}

func (s *MemoryActivityStore) Untrack(ctx context.Context, id models.Identity, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.entry(id)
	if err != nil {
		return err
	}
	delete(a.tracked, productID)
	return nil
}

// Snapshot copies the identity's activity; unknown and anonymous identities get an empty snapshot.
func (s *MemoryActivityStore) Snapshot(ctx context.Context, id models.Identity) (models.ActivitySnapshot, error) {
	snap := models.ActivitySnapshot{Identity: id, Views: map[string]int{}, Tracked: []string{}}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id.Key()]
	if !ok {
		return snap, nil
	}
	for k, v := range a.views {
		snap.Views[k] = v
	}
	for k := range a.tracked {
		snap.Tracked = append(snap.Tracked, k)
	}
	sort.Strings(snap.Tracked)
	return snap, nil
}
