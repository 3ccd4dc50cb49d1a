package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
)

var _ domrepo.ActivityStore = (*RedisActivityStore)(nil)

// RedisActivityStore keeps view counters in a hash and tracked products in a set per identity:
// <prefix>:activity:<user|session>:<id>:views and ...:tracked.
type RedisActivityStore struct {
	cli    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisActivityStore creates the store; ttl > 0 expires idle identities.
func NewRedisActivityStore(cli redis.UniversalClient, prefix string, ttl time.Duration) *RedisActivityStore {
	return &RedisActivityStore{cli: cli, prefix: prefix, ttl: ttl}
}

func (s *RedisActivityStore) keys(id models.Identity) (views, tracked string, err error) {
	k := id.Key()
	if k == "" {
		return "", "", fmt.Errorf("%w: user_id or session_id required", models.ErrInvalidInput)
	}
	base := s.prefix + ":activity:" + k
	return base + ":views", base + ":tracked", nil
}

func (s *RedisActivityStore) touch(ctx context.Context, pipe redis.Pipeliner, keys ...string) {
	if s.ttl <= 0 {
		return
	}
	for _, k := range keys {
		pipe.Expire(ctx, k, s.ttl)
	}
}

func (s *RedisActivityStore) RecordView(ctx context.Context, id models.Identity, productID string) error {
	views, tracked, err := s.keys(id)
	if err != nil {
		return err
	}
	_, err = s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, views, productID, 1)
		s.touch(ctx, pipe, views, tracked)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record view: %w", err)
	}
	return nil
}

func (s *RedisActivityStore) Track(ctx context.Context, id models.Identity, productID string) error {
	views, tracked, err := s.keys(id)
	if err != nil {
		return err
	}
	_, err = s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, tracked, productID)
		s.touch(ctx, pipe, views, tracked)
		return nil
	})
	if err != nil {
		return fmt.Errorf("track: %w", err)
	}
	return nil
}

func (s *RedisActivityStore) Untrack(ctx context.Context, id models.Identity, productID string) error {
	_, tracked, err := s.keys(id)
	if err != nil {
		return err
	}
	if err := s.cli.SRem(ctx, tracked, productID).Err(); err != nil {
		return fmt.Errorf("untrack: %w", err)
	}
	return nil
}

func (s *RedisActivityStore) Snapshot(ctx context.Context, id models.Identity) (models.ActivitySnapshot, error) {
	snap := models.ActivitySnapshot{Identity: id, Views: map[string]int{}, Tracked: []string{}}
	if id.IsAnonymous() {
		return snap, nil
	}
	views, tracked, _ := s.keys(id)

	var (
		hv *redis.MapStringStringCmd
		sm *redis.StringSliceCmd
	)
	_, err := s.cli.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		hv = pipe.HGetAll(ctx, views)
		sm = pipe.SMembers(ctx, tracked)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return snap, fmt.Errorf("%w: activity snapshot: %v", models.ErrDatasetUnavailable, err)
	}
	for product, raw := range hv.Val() {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			snap.Views[product] = n
		}
	}
	snap.Tracked = append(snap.Tracked, sm.Val()...)
	sort.Strings(snap.Tracked)
	return snap, nil
}
