package usecase

import (
	"context"
	"fmt"
	"time"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	domsvc "PricePulse/internal/domain/service"
	applogger "PricePulse/pkg/logger"
)

// RecommendService loads an activity snapshot and a price window and ranks the catalog.
type RecommendService struct {
	activity     domrepo.ActivityStore
	store        domrepo.PriceStore
	catalog      domrepo.Catalog
	ranker       domsvc.Ranker
	metrics      domrepo.Metrics
	snapshotDays int
	l            *applogger.Logger
}

func NewRecommendService(activity domrepo.ActivityStore, store domrepo.PriceStore, catalog domrepo.Catalog, ranker domsvc.Ranker, snapshotDays int) *RecommendService {
	if snapshotDays <= 0 {
		snapshotDays = 30
	}
	return &RecommendService{activity: activity, store: store, catalog: catalog, ranker: ranker, snapshotDays: snapshotDays}
}

func (s *RecommendService) SetLogger(l *applogger.Logger) { s.l = l }

func (s *RecommendService) SetMetrics(m domrepo.Metrics) { s.metrics = m }

// Recommend ranks products for the identity. Anonymous callers get a cold-start list.
func (s *RecommendService) Recommend(ctx context.Context, id models.Identity, limit int) (models.RecommendationSet, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordLatency("recommend", time.Since(start).Seconds())
		}
	}()

	snap := models.ActivitySnapshot{Identity: id, Views: map[string]int{}, Tracked: []string{}}
	if !id.IsAnonymous() {
		var err error
		if snap, err = s.activity.Snapshot(ctx, id); err != nil {
			return models.RecommendationSet{}, s.fail(fmt.Errorf("activity snapshot: %w", err))
		}
	}

	prices, err := s.store.Snapshot(ctx, s.snapshotDays)
	if err != nil {
		return models.RecommendationSet{}, s.fail(&models.StageError{Stage: models.StageLoadSeries, Err: err})
	}

	set, err := s.ranker.Rank(ctx, models.RankingInput{
		Activity: snap,
		Catalog:  s.catalog.Products(),
		Prices:   prices,
	}, limit)
	if err != nil {
		return models.RecommendationSet{}, s.fail(err)
	}
	if s.l != nil {
		s.l.Info("recommend.ok",
			applogger.String("identity", id.Key()),
			applogger.Int("count", set.TotalCount),
			applogger.Float64("personalization", set.PersonalizationScore),
		)
	}
	return set, nil
}

// RecordView counts a product view for the identity.
func (s *RecommendService) RecordView(ctx context.Context, id models.Identity, productID string) error {
	if err := s.checkProduct(productID); err != nil {
		return err
	}
	return s.activity.RecordView(ctx, id, productID)
}

// Track adds the product to the identity's tracked set.
func (s *RecommendService) Track(ctx context.Context, id models.Identity, productID string) error {
	if err := s.checkProduct(productID); err != nil {
		return err
	}
	return s.activity.Track(ctx, id, productID)
}

func (s *RecommendService) Untrack(ctx context.Context, id models.Identity, productID string) error {
	return s.activity.Untrack(ctx, id, productID)
}

func (s *RecommendService) checkProduct(productID string) error {
	if productID == "" {
		return fmt.Errorf("%w: product id is required", models.ErrInvalidInput)
	}
	if _, ok := s.catalog.Product(productID); !ok {
		return models.StageErrorf(models.StageCatalogLookup, models.ErrProductNotFound, "%s", productID)
	}
	return nil
}

func (s *RecommendService) fail(err error) error {
	if s.metrics != nil {
		s.metrics.RecordError("recommend:" + ErrorKind(err))
	}
	if s.l != nil {
		s.l.Error("recommend.failed", applogger.Error(err))
	}
	return err
}
