package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"PricePulse/internal/domain/models"
	applogger "PricePulse/pkg/logger"
)

type bestDealer interface {
	BestDeals(ctx context.Context, n int) ([]models.BestDeal, error)
}

type evaluator interface {
	Evaluate(ctx context.Context, productID, retailer, source string) (*models.DealEvaluation, error)
}

// DealSweep periodically re-evaluates the cheapest current offers and publishes
// alerts for the ones that qualify as deals.
type DealSweep struct {
	deals   bestDealer
	eval    evaluator
	topN    int
	cron    *cron.Cron
	running sync.Mutex
	l       *applogger.Logger
}

func NewDealSweep(deals bestDealer, eval evaluator, topN int) *DealSweep {
	if topN <= 0 {
		topN = 10
	}
	return &DealSweep{deals: deals, eval: eval, topN: topN, cron: cron.New(), l: applogger.Nop()}
}

func (s *DealSweep) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// Start registers the sweep on schedule (standard cron spec or @every) and starts the scheduler.
func (s *DealSweep) Start(ctx context.Context, schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.l.Error("deal sweep failed", applogger.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("register deal sweep: %w", err)
	}
	s.cron.Start()
	s.l.Info("deal sweep scheduled", applogger.String("schedule", schedule), applogger.Int("top_n", s.topN))
	return nil
}

// Stop stops the scheduler and waits for a running sweep, bounded by ctx.
func (s *DealSweep) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		s.l.Info("deal sweep stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("deal sweep stop: %w", ctx.Err())
	}
}

// RunOnce evaluates the current top offers and returns how many alerts went out.
// Overlapping runs are skipped.
func (s *DealSweep) RunOnce(ctx context.Context) (int, error) {
	if !s.running.TryLock() {
		s.l.Warn("deal sweep still running, skipping")
		return 0, nil
	}
	defer s.running.Unlock()

	start := time.Now()
	best, err := s.deals.BestDeals(ctx, s.topN)
	if err != nil {
		return 0, fmt.Errorf("best deals: %w", err)
	}
	published := 0
	for _, b := range best {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}
		ev, err := s.eval.Evaluate(ctx, b.ProductID, b.Retailer, models.AlertSourceSweep)
		if err != nil {
			s.l.Warn("deal sweep: evaluate",
				applogger.String("product_id", b.ProductID),
				applogger.String("retailer", b.Retailer),
				applogger.Error(err),
			)
			continue
		}
		if ev.Deal.IsDeal && ev.AlertID != "" {
			published++
		}
	}
	s.l.Info("deal sweep done",
		applogger.Int("checked", len(best)),
		applogger.Int("deals", published),
		applogger.Duration("elapsed_ms", time.Since(start)),
	)
	return published, nil
}
