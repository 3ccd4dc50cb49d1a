package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	domsvc "PricePulse/internal/domain/service"
	icache "PricePulse/internal/service/cache"
	applogger "PricePulse/pkg/logger"
)

// IngestService appends observations and re-evaluates the deal signal of the
// affected product, publishing an alert when it fires.
type IngestService struct {
	store     domrepo.PriceStore
	catalog   domrepo.Catalog
	detector  domsvc.DealDetector
	fc        domsvc.Forecaster
	pub       domrepo.AlertPublisher
	metrics   domrepo.Metrics
	seen      *icache.TTLCache
	dedupTTL  time.Duration
	minPoints int
	newID     func() string
	now       func() time.Time
	l         *applogger.Logger
}

type IngestOption func(*IngestService)

// WithAlertPublisher sets where deal alerts go. Without one, deals are only returned.
func WithAlertPublisher(p domrepo.AlertPublisher) IngestOption {
	return func(s *IngestService) { s.pub = p }
}

// WithIngestForecaster adds the day-1 forecast lower bound criterion for series
// with at least minPoints observations.
func WithIngestForecaster(fc domsvc.Forecaster, minPoints int) IngestOption {
	return func(s *IngestService) {
		s.fc = fc
		if minPoints > 0 {
			s.minPoints = minPoints
		}
	}
}

func WithIngestMetrics(m domrepo.Metrics) IngestOption {
	return func(s *IngestService) { s.metrics = m }
}

// WithAlertDedup suppresses repeat alerts for the same product, retailer and day for ttl.
func WithAlertDedup(ttl time.Duration) IngestOption {
	return func(s *IngestService) { s.dedupTTL = ttl }
}

func WithIngestClock(now func() time.Time) IngestOption {
	return func(s *IngestService) { s.now = now }
}

func NewIngestService(store domrepo.PriceStore, catalog domrepo.Catalog, detector domsvc.DealDetector, opts ...IngestOption) *IngestService {
	s := &IngestService{
		store:     store,
		catalog:   catalog,
		detector:  detector,
		seen:      icache.NewTTLCache(icache.WithCapacity(10000)),
		dedupTTL:  24 * time.Hour,
		minPoints: 10,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *IngestService) SetLogger(l *applogger.Logger) { s.l = l }

// Process implements the ingest pipeline's downstream.
func (s *IngestService) Process(ctx context.Context, p *models.PricePoint) error {
	if p == nil {
		return fmt.Errorf("%w: nil observation", models.ErrInvalidInput)
	}
	_, err := s.Ingest(ctx, *p)
	return err
}

// Ingest validates and stores one observation, then evaluates it for a deal.
func (s *IngestService) Ingest(ctx context.Context, p models.PricePoint) (*models.DealEvaluation, error) {
	p.ProductID = strings.TrimSpace(p.ProductID)
	p.Retailer = strings.TrimSpace(p.Retailer)
	if err := ValidateObservation(p); err != nil {
		s.recordError("ingest_validate")
		return nil, err
	}
	p.Date = models.Day(p.Date)
	if s.catalog != nil {
		if _, ok := s.catalog.Product(p.ProductID); !ok {
			s.recordError("ingest_unknown_product")
			return nil, models.StageErrorf(models.StageCatalogLookup, models.ErrProductNotFound, "%s", p.ProductID)
		}
	}

	start := time.Now()
	if err := s.store.Append(ctx, p); err != nil {
		s.recordError("ingest_append")
		return nil, fmt.Errorf("append observation: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordLatency("ingest_append", time.Since(start).Seconds())
		s.metrics.RecordLastPrice(p.ProductID, p.Retailer, p.Price)
	}
	return s.evaluate(ctx, p.ProductID, p.Retailer, p.Date, models.AlertSourceIngest)
}

// Evaluate re-checks the latest price of productID at retailer against the
// product's full history and same-day competitor prices.
func (s *IngestService) Evaluate(ctx context.Context, productID, retailer, source string) (*models.DealEvaluation, error) {
	return s.evaluate(ctx, productID, retailer, time.Time{}, source)
}

// evaluate checks the retailer's observation on day, or its latest one when day
// is zero. A backfilled day is judged only against what was known up to it.
func (s *IngestService) evaluate(ctx context.Context, productID, retailer string, day time.Time, source string) (*models.DealEvaluation, error) {
	points, err := s.store.LoadProduct(ctx, productID)
	if err != nil {
		return nil, &models.StageError{Stage: models.StageLoadSeries, Err: err}
	}
	if !day.IsZero() {
		points = upTo(points, day)
	}
	own := models.FilterRetailer(points, retailer)
	if len(own) == 0 {
		return nil, models.StageErrorf(models.StageLoadSeries, models.ErrProductNotFound, "%s at %s", productID, retailer)
	}
	latest := own[len(own)-1]

	in := models.DealInput{
		Price:       latest.Price,
		History:     pricesOf(points),
		Competitors: competitorPrices(points, latest.Date, retailer),
	}
	if lower, ok := s.forecastLower(ctx, productID, retailer, own); ok {
		in.ForecastLower, in.HasForecast = lower, true
	}

	ev := &models.DealEvaluation{
		ProductID: productID,
		Retailer:  retailer,
		Date:      latest.Date,
		Price:     latest.Price,
		Deal:      s.detector.Detect(in),
	}
	if ev.Deal.IsDeal {
		ev.AlertID = s.publish(ctx, ev, source)
	}
	return ev, nil
}

func upTo(points []models.PricePoint, day time.Time) []models.PricePoint {
	out := make([]models.PricePoint, 0, len(points))
	for _, p := range points {
		if !p.Date.After(day) {
			out = append(out, p)
		}
	}
	return out
}

// forecastLower returns the day-1 lower bound; failures only drop the criterion.
func (s *IngestService) forecastLower(ctx context.Context, productID, retailer string, own []models.PricePoint) (float64, bool) {
	if s.fc == nil || len(own) < s.minPoints {
		return 0, false
	}
	series, err := models.NewPriceSeries(productID, retailer, own)
	if err == nil {
		var proj models.Projection
		proj, err = s.fc.Forecast(ctx, series, 1)
		if err == nil && len(proj.Forecast) > 0 {
			return proj.Forecast[0].LowerBound, true
		}
	}
	if err != nil && s.l != nil {
		s.l.Debug("ingest.forecast skipped",
			applogger.String("product_id", productID),
			applogger.String("retailer", retailer),
			applogger.Error(err),
		)
	}
	return 0, false
}

// publish sends one alert per product, retailer and day and returns its id,
// or "" when the alert was suppressed or not delivered.
func (s *IngestService) publish(ctx context.Context, ev *models.DealEvaluation, source string) string {
	key := fmt.Sprintf("%s|%s|%s", ev.ProductID, ev.Retailer, ev.Date.Format(time.DateOnly))
	if v, ok := s.seen.Get(key); ok {
		id, _ := v.(string)
		return id
	}
	alert := &models.DealAlert{
		ID:         s.newID(),
		ProductID:  ev.ProductID,
		Retailer:   ev.Retailer,
		Price:      ev.Price,
		Reasons:    ev.Deal.Reasons,
		Source:     source,
		DetectedAt: s.now().UTC(),
	}
	if s.metrics != nil {
		s.metrics.RecordDeal(ev.ProductID, source)
	}
	if s.pub != nil {
		if err := s.pub.PublishDeal(ctx, alert); err != nil {
			s.recordError("alert_publish")
			if s.l != nil {
				s.l.Error("ingest.alert publish failed", applogger.String("product_id", ev.ProductID), applogger.Error(err))
			}
			return ""
		}
	}
	s.seen.Set(key, alert.ID, s.dedupTTL)
	if s.l != nil {
		s.l.Info("deal.detected",
			applogger.String("id", alert.ID),
			applogger.String("product_id", alert.ProductID),
			applogger.String("retailer", alert.Retailer),
			applogger.Float64("price", alert.Price),
			applogger.String("source", source),
		)
	}
	return alert.ID
}

func (s *IngestService) recordError(kind string) {
	if s.metrics != nil {
		s.metrics.RecordError(kind)
	}
}

// ValidateObservation rejects observations the stores cannot hold.
func ValidateObservation(p models.PricePoint) error {
	switch {
	case p.ProductID == "":
		return fmt.Errorf("%w: product_id is required", models.ErrInvalidInput)
	case p.Retailer == "":
		return fmt.Errorf("%w: retailer is required", models.ErrInvalidInput)
	case p.Date.IsZero():
		return fmt.Errorf("%w: date is required", models.ErrInvalidInput)
	case math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price <= 0:
		return fmt.Errorf("%w: price must be positive, got %v", models.ErrInvalidInput, p.Price)
	}
	return nil
}
