package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PricePulse/internal/domain/models"
	"PricePulse/internal/services/deals"
)

type fakePublisher struct {
	mu     sync.Mutex
	alerts []*models.DealAlert
	err    error
}

func (p *fakePublisher) PublishDeal(_ context.Context, a *models.DealAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.alerts = append(p.alerts, a)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.alerts)
}

func newTestIngest(t *testing.T, pub *fakePublisher, opts ...IngestOption) *IngestService {
	t.Helper()
	opts = append([]IngestOption{
		WithAlertPublisher(pub),
		WithIngestClock(func() time.Time { return lastDay().Add(time.Hour) }),
	}, opts...)
	s := NewIngestService(testStore(t), testCatalog(t), deals.NewDetector(deals.DefaultConfig()), opts...)
	n := 0
	s.newID = func() string {
		n++
		return "alert-" + string(rune('0'+n))
	}
	return s
}

func obs(retailer string, price float64) models.PricePoint {
	return models.PricePoint{ProductID: "P001", Retailer: retailer, Date: day0.AddDate(0, 0, 40), Price: price}
}

func TestIngestPublishesDealOnce(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestIngest(t, pub)
	ctx := context.Background()

	ev, err := s.Ingest(ctx, obs("Croma", 500))
	require.NoError(t, err)
	assert.True(t, ev.Deal.IsDeal)
	assert.Equal(t, "alert-1", ev.AlertID)
	assert.True(t, ev.Date.Equal(day0.AddDate(0, 0, 40)))
	require.Equal(t, 1, pub.count())
	a := pub.alerts[0]
	assert.Equal(t, "P001", a.ProductID)
	assert.Equal(t, "Croma", a.Retailer)
	assert.Equal(t, models.AlertSourceIngest, a.Source)
	assert.Equal(t, 500.0, a.Price)
	assert.NotEmpty(t, a.Reasons)

	// same product, retailer and day: the earlier alert stands
	ev, err = s.Ingest(ctx, obs("Croma", 490))
	require.NoError(t, err)
	assert.True(t, ev.Deal.IsDeal)
	assert.Equal(t, "alert-1", ev.AlertID)
	assert.Equal(t, 1, pub.count())
}

func TestIngestEvaluatesBackfilledDay(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestIngest(t, pub)
	day10 := day0.AddDate(0, 0, 10)

	p := obs("Croma", 500)
	p.Date = day10
	ev, err := s.Ingest(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, ev.Date.Equal(day10))
	assert.Equal(t, 500.0, ev.Price)
	assert.True(t, ev.Deal.IsDeal)
	require.Equal(t, 1, pub.count())
	assert.Equal(t, 500.0, pub.alerts[0].Price)

	// the sweep path still looks at the latest day
	ev, err = s.Evaluate(context.Background(), "P001", "Croma", models.AlertSourceSweep)
	require.NoError(t, err)
	assert.True(t, ev.Date.Equal(lastDay()))
	assert.Equal(t, 900.0, ev.Price)
}

func TestIngestOrdinaryPrice(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestIngest(t, pub)

	ev, err := s.Ingest(context.Background(), obs("Amazon.in", 1000))
	require.NoError(t, err)
	assert.False(t, ev.Deal.IsDeal)
	assert.Empty(t, ev.AlertID)
	assert.Zero(t, pub.count())
}

func TestIngestRejects(t *testing.T) {
	s := newTestIngest(t, &fakePublisher{})
	ctx := context.Background()

	_, err := s.Ingest(ctx, obs("Croma", 0))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = s.Ingest(ctx, obs("", 10))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	p := obs("Croma", 10)
	p.ProductID = "P404"
	_, err = s.Ingest(ctx, p)
	assert.ErrorIs(t, err, models.ErrProductNotFound)

	assert.ErrorIs(t, s.Process(ctx, nil), models.ErrInvalidInput)
}

func TestIngestPublishFailureIsRetried(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	s := newTestIngest(t, pub)
	ctx := context.Background()

	ev, err := s.Ingest(ctx, obs("Croma", 500))
	require.NoError(t, err)
	assert.True(t, ev.Deal.IsDeal)
	assert.Empty(t, ev.AlertID)

	pub.err = nil
	ev, err = s.Ingest(ctx, obs("Croma", 500))
	require.NoError(t, err)
	assert.NotEmpty(t, ev.AlertID)
	assert.Equal(t, 1, pub.count())
}

func TestIngestForecastLowerBound(t *testing.T) {
	fc := &stubForecaster{path: []float64{2000}}
	s := newTestIngest(t, &fakePublisher{}, WithIngestForecaster(fc, 10))
	ctx := context.Background()

	ev, err := s.Ingest(ctx, obs("Amazon.in", 1000))
	require.NoError(t, err)
	assert.Equal(t, 1, fc.calls)
	assert.True(t, ev.Deal.IsDeal)
	assert.Contains(t, ev.Deal.Reason, "forecast lower bound")

	// one observation is too short to forecast
	_, err = s.Ingest(ctx, obs("Vijay", 1000))
	require.NoError(t, err)
	assert.Equal(t, 1, fc.calls)

	// forecast failures only drop the criterion
	fc.err = models.ErrInsufficientData
	ev, err = s.Ingest(ctx, obs("Amazon.in", 1001))
	require.NoError(t, err)
	assert.False(t, ev.Deal.IsDeal)
}

func TestValidateObservation(t *testing.T) {
	ok := obs("Croma", 1)
	assert.NoError(t, ValidateObservation(ok))

	bad := ok
	bad.Date = time.Time{}
	assert.ErrorIs(t, ValidateObservation(bad), models.ErrInvalidInput)

	bad = ok
	bad.Price = -1
	assert.ErrorIs(t, ValidateObservation(bad), models.ErrInvalidInput)
}
