package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PricePulse/internal/domain/models"
	"PricePulse/pkg/metrics"
)

type flakyProc struct {
	mu    sync.Mutex
	fails int
	err   error
	calls int
	ok    int
}

func (p *flakyProc) Process(_ context.Context, _ *models.PricePoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fails > 0 {
		p.fails--
		return p.err
	}
	p.ok++
	return nil
}

func (p *flakyProc) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, p.ok
}

type countingMetrics struct {
	metrics.Nop
	mu     sync.Mutex
	errors map[string]int
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
}

func (m *countingMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func point(retailer string) *models.PricePoint {
	return &models.PricePoint{
		ProductID: "P001",
		Retailer:  retailer,
		Date:      time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Price:     999,
	}
}

func TestPipelineRejectsInvalid(t *testing.T) {
	proc := &flakyProc{}
	m := &countingMetrics{}
	p := NewIngestPipeline(proc, m)

	bad := point("Croma")
	bad.Price = 0
	assert.ErrorIs(t, p.Process(context.Background(), bad), models.ErrInvalidInput)
	assert.ErrorIs(t, p.Process(context.Background(), nil), models.ErrInvalidInput)
	calls, _ := proc.counts()
	assert.Zero(t, calls)
	assert.Equal(t, 2, m.count("pipeline_validate"))
}

func TestPipelinePermanentErrorReturned(t *testing.T) {
	proc := &flakyProc{fails: 1, err: models.ErrProductNotFound}
	p := NewIngestPipeline(proc, nil)

	assert.ErrorIs(t, p.Process(context.Background(), point("Croma")), models.ErrProductNotFound)
	assert.Zero(t, p.Buffered())
}

func TestPipelineBuffersAndFlushes(t *testing.T) {
	proc := &flakyProc{fails: 1, err: models.ErrDatasetUnavailable}
	p := NewIngestPipeline(proc, nil, WithBackoff(time.Millisecond, 5*time.Millisecond))

	require.NoError(t, p.Process(context.Background(), point("Croma")))
	assert.Equal(t, 1, p.Buffered())

	p.Start(context.Background())
	defer p.Stop()
	require.Eventually(t, func() bool {
		_, ok := proc.counts()
		return ok == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, p.Buffered())
}

func TestPipelineBufferFull(t *testing.T) {
	proc := &flakyProc{fails: 2, err: errors.New("store down")}
	m := &countingMetrics{}
	p := NewIngestPipeline(proc, m, WithBufferSize(1))

	require.NoError(t, p.Process(context.Background(), point("Croma")))
	err := p.Process(context.Background(), point("Vijay"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
	assert.Equal(t, 1, m.count("pipeline_buffer_full"))
}

func TestPipelineThrottlesPerKey(t *testing.T) {
	proc := &flakyProc{}
	m := &countingMetrics{}
	p := NewIngestPipeline(proc, m, WithMaxRPS(1))
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, point("Croma")))
	require.NoError(t, p.Process(ctx, point("Croma")))
	require.NoError(t, p.Process(ctx, point("Vijay")))

	_, ok := proc.counts()
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, m.count("pipeline_throttle"))
	// the repeat waits in the buffer instead of being dropped
	assert.Equal(t, 1, p.Buffered())

	p.Start(ctx)
	defer p.Stop()
	require.Eventually(t, func() bool {
		_, ok := proc.counts()
		return ok == 3
	}, time.Second, 5*time.Millisecond)
}

func TestPipelineBackfillReachesProcessor(t *testing.T) {
	proc := &flakyProc{}
	p := NewIngestPipeline(proc, nil, WithMaxRPS(5))
	ctx := context.Background()

	const days = 30
	for i := 0; i < days; i++ {
		obs := point("Amazon.in")
		obs.Date = obs.Date.AddDate(0, 0, i)
		require.NoError(t, p.Process(ctx, obs))
	}
	_, ok := proc.counts()
	assert.Equal(t, days, ok)
	assert.Zero(t, p.Buffered())
}

func TestPipelineThrottledWithFullBuffer(t *testing.T) {
	proc := &flakyProc{}
	p := NewIngestPipeline(proc, nil, WithMaxRPS(1), WithBufferSize(1))
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, point("Croma")))
	require.NoError(t, p.Process(ctx, point("Croma")))
	err := p.Process(ctx, point("Croma"))
	assert.ErrorIs(t, err, ErrThrottled)
	assert.False(t, permanent(err))
}

func TestPipelineRestart(t *testing.T) {
	proc := &flakyProc{fails: 1, err: models.ErrDatasetUnavailable}
	p := NewIngestPipeline(proc, nil, WithBackoff(time.Millisecond, 5*time.Millisecond))
	p.Stop()
	p.Start(context.Background())
	p.Start(context.Background())
	p.Stop()
	p.Stop()

	require.NoError(t, p.Process(context.Background(), point("Croma")))
	assert.Equal(t, 1, p.Buffered())

	p.Start(context.Background())
	defer p.Stop()
	require.Eventually(t, func() bool {
		_, ok := proc.counts()
		return ok == 1
	}, time.Second, 5*time.Millisecond)
}
