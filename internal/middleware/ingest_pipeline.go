package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	"PricePulse/internal/service/ratelimit"
	applogger "PricePulse/pkg/logger"
)

// ErrThrottled is returned when an observation is over the rate limit and the
// retry buffer is full. Callers may retry it.
var ErrThrottled = errors.New("ingest pipeline: throttled")

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, p *models.PricePoint) error
}

// IngestPipeline sits between the observation sources (Kafka, HTTP) and the ingest
// use case. It validates, throttles repeats per product, retailer and day, and buffers
// observations while the store is unavailable.
type IngestPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	maxRPS  float64
	bufSize int
	bufCh   chan *models.PricePoint
	stopCh  chan struct{}
	done    chan struct{}
	started bool
	mu      sync.Mutex
	limiter *ratelimit.Limiter
	// retry backoff bounds for buffered observations
	backoffMin time.Duration
	backoffMax time.Duration
	l          *applogger.Logger
}

const limiterIdle = time.Minute

type PipelineOption func(*IngestPipeline)

// WithMaxRPS sets the max observations per second per product, retailer and day (0 = unlimited).
func WithMaxRPS(n float64) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *IngestPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *IngestPipeline) {
		if min > 0 && max >= min {
			p.backoffMin, p.backoffMax = min, max
		}
	}
}

// NewIngestPipeline creates a new pipeline.
func NewIngestPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *IngestPipeline {
	p := &IngestPipeline{
		proc:       proc,
		metrics:    metrics,
		bufSize:    1000,
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
		l:          applogger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.PricePoint, p.bufSize)
	if p.maxRPS > 0 {
		p.limiter = ratelimit.New(p.maxRPS, 1, limiterIdle)
	}
	return p
}

func (p *IngestPipeline) SetLogger(l *applogger.Logger) {
	if l != nil {
		p.l = l
	}
}

// Start launches background flushing of buffered observations. A stopped
// pipeline can be started again.
func (p *IngestPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	stop, done := make(chan struct{}), make(chan struct{})
	p.stopCh, p.done = stop, done
	p.mu.Unlock()

	go p.flush(ctx, stop, done)
}

func (p *IngestPipeline) flush(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	sweep := time.NewTicker(limiterIdle)
	defer sweep.Stop()
	backoff := p.backoffMin
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-sweep.C:
			if p.limiter != nil {
				p.limiter.Sweep()
			}
		case obs := <-p.bufCh:
			err := p.proc.Process(ctx, obs)
			if err == nil || permanent(err) {
				if err != nil {
					p.l.Warn("ingest pipeline: dropping buffered observation", applogger.Error(err))
				}
				backoff = p.backoffMin
				continue
			}
			p.record("pipeline_flush")
			if backoff *= 2; backoff > p.backoffMax {
				backoff = p.backoffMax
			}
			select {
			case <-time.After(backoff):
			case <-stop:
				p.requeue(obs)
				return
			case <-ctx.Done():
				p.requeue(obs)
				return
			}
			p.requeue(obs)
		}
	}
}

func (p *IngestPipeline) requeue(obs *models.PricePoint) {
	select {
	case p.bufCh <- obs:
	default:
		p.record("pipeline_buffer_drop")
	}
}

// Stop stops the background flushing and waits for it to exit. Buffered
// observations stay queued for the next Start.
func (p *IngestPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	stop, done := p.stopCh, p.done
	p.mu.Unlock()
	close(stop)
	<-done
	if n := len(p.bufCh); n > 0 {
		p.l.Warn("ingest pipeline: stopped with buffered observations", applogger.Int("buffered", n))
	}
}

// Buffered returns the number of observations waiting for a retry.
func (p *IngestPipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles, and forwards an observation downstream. Throttled
// observations and transient downstream failures are buffered for retry and
// reported as success; an error means the observation was not accepted.
func (p *IngestPipeline) Process(ctx context.Context, obs *models.PricePoint) error {
	start := time.Now()
	if err := validate(obs); err != nil {
		p.record("pipeline_validate")
		return err
	}
	if p.limiter != nil && !p.limiter.Allow(throttleKey(obs)) {
		// repeats of the same day are deferred to the flush loop, never dropped
		p.record("pipeline_throttle")
		select {
		case p.bufCh <- obs:
			p.l.Debug("ingest pipeline: throttled, buffered",
				applogger.String("product_id", obs.ProductID),
				applogger.String("retailer", obs.Retailer),
			)
			return nil
		default:
			p.record("pipeline_buffer_full")
			return fmt.Errorf("%w: %s at %s", ErrThrottled, obs.ProductID, obs.Retailer)
		}
	}

	if err := p.proc.Process(ctx, obs); err != nil {
		if permanent(err) {
			p.record("pipeline_rejected")
			return err
		}
		p.record("pipeline_process")
		select {
		case p.bufCh <- obs:
			p.l.Warn("ingest pipeline: buffered after downstream error",
				applogger.Int("buffered", len(p.bufCh)),
				applogger.Error(err),
			)
			return nil
		default:
			p.record("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	}
	return nil
}

func (p *IngestPipeline) record(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}

// throttleKey limits repeats of one observation day; distinct days (backfills,
// replays) each get their own bucket.
func throttleKey(obs *models.PricePoint) string {
	return obs.ProductID + "|" + obs.Retailer + "|" + obs.Date.UTC().Format(time.DateOnly)
}

// permanent errors are not worth retrying.
func permanent(err error) bool {
	return errors.Is(err, models.ErrInvalidInput) || errors.Is(err, models.ErrProductNotFound)
}

func validate(obs *models.PricePoint) error {
	if obs == nil {
		return fmt.Errorf("%w: observation nil", models.ErrInvalidInput)
	}
	if obs.ProductID == "" || obs.Retailer == "" {
		return fmt.Errorf("%w: product_id and retailer required", models.ErrInvalidInput)
	}
	if obs.Date.IsZero() {
		return fmt.Errorf("%w: date required", models.ErrInvalidInput)
	}
	if obs.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", models.ErrInvalidInput)
	}
	return nil
}
