package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"PricePulse/internal/domain/repository"
)

var _ repository.Metrics = (*Recorder)(nil)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	dealsTotal  *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	cacheTotal  *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder { return NewWith(prometheus.DefaultRegisterer) }

// NewWith registers the recorder's collectors on reg.
func NewWith(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		dealsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricepulse_deals_detected_total",
				Help: "Deals flagged by the detector",
			},
			[]string{"product", "source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricepulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		cacheTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricepulse_cache_lookups_total",
				Help: "Cache lookups by cache name and outcome",
			},
			[]string{"cache", "hit"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricepulse_last_price",
				Help: "Last observed price per product and retailer",
			},
			[]string{"product", "retailer"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricepulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price of a product at a retailer.
func (r *Recorder) RecordLastPrice(productID, retailer string, price float64) {
	r.lastPrice.WithLabelValues(productID, retailer).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordDeal(productID, source string) {
	r.dealsTotal.WithLabelValues(productID, source).Inc()
}

func (r *Recorder) RecordCache(name string, hit bool) {
	r.cacheTotal.WithLabelValues(name, strconv.FormatBool(hit)).Inc()
}

// Nop discards every measurement.
type Nop struct{}

var _ repository.Metrics = Nop{}

func (Nop) RecordError(string)                      {}
func (Nop) RecordLatency(string, float64)           {}
func (Nop) RecordLastPrice(string, string, float64) {}
func (Nop) RecordDeal(string, string)               {}
func (Nop) RecordCache(string, bool)                {}
