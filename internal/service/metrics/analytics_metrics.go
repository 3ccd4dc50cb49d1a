package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    EndpointLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "pricepulse",
            Subsystem: "api",
            Name:      "latency_seconds",
            Help:      "Latency of forecasting and recommendation endpoints",
            Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
        },
        []string{"endpoint"},
    )

    EndpointErrors = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pricepulse",
            Subsystem: "api",
            Name:      "errors_total",
            Help:      "Errors by endpoint and kind",
        },
        []string{"endpoint", "kind"},
    )

    ModelFits = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pricepulse",
            Subsystem: "forecast",
            Name:      "model_fits_total",
            Help:      "Ensemble fits by outcome (fitted or cached)",
        },
        []string{"outcome"},
    )
)

func Register() {
    once.Do(func() {
        prometheus.MustRegister(EndpointLatency, EndpointErrors, ModelFits)
    })
}
