package ranking

import (
	"math"
	"time"

	"PricePulse/internal/domain/models"
	"PricePulse/internal/services/features"
)

// productSignals are the per-product market facts the scorer reads.
type productSignals struct {
	trending     float64
	trend        string
	savings      float64
	currentPrice float64
	bestRetailer string
	hasData      bool
}

// computeSignals derives trending score, price direction, savings and the
// cheapest current offer from one product's observations.
func computeSignals(points []models.PricePoint, asOf time.Time, cfg Config) productSignals {
	s := productSignals{trend: models.TrendStable}
	if len(points) == 0 {
		return s
	}
	s.hasData = true

	trendFrom := asOf.AddDate(0, 0, -cfg.TrendingDays)
	windowFrom := asOf.AddDate(0, 0, -cfg.TrendDays)
	var (
		recent, inWindow []models.PricePoint
		latest           time.Time
	)
	for _, p := range points {
		if p.Date.After(asOf) {
			continue
		}
		if !p.Date.Before(trendFrom) {
			recent = append(recent, p)
		}
		if !p.Date.Before(windowFrom) {
			inWindow = append(inWindow, p)
		}
		if p.Date.After(latest) {
			latest = p.Date
		}
	}

	s.currentPrice = math.Inf(1)
	for _, p := range points {
		if p.Date.Equal(latest) && (p.Price < s.currentPrice || (p.Price == s.currentPrice && p.Retailer < s.bestRetailer)) {
			s.currentPrice, s.bestRetailer = p.Price, p.Retailer
		}
	}
	if math.IsInf(s.currentPrice, 1) {
		s.currentPrice = 0
	}

	if len(recent) >= cfg.MinTrendingPoints {
		cv := features.CoefficientOfVariation(pricesOf(recent))
		s.trending = math.Min(1, math.Max(0, cv*10))
	}

	daily := models.DailyMean("", inWindow).Prices()
	if len(daily) >= cfg.MinTrendPoints {
		older := features.Mean(daily[:7])
		newer := features.Mean(daily[len(daily)-7:])
		if older > 0 {
			change := (newer - older) / older
			switch {
			case change > cfg.TrendThreshold:
				s.trend = models.TrendIncreasing
			case change < -cfg.TrendThreshold:
				s.trend = models.TrendDecreasing
			}
		}
		lo, hi := features.MinMax(pricesOf(recent))
		s.savings = hi - lo
	}
	return s
}

func pricesOf(points []models.PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}
