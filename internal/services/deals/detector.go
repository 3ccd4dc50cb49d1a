package deals

import (
	"fmt"
	"strings"

	"PricePulse/internal/domain/models"
	"PricePulse/internal/domain/service"
	"PricePulse/internal/services/features"
)

// Config holds the deal thresholds.
type Config struct {
	LowPercentile    float64
	SecondPercentile float64
	RecentWindow     int
	RecentRatio      float64
	CompetitorRatio  float64
}

func DefaultConfig() Config {
	return Config{
		LowPercentile:    5,
		SecondPercentile: 10,
		RecentWindow:     30,
		RecentRatio:      0.85,
		CompetitorRatio:  0.95,
	}
}

// Detector evaluates the deal criteria. It is stateless.
type Detector struct {
	cfg Config
}

var _ service.DealDetector = (*Detector)(nil)

func NewDetector(cfg Config) *Detector {
	d := DefaultConfig()
	if cfg.LowPercentile <= 0 {
		cfg.LowPercentile = d.LowPercentile
	}
	if cfg.SecondPercentile <= 0 {
		cfg.SecondPercentile = d.SecondPercentile
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = d.RecentWindow
	}
	if cfg.RecentRatio <= 0 {
		cfg.RecentRatio = d.RecentRatio
	}
	if cfg.CompetitorRatio <= 0 {
		cfg.CompetitorRatio = d.CompetitorRatio
	}
	return &Detector{cfg: cfg}
}

// Detect returns every triggered criterion in a fixed order.
func (d *Detector) Detect(in models.DealInput) models.DealSignal {
	if len(in.History) == 0 {
		return models.DealSignal{Reasons: []string{}}
	}
	price := in.Price
	reasons := make([]string, 0, 5)

	p5 := features.Percentile(in.History, d.cfg.LowPercentile)
	p10 := features.Percentile(in.History, d.cfg.SecondPercentile)
	switch {
	case price < p5:
		reasons = append(reasons, fmt.Sprintf("Price %.2f is in the bottom %g%% of history (below %.2f)", price, d.cfg.LowPercentile, p5))
	case price < p10:
		reasons = append(reasons, fmt.Sprintf("Price %.2f is in the bottom %g%% of history (below %.2f)", price, d.cfg.SecondPercentile, p10))
	}

	recent := in.History
	if len(recent) > d.cfg.RecentWindow {
		recent = recent[len(recent)-d.cfg.RecentWindow:]
	}
	if avg := features.Mean(recent); price < d.cfg.RecentRatio*avg {
		reasons = append(reasons, fmt.Sprintf("Price is %.0f%%+ below the recent average of %.2f", (1-d.cfg.RecentRatio)*100, avg))
	}

	if in.HasForecast && price < in.ForecastLower {
		reasons = append(reasons, fmt.Sprintf("Price is below the forecast lower bound of %.2f", in.ForecastLower))
	}

	if len(in.Competitors) >= 1 {
		lo, _ := features.MinMax(in.Competitors)
		if price < d.cfg.CompetitorRatio*lo {
			reasons = append(reasons, fmt.Sprintf("Price is cheaper than competitors (lowest other retailer %.2f)", lo))
		}
	}

	return models.DealSignal{
		IsDeal:  len(reasons) > 0,
		Reasons: reasons,
		Reason:  strings.Join(reasons, "; "),
	}
}
