package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PricePulse/pkg/config"
)

func TestTuningReachesForecasterAndRanker(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Forecast.BaseUncertainty = 0.05
	cfg.Forecast.Z = 2.58
	cfg.Forecast.ConfidenceFloor = 0.7
	cfg.Forecast.WeekendFactor = 1
	cfg.Ranking.HighRating = 4.8
	cfg.Ranking.SavingsReason = 500

	fc := forecastConfig(cfg)
	assert.InDelta(t, 0.05, fc.BaseUncertainty, 1e-12)
	assert.InDelta(t, 2.58, fc.Z, 1e-12)
	assert.InDelta(t, 0.7, fc.ConfidenceFloor, 1e-12)
	assert.InDelta(t, 1.0, fc.WeekendFactor, 1e-12)
	assert.InDelta(t, 0.992, fc.MonthEndFactor, 1e-12)
	assert.InDelta(t, 0.35, fc.Weights.Boost, 1e-12)

	rc := rankingConfig(cfg)
	assert.InDelta(t, 4.8, rc.HighRating, 1e-12)
	assert.InDelta(t, 500, rc.SavingsReason, 1e-12)
	assert.Equal(t, 3, rc.SimilarPerItem)
}
