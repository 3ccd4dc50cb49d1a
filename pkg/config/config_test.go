package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", c.Store.Type)
	assert.Equal(t, 14, c.Forecast.DefaultHorizon)
	assert.Equal(t, 90, c.Forecast.MaxHorizon)
	assert.Equal(t, 150, c.Forecast.Trees)
	assert.InDelta(t, 0.5, c.Forecast.WeightForest, 1e-12)
	assert.InDelta(t, 0.85, c.Deals.RecentRatio, 1e-12)
	assert.Equal(t, 15*time.Second, c.Server.ReadTimeout)
	assert.Equal(t, []string{"localhost:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 24*time.Hour, c.Ingest.DedupTTL)
	assert.Equal(t, uint32(5), c.ClickHouse.BreakerFailures)
	assert.InDelta(t, 1.96, c.Forecast.Z, 1e-12)
	assert.InDelta(t, 0.02, c.Forecast.BaseUncertainty, 1e-12)
	assert.InDelta(t, 0.992, c.Forecast.MonthEndFactor, 1e-12)
	assert.InDelta(t, 4.5, c.Ranking.HighRating, 1e-12)
	assert.Equal(t, 14, c.Ranking.TrendingDays)
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("environment: test\nforecast:\n  default_horizon: 7\n  noise: false\nstore:\n  type: clickhouse\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 7, c.Forecast.DefaultHorizon)
	assert.False(t, c.Forecast.Noise)
	assert.Equal(t, "clickhouse", c.Store.Type)
	// untouched keys keep their defaults
	assert.Equal(t, 10, c.Forecast.MinPoints)
}

func TestLoadTuningConstants(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("forecast:\n  base_uncertainty: 0.05\n  z: 2.58\n  weekend_factor: 1\nranking:\n  high_rating: 4.8\n  top_trending: 2\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, c.Forecast.BaseUncertainty, 1e-12)
	assert.InDelta(t, 2.58, c.Forecast.Z, 1e-12)
	assert.InDelta(t, 1.0, c.Forecast.WeekendFactor, 1e-12)
	assert.InDelta(t, 4.8, c.Ranking.HighRating, 1e-12)
	assert.Equal(t, 2, c.Ranking.TopTrending)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"store":   "store:\n  type: postgres\n",
		"horizon": "forecast:\n  default_horizon: 120\n",
		"points":  "forecast:\n  min_points: 3\n",
		"pct":     "deals:\n  low_percentile: 20\n",
		"cron":    "sweep:\n  enabled: true\n  schedule: \"every tuesday\"\n",
		"floor":   "forecast:\n  confidence_floor: 1.5\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
