package deals

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PricePulse/internal/domain/models"
)

func flatHistory(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestDetectConstantHistoryIsNotDeal(t *testing.T) {
	d := NewDetector(DefaultConfig())
	sig := d.Detect(models.DealInput{Price: 1000, History: flatHistory(60, 1000)})
	assert.False(t, sig.IsDeal)
	assert.Empty(t, sig.Reasons)
	assert.Empty(t, sig.Reason)
}

func TestDetectEmptyHistory(t *testing.T) {
	sig := NewDetector(DefaultConfig()).Detect(models.DealInput{Price: 1})
	assert.False(t, sig.IsDeal)
	assert.Empty(t, sig.Reasons)
}

func TestDetectBottomFivePercent(t *testing.T) {
	hist := make([]float64, 100)
	for i := range hist {
		hist[i] = float64(1000 + i)
	}
	sig := NewDetector(DefaultConfig()).Detect(models.DealInput{Price: 990, History: hist})
	require.True(t, sig.IsDeal)
	require.NotEmpty(t, sig.Reasons)
	assert.Contains(t, sig.Reasons[0], "bottom 5%")
	assert.Contains(t, sig.Reasons[0], "990.00")
	assert.NotContains(t, sig.Reason, "bottom 10%")
}

func TestDetectBottomTenPercentOnly(t *testing.T) {
	hist := make([]float64, 101)
	for i := range hist {
		hist[i] = float64(i) // P5 = 5, P10 = 10
	}
	sig := NewDetector(DefaultConfig()).Detect(models.DealInput{Price: 7, History: hist})
	require.True(t, sig.IsDeal)
	assert.Contains(t, sig.Reasons[0], "bottom 10%")
}

func TestDetectAllCriteriaInOrder(t *testing.T) {
	in := models.DealInput{
		Price:         700,
		History:       append(flatHistory(40, 1000), 700),
		ForecastLower: 800,
		HasForecast:   true,
		Competitors:   []float64{900, 950},
	}
	sig := NewDetector(DefaultConfig()).Detect(in)
	require.True(t, sig.IsDeal)
	require.Len(t, sig.Reasons, 4)
	assert.Contains(t, sig.Reasons[0], "bottom 5%")
	assert.Contains(t, sig.Reasons[1], "below the recent average")
	assert.Contains(t, sig.Reasons[2], "forecast lower bound")
	assert.Contains(t, sig.Reasons[3], "cheaper than competitors")
	assert.Equal(t, strings.Join(sig.Reasons, "; "), sig.Reason)
}

func TestDetectCompetitorThreshold(t *testing.T) {
	d := NewDetector(DefaultConfig())
	hist := flatHistory(30, 1000)

	sig := d.Detect(models.DealInput{Price: 1000, History: hist, Competitors: []float64{1060}})
	assert.True(t, sig.IsDeal)

	sig = d.Detect(models.DealInput{Price: 1000, History: hist, Competitors: []float64{1040}})
	assert.False(t, sig.IsDeal)

	sig = d.Detect(models.DealInput{Price: 1000, History: hist})
	assert.False(t, sig.IsDeal)
}

func TestDetectForecastBoundIgnoredWithoutForecast(t *testing.T) {
	sig := NewDetector(DefaultConfig()).Detect(models.DealInput{Price: 1000, History: flatHistory(30, 1000), ForecastLower: 2000})
	assert.False(t, sig.IsDeal)
}

func TestDetectIsMonotonicInPrice(t *testing.T) {
	d := NewDetector(DefaultConfig())
	hist := make([]float64, 120)
	for i := range hist {
		hist[i] = 1000 + float64((i*37)%200)
	}
	base := models.DealInput{History: hist, ForecastLower: 1010, HasForecast: true, Competitors: []float64{1100, 1150}}

	wasDeal := false
	for p := 1300.0; p >= 600; p -= 5 {
		in := base
		in.Price = p
		sig := d.Detect(in)
		if wasDeal {
			assert.True(t, sig.IsDeal, "price %.0f should stay a deal", p)
		}
		wasDeal = sig.IsDeal
	}
	assert.True(t, wasDeal)
}
