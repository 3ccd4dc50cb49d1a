package features

import (
    "math"
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestPercentileLinear(t *testing.T) {
    xs := []float64{4, 1, 3, 2, 5}
    assert.InDelta(t, 1.2, Percentile(xs, 5), 1e-12)
    assert.InDelta(t, 1.4, Percentile(xs, 10), 1e-12)
    assert.InDelta(t, 3, Percentile(xs, 50), 1e-12)
    assert.InDelta(t, 5, Percentile(xs, 100), 1e-12)
    assert.InDelta(t, 7, Percentile([]float64{7}, 5), 1e-12)
    assert.True(t, math.IsNaN(Percentile(nil, 5)))
}

func TestPercentileRanksTies(t *testing.T) {
    got := PercentileRanks([]float64{10, 20, 20, 30})
    assert.InDeltaSlice(t, []float64{0.25, 0.625, 0.625, 1}, got, 1e-12)
}

func TestStdAndCorrelation(t *testing.T) {
    assert.Zero(t, SampleStd([]float64{3}))
    assert.InDelta(t, 1, SampleStd([]float64{1, 2, 3}), 1e-12)
    assert.InDelta(t, math.Sqrt(2.0/3), PopStd([]float64{1, 2, 3}), 1e-12)
    assert.True(t, math.IsNaN(Correlation([]float64{1, 2, 3}, []float64{4, 4, 4})))
    assert.InDelta(t, -1, Correlation([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-12)
    assert.InDelta(t, 0.1, CoefficientOfVariation([]float64{90, 100, 110}), 1e-12)
}
