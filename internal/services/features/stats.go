package features

import (
    "math"
    "sort"

    "gonum.org/v1/gonum/floats"
    "gonum.org/v1/gonum/stat"
)

// Mean returns the arithmetic mean, 0 for empty input.
func Mean(xs []float64) float64 {
    if len(xs) == 0 {
        return 0
    }
    return stat.Mean(xs, nil)
}

// SampleStd returns the n-1 standard deviation, 0 with fewer than two values.
func SampleStd(xs []float64) float64 {
    if len(xs) < 2 {
        return 0
    }
    return stat.StdDev(xs, nil)
}

// PopStd returns the population standard deviation.
func PopStd(xs []float64) float64 {
    if len(xs) == 0 {
        return 0
    }
    _, s := stat.PopMeanStdDev(xs, nil)
    return s
}

// Correlation is Pearson's r; NaN when either side has zero variance.
func Correlation(x, y []float64) float64 {
    if len(x) < 2 || len(x) != len(y) {
        return math.NaN()
    }
    if floats.Max(x) == floats.Min(x) || floats.Max(y) == floats.Min(y) {
        return math.NaN()
    }
    return stat.Correlation(x, y, nil)
}

// CoefficientOfVariation is sample std over mean, 0 when the mean is 0.
func CoefficientOfVariation(xs []float64) float64 {
    m := Mean(xs)
    if m == 0 {
        return 0
    }
    return SampleStd(xs) / m
}

// Percentile computes the q-th percentile (0..100) with linear interpolation
// between closest ranks, the same rule numpy uses by default.
func Percentile(xs []float64, q float64) float64 {
    if len(xs) == 0 {
        return math.NaN()
    }
    s := make([]float64, len(xs))
    copy(s, xs)
    sort.Float64s(s)
    if len(s) == 1 {
        return s[0]
    }
    pos := q / 100 * float64(len(s)-1)
    lo := int(math.Floor(pos))
    hi := int(math.Ceil(pos))
    if lo < 0 {
        return s[0]
    }
    if hi >= len(s) {
        return s[len(s)-1]
    }
    frac := pos - float64(lo)
    return s[lo] + (s[hi]-s[lo])*frac
}

// PercentileRanks returns average rank / n for each value.
func PercentileRanks(xs []float64) []float64 {
    n := len(xs)
    out := make([]float64, n)
    if n == 0 {
        return out
    }
    idx := make([]int, n)
    for i := range idx {
        idx[i] = i
    }
    sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
    for i := 0; i < n; {
        j := i
        for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
            j++
        }
        // ranks are 1-based; ties share the average of i+1..j+1
        avg := float64(i+j+2) / 2
        for k := i; k <= j; k++ {
            out[idx[k]] = avg / float64(n)
        }
        i = j + 1
    }
    return out
}

// MinMax returns the extremes of xs.
func MinMax(xs []float64) (float64, float64) {
    if len(xs) == 0 {
        return 0, 0
    }
    return floats.Min(xs), floats.Max(xs)
}
