package features

import (
    "fmt"
    "math"
    "time"

    "PricePulse/internal/domain/models"
)

const (
    // MinSeriesLen is the shortest series features can be built for.
    MinSeriesLen = 7
    // TrendWindow is the trailing window for trend strength.
    TrendWindow = 14
)

// Names lists the model input columns in the order returned by Values.
var Names = []string{
    "day_of_week", "day_of_month", "month", "days_since_start",
    "price_lag_1", "price_lag_3", "price_lag_7",
    "price_ma_3", "price_ma_7", "price_std_7",
    "price_change_1d", "price_change_3d", "price_change_7d",
    "volatility_7d", "is_weekend", "is_month_end",
    "price_position", "trend_strength",
}

// Build derives one feature vector per observation of the series.
// The series must be date-ordered and contain at least MinSeriesLen points.
func Build(series models.PriceSeries) ([]models.FeatureVector, error) {
    n := series.Len()
    if n < MinSeriesLen {
        return nil, fmt.Errorf("%w: %d points for %s, need %d", models.ErrInsufficientData, n, series.ProductID, MinSeriesLen)
    }
    prices := series.Prices()
    start := series.Points[0].Date
    ranks := PercentileRanks(prices)
    pct1 := PctChanges(prices, 1)
    pct3 := PctChanges(prices, 3)
    pct7 := PctChanges(prices, 7)

    out := make([]models.FeatureVector, n)
    for i, p := range series.Points {
        fv := models.FeatureVector{
            Date:           p.Date,
            Index:          i,
            Price:          p.Price,
            MA3:            Mean(window(prices, i, 3)),
            MA7:            Mean(window(prices, i, 7)),
            Std7:           SampleStd(window(prices, i, 7)),
            PctChange1:     pct1[i],
            PctChange3:     pct3[i],
            PctChange7:     pct7[i],
            Volatility7:    SampleStd(window(pct1, i, 7)),
            DaysSinceStart: int(p.Date.Sub(start).Hours() / 24),
            TrendStrength:  TrendStrength(window(prices, i, TrendWindow)),
            PricePosition:  ranks[i],
        }
        ApplyCalendar(&fv, p.Date)
        if i >= 1 {
            fv.Lag1 = prices[i-1]
        }
        if i >= 3 {
            fv.Lag3 = prices[i-3]
        }
        if i >= 7 {
            fv.Lag7 = prices[i-7]
            fv.HasLag7 = true
        }
        out[i] = fv
    }
    return out, nil
}

// Trainable keeps the rows where every lag is defined.
func Trainable(rows []models.FeatureVector) []models.FeatureVector {
    out := make([]models.FeatureVector, 0, len(rows))
    for _, r := range rows {
        if r.HasLag7 {
            out = append(out, r)
        }
    }
    return out
}

// ApplyCalendar sets the date-derived fields of fv.
func ApplyCalendar(fv *models.FeatureVector, d time.Time) {
    fv.Date = d
    fv.Weekday = (int(d.Weekday()) + 6) % 7
    fv.DayOfMonth = d.Day()
    fv.Month = int(d.Month())
    fv.Quarter = (fv.Month-1)/3 + 1
    fv.IsWeekend = fv.Weekday >= 5
    fv.IsMonthEnd = fv.DayOfMonth >= 28
}

// Values flattens fv into the column order of Names.
func Values(fv models.FeatureVector) []float64 {
    return []float64{
        float64(fv.Weekday), float64(fv.DayOfMonth), float64(fv.Month), float64(fv.DaysSinceStart),
        fv.Lag1, fv.Lag3, fv.Lag7,
        fv.MA3, fv.MA7, fv.Std7,
        fv.PctChange1, fv.PctChange3, fv.PctChange7,
        fv.Volatility7, boolf(fv.IsWeekend), boolf(fv.IsMonthEnd),
        fv.PricePosition, fv.TrendStrength,
    }
}

// Matrix returns the design matrix and targets for rows.
func Matrix(rows []models.FeatureVector) ([][]float64, []float64) {
    x := make([][]float64, len(rows))
    y := make([]float64, len(rows))
    for i, r := range rows {
        x[i] = Values(r)
        y[i] = r.Price
    }
    return x, y
}

// PctChanges returns price[t]/price[t-k]-1, with 0 where undefined.
func PctChanges(prices []float64, k int) []float64 {
    out := make([]float64, len(prices))
    for i := k; i < len(prices); i++ {
        base := prices[i-k]
        if base == 0 {
            continue
        }
        out[i] = prices[i]/base - 1
    }
    return out
}

// TrendStrength is the Pearson correlation of (index, value) over xs.
func TrendStrength(xs []float64) float64 {
    if len(xs) < 2 {
        return 0
    }
    idx := make([]float64, len(xs))
    for i := range idx {
        idx[i] = float64(i)
    }
    r := Correlation(idx, xs)
    if math.IsNaN(r) || math.IsInf(r, 0) {
        return 0
    }
    return r
}

// window returns the up-to-size trailing slice ending at i (inclusive).
func window(xs []float64, i, size int) []float64 {
    lo := i - size + 1
    if lo < 0 {
        lo = 0
    }
    return xs[lo : i+1]
}

func boolf(b bool) float64 {
    if b {
        return 1
    }
    return 0
}
