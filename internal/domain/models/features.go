package models

import "time"

// FeatureVector holds the model inputs derived for one index of a PriceSeries.
type FeatureVector struct {
	Date           time.Time
	Index          int
	Price          float64
	Lag1           float64
	Lag3           float64
	Lag7           float64
	MA3            float64
	MA7            float64
	Std7           float64
	PctChange1     float64
	PctChange3     float64
	PctChange7     float64
	Volatility7    float64
	Weekday        int // Monday = 0
	DayOfMonth     int
	Month          int
	Quarter        int
	DaysSinceStart int
	IsWeekend      bool
	IsMonthEnd     bool
	TrendStrength  float64
	PricePosition  float64
	// HasLag7 is false for the leading rows where lag_7 is undefined.
	HasLag7 bool
}
