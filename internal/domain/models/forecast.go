package models

import "time"

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// ForecastPoint is one day of a projected (or fitted) price trajectory.
type ForecastPoint struct {
	Date           time.Time `json:"date"`
	PredictedPrice float64   `json:"predicted_price"`
	LowerBound     float64   `json:"lower_bound"`
	UpperBound     float64   `json:"upper_bound"`
	Confidence     float64   `json:"confidence"`
	Event          string    `json:"event,omitempty"`
}

// ForecastSummary condenses a forecast for display.
type ForecastSummary struct {
	AveragePredicted float64   `json:"average_predicted_price"`
	BestPredicted    float64   `json:"best_predicted_price"`
	BestDate         time.Time `json:"best_price_date"`
	WorstPredicted   float64   `json:"worst_predicted_price"`
	PotentialSavings float64   `json:"potential_savings"`
}

// ForecastResult is the payload returned for a forecast request.
type ForecastResult struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name,omitempty"`
	Retailer     string          `json:"retailer"`
	CurrentPrice float64         `json:"current_price"`
	History      []ForecastPoint `json:"history"`
	Forecast     []ForecastPoint `json:"forecast"`
	Deal         DealSignal      `json:"deal"`
	Trend        string          `json:"trend"`
	Summary      ForecastSummary `json:"summary"`
	DataPoints   int             `json:"data_points"`
	HorizonDays  int             `json:"horizon_days"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// BuyAdvice is a buy/wait suggestion derived from a forecast.
type BuyAdvice struct {
	ProductID        string    `json:"product_id"`
	CurrentPrice     float64   `json:"current_price"`
	PredictedBest    float64   `json:"predicted_best_price"`
	PredictedBestOn  time.Time `json:"predicted_best_date"`
	PotentialSavings float64   `json:"potential_savings"`
	SavingsPct       float64   `json:"savings_percentage"`
	Action           string    `json:"recommendation"` // WAIT | BUY_NOW | NEUTRAL
	Reason           string    `json:"reason"`
}

// Buy advice actions.
const (
	AdviceWait    = "WAIT"
	AdviceBuyNow  = "BUY_NOW"
	AdviceNeutral = "NEUTRAL"
)

// PatternAnalysis summarises the historical behaviour of a series.
type PatternAnalysis struct {
	ProductID          string  `json:"product_id"`
	Retailer           string  `json:"retailer"`
	Mean               float64 `json:"mean"`
	Std                float64 `json:"std"`
	Min                float64 `json:"min"`
	Max                float64 `json:"max"`
	CoefficientOfVar   float64 `json:"coefficient_of_variation"`
	TrendChangePct     float64 `json:"trend_change_pct"`
	VolatilityPct      float64 `json:"volatility_pct"`
	WeekendDiscountPct float64 `json:"weekend_discount_pct"`
	DataPoints         int     `json:"data_points"`
}

// Projection is the raw output of the ensemble: fitted history and the forward path.
type Projection struct {
	History  []ForecastPoint
	Forecast []ForecastPoint
}
