package models

import "time"

// DealSignal tells whether a price is unusually favourable and why.
type DealSignal struct {
	IsDeal  bool     `json:"is_deal"`
	Reasons []string `json:"reasons"`
	Reason  string   `json:"reason"`
}

// RetailerPrice is one row of a same-day retailer comparison.
type RetailerPrice struct {
	Retailer      string  `json:"retailer"`
	Price         float64 `json:"price"`
	IsBest        bool    `json:"is_best"`
	SavingsVsBest float64 `json:"savings_vs_best"`
}

// RetailerComparison is the result of comparing retailers on one date.
type RetailerComparison struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name,omitempty"`
	Date         time.Time       `json:"date"`
	Prices       []RetailerPrice `json:"retailer_prices"`
	BestPrice    float64         `json:"best_price"`
	BestRetailer string          `json:"best_retailer"`
}

// BestDeal is the cheapest current offer for a product.
type BestDeal struct {
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name,omitempty"`
	Retailer    string    `json:"retailer"`
	Price       float64   `json:"current_price"`
	Savings     float64   `json:"savings_amount"`
	SavingsPct  float64   `json:"savings_percentage"`
	Date        time.Time `json:"date"`
}

// DealAlert is published when a deal is detected.
type DealAlert struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	Retailer   string    `json:"retailer"`
	Price      float64   `json:"price"`
	Reasons    []string  `json:"reasons"`
	Source     string    `json:"source"` // ingest | sweep
	DetectedAt time.Time `json:"detected_at"`
}

// DealInput carries everything the deal criteria look at.
type DealInput struct {
	Price   float64
	History []float64 // every historical observation, all retailers
	// ForecastLower is the day-1 lower bound; ignored unless HasForecast.
	ForecastLower float64
	HasForecast   bool
	Competitors   []float64 // same-day prices of other retailers
}

// Alert sources.
const (
	AlertSourceIngest = "ingest"
	AlertSourceSweep  = "sweep"
)

// DealEvaluation is the outcome of re-checking a product's latest price at one retailer.
type DealEvaluation struct {
	ProductID string     `json:"product_id"`
	Retailer  string     `json:"retailer"`
	Date      time.Time  `json:"date"`
	Price     float64    `json:"price"`
	Deal      DealSignal `json:"deal"`
	AlertID   string     `json:"alert_id,omitempty"`
}
