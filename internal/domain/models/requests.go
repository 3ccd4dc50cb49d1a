package models

// Requests for the HTTP API. Defined in domain for consistency and reuse.

type ForecastRequest struct {
	ProductID string `param:"product_id" json:"product_id" validate:"required"`
	Retailer  string `query:"retailer" json:"retailer"`
	Horizon   int    `query:"horizon" json:"horizon" default:"14" validate:"gte=1,lte=90"`
}

type AdviceRequest struct {
	ProductID string `param:"product_id" json:"product_id" validate:"required"`
	Horizon   int    `query:"horizon" json:"horizon" default:"10" validate:"gte=1,lte=90"`
}

type AnalysisRequest struct {
	ProductID string `param:"product_id" json:"product_id" validate:"required"`
	Retailer  string `query:"retailer" json:"retailer"`
}

type CompareRequest struct {
	ProductID string `param:"product_id" json:"product_id" validate:"required"`
	Date      string `query:"date" json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type BestDealsRequest struct {
	N int `query:"n" json:"n" default:"10" validate:"gte=1,lte=100"`
}

type RecommendRequest struct {
	UserID    string `query:"user_id" json:"user_id"`
	SessionID string `query:"session_id" json:"session_id"`
	Limit     int    `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=50"`
}

type ActivityRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	ProductID string `json:"product_id" validate:"required"`
}

type PriceObservationRequest struct {
	ProductID string  `json:"product_id" validate:"required"`
	Retailer  string  `json:"retailer" validate:"required"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Price     float64 `json:"price" validate:"gt=0"`
}
