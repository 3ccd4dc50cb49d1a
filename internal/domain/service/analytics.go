package service

import (
	"context"

	"PricePulse/internal/domain/models"
)

// Forecaster fits an ensemble on a series and projects it horizon days ahead.
type Forecaster interface {
	Forecast(ctx context.Context, series models.PriceSeries, horizon int) (models.Projection, error)
}

// DealDetector decides whether a price is a deal.
type DealDetector interface {
	Detect(in models.DealInput) models.DealSignal
}

// Ranker produces personalised recommendations.
type Ranker interface {
	Rank(ctx context.Context, in models.RankingInput, limit int) (models.RecommendationSet, error)
}
