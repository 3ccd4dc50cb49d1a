package models

import "time"

// CatalogProduct is static product metadata.
type CatalogProduct struct {
	ID          string  `yaml:"id" json:"product_id"`
	Name        string  `yaml:"name" json:"product_name"`
	Category    string  `yaml:"category" json:"category"`
	Rating      float64 `yaml:"rating" json:"rating"`
	Description string  `yaml:"description" json:"description,omitempty"`
}

// Identity names the user or anonymous session an activity snapshot belongs to.
type Identity struct {
	UserID    string
	SessionID string
}

// IsAnonymous is true when neither a user nor a session is known.
func (i Identity) IsAnonymous() bool { return i.UserID == "" && i.SessionID == "" }

// Key is a storage key for the identity; users take precedence over sessions.
func (i Identity) Key() string {
	if i.UserID != "" {
		return "user:" + i.UserID
	}
	if i.SessionID != "" {
		return "session:" + i.SessionID
	}
	return ""
}

// ActivitySnapshot is a point-in-time copy of a user's viewing and tracking.
type ActivitySnapshot struct {
	Identity Identity
	Views    map[string]int // product id -> view count
	Tracked  []string
}

// ProductRecommendation is one ranked, explained recommendation.
type ProductRecommendation struct {
	ProductID        string   `json:"product_id"`
	ProductName      string   `json:"product_name"`
	Category         string   `json:"category"`
	Score            float64  `json:"score"`
	Reasons          []string `json:"reasons"`
	Rating           float64  `json:"rating"`
	TrendingScore    float64  `json:"trending_score"`
	PriceTrend       string   `json:"price_trend"`
	PotentialSavings float64  `json:"potential_savings"`
	CurrentPrice     float64  `json:"current_price"`
	BestRetailer     string   `json:"best_retailer"`
	Description      string   `json:"description,omitempty"`
}

// RecommendationSet is the full response of a recommendation request.
type RecommendationSet struct {
	UserID               string                  `json:"user_id,omitempty"`
	SessionID            string                  `json:"session_id,omitempty"`
	Recommendations      []ProductRecommendation `json:"recommendations"`
	PersonalizationScore float64                 `json:"personalization_score"`
	TotalCount           int                     `json:"total_count"`
	GeneratedAt          time.Time               `json:"generated_at"`
}

// RankingInput is the immutable snapshot the ranker works on.
type RankingInput struct {
	Activity ActivitySnapshot
	Catalog  []CatalogProduct
	Prices   []PricePoint
	// AsOf anchors the trailing windows; zero means the latest observation.
	AsOf time.Time
}
