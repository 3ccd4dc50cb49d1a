package ranking

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PricePulse/internal/domain/models"
)

var asOf = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

func testCatalog() []models.CatalogProduct {
	return []models.CatalogProduct{
		{ID: "P001", Name: "iPhone 16", Category: "Smartphones", Rating: 4.6},
		{ID: "P002", Name: "Galaxy S26 Ultra", Category: "Smartphones", Rating: 4.5},
		{ID: "P003", Name: "Pixel 10 Pro", Category: "Smartphones", Rating: 4.4},
		{ID: "P004", Name: "OnePlus 14", Category: "Smartphones", Rating: 4.3},
		{ID: "P005", Name: "Dell XPS 15", Category: "Laptops", Rating: 4.4},
		{ID: "P006", Name: "MacBook Air", Category: "Laptops", Rating: 4.8},
		{ID: "P009", Name: "WH-1000XM6", Category: "Audio", Rating: 4.8},
		{ID: "P012", Name: "JBL Flip 7", Category: "Audio", Rating: 4.2},
	}
}

// testPrices gives every product 30 days at two retailers; P005 falls steadily
// and P012 swings hard.
func testPrices() []models.PricePoint {
	var out []models.PricePoint
	for i, p := range testCatalog() {
		base := 1000 * float64(i+1)
		for d := 0; d < 30; d++ {
			price := base
			switch p.ID {
			case "P005":
				price = base - float64(d)*100
			case "P012":
				price = base * (1 + 0.2*math.Sin(float64(d)))
			}
			date := asOf.AddDate(0, 0, d-29)
			out = append(out,
				models.PricePoint{ProductID: p.ID, Retailer: "Amazon", Date: date, Price: price},
				models.PricePoint{ProductID: p.ID, Retailer: "Flipkart", Date: date, Price: price + 50},
			)
		}
	}
	return out
}

func TestComputeSignals(t *testing.T) {
	var pts []models.PricePoint
	for _, p := range testPrices() {
		if p.ProductID == "P005" {
			pts = append(pts, p)
		}
	}
	sig := computeSignals(pts, asOf, DefaultConfig())
	assert.True(t, sig.hasData)
	assert.Equal(t, models.TrendDecreasing, sig.trend)
	assert.Equal(t, "Amazon", sig.bestRetailer)
	assert.InDelta(t, 5000-2900, sig.currentPrice, 1e-9)
	// 15 days inclusive: prices 3500..2100 at Amazon, +50 at Flipkart
	assert.InDelta(t, 3550-2100, sig.savings, 1e-9)
	assert.Greater(t, sig.trending, 0.0)

	flat := computeSignals(pts[:8], asOf, DefaultConfig())
	assert.Equal(t, models.TrendStable, flat.trend)
	assert.Zero(t, flat.savings)
	assert.Zero(t, flat.trending)

	none := computeSignals(nil, asOf, DefaultConfig())
	assert.False(t, none.hasData)
}

func TestRankNeverReturnsTrackedOrHeavilyViewed(t *testing.T) {
	r := NewRanker(DefaultConfig())
	in := models.RankingInput{
		Activity: models.ActivitySnapshot{
			Identity: models.Identity{UserID: "u1"},
			Views:    map[string]int{"P001": 5, "P003": 1, "P005": 2},
			Tracked:  []string{"P006", "P009"},
		},
		Catalog: testCatalog(),
		Prices:  testPrices(),
	}
	set, err := r.Rank(context.Background(), in, 10)
	require.NoError(t, err)
	require.NotEmpty(t, set.Recommendations)

	for i, rec := range set.Recommendations {
		assert.NotContains(t, []string{"P001", "P006", "P009"}, rec.ProductID)
		assert.LessOrEqual(t, rec.Score, 1.0)
		assert.Greater(t, rec.Score, 0.0)
		assert.NotEmpty(t, rec.Reasons)
		if i > 0 {
			assert.GreaterOrEqual(t, set.Recommendations[i-1].Score, rec.Score)
		}
	}
	assert.GreaterOrEqual(t, set.PersonalizationScore, 0.0)
	assert.LessOrEqual(t, set.PersonalizationScore, 1.0)
	assert.Equal(t, len(set.Recommendations), set.TotalCount)
}

func TestRankColdStart(t *testing.T) {
	set, err := NewRanker(DefaultConfig()).Rank(context.Background(), models.RankingInput{
		Catalog: testCatalog(),
		Prices:  testPrices(),
	}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, set.Recommendations)
	assert.LessOrEqual(t, len(set.Recommendations), 5)
	assert.LessOrEqual(t, set.PersonalizationScore, 0.1)

	// anonymous users get dampened scores: (0.1 + rating + trending + trend) * 0.5
	for _, rec := range set.Recommendations {
		assert.LessOrEqual(t, rec.Score, 0.5)
	}
}

func TestRankScoreFormula(t *testing.T) {
	catalog := []models.CatalogProduct{{ID: "P100", Name: "Steady", Category: "Audio", Rating: 4.5}}
	var prices []models.PricePoint
	for d := 0; d < 20; d++ {
		prices = append(prices, models.PricePoint{ProductID: "P100", Retailer: "Croma", Date: asOf.AddDate(0, 0, -d), Price: 300})
	}
	set, err := NewRanker(DefaultConfig()).Rank(context.Background(), models.RankingInput{Catalog: catalog, Prices: prices}, 3)
	require.NoError(t, err)
	require.Len(t, set.Recommendations, 1)
	rec := set.Recommendations[0]
	assert.InDelta(t, (0.1+0.3+0.05)*0.5, rec.Score, 1e-12)
	assert.Equal(t, models.TrendStable, rec.PriceTrend)
	assert.Equal(t, []string{"Highly rated product (4.5/5.0)"}, rec.Reasons)
	assert.InDelta(t, 300, rec.CurrentPrice, 1e-12)
}

func TestRankReasonsForEngagedUser(t *testing.T) {
	in := models.RankingInput{
		Activity: models.ActivitySnapshot{
			Identity: models.Identity{SessionID: "s1"},
			Views:    map[string]int{"P004": 2},
			Tracked:  []string{"P001"},
		},
		Catalog: testCatalog(),
		Prices:  testPrices(),
	}
	set, err := NewRanker(DefaultConfig()).Rank(context.Background(), in, 10)
	require.NoError(t, err)

	var p002 *models.ProductRecommendation
	for i := range set.Recommendations {
		if set.Recommendations[i].ProductID == "P002" {
			p002 = &set.Recommendations[i]
		}
	}
	require.NotNil(t, p002)
	assert.Contains(t, p002.Reasons, "You've shown interest in Smartphones products")
	assert.Contains(t, p002.Reasons, "Similar to products you're tracking")
}

func TestPersonalizationBounds(t *testing.T) {
	assert.Zero(t, personalization(activity{}, 0))
	heavy := activity{
		score:      1,
		categories: map[string]float64{"a": 100, "b": 100, "c": 100, "d": 100, "e": 1},
		tracked:    map[string]bool{"1": true, "2": true, "3": true, "4": true, "5": true, "6": true, "7": true, "8": true, "9": true, "10": true, "11": true},
	}
	assert.InDelta(t, 1.0, personalization(heavy, 25), 1e-12)
}

func TestCategoryWeights(t *testing.T) {
	w := NewRanker(DefaultConfig()).CategoryWeights(models.ActivitySnapshot{Views: map[string]int{"P001": 3, "P005": 1}}, testCatalog())
	assert.InDelta(t, 0.75, w["Smartphones"], 1e-12)
	assert.InDelta(t, 0.25, w["Laptops"], 1e-12)
}

func TestGroupThousands(t *testing.T) {
	assert.Equal(t, "12,500", groupThousands(12500.4))
	assert.Equal(t, "999", groupThousands(999))
	assert.Equal(t, "1,234,568", groupThousands(1234567.6))
}
