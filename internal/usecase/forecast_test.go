package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PricePulse/internal/domain/models"
	internalrepo "PricePulse/internal/repository"
	icache "PricePulse/internal/service/cache"
	"PricePulse/internal/services/deals"
	"PricePulse/internal/services/forecast"
)

var day0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// stubForecaster projects a fixed price path from the last observation.
type stubForecaster struct {
	path  []float64
	err   error
	calls int
}

func (f *stubForecaster) Forecast(_ context.Context, series models.PriceSeries, horizon int) (models.Projection, error) {
	f.calls++
	if f.err != nil {
		return models.Projection{}, f.err
	}
	if horizon == 0 {
		horizon = 14
	}
	last := series.Last().Date
	out := make([]models.ForecastPoint, horizon)
	for i := range out {
		p := f.path[min(i, len(f.path)-1)]
		out[i] = models.ForecastPoint{
			Date:           last.AddDate(0, 0, i+1),
			PredictedPrice: p,
			LowerBound:     p * 0.95,
			UpperBound:     p * 1.05,
			Confidence:     0.9,
		}
	}
	return models.Projection{Forecast: out}, nil
}

func testCatalog(t *testing.T) *internalrepo.StaticCatalog {
	t.Helper()
	c, err := internalrepo.NewStaticCatalog([]models.CatalogProduct{
		{ID: "P001", Name: "iPhone 16", Category: "Smartphones", Rating: 4.5},
		{ID: "P002", Name: "MacBook Air", Category: "Laptops", Rating: 4.6},
		{ID: "P003", Name: "Pixel Buds", Category: "Audio", Rating: 4.1},
	})
	require.NoError(t, err)
	return c
}

// testStore holds 40 days of P001 at three retailers. On the last day the
// prices are Amazon 1000, Flipkart 950, Croma 900.
func testStore(t *testing.T) *internalrepo.MemoryPriceStore {
	t.Helper()
	var pts []models.PricePoint
	for i := 0; i < 40; i++ {
		d := day0.AddDate(0, 0, i)
		a, f, c := 1000.0, 950.0+float64(i%2)*10, 920.0
		if i == 39 {
			f, c = 950, 900
		}
		pts = append(pts,
			models.PricePoint{ProductID: "P001", Retailer: "Amazon.in", Date: d, Price: a},
			models.PricePoint{ProductID: "P001", Retailer: "Flipkart", Date: d, Price: f},
			models.PricePoint{ProductID: "P001", Retailer: "Croma", Date: d, Price: c},
		)
	}
	s := internalrepo.NewMemoryPriceStore(func() ([]models.PricePoint, error) { return pts, nil })
	require.NoError(t, s.Init(context.Background()))
	return s
}

func lastDay() time.Time { return day0.AddDate(0, 0, 39) }

func newTestForecastService(t *testing.T, fc *stubForecaster, opts ...ForecastOption) (*ForecastService, *internalrepo.MemoryPriceStore) {
	t.Helper()
	store := testStore(t)
	return NewForecastService(store, testCatalog(t), fc, deals.NewDetector(deals.DefaultConfig()), opts...), store
}

func TestCompareRetailersRanksAscending(t *testing.T) {
	s, _ := newTestForecastService(t, &stubForecaster{path: []float64{900}})

	cmp, err := s.CompareRetailers(context.Background(), "P001", time.Time{})
	require.NoError(t, err)
	assert.True(t, cmp.Date.Equal(lastDay()))
	assert.Equal(t, "iPhone 16", cmp.ProductName)
	require.Len(t, cmp.Prices, 3)

	assert.Equal(t, "Croma", cmp.Prices[0].Retailer)
	assert.Equal(t, "Flipkart", cmp.Prices[1].Retailer)
	assert.Equal(t, "Amazon.in", cmp.Prices[2].Retailer)
	assert.InDelta(t, 0, cmp.Prices[0].SavingsVsBest, 1e-9)
	assert.InDelta(t, 50, cmp.Prices[1].SavingsVsBest, 1e-9)
	assert.InDelta(t, 100, cmp.Prices[2].SavingsVsBest, 1e-9)
	assert.Equal(t, 900.0, cmp.BestPrice)
	assert.Equal(t, "Croma", cmp.BestRetailer)

	best := 0
	for _, p := range cmp.Prices {
		if p.IsBest {
			best++
		}
	}
	assert.Equal(t, 1, best)
}

func TestCompareRetailersErrors(t *testing.T) {
	s, _ := newTestForecastService(t, &stubForecaster{path: []float64{900}})
	ctx := context.Background()

	_, err := s.CompareRetailers(ctx, "P001", day0.AddDate(1, 0, 0))
	assert.ErrorIs(t, err, models.ErrProductNotFound)

	_, err = s.CompareRetailers(ctx, "P999", time.Time{})
	require.ErrorIs(t, err, models.ErrProductNotFound)
	var se *models.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.StageCatalogLookup, se.Stage)

	// known product without observations
	_, err = s.CompareRetailers(ctx, "P003", time.Time{})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.StageLoadSeries, se.Stage)

	_, err = s.CompareRetailers(ctx, "  ", time.Time{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestRankRetailerPricesBreaksTiesByName(t *testing.T) {
	ranked := RankRetailerPrices([]models.PricePoint{
		{Retailer: "Zeta", Price: 100},
		{Retailer: "Alpha", Price: 100},
		{Retailer: "Mid", Price: 120},
	})
	require.Len(t, ranked, 3)
	assert.Equal(t, "Alpha", ranked[0].Retailer)
	assert.True(t, ranked[0].IsBest)
	assert.False(t, ranked[1].IsBest)
	assert.InDelta(t, 0, ranked[1].SavingsVsBest, 1e-9)
	assert.InDelta(t, 20, ranked[2].SavingsVsBest, 1e-9)

	assert.Empty(t, RankRetailerPrices(nil))
}

func TestForecastAggregateUsesDailyMean(t *testing.T) {
	fc := &stubForecaster{path: []float64{940}}
	s, _ := newTestForecastService(t, fc, WithForecastClock(func() time.Time { return lastDay() }))

	res, err := s.Forecast(context.Background(), "P001", "", 7)
	require.NoError(t, err)
	assert.Equal(t, "All Retailers (Average)", res.Retailer)
	assert.Equal(t, "iPhone 16", res.ProductName)
	assert.InDelta(t, 950, res.CurrentPrice, 1e-9)
	assert.Equal(t, 40, res.DataPoints)
	assert.Equal(t, 7, res.HorizonDays)
	assert.Equal(t, models.TrendStable, res.Trend)
	assert.InDelta(t, 940, res.Summary.BestPredicted, 1e-9)
	assert.InDelta(t, 10, res.Summary.PotentialSavings, 1e-9)
	assert.True(t, res.GeneratedAt.Equal(lastDay()))
}

func TestForecastRetailerFlagsCompetitorDeal(t *testing.T) {
	s, _ := newTestForecastService(t, &stubForecaster{path: []float64{1000}})

	res, err := s.Forecast(context.Background(), "P001", "Croma", 5)
	require.NoError(t, err)
	assert.Equal(t, "Croma", res.Retailer)
	assert.Equal(t, 900.0, res.CurrentPrice)
	assert.Equal(t, models.TrendIncreasing, res.Trend)
	assert.True(t, res.Deal.IsDeal)
	assert.Contains(t, res.Deal.Reason, "cheaper than competitors")
}

func TestForecastRetailerSelection(t *testing.T) {
	s, store := newTestForecastService(t, &stubForecaster{path: []float64{900}})
	ctx := context.Background()

	_, err := s.Forecast(ctx, "P001", "Reliance", 5)
	assert.ErrorIs(t, err, models.ErrProductNotFound)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, models.PricePoint{ProductID: "P001", Retailer: "Vijay", Date: day0.AddDate(0, 0, 37+i), Price: 990}))
	}
	res, err := s.Forecast(ctx, "P001", "Vijay", 5)
	require.NoError(t, err)
	assert.Equal(t, "All Retailers (Average)", res.Retailer)
}

func TestForecastUsesPayloadCache(t *testing.T) {
	fc := &stubForecaster{path: []float64{930}}
	s, _ := newTestForecastService(t, fc, WithPayloadCache(icache.NewTTLCache(), time.Minute))
	ctx := context.Background()

	first, err := s.Forecast(ctx, "P001", "Flipkart", 3)
	require.NoError(t, err)
	second, err := s.Forecast(ctx, "P001", "Flipkart", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, fc.calls)
	assert.Equal(t, first.CurrentPrice, second.CurrentPrice)
	assert.Len(t, second.Forecast, 3)

	_, err = s.Forecast(ctx, "P001", "Flipkart", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, fc.calls)
}

func TestForecastCacheMissesAfterUpsert(t *testing.T) {
	fc := &stubForecaster{path: []float64{930}}
	s, store := newTestForecastService(t, fc, WithPayloadCache(icache.NewTTLCache(), time.Minute))
	ctx := context.Background()

	_, err := s.Forecast(ctx, "P001", "Flipkart", 3)
	require.NoError(t, err)

	// same day, new price
	require.NoError(t, store.Append(ctx, models.PricePoint{ProductID: "P001", Retailer: "Flipkart", Date: lastDay(), Price: 800}))
	res, err := s.Forecast(ctx, "P001", "Flipkart", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, fc.calls)
	assert.Equal(t, 800.0, res.CurrentPrice)

	// a competitor upsert changes the deal inputs too
	require.NoError(t, store.Append(ctx, models.PricePoint{ProductID: "P001", Retailer: "Croma", Date: lastDay(), Price: 700}))
	_, err = s.Forecast(ctx, "P001", "Flipkart", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, fc.calls)
}

func TestForecastPropagatesStageErrors(t *testing.T) {
	fc := &stubForecaster{err: models.StageErrorf(models.StageFeatureBuilding, models.ErrInsufficientData, "3 points")}
	s, _ := newTestForecastService(t, fc)

	_, err := s.Forecast(context.Background(), "P001", "", 5)
	require.ErrorIs(t, err, models.ErrInsufficientData)
	assert.Equal(t, "insufficient_data", ErrorKind(err))
}

func TestForecastWithEnsemble(t *testing.T) {
	fc := forecast.NewForecaster(forecast.Config{
		Trees: 5, TreeDepth: 4, BoostRounds: 10, BoostDepth: 2, Workers: 1, Seed: 7,
	})
	store := testStore(t)
	s := NewForecastService(store, testCatalog(t), fc, deals.NewDetector(deals.Config{}))

	res, err := s.Forecast(context.Background(), "P001", "Flipkart", 5)
	require.NoError(t, err)
	require.Len(t, res.Forecast, 5)
	for i, p := range res.Forecast {
		assert.True(t, p.Date.Equal(lastDay().AddDate(0, 0, i+1)), "day %d", i)
		assert.LessOrEqual(t, p.LowerBound, p.PredictedPrice)
		assert.LessOrEqual(t, p.PredictedPrice, p.UpperBound)
		assert.Greater(t, p.PredictedPrice, 0.0)
	}
	assert.NotEmpty(t, res.History)
}

func TestAdvise(t *testing.T) {
	path := func(prices ...float64) []models.ForecastPoint {
		out := make([]models.ForecastPoint, len(prices))
		for i, p := range prices {
			out[i] = models.ForecastPoint{Date: day0.AddDate(0, 0, i+1), PredictedPrice: p}
		}
		return out
	}
	cases := []struct {
		name    string
		current float64
		fc      []models.ForecastPoint
		want    string
	}{
		{"big drop", 50000, path(49500, 48000, 49000), models.AdviceWait},
		{"small absolute drop", 1000, path(900), models.AdviceNeutral},
		{"rise", 1000, path(1100, 1050), models.AdviceBuyNow},
		{"flat", 1000, path(1005), models.AdviceNeutral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := Advise("P001", tc.current, tc.fc)
			assert.Equal(t, tc.want, a.Action)
			assert.NotEmpty(t, a.Reason)
		})
	}

	a := Advise("P001", 50000, path(49500, 48000, 49000))
	assert.InDelta(t, 2000, a.PotentialSavings, 1e-9)
	assert.InDelta(t, 4, a.SavingsPct, 1e-9)
	assert.True(t, a.PredictedBestOn.Equal(day0.AddDate(0, 0, 2)))
}

func TestBuyAdviceUsesCheapestRetailer(t *testing.T) {
	s, _ := newTestForecastService(t, &stubForecaster{path: []float64{880}})

	a, err := s.BuyAdvice(context.Background(), "P001", 5)
	require.NoError(t, err)
	assert.Equal(t, 900.0, a.CurrentPrice)
	assert.InDelta(t, 20, a.PotentialSavings, 1e-9)
	assert.Equal(t, models.AdviceNeutral, a.Action)
}

func TestBestDeals(t *testing.T) {
	s, store := newTestForecastService(t, &stubForecaster{path: []float64{900}})
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, models.PricePoint{ProductID: "P002", Retailer: "Croma", Date: lastDay(), Price: 500}))
	require.NoError(t, store.Append(ctx, models.PricePoint{ProductID: "P002", Retailer: "Amazon.in", Date: lastDay(), Price: 700}))
	// stale prices do not count
	require.NoError(t, store.Append(ctx, models.PricePoint{ProductID: "P003", Retailer: "Croma", Date: day0, Price: 10}))

	all, err := s.BestDeals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "P002", all[0].ProductID)
	assert.Equal(t, "MacBook Air", all[0].ProductName)
	assert.Equal(t, "Croma", all[0].Retailer)
	assert.InDelta(t, 200, all[0].Savings, 1e-9)
	assert.InDelta(t, 200.0/700*100, all[0].SavingsPct, 1e-9)
	assert.Equal(t, "P001", all[1].ProductID)
	assert.InDelta(t, 100, all[1].Savings, 1e-9)

	top, err := s.BestDeals(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "P002", top[0].ProductID)
}

func TestAnalyzeSeries(t *testing.T) {
	var pts []models.PricePoint
	for i := 0; i < 60; i++ {
		p := 100.0
		if i >= 30 {
			p = 110
		}
		pts = append(pts, models.PricePoint{Date: day0.AddDate(0, 0, i), Price: p})
	}
	a := AnalyzeSeries(pts)
	assert.Equal(t, 60, a.DataPoints)
	assert.InDelta(t, 105, a.Mean, 1e-9)
	assert.InDelta(t, 5, a.Std, 1e-9)
	assert.InDelta(t, 5.0/105*100, a.CoefficientOfVar, 1e-9)
	assert.Equal(t, 100.0, a.Min)
	assert.Equal(t, 110.0, a.Max)
	assert.InDelta(t, 10, a.TrendChangePct, 1e-9)
	assert.Greater(t, a.VolatilityPct, 0.0)

	// 2025-01-06 is a Monday
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	pts = pts[:0]
	for i := 0; i < 14; i++ {
		d := monday.AddDate(0, 0, i)
		p := 100.0
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			p = 90
		}
		pts = append(pts, models.PricePoint{Date: d, Price: p})
	}
	a = AnalyzeSeries(pts)
	assert.InDelta(t, 10, a.WeekendDiscountPct, 1e-9)
	assert.Zero(t, a.TrendChangePct, "needs 60 points")

	assert.Zero(t, AnalyzeSeries(nil).DataPoints)
}

func TestAnalyzePatternsByRetailer(t *testing.T) {
	s, _ := newTestForecastService(t, &stubForecaster{path: []float64{900}})
	ctx := context.Background()

	a, err := s.AnalyzePatterns(ctx, "P001", "Amazon.in")
	require.NoError(t, err)
	assert.Equal(t, 40, a.DataPoints)
	assert.InDelta(t, 1000, a.Mean, 1e-9)
	assert.InDelta(t, 0, a.Std, 1e-9)

	_, err = s.AnalyzePatterns(ctx, "P001", "Reliance")
	assert.ErrorIs(t, err, models.ErrProductNotFound)
}

func TestListProducts(t *testing.T) {
	s, _ := newTestForecastService(t, &stubForecaster{path: []float64{900}})
	ps, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 3)
	assert.Equal(t, "P001", ps[0].ID)

	bare := NewForecastService(testStore(t), nil, &stubForecaster{}, deals.NewDetector(deals.Config{}))
	ps, err = bare.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "P001", ps[0].Name)
}

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"not_found":           models.StageErrorf(models.StageLoadSeries, models.ErrProductNotFound, "x"),
		"insufficient_data":   models.ErrInsufficientData,
		"dataset_unavailable": &models.StageError{Stage: models.StageLoadSeries, Err: models.ErrDatasetUnavailable},
		"invalid_input":       models.ErrInvalidInput,
		"timeout":             context.DeadlineExceeded,
		"internal":            errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, ErrorKind(err))
	}
}
