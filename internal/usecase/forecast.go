package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	domsvc "PricePulse/internal/domain/service"
	icache "PricePulse/internal/service/cache"
	"PricePulse/internal/services/features"
	applogger "PricePulse/pkg/logger"
)

const (
	adviceMinSavings   = 1000.0
	adviceWaitPct      = 2.0
	adviceRisePct      = -1.0
	trendThresholdPct  = 2.0
	defaultForecastTTL = 5 * time.Minute
)

// ForecastService orchestrates load -> features -> ensemble -> deal for one product.
type ForecastService struct {
	store     domrepo.PriceStore
	catalog   domrepo.Catalog
	fc        domsvc.Forecaster
	detector  domsvc.DealDetector
	metrics   domrepo.Metrics
	cache     icache.BytesCache
	cacheTTL  time.Duration
	minPoints int
	timeout   time.Duration
	now       func() time.Time
	l         *applogger.Logger
}

type ForecastOption func(*ForecastService)

// WithPayloadCache caches serialized forecast results for ttl.
func WithPayloadCache(c icache.BytesCache, ttl time.Duration) ForecastOption {
	return func(s *ForecastService) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithForecastMetrics(m domrepo.Metrics) ForecastOption {
	return func(s *ForecastService) { s.metrics = m }
}

// WithMinPoints sets the retailer series length below which the daily mean is used instead.
func WithMinPoints(n int) ForecastOption {
	return func(s *ForecastService) {
		if n > 0 {
			s.minPoints = n
		}
	}
}

func WithForecastClock(now func() time.Time) ForecastOption {
	return func(s *ForecastService) { s.now = now }
}

func NewForecastService(store domrepo.PriceStore, catalog domrepo.Catalog, fc domsvc.Forecaster, detector domsvc.DealDetector, opts ...ForecastOption) *ForecastService {
	s := &ForecastService{
		store:     store,
		catalog:   catalog,
		fc:        fc,
		detector:  detector,
		cacheTTL:  defaultForecastTTL,
		minPoints: 10,
		timeout:   30 * time.Second,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetLogger injects a structured logger.
func (s *ForecastService) SetLogger(l *applogger.Logger) { s.l = l }

// ListProducts returns the catalog in catalog order.
func (s *ForecastService) ListProducts(ctx context.Context) ([]models.CatalogProduct, error) {
	if s.catalog != nil {
		if ps := s.catalog.Products(); len(ps) > 0 {
			return ps, nil
		}
	}
	// no catalog: fall back to whatever the store holds
	ids, err := s.store.ProductIDs(ctx)
	if err != nil {
		return nil, &models.StageError{Stage: models.StageLoadSeries, Err: err}
	}
	out := make([]models.CatalogProduct, len(ids))
	for i, id := range ids {
		out[i] = models.CatalogProduct{ID: id, Name: id}
	}
	return out, nil
}

// Forecast projects the product horizon days ahead. An empty retailer forecasts the
// cross-retailer daily mean; a retailer with too few points falls back to it.
func (s *ForecastService) Forecast(ctx context.Context, productID, retailer string, horizon int) (*models.ForecastResult, error) {
	start := time.Now()
	defer func() { s.recordLatency("forecast", start) }()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	product, points, err := s.load(ctx, productID)
	if err != nil {
		s.recordError("forecast", err)
		return nil, err
	}
	series, err := s.selectSeries(product.ID, retailer, points)
	if err != nil {
		s.recordError("forecast", err)
		return nil, err
	}

	key := forecastCacheKey(product.ID, series.Retailer, horizon, series.Last().Date, points)
	if res, ok := s.cached(ctx, key); ok {
		return res, nil
	}

	proj, err := s.fc.Forecast(ctx, series, horizon)
	if err != nil {
		s.recordError("forecast", err)
		return nil, err
	}

	current := series.Last().Price
	in := models.DealInput{
		Price:       current,
		History:     pricesOf(points),
		Competitors: competitorPrices(points, series.Last().Date, series.Retailer),
	}
	if len(proj.Forecast) > 0 {
		in.ForecastLower = proj.Forecast[0].LowerBound
		in.HasForecast = true
	}
	deal := s.detector.Detect(in)

	res := &models.ForecastResult{
		ProductID:    product.ID,
		ProductName:  product.Name,
		Retailer:     series.Label(),
		CurrentPrice: current,
		History:      proj.History,
		Forecast:     proj.Forecast,
		Deal:         deal,
		Trend:        classifyTrend(current, proj.Forecast),
		Summary:      summarize(current, proj.Forecast),
		DataPoints:   series.Len(),
		HorizonDays:  len(proj.Forecast),
		GeneratedAt:  s.now().UTC(),
	}

	if s.metrics != nil {
		s.metrics.RecordLastPrice(product.ID, series.Label(), current)
		if deal.IsDeal {
			s.metrics.RecordDeal(product.ID, "forecast")
		}
	}
	s.remember(ctx, key, res)

	if s.l != nil {
		s.l.Info("forecast.ok",
			applogger.String("product_id", product.ID),
			applogger.String("retailer", series.Label()),
			applogger.Int("points", series.Len()),
			applogger.Int("horizon", res.HorizonDays),
			applogger.Bool("deal", deal.IsDeal),
			applogger.Duration("elapsed_ms", time.Since(start)),
		)
	}
	return res, nil
}

// CompareRetailers ranks same-day retailer prices ascending. A zero date selects
// the product's latest observation date.
func (s *ForecastService) CompareRetailers(ctx context.Context, productID string, date time.Time) (*models.RetailerComparison, error) {
	start := time.Now()
	defer func() { s.recordLatency("compare", start) }()

	product, points, err := s.load(ctx, productID)
	if err != nil {
		s.recordError("compare", err)
		return nil, err
	}
	if date.IsZero() {
		date = points[len(points)-1].Date
	}
	date = models.Day(date)

	day := pointsOn(points, date)
	if len(day) == 0 {
		err := models.StageErrorf(models.StageLoadSeries, models.ErrProductNotFound,
			"no prices for %s on %s", product.ID, date.Format(time.DateOnly))
		s.recordError("compare", err)
		return nil, err
	}

	prices := RankRetailerPrices(day)
	return &models.RetailerComparison{
		ProductID:    product.ID,
		ProductName:  product.Name,
		Date:         date,
		Prices:       prices,
		BestPrice:    prices[0].Price,
		BestRetailer: prices[0].Retailer,
	}, nil
}

// RankRetailerPrices sorts one day's observations ascending by price. Only the
// first entry is marked best.
func RankRetailerPrices(day []models.PricePoint) []models.RetailerPrice {
	out := make([]models.RetailerPrice, len(day))
	for i, p := range day {
		out[i] = models.RetailerPrice{Retailer: p.Retailer, Price: p.Price}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].Retailer < out[j].Retailer
	})
	if len(out) == 0 {
		return out
	}
	best := out[0].Price
	out[0].IsBest = true
	for i := range out {
		out[i].SavingsVsBest = out[i].Price - best
	}
	return out
}

// BestDeals returns, for each product priced on the latest dataset date, the
// cheapest retailer and its saving against the most expensive one.
func (s *ForecastService) BestDeals(ctx context.Context, n int) ([]models.BestDeal, error) {
	start := time.Now()
	defer func() { s.recordLatency("best_deals", start) }()

	snap, err := s.store.Snapshot(ctx, 1)
	if err != nil {
		err = &models.StageError{Stage: models.StageLoadSeries, Err: err}
		s.recordError("best_deals", err)
		return nil, err
	}
	if len(snap) == 0 {
		return []models.BestDeal{}, nil
	}

	var latest time.Time
	for _, p := range snap {
		if p.Date.After(latest) {
			latest = p.Date
		}
	}
	byProduct := make(map[string][]models.PricePoint)
	for _, p := range snap {
		if p.Date.Equal(latest) {
			byProduct[p.ProductID] = append(byProduct[p.ProductID], p)
		}
	}

	out := make([]models.BestDeal, 0, len(byProduct))
	for id, day := range byProduct {
		ranked := RankRetailerPrices(day)
		best, worst := ranked[0], ranked[len(ranked)-1]
		d := models.BestDeal{
			ProductID: id,
			Retailer:  best.Retailer,
			Price:     best.Price,
			Savings:   worst.Price - best.Price,
			Date:      latest,
		}
		if worst.Price > 0 {
			d.SavingsPct = d.Savings / worst.Price * 100
		}
		if p, ok := s.product(id); ok {
			d.ProductName = p.Name
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Savings != out[j].Savings {
			return out[i].Savings > out[j].Savings
		}
		return out[i].ProductID < out[j].ProductID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// BuyAdvice compares today's cheapest offer with the lowest forecast price.
func (s *ForecastService) BuyAdvice(ctx context.Context, productID string, horizon int) (*models.BuyAdvice, error) {
	res, err := s.Forecast(ctx, productID, "", horizon)
	if err != nil {
		return nil, err
	}
	cmp, err := s.CompareRetailers(ctx, productID, time.Time{})
	if err != nil {
		return nil, err
	}
	if len(res.Forecast) == 0 {
		return nil, models.StageErrorf(models.StageModelFitting, models.ErrInsufficientData, "empty forecast for %s", productID)
	}
	return Advise(productID, cmp.BestPrice, res.Forecast), nil
}

// Advise turns a current price and a forecast into a WAIT / BUY_NOW / NEUTRAL suggestion.
func Advise(productID string, current float64, forecast []models.ForecastPoint) *models.BuyAdvice {
	low := forecast[0]
	for _, p := range forecast[1:] {
		if p.PredictedPrice < low.PredictedPrice {
			low = p
		}
	}
	savings := current - low.PredictedPrice
	pct := 0.0
	if current > 0 {
		pct = savings / current * 100
	}
	a := &models.BuyAdvice{
		ProductID:        productID,
		CurrentPrice:     current,
		PredictedBest:    low.PredictedPrice,
		PredictedBestOn:  low.Date,
		PotentialSavings: savings,
		SavingsPct:       pct,
	}
	switch {
	case savings > adviceMinSavings && pct > adviceWaitPct:
		a.Action = models.AdviceWait
		a.Reason = fmt.Sprintf("Price expected to drop by %.0f (%.1f%%) on %s", savings, pct, low.Date.Format(time.DateOnly))
	case pct < adviceRisePct:
		a.Action = models.AdviceBuyNow
		a.Reason = fmt.Sprintf("Price may increase by %.1f%% soon", math.Abs(pct))
	default:
		a.Action = models.AdviceNeutral
		a.Reason = "Price expected to remain stable"
	}
	return a
}

// AnalyzePatterns summarises the historical behaviour of one product, optionally
// restricted to a retailer.
func (s *ForecastService) AnalyzePatterns(ctx context.Context, productID, retailer string) (*models.PatternAnalysis, error) {
	start := time.Now()
	defer func() { s.recordLatency("analysis", start) }()

	product, points, err := s.load(ctx, productID)
	if err != nil {
		s.recordError("analysis", err)
		return nil, err
	}
	if retailer != "" {
		points = models.FilterRetailer(points, retailer)
		if len(points) == 0 {
			err := models.StageErrorf(models.StageLoadSeries, models.ErrProductNotFound, "%s at %s", product.ID, retailer)
			s.recordError("analysis", err)
			return nil, err
		}
	}
	a := AnalyzeSeries(points)
	a.ProductID = product.ID
	a.Retailer = retailer
	return a, nil
}

// AnalyzeSeries computes summary statistics over date-ordered observations.
func AnalyzeSeries(points []models.PricePoint) *models.PatternAnalysis {
	prices := pricesOf(points)
	a := &models.PatternAnalysis{DataPoints: len(prices)}
	if len(prices) == 0 {
		return a
	}
	a.Mean = features.Mean(prices)
	a.Std = features.PopStd(prices)
	a.Min, a.Max = features.MinMax(prices)
	if a.Mean != 0 {
		a.CoefficientOfVar = a.Std / a.Mean * 100
	}

	if n := len(prices); n >= 60 {
		recent := features.Mean(prices[n-30:])
		older := features.Mean(prices[n-60 : n-30])
		if older != 0 {
			a.TrendChangePct = (recent - older) / older * 100
		}
	}

	if len(prices) > 1 {
		changes := make([]float64, 0, len(prices)-1)
		for i := 1; i < len(prices); i++ {
			if prices[i-1] != 0 {
				changes = append(changes, (prices[i]-prices[i-1])/prices[i-1]*100)
			}
		}
		a.VolatilityPct = features.PopStd(changes)
	}

	var weekend, weekday []float64
	for _, p := range points {
		if wd := p.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend = append(weekend, p.Price)
		} else {
			weekday = append(weekday, p.Price)
		}
	}
	if len(weekend) > 0 && len(weekday) > 0 {
		if wd := features.Mean(weekday); wd != 0 {
			a.WeekendDiscountPct = (wd - features.Mean(weekend)) / wd * 100
		}
	}
	return a
}

// load resolves the product and returns every observation, all retailers.
func (s *ForecastService) load(ctx context.Context, productID string) (models.CatalogProduct, []models.PricePoint, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return models.CatalogProduct{}, nil, fmt.Errorf("%w: product id is required", models.ErrInvalidInput)
	}
	product, known := s.product(productID)

	points, err := s.store.LoadProduct(ctx, productID)
	if err != nil {
		return product, nil, &models.StageError{Stage: models.StageLoadSeries, Err: err}
	}
	if len(points) == 0 {
		if !known {
			return product, nil, models.StageErrorf(models.StageCatalogLookup, models.ErrProductNotFound, "%s", productID)
		}
		return product, nil, models.StageErrorf(models.StageLoadSeries, models.ErrProductNotFound, "no observations for %s", productID)
	}
	return product, points, nil
}

func (s *ForecastService) product(id string) (models.CatalogProduct, bool) {
	if s.catalog != nil {
		if p, ok := s.catalog.Product(id); ok {
			return p, true
		}
	}
	return models.CatalogProduct{ID: id, Name: id}, false
}

// selectSeries builds the retailer series, or the daily mean when retailer is
// empty or too sparse to fit.
func (s *ForecastService) selectSeries(productID, retailer string, points []models.PricePoint) (models.PriceSeries, error) {
	if retailer == "" {
		return models.DailyMean(productID, points), nil
	}
	own := models.FilterRetailer(points, retailer)
	if len(own) == 0 {
		return models.PriceSeries{}, models.StageErrorf(models.StageLoadSeries, models.ErrProductNotFound, "%s at %s", productID, retailer)
	}
	if len(own) < s.minPoints {
		if s.l != nil {
			s.l.Warn("forecast.retailer sparse, using daily mean",
				applogger.String("product_id", productID),
				applogger.String("retailer", retailer),
				applogger.Int("points", len(own)),
			)
		}
		return models.DailyMean(productID, points), nil
	}
	series, err := models.NewPriceSeries(productID, retailer, own)
	if err != nil {
		return models.PriceSeries{}, &models.StageError{Stage: models.StageLoadSeries, Err: err}
	}
	return series, nil
}

func (s *ForecastService) cached(ctx context.Context, key string) (*models.ForecastResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	b, ok, err := s.cache.GetBytes(ctx, key)
	if err != nil {
		if s.l != nil {
			s.l.Warn("forecast.cache_get_error", applogger.String("key", key), applogger.Error(err))
		}
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.RecordCache("forecast", ok)
	}
	if !ok {
		return nil, false
	}
	var res models.ForecastResult
	if err := json.Unmarshal(b, &res); err != nil {
		if s.l != nil {
			s.l.Warn("forecast.cache_decode_error", applogger.String("key", key), applogger.Error(err))
		}
		return nil, false
	}
	if s.l != nil {
		s.l.Debug("forecast.cache_hit", applogger.String("key", key))
	}
	return &res, true
}

func (s *ForecastService) remember(ctx context.Context, key string, res *models.ForecastResult) {
	if s.cache == nil {
		return
	}
	b, err := json.Marshal(res)
	if err == nil {
		err = s.cache.SetBytes(ctx, key, b, s.cacheTTL)
	}
	if err != nil && s.l != nil {
		s.l.Warn("forecast.cache_set_error", applogger.String("key", key), applogger.Error(err))
	}
}

func (s *ForecastService) recordLatency(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordLatency(op, time.Since(start).Seconds())
	}
}

func (s *ForecastService) recordError(op string, err error) {
	if s.metrics == nil || err == nil {
		return
	}
	s.metrics.RecordError(op + ":" + ErrorKind(err))
}

// ErrorKind names the domain error class of err.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrProductNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, models.ErrDatasetUnavailable):
		return "dataset_unavailable"
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

// forecastCacheKey covers every observation of the product: the deal signal also
// reads competitor prices, so an upsert at any retailer must miss the cache.
func forecastCacheKey(productID, retailer string, horizon int, last time.Time, points []models.PricePoint) string {
	if retailer == "" {
		retailer = "all"
	}
	return fmt.Sprintf("forecast:%s:%s:%d:%s:%d:%016x", productID, retailer, horizon,
		last.Format(time.DateOnly), len(points), models.Checksum(points))
}

// classifyTrend compares the mean forecast with the current price.
func classifyTrend(current float64, forecast []models.ForecastPoint) string {
	if len(forecast) == 0 || current == 0 {
		return models.TrendStable
	}
	sum := 0.0
	for _, p := range forecast {
		sum += p.PredictedPrice
	}
	change := (sum/float64(len(forecast)) - current) / current * 100
	switch {
	case change > trendThresholdPct:
		return models.TrendIncreasing
	case change < -trendThresholdPct:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}

func summarize(current float64, forecast []models.ForecastPoint) models.ForecastSummary {
	if len(forecast) == 0 {
		return models.ForecastSummary{}
	}
	sum := 0.0
	best, worst := forecast[0], forecast[0]
	for _, p := range forecast {
		sum += p.PredictedPrice
		if p.PredictedPrice < best.PredictedPrice {
			best = p
		}
		if p.PredictedPrice > worst.PredictedPrice {
			worst = p
		}
	}
	return models.ForecastSummary{
		AveragePredicted: sum / float64(len(forecast)),
		BestPredicted:    best.PredictedPrice,
		BestDate:         best.Date,
		WorstPredicted:   worst.PredictedPrice,
		PotentialSavings: math.Max(0, current-best.PredictedPrice),
	}
}

func pricesOf(points []models.PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}

func pointsOn(points []models.PricePoint, day time.Time) []models.PricePoint {
	var out []models.PricePoint
	for _, p := range points {
		if models.Day(p.Date).Equal(day) {
			out = append(out, p)
		}
	}
	return out
}

// competitorPrices returns the day's prices of every retailer other than own.
func competitorPrices(points []models.PricePoint, day time.Time, own string) []float64 {
	var out []float64
	for _, p := range pointsOn(points, day) {
		if own == "" || p.Retailer != own {
			out = append(out, p.Price)
		}
	}
	return out
}
