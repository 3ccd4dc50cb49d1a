package forecast

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"PricePulse/internal/domain/models"
	"PricePulse/internal/domain/service"
	"PricePulse/internal/services/features"
	applogger "PricePulse/pkg/logger"
)

// Config tunes the ensemble. Zero values are replaced by DefaultConfig.
type Config struct {
	DefaultHorizon int
	MaxHorizon     int
	MinPoints      int
	Workers        int

	Trees        int
	TreeDepth    int
	MaxFeatures  int
	BoostRounds  int
	BoostDepth   int
	LearningRate float64
	Weights      Weights

	Seed         uint64
	Noise        bool
	MarketEvents bool

	Z               float64
	BaseUncertainty float64
	GrowthEnd       float64
	ConfidenceFloor float64
	ConfidenceDecay float64
	WeekendFactor   float64
	MonthEndFactor  float64
}

// Weights combine the three regressors.
type Weights struct {
	Forest float64
	Boost  float64
	Linear float64
}

func DefaultConfig() Config {
	return Config{
		DefaultHorizon:  14,
		MaxHorizon:      90,
		MinPoints:       10,
		Workers:         4,
		Trees:           150,
		TreeDepth:       10,
		BoostRounds:     150,
		BoostDepth:      3,
		LearningRate:    0.1,
		Weights:         Weights{Forest: 0.5, Boost: 0.35, Linear: 0.15},
		Seed:            42,
		Noise:           true,
		Z:               1.96,
		BaseUncertainty: 0.02,
		GrowthEnd:       1.5,
		ConfidenceFloor: 0.6,
		ConfidenceDecay: 0.01,
		WeekendFactor:   0.995,
		MonthEndFactor:  0.992,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	setInt := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	setFloat := func(v *float64, def float64) {
		if *v <= 0 {
			*v = def
		}
	}
	setInt(&c.DefaultHorizon, d.DefaultHorizon)
	setInt(&c.MaxHorizon, d.MaxHorizon)
	setInt(&c.MinPoints, d.MinPoints)
	setInt(&c.Workers, d.Workers)
	setInt(&c.Trees, d.Trees)
	setInt(&c.TreeDepth, d.TreeDepth)
	setInt(&c.BoostRounds, d.BoostRounds)
	setInt(&c.BoostDepth, d.BoostDepth)
	setFloat(&c.LearningRate, d.LearningRate)
	setFloat(&c.Z, d.Z)
	setFloat(&c.BaseUncertainty, d.BaseUncertainty)
	setFloat(&c.GrowthEnd, d.GrowthEnd)
	setFloat(&c.ConfidenceFloor, d.ConfidenceFloor)
	setFloat(&c.ConfidenceDecay, d.ConfidenceDecay)
	setFloat(&c.WeekendFactor, d.WeekendFactor)
	setFloat(&c.MonthEndFactor, d.MonthEndFactor)
	if c.Weights.Forest+c.Weights.Boost+c.Weights.Linear <= 0 {
		c.Weights = d.Weights
	}
	if c.MinPoints < features.MinSeriesLen+1 {
		c.MinPoints = features.MinSeriesLen + 1
	}
	return c
}

// Ensemble is a fitted forest, booster and linear model over standardised features.
type Ensemble struct {
	scaler  *scaler
	forest  *baggingForest
	boost   *gradientBoosting
	linear  *linearModel
	weights Weights

	last     models.FeatureVector
	lastDate time.Time
	history  []models.ForecastPoint
}

// Forecaster fits ensembles and projects them forward.
type Forecaster struct {
	cfg   Config
	cache *ModelCache
	sem   *semaphore.Weighted
	noise func(seed uint64) NoiseSource
	onFit func(outcome string)
	l     *applogger.Logger
}

var _ service.Forecaster = (*Forecaster)(nil)

type Option func(*Forecaster)

// WithModelCache reuses fitted ensembles across calls.
func WithModelCache(c *ModelCache) Option { return func(f *Forecaster) { f.cache = c } }

// WithNoise overrides how the per-call noise stream is built.
func WithNoise(fn func(seed uint64) NoiseSource) Option { return func(f *Forecaster) { f.noise = fn } }

// WithFitObserver is told "fitted" or "cached" for every ensemble Forecast uses.
func WithFitObserver(fn func(outcome string)) Option { return func(f *Forecaster) { f.onFit = fn } }

func NewForecaster(cfg Config, opts ...Option) *Forecaster {
	cfg = cfg.withDefaults()
	f := &Forecaster{
		cfg:   cfg,
		sem:   semaphore.NewWeighted(int64(cfg.Workers)),
		noise: NewSeededNoise,
	}
	if !cfg.Noise {
		f.noise = func(uint64) NoiseSource { return NoNoise{} }
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// SetLogger injects a structured logger.
func (f *Forecaster) SetLogger(l *applogger.Logger) { f.l = l }

// Config returns the effective configuration.
func (f *Forecaster) Config() Config { return f.cfg }

// Forecast fits (or reuses) an ensemble for series and projects horizon days.
// A horizon of 0 selects the configured default.
func (f *Forecaster) Forecast(ctx context.Context, series models.PriceSeries, horizon int) (models.Projection, error) {
	if horizon == 0 {
		horizon = f.cfg.DefaultHorizon
	}
	if horizon < 1 || horizon > f.cfg.MaxHorizon {
		return models.Projection{}, fmt.Errorf("%w: horizon %d outside [1, %d]", models.ErrInvalidInput, horizon, f.cfg.MaxHorizon)
	}
	if series.Len() == 0 {
		return models.Projection{}, models.StageErrorf(models.StageLoadSeries, models.ErrProductNotFound, "%s/%s", series.ProductID, series.Label())
	}
	if series.Len() < f.cfg.MinPoints {
		return models.Projection{}, models.StageErrorf(models.StageFeatureBuilding, models.ErrInsufficientData,
			"%d points for %s, need %d", series.Len(), series.ProductID, f.cfg.MinPoints)
	}

	key := Fingerprint(series, f.cfg)
	ens, ok := f.cache.Get(key)
	if !ok {
		var err error
		ens, err = f.Fit(ctx, series)
		if err != nil {
			return models.Projection{}, err
		}
		f.cache.Put(key, ens)
		f.observe("fitted")
	} else {
		f.observe("cached")
		if f.l != nil {
			f.l.Debug("forecast.model cache_hit", applogger.String("product_id", series.ProductID), applogger.String("retailer", series.Retailer))
		}
	}

	h := fnv.New64a()
	h.Write([]byte(key))
	return models.Projection{
		History:  append([]models.ForecastPoint(nil), ens.history...),
		Forecast: f.Project(ens, horizon, f.noise(f.cfg.Seed^h.Sum64())),
	}, nil
}

func (f *Forecaster) observe(outcome string) {
	if f.onFit != nil {
		f.onFit(outcome)
	}
}

// Fit trains the three regressors concurrently on the trainable rows of series.
func (f *Forecaster) Fit(ctx context.Context, series models.PriceSeries) (*Ensemble, error) {
	rows, err := features.Build(series)
	if err != nil {
		return nil, &models.StageError{Stage: models.StageFeatureBuilding, Err: err}
	}
	train := features.Trainable(rows)
	if len(train) < 2 {
		return nil, models.StageErrorf(models.StageModelFitting, models.ErrInsufficientData, "%d trainable rows for %s", len(train), series.ProductID)
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, &models.StageError{Stage: models.StageModelFitting, Err: err}
	}
	defer f.sem.Release(1)

	start := time.Now()
	x, y := features.Matrix(train)
	sc := fitScaler(x)
	xs := sc.transformAll(x)
	ens := &Ensemble{scaler: sc, weights: f.cfg.Weights}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ens.forest, err = fitForest(gctx, xs, y, f.cfg.Trees,
			treeParams{maxDepth: f.cfg.TreeDepth, minLeaf: 1, maxFeatures: f.cfg.MaxFeatures}, f.cfg.Seed)
		return err
	})
	g.Go(func() error {
		var err error
		ens.boost, err = fitBoosting(gctx, xs, y, f.cfg.BoostRounds, f.cfg.LearningRate, f.cfg.BoostDepth)
		return err
	})
	g.Go(func() error {
		var err error
		ens.linear, err = fitLinear(xs, y)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, &models.StageError{Stage: models.StageModelFitting, Err: err}
	}

	ens.history = f.fittedHistory(ens, train, xs)
	ens.last = initialState(rows, series.Prices())
	ens.lastDate = series.Last().Date

	if f.l != nil {
		f.l.Info("forecast.fit ok",
			applogger.String("product_id", series.ProductID),
			applogger.String("retailer", series.Label()),
			applogger.Int("rows", len(train)),
			applogger.Duration("elapsed_ms", time.Since(start)),
		)
	}
	return ens, nil
}

// fittedHistory is the in-sample ensemble fit with a residual band.
func (f *Forecaster) fittedHistory(ens *Ensemble, train []models.FeatureVector, xs [][]float64) []models.ForecastPoint {
	preds := make([]float64, len(train))
	resid := make([]float64, len(train))
	for i, row := range xs {
		preds[i], _ = ens.combine(row)
		resid[i] = train[i].Price - preds[i]
	}
	margin := f.cfg.Z * features.PopStd(resid)
	out := make([]models.ForecastPoint, len(train))
	for i, r := range train {
		out[i] = models.ForecastPoint{
			Date:           r.Date,
			PredictedPrice: preds[i],
			LowerBound:     preds[i] - margin,
			UpperBound:     preds[i] + margin,
			Confidence:     1,
		}
	}
	return out
}

// initialState positions the lag features one day past the last observation.
func initialState(rows []models.FeatureVector, prices []float64) models.FeatureVector {
	n := len(prices)
	s := rows[n-1]
	s.Lag1 = prices[n-1]
	s.Lag3 = prices[n-3]
	s.Lag7 = prices[n-7]
	s.HasLag7 = true
	return s
}

// combine returns the weighted prediction and the three raw predictions for a scaled row.
func (e *Ensemble) combine(row []float64) (float64, [3]float64) {
	raw := [3]float64{e.forest.predict(row), e.boost.predict(row), e.linear.predict(row)}
	w := e.weights
	total := w.Forest + w.Boost + w.Linear
	return (w.Forest*raw[0] + w.Boost*raw[1] + w.Linear*raw[2]) / total, raw
}

// stepState is the fold carried from one projected day to the next.
type stepState struct {
	fv       models.FeatureVector
	baseDSS  int
	lastDate time.Time
	prevPred float64
}

// Project runs the multi-step inference fold for horizon days.
func (f *Forecaster) Project(ens *Ensemble, horizon int, noise NoiseSource) []models.ForecastPoint {
	if noise == nil {
		noise = NoNoise{}
	}
	s := stepState{fv: ens.last, baseDSS: ens.last.DaysSinceStart, lastDate: ens.lastDate, prevPred: ens.last.Lag1}
	out := make([]models.ForecastPoint, 0, horizon)
	for d := 1; d <= horizon; d++ {
		var p models.ForecastPoint
		s, p = f.step(ens, s, d, horizon, noise)
		out = append(out, p)
	}
	return out
}

func (f *Forecaster) step(ens *Ensemble, s stepState, day, horizon int, noise NoiseSource) (stepState, models.ForecastPoint) {
	date := s.lastDate.AddDate(0, 0, day)
	fv := s.fv
	features.ApplyCalendar(&fv, date)
	fv.DaysSinceStart = s.baseDSS + day

	pred, raw := ens.combine(ens.scaler.transform(features.Values(fv)))
	sigma := math.Hypot(features.PopStd(raw[:]), f.cfg.BaseUncertainty*pred)

	if fv.IsWeekend {
		pred *= f.cfg.WeekendFactor
	}
	if fv.IsMonthEnd {
		pred *= f.cfg.MonthEndFactor
	}
	pred *= 1 + noise.Factor(day)

	var label string
	if f.cfg.MarketEvents {
		if ev, ok := eventFor(date); ok {
			pred *= 1 + ev.impact
			label = ev.name
		}
	}

	growth := 1.0
	if horizon > 1 {
		growth = 1 + (f.cfg.GrowthEnd-1)*float64(day-1)/float64(horizon-1)
	}
	margin := f.cfg.Z * sigma * growth
	point := models.ForecastPoint{
		Date:           date,
		PredictedPrice: pred,
		LowerBound:     pred - margin,
		UpperBound:     pred + margin,
		Confidence:     math.Max(f.cfg.ConfidenceFloor, 1-float64(day)*f.cfg.ConfidenceDecay),
		Event:          label,
	}

	next := fv
	next.Lag7 = fv.Lag3
	next.Lag3 = fv.Lag1
	next.Lag1 = pred
	next.MA3 = (2*fv.MA3 + pred) / 3
	next.MA7 = (6*fv.MA7 + pred) / 7
	if s.prevPred != 0 {
		next.PctChange1 = (pred - s.prevPred) / s.prevPred
	}
	return stepState{fv: next, baseDSS: s.baseDSS, lastDate: s.lastDate, prevPred: pred}, point
}
