package di

import (
    "context"
    "fmt"
    "time"

    "github.com/redis/go-redis/v9"

    "PricePulse/internal/domain/models"
    "PricePulse/internal/domain/repository"
    "PricePulse/internal/handler/api"
    mid "PricePulse/internal/middleware"
    internalrepo "PricePulse/internal/repository"
    icache "PricePulse/internal/service/cache"
    imetrics "PricePulse/internal/service/metrics"
    "PricePulse/internal/service/ratelimit"
    "PricePulse/internal/services/deals"
    "PricePulse/internal/services/forecast"
    "PricePulse/internal/services/ranking"
    "PricePulse/internal/usecase"
    pkgch "PricePulse/pkg/clickhouse"
    "PricePulse/pkg/config"
    pkgkafka "PricePulse/pkg/kafka"
    applogger "PricePulse/pkg/logger"
    "PricePulse/pkg/metrics"
    "PricePulse/pkg/server"
)

const initTimeout = 30 * time.Second

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "stdout",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCatalog loads the product catalog.
func ProvideCatalog(cfg *config.Config) (*internalrepo.StaticCatalog, error) {
	c, err := internalrepo.LoadCatalogFile(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return c, nil
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the price
// store lives in memory.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Store.Type != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, cfg.ClickHouse.ConnMaxLifetime),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideRedisClient connects to redis when either the activity store or the
// shared payload cache needs it.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled && cfg.Activity.Type != "redis" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvidePriceStore opens the configured price store and seeds it from the dataset file.
func ProvidePriceStore(cfg *config.Config, ch *pkgch.Client, catalog *internalrepo.StaticCatalog, l *applogger.Logger) (repository.PriceStore, error) {
	var seed func() ([]models.PricePoint, error)
	if path := cfg.Store.DatasetPath; path != "" {
		seed = func() ([]models.PricePoint, error) {
			return internalrepo.LoadDatasetFile(path, catalog.ResolveName)
		}
	}

	var store repository.PriceStore
	switch cfg.Store.Type {
	case "clickhouse":
		s := internalrepo.NewCHPriceStore(ch, cfg.ClickHouse.Database, internalrepo.BreakerSettings{
			FailureThreshold: cfg.ClickHouse.BreakerFailures,
			OpenTimeout:      cfg.ClickHouse.BreakerTimeout,
		}, seed)
		s.SetLogger(l)
		store = s
	default:
		s := internalrepo.NewMemoryPriceStore(seed)
		s.SetLogger(l)
		store = s
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("price store init: %w", err)
	}
	return store, nil
}

// ProvideActivityStore returns the redis-backed store when configured.
func ProvideActivityStore(cfg *config.Config, rdb *redis.Client) repository.ActivityStore {
	if cfg.Activity.Type == "redis" && rdb != nil {
		return internalrepo.NewRedisActivityStore(rdb, cfg.Redis.Prefix, cfg.Redis.ActivityTTL)
	}
	return internalrepo.NewMemoryActivityStore()
}

// ProvidePayloadCache caches rendered forecasts in process, with redis behind
// it when enabled.
func ProvidePayloadCache(cfg *config.Config, rdb *redis.Client) icache.BytesCache {
	if cfg.Redis.Enabled && rdb != nil {
		shared := icache.NewRedisCacheFromClient(rdb, cfg.Redis.Prefix)
		return icache.NewLayeredCache(shared, cfg.Cache.L1Size, cfg.Cache.L1TTL)
	}
	return icache.NewTTLCache(icache.WithCapacity(cfg.Cache.L1Size))
}

// ProvideForecaster maps the forecast section onto the ensemble config.
func ProvideForecaster(cfg *config.Config, l *applogger.Logger) *forecast.Forecaster {
	imetrics.Register()
	f := forecast.NewForecaster(forecastConfig(cfg),
		forecast.WithModelCache(forecast.NewModelCache(cfg.Cache.ModelTTL, cfg.Cache.ModelCapacity)),
		forecast.WithFitObserver(func(outcome string) {
			imetrics.ModelFits.WithLabelValues(outcome).Inc()
		}),
	)
	f.SetLogger(l)
	return f
}

func forecastConfig(cfg *config.Config) forecast.Config {
	fc := cfg.Forecast
	return forecast.Config{
		DefaultHorizon:  fc.DefaultHorizon,
		MaxHorizon:      fc.MaxHorizon,
		MinPoints:       fc.MinPoints,
		Workers:         fc.Workers,
		Trees:           fc.Trees,
		TreeDepth:       fc.TreeDepth,
		MaxFeatures:     fc.MaxFeatures,
		BoostRounds:     fc.BoostRounds,
		BoostDepth:      fc.BoostDepth,
		LearningRate:    fc.LearningRate,
		Weights:         forecast.Weights{Forest: fc.WeightForest, Boost: fc.WeightBoost, Linear: fc.WeightLinear},
		Seed:            fc.Seed,
		Noise:           fc.Noise,
		MarketEvents:    fc.MarketEvents,
		Z:               fc.Z,
		BaseUncertainty: fc.BaseUncertainty,
		GrowthEnd:       fc.GrowthEnd,
		ConfidenceFloor: fc.ConfidenceFloor,
		ConfidenceDecay: fc.ConfidenceDecay,
		WeekendFactor:   fc.WeekendFactor,
		MonthEndFactor:  fc.MonthEndFactor,
	}
}

func ProvideDetector(cfg *config.Config) *deals.Detector {
	return deals.NewDetector(deals.Config{
		LowPercentile:    cfg.Deals.LowPercentile,
		SecondPercentile: cfg.Deals.SecondPercentile,
		RecentWindow:     cfg.Deals.RecentWindow,
		RecentRatio:      cfg.Deals.RecentRatio,
		CompetitorRatio:  cfg.Deals.CompetitorRatio,
	})
}

func ProvideRanker(cfg *config.Config, l *applogger.Logger) *ranking.Ranker {
	r := ranking.NewRanker(rankingConfig(cfg))
	r.SetLogger(l)
	return r
}

func rankingConfig(cfg *config.Config) ranking.Config {
	rc := cfg.Ranking
	return ranking.Config{
		DefaultLimit:      rc.DefaultLimit,
		Workers:           rc.Workers,
		TrendingDays:      rc.TrendingDays,
		TrendDays:         rc.TrendDays,
		MinTrendingPoints: rc.MinTrendingPoints,
		MinTrendPoints:    rc.MinTrendPoints,
		TrendThreshold:    rc.TrendThreshold,
		HighRating:        rc.HighRating,
		HeavyViews:        rc.HeavyViews,
		SimilarPerItem:    rc.SimilarPerItem,
		PerCategory:       rc.PerCategory,
		TopTrending:       rc.TopTrending,
		TopRated:          rc.TopRated,
		TrendingReason:    rc.TrendingReason,
		SavingsReason:     rc.SavingsReason,
	}
}

// ProvideForecastService creates the forecast/compare/advice use case.
func ProvideForecastService(
	cfg *config.Config,
	store repository.PriceStore,
	catalog repository.Catalog,
	fc *forecast.Forecaster,
	det *deals.Detector,
	cache icache.BytesCache,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ForecastService {
	s := usecase.NewForecastService(store, catalog, fc, det,
		usecase.WithPayloadCache(cache, cfg.Cache.ForecastTTL),
		usecase.WithForecastMetrics(m),
		usecase.WithMinPoints(cfg.Forecast.MinPoints),
	)
	s.SetLogger(l)
	return s
}

func ProvideRecommendService(
	cfg *config.Config,
	activity repository.ActivityStore,
	store repository.PriceStore,
	catalog repository.Catalog,
	r *ranking.Ranker,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.RecommendService {
	s := usecase.NewRecommendService(activity, store, catalog, r, cfg.Store.SnapshotDays)
	s.SetLogger(l)
	s.SetMetrics(m)
	return s
}

// ProvideDealHub creates the websocket fan-out for deal alerts.
func ProvideDealHub(l *applogger.Logger) *api.DealHub {
	return api.NewDealHub(l)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideAlertPublisher always delivers to websocket clients and, with Kafka
// enabled, to the alerts topic as well.
func ProvideAlertPublisher(cfg *config.Config, hub *api.DealHub, producer *pkgkafka.Producer) repository.AlertPublisher {
	pubs := internalrepo.FanoutPublisher{hub}
	if producer != nil {
		pubs = append(pubs, internalrepo.NewKafkaAlertPublisher(producer, cfg.Kafka.Topic))
	}
	return pubs
}

// ProvideIngestService creates the observation ingest and deal evaluation use case.
func ProvideIngestService(
	cfg *config.Config,
	store repository.PriceStore,
	catalog repository.Catalog,
	det *deals.Detector,
	fc *forecast.Forecaster,
	pub repository.AlertPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.IngestService {
	s := usecase.NewIngestService(store, catalog, det,
		usecase.WithAlertPublisher(pub),
		usecase.WithIngestForecaster(fc, cfg.Forecast.MinPoints),
		usecase.WithIngestMetrics(m),
		usecase.WithAlertDedup(cfg.Ingest.DedupTTL),
	)
	s.SetLogger(l)
	return s
}

// ProvideIngestPipeline puts throttling and retry buffering in front of ingest.
func ProvideIngestPipeline(cfg *config.Config, ingest *usecase.IngestService, m repository.Metrics, l *applogger.Logger) *mid.IngestPipeline {
	p := mid.NewIngestPipeline(ingest, m,
		mid.WithMaxRPS(cfg.Ingest.MaxRPS),
		mid.WithBufferSize(cfg.Ingest.BufferSize),
		mid.WithBackoff(cfg.Ingest.BackoffMin, cfg.Ingest.BackoffMax),
	)
	p.SetLogger(l)
	return p
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetLogger(l)
	consumer.WithConsumerHook(pkgkafka.NoopHook{})
	return consumer, nil
}

// ProvideKafkaPricesHandler routes the observations topic through the ingest pipeline.
func ProvideKafkaPricesHandler(cfg *config.Config, pipe *mid.IngestPipeline, m repository.Metrics) *usecase.KafkaPricesHandler {
	return usecase.NewKafkaPricesHandler(cfg.Kafka.Consumer.Topic, pipe, m)
}

func ProvideDealSweep(cfg *config.Config, fs *usecase.ForecastService, ingest *usecase.IngestService, l *applogger.Logger) *usecase.DealSweep {
	s := usecase.NewDealSweep(fs, ingest, cfg.Sweep.TopN)
	s.SetLogger(l)
	return s
}

// ProvideRateLimiter creates the per-client HTTP limiter, or nil when disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if cfg.Server.RateLimitRPS <= 0 {
		return nil
	}
	return ratelimit.New(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, 10*time.Minute)
}

func ProvidePricingHandler(
	l *applogger.Logger,
	fs *usecase.ForecastService,
	rs *usecase.RecommendService,
	is *usecase.IngestService,
	store repository.PriceStore,
	hub *api.DealHub,
) *api.PricingEchoHandler {
	return api.NewPricingEchoHandler(l, fs, rs, is, store, hub)
}

// ProvideApp creates the application server.
func ProvideApp(
    cfg *config.Config,
    l *applogger.Logger,
    handler *api.PricingEchoHandler,
    limiter *ratelimit.Limiter,
    hub *api.DealHub,
    pipe *mid.IngestPipeline,
    consumer *pkgkafka.Consumer,
    kh *usecase.KafkaPricesHandler,
    sweep *usecase.DealSweep,
    pub repository.AlertPublisher,
    store repository.PriceStore,
    ch *pkgch.Client,
    rdb *redis.Client,
) *server.App {
    return server.New(cfg, l, server.Components{
        Handler:    handler,
        Limiter:    limiter,
        Hub:        hub,
        Pipeline:   pipe,
        Consumer:   consumer,
        Prices:     kh,
        Sweep:      sweep,
        Publisher:  pub,
        Store:      store,
        ClickHouse: ch,
        Redis:      rdb,
    })
}
