package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"PricePulse/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateLimitRPS    float64       `yaml:"rate_limit_rps" default:"50"`
		RateLimitBurst  int           `yaml:"rate_limit_burst" default:"100"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"` // console | json
	} `yaml:"log"`
	Store struct {
		Type        string `yaml:"type" default:"memory"` // memory | clickhouse
		DatasetPath string `yaml:"dataset_path"`
		// SnapshotDays bounds the price window handed to the ranker.
		SnapshotDays int `yaml:"snapshot_days" default:"30"`
	} `yaml:"store"`
	Activity struct {
		Type string `yaml:"type" default:"memory"` // memory | redis
	} `yaml:"activity"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"pricepulse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"1h"`
		BreakerFailures  uint32        `yaml:"breaker_failures" default:"5"`
		BreakerTimeout   time.Duration `yaml:"breaker_timeout" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"pricepulse"`
		// ActivityTTL expires idle identities in the redis activity store.
		ActivityTTL time.Duration `yaml:"activity_ttl" default:"720h"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		Topic        string   `yaml:"topic" default:"deals.detected"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Topic      string        `yaml:"topic" default:"prices.observations"`
			GroupID    string        `yaml:"group_id" default:"pricepulse-ingest"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"prices.observations.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Catalog struct {
		Path string `yaml:"path" default:"config/catalog.yaml"`
	} `yaml:"catalog"`
	Forecast Forecast `yaml:"forecast"`
	Deals    Deals    `yaml:"deals"`
	Ranking  Ranking  `yaml:"ranking"`
	Cache    struct {
		ForecastTTL   time.Duration `yaml:"forecast_ttl" default:"5m"`
		ModelTTL      time.Duration `yaml:"model_ttl" default:"30m"`
		ModelCapacity int           `yaml:"model_capacity" default:"64"`
		// L1 sits in front of redis when redis is enabled.
		L1Size int           `yaml:"l1_size" default:"512"`
		L1TTL  time.Duration `yaml:"l1_ttl" default:"30s"`
	} `yaml:"cache"`
	Ingest struct {
		MaxRPS     float64       `yaml:"max_rps" default:"5"`
		BufferSize int           `yaml:"buffer_size" default:"1000"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DedupTTL   time.Duration `yaml:"dedup_ttl" default:"24h"`
	} `yaml:"ingest"`
	Sweep struct {
		Enabled  bool   `yaml:"enabled"`
		Schedule string `yaml:"schedule" default:"@every 15m"`
		TopN     int    `yaml:"top_n" default:"10"`
	} `yaml:"sweep"`
}

// Forecast tunes the ensemble forecaster.
type Forecast struct {
	DefaultHorizon int     `yaml:"default_horizon" default:"14"`
	MaxHorizon     int     `yaml:"max_horizon" default:"90"`
	MinPoints      int     `yaml:"min_points" default:"10"`
	Workers        int     `yaml:"workers" default:"4"`
	Seed           uint64  `yaml:"seed" default:"42"`
	Noise          bool    `yaml:"noise" default:"true"`
	MarketEvents   bool    `yaml:"market_events"`
	Trees          int     `yaml:"trees" default:"150"`
	TreeDepth      int     `yaml:"tree_depth" default:"10"`
	MaxFeatures    int     `yaml:"max_features"`
	BoostRounds    int     `yaml:"boost_rounds" default:"150"`
	BoostDepth     int     `yaml:"boost_depth" default:"3"`
	LearningRate   float64 `yaml:"learning_rate" default:"0.1"`
	WeightForest   float64 `yaml:"weight_forest" default:"0.5"`
	WeightBoost    float64 `yaml:"weight_boost" default:"0.35"`
	WeightLinear   float64 `yaml:"weight_linear" default:"0.15"`

	// uncertainty band and calendar adjustments
	Z               float64 `yaml:"z" default:"1.96"`
	BaseUncertainty float64 `yaml:"base_uncertainty" default:"0.02"`
	GrowthEnd       float64 `yaml:"growth_end" default:"1.5"`
	ConfidenceFloor float64 `yaml:"confidence_floor" default:"0.6"`
	ConfidenceDecay float64 `yaml:"confidence_decay" default:"0.01"`
	WeekendFactor   float64 `yaml:"weekend_factor" default:"0.995"`
	MonthEndFactor  float64 `yaml:"month_end_factor" default:"0.992"`
}

// Deals holds deal detector thresholds.
type Deals struct {
	LowPercentile    float64 `yaml:"low_percentile" default:"5"`
	SecondPercentile float64 `yaml:"second_percentile" default:"10"`
	RecentWindow     int     `yaml:"recent_window" default:"30"`
	RecentRatio      float64 `yaml:"recent_ratio" default:"0.85"`
	CompetitorRatio  float64 `yaml:"competitor_ratio" default:"0.95"`
}

// Ranking holds recommendation ranker settings.
type Ranking struct {
	DefaultLimit      int     `yaml:"default_limit" default:"10"`
	Workers           int     `yaml:"workers" default:"8"`
	TrendingDays      int     `yaml:"trending_days" default:"14"`
	TrendDays         int     `yaml:"trend_days" default:"30"`
	MinTrendingPoints int     `yaml:"min_trending_points" default:"5"`
	MinTrendPoints    int     `yaml:"min_trend_points" default:"10"`
	TrendThreshold    float64 `yaml:"trend_threshold" default:"0.03"`
	HighRating        float64 `yaml:"high_rating" default:"4.5"`
	HeavyViews        int     `yaml:"heavy_views" default:"3"`
	SimilarPerItem    int     `yaml:"similar_per_item" default:"3"`
	PerCategory       int     `yaml:"per_category" default:"2"`
	TopTrending       int     `yaml:"top_trending" default:"5"`
	TopRated          int     `yaml:"top_rated" default:"3"`
	TrendingReason    float64 `yaml:"trending_reason" default:"0.3"`
	SavingsReason     float64 `yaml:"savings_reason" default:"1000"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads .env (if present), the YAML file and then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("DATASET_PATH"); v != "" {
		c.Store.DatasetPath = v
	}
	if v := os.Getenv("CATALOG_PATH"); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Store.Type != "memory" && c.Store.Type != "clickhouse" {
		return fmt.Errorf("store.type must be 'memory' or 'clickhouse', got '%s'", c.Store.Type)
	}
	if c.Activity.Type != "memory" && c.Activity.Type != "redis" {
		return fmt.Errorf("activity.type must be 'memory' or 'redis', got '%s'", c.Activity.Type)
	}
	if c.Activity.Type == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when activity.type is 'redis'")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Forecast.MaxHorizon < 1 {
		return fmt.Errorf("forecast.max_horizon must be positive")
	}
	if c.Forecast.DefaultHorizon < 1 || c.Forecast.DefaultHorizon > c.Forecast.MaxHorizon {
		return fmt.Errorf("forecast.default_horizon must be in [1, %d]", c.Forecast.MaxHorizon)
	}
	if c.Forecast.MinPoints < 8 {
		return fmt.Errorf("forecast.min_points must be at least 8, got %d", c.Forecast.MinPoints)
	}
	if w := c.Forecast.WeightForest + c.Forecast.WeightBoost + c.Forecast.WeightLinear; w <= 0 {
		return fmt.Errorf("forecast weights must sum to a positive value")
	}
	if f := c.Forecast.ConfidenceFloor; f <= 0 || f > 1 {
		return fmt.Errorf("forecast.confidence_floor must be in (0, 1], got %g", f)
	}
	if c.Forecast.Z <= 0 || c.Forecast.GrowthEnd < 1 {
		return fmt.Errorf("forecast.z must be positive and forecast.growth_end at least 1")
	}
	if c.Deals.LowPercentile <= 0 || c.Deals.LowPercentile >= c.Deals.SecondPercentile || c.Deals.SecondPercentile >= 100 {
		return fmt.Errorf("deals percentiles must satisfy 0 < low < second < 100")
	}
	if c.Sweep.Enabled {
		if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
			return fmt.Errorf("sweep.schedule: %w", err)
		}
	}
	return nil
}
