package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	applogger "SignalDesk/pkg/logger"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "config/config.yaml"

type Config struct {
	Environment  string             `yaml:"environment" env:"APP_ENV" default:"development" validate:"oneof=development staging production test"`
	Logging      applogger.Config   `yaml:"logging"`
	LogCollector LogCollectorConfig `yaml:"log_collector"`
	HTTP         HTTPConfig         `yaml:"http"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Auth         AuthConfig         `yaml:"auth"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	ClickHouse   ClickHouseConfig   `yaml:"clickhouse"`
	Redis        RedisConfig        `yaml:"redis"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Queue        QueueConfig        `yaml:"queue"`
	Screening    ScreeningConfig    `yaml:"screening"`
	Ensemble     EnsembleConfig     `yaml:"ensemble"`
	Lifecycle    LifecycleConfig    `yaml:"lifecycle"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Quotes       QuotesConfig       `yaml:"quotes"`
	Alpaca       AlpacaConfig       `yaml:"alpaca"`
}

// LogCollectorConfig ships deduplicated Warn/Error digests to Kafka.
type LogCollectorConfig struct {
	Enabled        bool          `yaml:"enabled" env:"LOG_COLLECTOR_ENABLED"`
	Topic          string        `yaml:"topic" default:"signaldesk.logs"`
	Interval       time.Duration `yaml:"interval" default:"30s"`
	CountThreshold int           `yaml:"count_threshold" default:"200" validate:"gte=1"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host" env:"HTTP_HOST" default:"0.0.0.0"`
	Port            int           `yaml:"port" env:"HTTP_PORT" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
	CORS            bool          `yaml:"cors"`
}

type MetricsConfig struct {
	Port int `yaml:"port" env:"METRICS_PORT" default:"9090" validate:"gte=1,lte=65535"`
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled" env:"AUTH_ENABLED"`
	Secret  string `yaml:"secret" env:"JWT_SECRET"`
	Issuer  string `yaml:"issuer" default:"signaldesk"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn" env:"POSTGRES_DSN" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" default:"20"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"POSTGRES_AUTO_MIGRATE"`
	LogLevel        string        `yaml:"log_level" default:"warn" validate:"oneof=silent error warn info"`
}

type ClickHouseConfig struct {
	Host         string        `yaml:"host" env:"CLICKHOUSE_HOST" validate:"required"`
	Port         int           `yaml:"port" env:"CLICKHOUSE_PORT" default:"9000"`
	Database     string        `yaml:"database" default:"signaldesk"`
	User         string        `yaml:"user" env:"CLICKHOUSE_USER" default:"default"`
	Password     string        `yaml:"password" env:"CLICKHOUSE_PASSWORD"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecTime  time.Duration `yaml:"max_execution_time" default:"60s"`
	MaxOpenConns int           `yaml:"max_open_conns" default:"16"`
	InitSchema   bool          `yaml:"init_schema"`
}

// RedisConfig backs the run lease, the quote cache and the job queue. When
// disabled those fall back to in-process implementations.
type RedisConfig struct {
	Enabled     bool          `yaml:"enabled" env:"REDIS_ENABLED"`
	Host        string        `yaml:"host" env:"REDIS_HOST" default:"localhost"`
	Port        int           `yaml:"port" env:"REDIS_PORT" default:"6379"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB          int           `yaml:"db" env:"REDIS_DB"`
	PoolSize    int           `yaml:"pool_size" default:"20"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	IOTimeout   time.Duration `yaml:"io_timeout" default:"3s"`
	Prefix      string        `yaml:"prefix" default:"signaldesk"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled" env:"KAFKA_ENABLED"`
	Brokers      []string      `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	EventsTopic  string        `yaml:"events_topic" default:"signaldesk.events"`
	CandlesTopic string        `yaml:"candles_topic" default:"marketdata.candles.ready"`
	DLQTopic     string        `yaml:"dlq_topic" default:"signaldesk.dlq"`
	GroupID      string        `yaml:"group_id" default:"signaldesk"`
	Workers      int           `yaml:"workers" default:"2"`
	RetryMax     int           `yaml:"retry_max" default:"3"`
	BackoffMin   time.Duration `yaml:"backoff_min" default:"200ms"`
	BackoffMax   time.Duration `yaml:"backoff_max" default:"10s"`
	Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd none"`
	RequiredAcks int           `yaml:"required_acks" default:"-1"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

type QueueConfig struct {
	Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
	RetryLimit int           `yaml:"retry_limit" default:"3"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
	JobTimeout time.Duration `yaml:"job_timeout" default:"30m"`
}

type ScreeningConfig struct {
	Market          string        `yaml:"market" env:"SCREEN_MARKET" default:"US" validate:"oneof=US IN CRYPTO"`
	Workers         int           `yaml:"workers" default:"16" validate:"gte=1"`
	BacktestWorkers int           `yaml:"backtest_workers" default:"4" validate:"gte=1"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout" default:"5s"`
	FetchRetries    int           `yaml:"fetch_retries" default:"1" validate:"gte=0"`
	HistoryBars     int           `yaml:"history_bars" default:"300" validate:"gte=30"`
}

type EnsembleConfig struct {
	Strategies []string                  `yaml:"strategies" default:"[\"MA_CROSS\",\"BREAKOUT\",\"ENGULFING\"]" validate:"min=2"`
	Standalone []string                  `yaml:"standalone"`
	Weights    map[string]float64        `yaml:"weights"`
	Params     map[string]map[string]any `yaml:"params"`
	LeaseTTL   time.Duration             `yaml:"lease_ttl" default:"30m"`
}

type LifecycleConfig struct {
	MaxHoldDays int `yaml:"max_hold_days" default:"20" validate:"gte=0"`
}

// SchedulerConfig holds six-field cron specs (with seconds).
type SchedulerConfig struct {
	Enabled       bool   `yaml:"enabled" env:"SCHEDULER_ENABLED"`
	Timezone      string `yaml:"timezone" default:"America/New_York"`
	ScreenCron    string `yaml:"screen_cron" default:"0 30 17 * * 1-5"`
	RankCron      string `yaml:"rank_cron" default:"0 0 18 * * 1-5"`
	LifecycleCron string `yaml:"lifecycle_cron" default:"0 */15 9-16 * * 1-5"`
}

type QuotesConfig struct {
	Provider   string        `yaml:"provider" env:"QUOTES_PROVIDER" default:"static" validate:"oneof=alpaca static"`
	CacheTTL   time.Duration `yaml:"cache_ttl" default:"15s"`
	Timeout    time.Duration `yaml:"timeout" default:"5s"`
	Retries    int           `yaml:"retries" default:"1"`
	RatePerSec float64       `yaml:"rate_per_sec" default:"3"`
	Burst      float64       `yaml:"burst" default:"5"`
}

type AlpacaConfig struct {
	APIKey    string `yaml:"api_key" env:"ALPACA_API_KEY"`
	APISecret string `yaml:"api_secret" env:"ALPACA_API_SECRET"`
	BaseURL   string `yaml:"base_url" env:"ALPACA_DATA_URL" default:"https://data.alpaca.markets"`
	Feed      string `yaml:"feed" default:"iex" validate:"oneof=iex sip otc"`
}

// Load reads the YAML file at path (a missing file is allowed), fills
// defaults, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadFromEnv loads from $CONFIG_PATH or DefaultPath.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return Load(path)
}

// Validate checks field ranges and the cross-field rules tags cannot
// express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Auth.Enabled && len(c.Auth.Secret) < 16 {
		return fmt.Errorf("auth.secret must be at least 16 characters when auth is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Quotes.Provider == "alpaca" && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		return fmt.Errorf("alpaca.api_key and alpaca.api_secret are required for the alpaca quote provider")
	}
	voting := make(map[string]bool, len(c.Ensemble.Strategies))
	for _, s := range c.Ensemble.Strategies {
		voting[s] = true
	}
	for _, s := range c.Ensemble.Standalone {
		if !voting[s] {
			return fmt.Errorf("ensemble.standalone %q is not in ensemble.strategies", s)
		}
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	return nil
}
