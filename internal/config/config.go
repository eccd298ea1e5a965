// Package config provides configuration management for the streaming pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "zerodha-stream/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Feed        FeedConfig        `mapstructure:"feed"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Backfill    BackfillConfig    `mapstructure:"backfill"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Store       StoreConfig       `mapstructure:"store"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Orders      OrdersConfig      `mapstructure:"orders"`
	Credentials Credentials       `mapstructure:"-"` // Loaded separately
}

// FeedConfig holds tick-ingestion configuration.
type FeedConfig struct {
	QueueSize int `mapstructure:"queue_size"`
	// PriceScaleDivisor is applied to scaled-integer prices delivered by
	// the feed (paise-style convention).
	PriceScaleDivisor float64 `mapstructure:"price_scale_divisor"`
	// PriceScaleAuto enables the magnitude-and-integrality heuristic that
	// decides whether a price looks scaled. Disable for feeds that always
	// deliver natural decimal units.
	PriceScaleAuto bool `mapstructure:"price_scale_auto"`
	// Symbols maps trading symbols to instrument tokens to subscribe at
	// startup, e.g. "SBIN" = 779521.
	Symbols map[string]uint32 `mapstructure:"symbols"`
}

// AggregationConfig holds bar aggregation configuration.
type AggregationConfig struct {
	// IntervalsSeconds lists the bar granularities built from the tick
	// stream, e.g. [60, 300].
	IntervalsSeconds []int `mapstructure:"intervals_seconds"`
}

// BackfillConfig holds historical backfill configuration.
type BackfillConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	ChunkPause time.Duration `mapstructure:"chunk_pause"`
	// ChunkDays overrides the per-interval default chunk sizing when > 0.
	ChunkDays int `mapstructure:"chunk_days"`
}

// RateLimitConfig holds token-bucket configuration for upstream requests.
type RateLimitConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// OrdersConfig declares standing conditional orders seeded at stream start.
type OrdersConfig struct {
	GTT     []GTTSeed     `mapstructure:"gtt"`
	Bracket []BracketSeed `mapstructure:"bracket"`
}

// GTTSeed declares one GTT order in the config file.
type GTTSeed struct {
	Symbol       string  `mapstructure:"symbol"`
	TriggerPrice float64 `mapstructure:"trigger_price"`
	LimitPrice   float64 `mapstructure:"limit_price"`
	Quantity     int     `mapstructure:"quantity"`
	Side         string  `mapstructure:"side"`
	Condition    string  `mapstructure:"condition"`
}

// BracketSeed declares one bracket order in the config file.
type BracketSeed struct {
	Symbol     string  `mapstructure:"symbol"`
	Side       string  `mapstructure:"side"`
	Quantity   int     `mapstructure:"quantity"`
	EntryPrice float64 `mapstructure:"entry_price"`
	StopLoss   float64 `mapstructure:"stop_loss"`
	Target     float64 `mapstructure:"target"`
	OrderType  string  `mapstructure:"order_type"`
}

// Credentials holds API credentials.
type Credentials struct {
	Zerodha ZerodhaCredentials `mapstructure:"zerodha"`
}

// ZerodhaCredentials holds Zerodha API credentials.
type ZerodhaCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/zerodha-stream"
	}
	return filepath.Join(home, ".config", "zerodha-stream")
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			QueueSize:         10000,
			PriceScaleDivisor: 100,
			PriceScaleAuto:    true,
		},
		Aggregation: AggregationConfig{
			IntervalsSeconds: []int{60},
		},
		Backfill: BackfillConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			ChunkPause: 350 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			RatePerSecond: 3,
			Burst:         3,
		},
		Store: StoreConfig{
			DBPath: filepath.Join(DefaultConfigDir(), "stream.db"),
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    true,
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(configDir, "stream.db")
	}

	// Viper folds map keys to lower case; trading symbols are canonically
	// upper case.
	if len(cfg.Feed.Symbols) > 0 {
		symbols := make(map[string]uint32, len(cfg.Feed.Symbols))
		for sym, token := range cfg.Feed.Symbols {
			symbols[strings.ToUpper(sym)] = token
		}
		cfg.Feed.Symbols = symbols
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateConfig(configDir)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

// applyEnvOverrides applies environment variable overrides for
// credentials, so the TOML files are optional in CI or container setups.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZSTREAM_API_KEY"); v != "" {
		cfg.Credentials.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZSTREAM_API_SECRET"); v != "" {
		cfg.Credentials.Zerodha.APISecret = v
	}
	if v := os.Getenv("ZSTREAM_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Zerodha.AccessToken = v
	}
	if v := os.Getenv("ZSTREAM_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("ZSTREAM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Feed.QueueSize <= 0 {
		return apperrors.NewValidationError("feed.queue_size", c.Feed.QueueSize, "must be positive")
	}
	if c.Feed.PriceScaleDivisor <= 0 {
		return apperrors.NewValidationError("feed.price_scale_divisor", c.Feed.PriceScaleDivisor, "must be positive")
	}
	if len(c.Aggregation.IntervalsSeconds) == 0 {
		return apperrors.NewValidationError("aggregation.intervals_seconds", c.Aggregation.IntervalsSeconds, "at least one interval required")
	}
	for _, iv := range c.Aggregation.IntervalsSeconds {
		if iv <= 0 {
			return apperrors.NewValidationError("aggregation.intervals_seconds", iv, "intervals must be positive")
		}
	}
	if c.RateLimit.RatePerSecond <= 0 {
		return apperrors.NewValidationError("ratelimit.rate_per_second", c.RateLimit.RatePerSecond, "must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		return apperrors.NewValidationError("ratelimit.burst", c.RateLimit.Burst, "must be positive")
	}
	if c.Backfill.MaxRetries <= 0 {
		return apperrors.NewValidationError("backfill.max_retries", c.Backfill.MaxRetries, "must be positive")
	}
	return nil
}
