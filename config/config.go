// Package config loads process configuration and the strategy option set.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the process configuration: YAML file, then .env, then
// environment variables, then defaults.
type Config struct {
	Strategy Strategy       `yaml:"strategy"`
	Data     DataConfig     `yaml:"data"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Notify   NotifyConfig   `yaml:"notify"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      LogConfig      `yaml:"log"`
}

// DataConfig controls the OHLC data source.
type DataConfig struct {
	Asset             string `yaml:"asset"`               // CoinGecko coin id
	CoinGeckoBaseURL  string `yaml:"coingecko_base_url"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	CacheTTLSeconds   int    `yaml:"cache_ttl_seconds"` // redis OHLC cache
}

// StorageConfig controls where data is persisted. Empty paths disable a store.
type StorageConfig struct {
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	SnapshotDir   string `yaml:"snapshot_dir"`
}

// ServerConfig controls the dashboard.
type ServerConfig struct {
	HTTPAddr   string `yaml:"http_addr"`
	TOTPSecret string `yaml:"totp_secret"` // guards POST /api/config when set
}

// NotifyConfig controls notification delivery.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	QueueSize  int    `yaml:"queue_size"`
	MaxBlockMs int    `yaml:"max_block_ms"`
}

// ScheduleConfig controls scheduled forward tests.
type ScheduleConfig struct {
	ForwardCron string `yaml:"forward_cron"` // 6-field cron spec, empty disables
}

// LogConfig controls the format and level of logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// Load reads the YAML file at path (optional when empty), the .env file if
// present, and environment overrides.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Config{Strategy: DefaultStrategy()}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate checks the process sections and the strategy options.
func (c *Config) Validate() error {
	if c.Data.Asset == "" {
		return errors.New("data.asset is required")
	}
	if c.Data.RequestsPerMinute <= 0 {
		return errors.New("data.requests_per_minute must be positive")
	}
	if c.Notify.QueueSize <= 0 {
		return errors.New("notify.queue_size must be positive")
	}
	if err := c.Strategy.Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	return nil
}

// FetchTimeout returns the HTTP timeout for the data source.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Data.TimeoutSeconds) * time.Second
}

// CacheTTL returns the redis OHLC cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Data.CacheTTLSeconds) * time.Second
}

// NotifyMaxBlock returns how long an enqueue may wait on a full queue.
func (c *Config) NotifyMaxBlock() time.Duration {
	return time.Duration(c.Notify.MaxBlockMs) * time.Millisecond
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Server.HTTPAddr, "HTTP_ADDR")
	overrideString(&cfg.Server.TOTPSecret, "DASHBOARD_TOTP_SECRET")
	overrideString(&cfg.Storage.SQLitePath, "SQLITE_PATH")
	overrideString(&cfg.Storage.RedisAddr, "REDIS_ADDR")
	overrideString(&cfg.Storage.RedisPassword, "REDIS_PASSWORD")
	overrideString(&cfg.Strategy.TelegramToken, "TELEGRAM_BOT_TOKEN")
	overrideString(&cfg.Strategy.TelegramChatID, "TELEGRAM_CHAT_ID")
	overrideString(&cfg.Notify.WebhookURL, "WEBHOOK_URL")
	overrideString(&cfg.Schedule.ForwardCron, "FORWARD_CRON")
	overrideString(&cfg.Data.CoinGeckoBaseURL, "COINGECKO_BASE_URL")
	overrideString(&cfg.Log.Level, "LOG_LEVEL")
	overrideString(&cfg.Log.Format, "LOG_FORMAT")

	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("[config] ignoring invalid REDIS_DB %q", v)
		} else {
			cfg.Storage.RedisDB = n
		}
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Data.Asset == "" {
		cfg.Data.Asset = "bitcoin"
	}
	if cfg.Data.CoinGeckoBaseURL == "" {
		cfg.Data.CoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Data.RequestsPerMinute <= 0 {
		cfg.Data.RequestsPerMinute = 10
	}
	if cfg.Data.TimeoutSeconds <= 0 {
		cfg.Data.TimeoutSeconds = 30
	}
	if cfg.Data.CacheTTLSeconds <= 0 {
		cfg.Data.CacheTTLSeconds = 300
	}
	if cfg.Storage.SnapshotDir == "" {
		cfg.Storage.SnapshotDir = "data"
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":5000"
	}
	if cfg.Notify.QueueSize <= 0 {
		cfg.Notify.QueueSize = 256
	}
	if cfg.Notify.MaxBlockMs <= 0 {
		cfg.Notify.MaxBlockMs = 200
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
