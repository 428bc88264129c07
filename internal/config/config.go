package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// SchedulingConfig carries the engine defaults applied when a doctor's raw
// calendar configuration does not specify them.
type SchedulingConfig struct {
	DefaultTimezone      string        `mapstructure:"default_timezone"`
	SlotIntervalMinutes  int           `mapstructure:"slot_interval_minutes"`
	DefaultMaxConcurrent int           `mapstructure:"default_max_concurrent"`
	FetchConcurrency     int           `mapstructure:"fetch_concurrency"`
	ScheduleCacheTTL     time.Duration `mapstructure:"schedule_cache_ttl"`
}

// WorkerConfig drives the availability snapshot worker.
type WorkerConfig struct {
	OrganizationIDs []string      `mapstructure:"organization_ids"`
	Interval        time.Duration `mapstructure:"interval"`
	LookaheadDays   int           `mapstructure:"lookahead_days"`
	SnapshotTTL     time.Duration `mapstructure:"snapshot_ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.request_timeout", 30*time.Second)
	viper.SetDefault("scheduling.default_timezone", "America/Lima")
	viper.SetDefault("scheduling.slot_interval_minutes", 30)
	viper.SetDefault("scheduling.default_max_concurrent", 2)
	viper.SetDefault("scheduling.fetch_concurrency", 5)
	viper.SetDefault("scheduling.schedule_cache_ttl", time.Minute)
	viper.SetDefault("worker.interval", 5*time.Minute)
	viper.SetDefault("worker.lookahead_days", 30)
	viper.SetDefault("worker.snapshot_ttl", 10*time.Minute)
	viper.SetDefault("rate_limit.requests_per_second", 50)
	viper.SetDefault("rate_limit.burst", 100)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Defaults plus environment variables are a full configuration;
		// only a present-but-broken file is fatal.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
