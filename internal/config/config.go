// Package config layers the engine's runtime configuration: built-in
// defaults, an optional config file, environment variables (MATCHING_
// prefix), and finally command-line flags, in that increasing order of
// precedence — the same layering the teacher's cmd/server/main.go does by
// hand with flag.String calls, generalized here via spf13/viper so
// deployments can use a config file or env vars instead of editing the
// invocation.
//
// Grounded on the original source's config.rs (a flat struct of the same
// fields, loaded from a TOML file with env var overrides).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the engine process's full runtime configuration.
type Config struct {
	// Server
	ListenAddr string `mapstructure:"listen_addr"`
	// Symbol is the single market this engine instance serves. One engine
	// process trades exactly one market; run one process per symbol to
	// trade more than one.
	Symbol string `mapstructure:"symbol"`

	// Ingress Queue
	QueueCapacity int `mapstructure:"queue_capacity"`

	// Event pipeline
	EventLogPath      string        `mapstructure:"event_log_path"`
	EventLogSync      bool          `mapstructure:"event_log_sync"`
	EventLogCompress  bool          `mapstructure:"event_log_compress"`
	EventBufferSize   int           `mapstructure:"event_buffer_size"`
	EventBatchSize    int           `mapstructure:"event_batch_size"`
	EventBatchTimeout time.Duration `mapstructure:"event_batch_timeout"`

	// Snapshots
	SnapshotDir      string        `mapstructure:"snapshot_dir"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	SnapshotRetain   int           `mapstructure:"snapshot_retain"`

	// Redis-backed idempotency cache / rate limiter (Gateway)
	RedisAddr       string        `mapstructure:"redis_addr"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`
	RateLimitPerSec int           `mapstructure:"rate_limit_per_sec"`

	// Metrics
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// EnvPrefix is the prefix Viper uses for environment variable overrides,
// e.g. MATCHING_LISTEN_ADDR overrides ListenAddr.
const EnvPrefix = "MATCHING"

// Defaults returns the built-in configuration before file/env/flag layers
// are applied.
func Defaults() Config {
	return Config{
		ListenAddr:        ":8080",
		Symbol:            "AAPL",
		QueueCapacity:     4096,
		EventLogPath:      "events.log",
		EventLogSync:      false,
		EventLogCompress:  false,
		EventBufferSize:   4096,
		EventBatchSize:    1000,
		EventBatchTimeout: 10 * time.Millisecond,
		SnapshotDir:       "snapshots",
		SnapshotInterval:  5 * time.Minute,
		SnapshotRetain:    10,
		RedisAddr:         "localhost:6379",
		IdempotencyTTL:    24 * time.Hour,
		RateLimitPerSec:   1000,
		MetricsAddr:       ":9090",
	}
}

// Load builds a Config from defaults, an optional file at path (skipped if
// empty or missing), and MATCHING_-prefixed environment variables.
// Command-line flags are layered on top by the caller: cmd/server/main.go
// owns the flag definitions and applies their values to the returned Config.
func Load(path string) (Config, error) {
	v := viper.New()

	defaults := Defaults()
	v.SetDefault("listen_addr", defaults.ListenAddr)
	v.SetDefault("symbol", defaults.Symbol)
	v.SetDefault("queue_capacity", defaults.QueueCapacity)
	v.SetDefault("event_log_path", defaults.EventLogPath)
	v.SetDefault("event_log_sync", defaults.EventLogSync)
	v.SetDefault("event_log_compress", defaults.EventLogCompress)
	v.SetDefault("event_buffer_size", defaults.EventBufferSize)
	v.SetDefault("event_batch_size", defaults.EventBatchSize)
	v.SetDefault("event_batch_timeout", defaults.EventBatchTimeout)
	v.SetDefault("snapshot_dir", defaults.SnapshotDir)
	v.SetDefault("snapshot_interval", defaults.SnapshotInterval)
	v.SetDefault("snapshot_retain", defaults.SnapshotRetain)
	v.SetDefault("redis_addr", defaults.RedisAddr)
	v.SetDefault("idempotency_ttl", defaults.IdempotencyTTL)
	v.SetDefault("rate_limit_per_sec", defaults.RateLimitPerSec)
	v.SetDefault("metrics_addr", defaults.MetricsAddr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
