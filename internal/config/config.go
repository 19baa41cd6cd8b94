// Package config loads feed service configuration from FEED_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/feedagg/pkg/logging"
	"github.com/Sternrassler/feedagg/pkg/source"
	"github.com/redis/go-redis/v9"
)

// Upstream path presets.
const (
	// PresetJSONPlaceholder targets a JSONPlaceholder-style API
	// (/posts, /albums/{id}/photos, /users/{id}, _start/_limit).
	PresetJSONPlaceholder = "jsonplaceholder"

	// PresetAggregator targets another feed-proxy (/api/v1/...).
	PresetAggregator = "aggregator"
)

// Config is the service configuration.
type Config struct {
	Port int

	UpstreamURL    string
	UpstreamPreset string
	UserAgent      string
	HTTPTimeout    time.Duration

	MaxConcurrency int
	OwnersEnabled  bool

	// RedisURL selects the owner cache: empty uses the in-memory LRU.
	RedisURL         string
	ProfileCacheTTL  time.Duration
	ProfileCacheSize int

	LogLevel  string
	LogPretty bool

	ShutdownTimeout time.Duration

	NarrowViewport bool
	SettleDelay    time.Duration
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var err error
	cfg := &Config{
		UpstreamURL:    getEnv("FEED_UPSTREAM_URL", source.JSONPlaceholderURL),
		UpstreamPreset: strings.ToLower(getEnv("FEED_UPSTREAM_PRESET", PresetJSONPlaceholder)),
		UserAgent:      getEnv("FEED_USER_AGENT", "feedagg/0.1.0"),
		RedisURL:       getEnv("FEED_REDIS_URL", ""),
		LogLevel:       strings.ToLower(getEnv("FEED_LOG_LEVEL", "info")),
	}

	if cfg.Port, err = getEnvInt("FEED_PORT", 8080); err != nil {
		return nil, fmt.Errorf("FEED_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FEED_PORT: port %d out of range", cfg.Port)
	}

	switch cfg.UpstreamPreset {
	case PresetJSONPlaceholder, PresetAggregator:
	default:
		return nil, fmt.Errorf("FEED_UPSTREAM_PRESET: invalid preset %q, valid: %s, %s",
			cfg.UpstreamPreset, PresetJSONPlaceholder, PresetAggregator)
	}

	if cfg.HTTPTimeout, err = getEnvPositiveDuration("FEED_HTTP_TIMEOUT", 15*time.Second); err != nil {
		return nil, fmt.Errorf("FEED_HTTP_TIMEOUT: %w", err)
	}

	if cfg.MaxConcurrency, err = getEnvInt("FEED_MAX_CONCURRENCY", 0); err != nil {
		return nil, fmt.Errorf("FEED_MAX_CONCURRENCY: %w", err)
	}
	if cfg.MaxConcurrency < 0 {
		return nil, fmt.Errorf("FEED_MAX_CONCURRENCY: must be >= 0, got %d", cfg.MaxConcurrency)
	}

	if cfg.OwnersEnabled, err = getEnvBool("FEED_OWNERS_ENABLED", true); err != nil {
		return nil, fmt.Errorf("FEED_OWNERS_ENABLED: %w", err)
	}

	if cfg.ProfileCacheTTL, err = getEnvDuration("FEED_PROFILE_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("FEED_PROFILE_CACHE_TTL: %w", err)
	}
	if cfg.ProfileCacheSize, err = getEnvInt("FEED_PROFILE_CACHE_SIZE", 1024); err != nil {
		return nil, fmt.Errorf("FEED_PROFILE_CACHE_SIZE: %w", err)
	}
	if cfg.ProfileCacheSize <= 0 {
		return nil, fmt.Errorf("FEED_PROFILE_CACHE_SIZE: must be > 0, got %d", cfg.ProfileCacheSize)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return nil, fmt.Errorf("FEED_LOG_LEVEL: invalid level %q, valid: debug, info, warn, error", cfg.LogLevel)
	}
	if cfg.LogPretty, err = getEnvBool("FEED_LOG_PRETTY", false); err != nil {
		return nil, fmt.Errorf("FEED_LOG_PRETTY: %w", err)
	}

	if cfg.ShutdownTimeout, err = getEnvPositiveDuration("FEED_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("FEED_SHUTDOWN_TIMEOUT: %w", err)
	}

	if cfg.NarrowViewport, err = getEnvBool("FEED_NARROW_VIEWPORT", false); err != nil {
		return nil, fmt.Errorf("FEED_NARROW_VIEWPORT: %w", err)
	}
	if cfg.SettleDelay, err = getEnvDuration("FEED_SETTLE_DELAY", 3*time.Second); err != nil {
		return nil, fmt.Errorf("FEED_SETTLE_DELAY: %w", err)
	}
	if cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("FEED_SETTLE_DELAY: must be >= 0, got %s", cfg.SettleDelay)
	}

	if cfg.RedisURL != "" {
		if _, err := cfg.RedisOptions(); err != nil {
			return nil, fmt.Errorf("FEED_REDIS_URL: %w", err)
		}
	}

	return cfg, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// SourceConfig returns the upstream client configuration for the preset.
func (c *Config) SourceConfig() source.Config {
	var sc source.Config
	if c.UpstreamPreset == PresetAggregator {
		sc = source.DefaultConfig(c.UpstreamURL, c.UserAgent)
	} else {
		sc = source.JSONPlaceholderConfig(c.UserAgent)
		sc.BaseURL = c.UpstreamURL
	}
	sc.Timeout = c.HTTPTimeout
	return sc
}

// LoggingConfig returns the logger configuration for service.
func (c *Config) LoggingConfig(service string) logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.LogLevel(c.LogLevel)
	lc.Pretty = c.LogPretty
	lc.Service = service
	return lc
}

// RedisOptions parses RedisURL. Both redis:// URLs and bare host:port
// addresses are accepted.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, fmt.Errorf("redis url is empty")
	}
	if strings.Contains(c.RedisURL, "://") {
		return redis.ParseURL(c.RedisURL)
	}
	return &redis.Options{Addr: c.RedisURL}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q (use Go format: 30s, 1h, 15m)", val)
	}
	return d, nil
}

func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be > 0, got %s", d)
	}
	return d, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid boolean: %q (valid: true, false, 1, 0)", val)
	}
	return b, nil
}
