package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/coinlens/coinlens/internal/core/ratelimit"
	"github.com/coinlens/coinlens/internal/core/respcache"
)

// Config is the complete application configuration. Defaults come from
// viper, user overrides from the XDG config file, and COINLENS_* environment
// variables layer on top.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Health    HealthConfig              `mapstructure:"health"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	RateLimit RateLimitConfig           `mapstructure:"rate_limit"`
	Cache     CacheConfig               `mapstructure:"cache"`
	Debug     DebugConfig               `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ProviderConfig describes one upstream market-data API.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKeyHeader   string        `mapstructure:"api_key_header"`
	APIKey         string        `mapstructure:"api_key"`
	RateLimit      int           `mapstructure:"rate_limit"` // requests per minute
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

// RateLimitConfig tunes the shared limiter across all providers.
type RateLimitConfig struct {
	Burst       float64       `mapstructure:"burst"`
	MaxWaiters  int           `mapstructure:"max_waiters"`
	MaxTimeout  time.Duration `mapstructure:"max_timeout"`
	MinSleep    time.Duration `mapstructure:"min_sleep"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`
}

// TTLRule is one endpoint-pattern expiry rule; first match wins.
type TTLRule struct {
	Pattern string        `mapstructure:"pattern"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// CacheConfig tunes the shared response cache.
type CacheConfig struct {
	MaxSize      int           `mapstructure:"max_size"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	BucketWidth  time.Duration `mapstructure:"bucket_width"`
	LivePatterns []string      `mapstructure:"live_patterns"`
	TTLRules     []TTLRule     `mapstructure:"ttl_rules"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
// - ENTERPRISE: Multiple sinks, middleware, throttling, policy enforcement (production)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	// Metrics are also available at the main HTTP port in JSON format
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// Validate rejects configurations the resilience layer cannot honor.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	for name, provider := range c.Providers {
		if strings.TrimSpace(provider.BaseURL) == "" {
			return fmt.Errorf("provider %q: base_url is required", name)
		}
		if provider.RateLimit <= 0 {
			return fmt.Errorf("provider %q: rate_limit must be positive, got %d", name, provider.RateLimit)
		}
	}
	for _, rule := range c.Cache.TTLRules {
		if rule.Pattern == "" {
			return fmt.Errorf("cache ttl rule with empty pattern")
		}
		if rule.TTL < 0 {
			return fmt.Errorf("cache ttl rule %q: ttl must be non-negative", rule.Pattern)
		}
	}
	return nil
}

// LimiterConfig derives the rate limiter configuration, one limit per
// configured provider.
func (c *Config) LimiterConfig() ratelimit.Config {
	limits := make(map[string]int, len(c.Providers))
	for name, provider := range c.Providers {
		limits[name] = provider.RateLimit
	}
	return ratelimit.Config{
		Limits:      limits,
		Burst:       c.RateLimit.Burst,
		MaxWaiters:  c.RateLimit.MaxWaiters,
		MaxTimeout:  c.RateLimit.MaxTimeout,
		MinSleep:    c.RateLimit.MinSleep,
		BackoffBase: c.RateLimit.BackoffBase,
		BackoffCap:  c.RateLimit.BackoffCap,
	}
}

// CachePolicy derives the response cache configuration.
func (c *Config) CachePolicy() respcache.Config {
	rules := make([]respcache.Rule, 0, len(c.Cache.TTLRules))
	for _, rule := range c.Cache.TTLRules {
		rules = append(rules, respcache.Rule{Pattern: rule.Pattern, TTL: rule.TTL})
	}
	return respcache.Config{
		MaxSize:      c.Cache.MaxSize,
		DefaultTTL:   c.Cache.DefaultTTL,
		Rules:        rules,
		LivePatterns: c.Cache.LivePatterns,
		BucketWidth:  c.Cache.BucketWidth,
	}
}
