package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetEnvPrefix("COINLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Server defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "SIMPLE", cfg.Logging.Profile)

	// Metrics and health defaults
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.True(t, cfg.Health.Enabled)

	// Provider defaults
	require.Len(t, cfg.Providers, 4)
	assert.Equal(t, 30, cfg.Providers["coingecko"].RateLimit)
	assert.Equal(t, "x-cg-demo-api-key", cfg.Providers["coingecko"].APIKeyHeader)
	assert.Equal(t, 50, cfg.Providers["coindesk"].RateLimit)
	assert.Equal(t, 15, cfg.Providers["kraken"].RateLimit)
	assert.Equal(t, 10, cfg.Providers["coinbase"].RateLimit)

	// Limiter defaults
	assert.Equal(t, 5.0, cfg.RateLimit.Burst)
	assert.Equal(t, 100, cfg.RateLimit.MaxWaiters)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.MaxTimeout)
	assert.Equal(t, 10*time.Millisecond, cfg.RateLimit.MinSleep)
	assert.Equal(t, time.Minute, cfg.RateLimit.BackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.BackoffCap)

	// Cache defaults
	assert.Equal(t, 1000, cfg.Cache.MaxSize)
	assert.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	assert.Equal(t, time.Minute, cfg.Cache.BucketWidth)
	assert.Equal(t, []string{"price", "markets"}, cfg.Cache.LivePatterns)
	require.NotEmpty(t, cfg.Cache.TTLRules)
	assert.Equal(t, "price", cfg.Cache.TTLRules[0].Pattern)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTLRules[0].TTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COINLENS_SERVER_PORT", "3000")
	t.Setenv("COINLENS_LOGGING_LEVEL", "warn")
	t.Setenv("COINLENS_SERVER_READ_TIMEOUT", "45s")

	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadConfigFileOverrides(t *testing.T) {
	raw, err := yaml.Marshal(map[string]any{
		"server": map[string]any{"port": 9999},
		"providers": map[string]any{
			"coingecko": map[string]any{
				"base_url":   "https://pro-api.coingecko.com/api/v3",
				"rate_limit": 500,
			},
		},
		"cache": map[string]any{"default_ttl": "90s"},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	v := newTestViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "https://pro-api.coingecko.com/api/v3", cfg.Providers["coingecko"].BaseURL)
	assert.Equal(t, 500, cfg.Providers["coingecko"].RateLimit)
	assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL)

	// Settings the file does not mention keep their defaults.
	assert.Equal(t, "x-cg-demo-api-key", cfg.Providers["coingecko"].APIKeyHeader)
	assert.Equal(t, 1000, cfg.Cache.MaxSize)
}

func TestLoadRuntimeOverridesWin(t *testing.T) {
	t.Setenv("COINLENS_SERVER_PORT", "4000")

	v := newTestViper(t)
	v.Set("server.port", 5000)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestLoadRejectsInvalidProvider(t *testing.T) {
	v := newTestViper(t)
	v.Set("providers.coingecko.rate_limit", 0)

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit")

	v = newTestViper(t)
	v.Set("providers.coingecko.base_url", "")

	_, err = Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestLoadRejectsBadTTLRule(t *testing.T) {
	v := newTestViper(t)
	v.Set("cache.ttl_rules", []map[string]any{{"pattern": "", "ttl": "1m"}})

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pattern")
}

func TestLimiterConfigDerivation(t *testing.T) {
	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)

	lc := cfg.LimiterConfig()
	assert.Equal(t, map[string]int{
		"coingecko": 30,
		"coindesk":  50,
		"kraken":    15,
		"coinbase":  10,
	}, lc.Limits)
	assert.Equal(t, 5.0, lc.Burst)
	assert.Equal(t, time.Minute, lc.BackoffBase)
}

func TestCachePolicyDerivation(t *testing.T) {
	cfg, err := Load(newTestViper(t))
	require.NoError(t, err)

	cp := cfg.CachePolicy()
	assert.Equal(t, 1000, cp.MaxSize)
	assert.Equal(t, 5*time.Minute, cp.DefaultTTL)
	require.Len(t, cp.Rules, 7)
	assert.Equal(t, "price", cp.Rules[0].Pattern)
}
