// Package config provides centralized configuration management for CoinLens.
// Defaults are registered on viper, user config files and COINLENS_*
// environment variables layer on top, and Load decodes the merged settings
// into the typed Config.
package config

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// SetDefaults registers the default configuration on v. Provider budgets
// mirror the free-tier terms of the supported market-data APIs.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "SIMPLE")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)

	v.SetDefault("providers.coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("providers.coingecko.api_key_header", "x-cg-demo-api-key")
	v.SetDefault("providers.coingecko.rate_limit", 30)

	v.SetDefault("providers.coindesk.base_url", "https://api.coindesk.com/v1")
	v.SetDefault("providers.coindesk.rate_limit", 50)

	v.SetDefault("providers.kraken.base_url", "https://api.kraken.com/0/public")
	v.SetDefault("providers.kraken.rate_limit", 15)

	v.SetDefault("providers.coinbase.base_url", "https://api.coinbase.com/v2")
	v.SetDefault("providers.coinbase.rate_limit", 10)

	v.SetDefault("rate_limit.burst", 5.0)
	v.SetDefault("rate_limit.max_waiters", 100)
	v.SetDefault("rate_limit.max_timeout", "5m")
	v.SetDefault("rate_limit.min_sleep", "10ms")
	v.SetDefault("rate_limit.backoff_base", "60s")
	v.SetDefault("rate_limit.backoff_cap", "5m")

	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("cache.bucket_width", "1m")
	v.SetDefault("cache.live_patterns", []string{"price", "markets"})
	v.SetDefault("cache.ttl_rules", []map[string]any{
		{"pattern": "price", "ttl": "2m"},
		{"pattern": "markets", "ttl": "3m"},
		{"pattern": "ohlc", "ttl": "1h"},
		{"pattern": "market_chart", "ttl": "1h"},
		{"pattern": "history", "ttl": "2h"},
		{"pattern": "coins", "ttl": "10m"},
		{"pattern": "global", "ttl": "10m"},
	})
}

// Load decodes the merged viper settings into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
