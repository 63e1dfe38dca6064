package cmd

import (
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/coinlens/coinlens/internal/config"
	"github.com/coinlens/coinlens/internal/core/client"
	"github.com/coinlens/coinlens/internal/core/ratelimit"
	"github.com/coinlens/coinlens/internal/core/respcache"
)

// appDeps bundles the shared resilience components. One limiter and one
// cache exist per process; every provider client borrows them.
type appDeps struct {
	Config  *config.Config
	Limiter *ratelimit.Limiter
	Cache   *respcache.ResponseCache
	Clients map[string]*client.Client
}

// buildDeps loads the merged configuration and constructs the limiter,
// response cache, and one client per configured provider.
func buildDeps(logger *logging.Logger) (*appDeps, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.New(cfg.LimiterConfig(), logger)
	if err != nil {
		return nil, err
	}

	cache, err := respcache.NewResponseCache(cfg.CachePolicy(), logger)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	clients := make(map[string]*client.Client, len(cfg.Providers))
	for name, provider := range cfg.Providers {
		clients[name] = &client.Client{
			Service:        name,
			BaseURL:        provider.BaseURL,
			APIKeyHeader:   provider.APIKeyHeader,
			APIKey:         provider.APIKey,
			HTTP:           httpClient,
			Limiter:        limiter,
			Cache:          cache,
			Logger:         logger,
			AcquireTimeout: provider.AcquireTimeout,
		}
	}

	if logger != nil {
		logger.Debug("Resilience layer initialized",
			zap.Int("providers", len(clients)),
			zap.Int("cache_max_size", cfg.Cache.MaxSize))
	}

	return &appDeps{
		Config:  cfg,
		Limiter: limiter,
		Cache:   cache,
		Clients: clients,
	}, nil
}
