package cmd

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/coinlens/coinlens/internal/config"
	"github.com/coinlens/coinlens/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display comprehensive environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()

		observability.CLILogger.Info("=== Environment Information ===")
		observability.CLILogger.Info("")

		// Application Info
		identity := GetAppIdentity()
		observability.CLILogger.Info("Application:")
		observability.CLILogger.Info("  Name:       " + identity.BinaryName)
		observability.CLILogger.Info("  Version:    " + versionInfo.Version)
		observability.CLILogger.Info("  Commit:     " + versionInfo.Commit)
		observability.CLILogger.Info("  Built:      " + versionInfo.BuildDate)
		observability.CLILogger.Info("")

		// SSOT Info
		observability.CLILogger.Info("SSOT:")
		observability.CLILogger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		observability.CLILogger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		observability.CLILogger.Info("")

		// Runtime Info
		observability.CLILogger.Info("Runtime:")
		observability.CLILogger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		observability.CLILogger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		observability.CLILogger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		observability.CLILogger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		observability.CLILogger.Info("")

		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
			return
		}

		// Configuration
		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		observability.CLILogger.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		observability.CLILogger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		observability.CLILogger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		observability.CLILogger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		observability.CLILogger.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		observability.CLILogger.Info("")

		// Provider Configuration
		names := make([]string, 0, len(cfg.Providers))
		for name := range cfg.Providers {
			names = append(names, name)
		}
		sort.Strings(names)

		observability.CLILogger.Info("Providers:")
		for _, name := range names {
			provider := cfg.Providers[name]
			observability.CLILogger.Info(fmt.Sprintf("  %s.base_url: %s", name, provider.BaseURL))
			observability.CLILogger.Info(fmt.Sprintf("  %s.rate_limit: %d req/min", name, provider.RateLimit))
			if provider.APIKeyHeader != "" {
				keyStatus := "(not set)"
				if strings.TrimSpace(provider.APIKey) != "" {
					keyStatus = "(set)"
				}
				observability.CLILogger.Info(fmt.Sprintf("  %s.api_key: %s", name, keyStatus))
			}
		}
		observability.CLILogger.Info("")

		// Rate Limiter Configuration
		observability.CLILogger.Info("Rate Limiter:")
		observability.CLILogger.Info(fmt.Sprintf("  Burst:          %.1f", cfg.RateLimit.Burst))
		observability.CLILogger.Info(fmt.Sprintf("  Max Waiters:    %d", cfg.RateLimit.MaxWaiters))
		observability.CLILogger.Info("  Max Timeout:    " + cfg.RateLimit.MaxTimeout.String())
		observability.CLILogger.Info("  Backoff Base:   " + cfg.RateLimit.BackoffBase.String())
		observability.CLILogger.Info("  Backoff Cap:    " + cfg.RateLimit.BackoffCap.String())
		observability.CLILogger.Info("")

		// Response Cache Configuration
		observability.CLILogger.Info("Response Cache:")
		observability.CLILogger.Info(fmt.Sprintf("  Max Size:       %d", cfg.Cache.MaxSize))
		observability.CLILogger.Info("  Default TTL:    " + cfg.Cache.DefaultTTL.String())
		observability.CLILogger.Info("  Bucket Width:   " + cfg.Cache.BucketWidth.String())
		observability.CLILogger.Info(fmt.Sprintf("  TTL Rules:      %d", len(cfg.Cache.TTLRules)))
		if len(cfg.Cache.LivePatterns) > 0 {
			observability.CLILogger.Info(fmt.Sprintf("  Live Patterns:  %v", cfg.Cache.LivePatterns))
		}
		observability.CLILogger.Info("")

		observability.CLILogger.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
