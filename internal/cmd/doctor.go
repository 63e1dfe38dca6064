package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/coinlens/coinlens/internal/config"
	errwrap "github.com/coinlens/coinlens/internal/errors"
	"github.com/coinlens/coinlens/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the system and suggest fixes for common issues.",
	Run: func(cmd *cobra.Command, args []string) {
		identity := GetAppIdentity()
		bannerName := "doctor"
		if identity != nil && identity.BinaryName != "" {
			bannerName = identity.BinaryName + " doctor"
		}
		observability.CLILogger.Info("=== " + bannerName + " ===")
		observability.CLILogger.Info("")
		observability.CLILogger.Info("Running diagnostic checks...")
		observability.CLILogger.Info("")

		allChecks := true
		totalChecks := 5

		// Check 1: runtime
		observability.CLILogger.Info(fmt.Sprintf("[1/%d] Checking runtime... ✅ %s on %s/%s", totalChecks, runtime.Version(), runtime.GOOS, runtime.GOARCH),
			zap.String("go_version", runtime.Version()),
			zap.String("os", runtime.GOOS),
			zap.String("arch", runtime.GOARCH))

		// Check 2: SSOT libraries
		version := crucible.GetVersion()
		if version.Gofulmen == "" || version.Crucible == "" {
			observability.CLILogger.Error(fmt.Sprintf("[2/%d] Checking SSOT libraries... ❌ version metadata missing", totalChecks))
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "SSOT version metadata missing", errwrap.NewInternalError("gofulmen/crucible version metadata unavailable"))
			allChecks = false
		} else {
			observability.CLILogger.Info(fmt.Sprintf("[2/%d] Checking SSOT libraries... ✅ gofulmen v%s, crucible v%s", totalChecks, version.Gofulmen, version.Crucible),
				zap.String("gofulmen_version", version.Gofulmen),
				zap.String("crucible_version", version.Crucible))
		}

		// Check 3: Config directory
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			observability.CLILogger.Error(fmt.Sprintf("[3/%d] Checking config directory... ❌ Cannot resolve config directory", totalChecks))
			ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Cannot resolve config directory", errwrap.NewInternalError("config directory not resolved"))
			allChecks = false
		} else {
			configDir := filepath.Dir(configPath)
			observability.CLILogger.Info(fmt.Sprintf("[3/%d] Checking config directory... ✅ %s", totalChecks, configDir), zap.String("config_dir", configDir))
		}

		// Check 4: Provider configuration
		cfg, cfgErr := config.Load(viper.GetViper())
		if cfgErr != nil {
			observability.CLILogger.Warn(fmt.Sprintf("[4/%d] Checking providers... ⚠️  config not loaded", totalChecks), zap.Error(cfgErr))
			allChecks = false
		} else {
			names := make([]string, 0, len(cfg.Providers))
			keyed := 0
			for name, provider := range cfg.Providers {
				names = append(names, name)
				if provider.APIKeyHeader == "" || strings.TrimSpace(provider.APIKey) != "" {
					keyed++
				}
			}
			sort.Strings(names)
			observability.CLILogger.Info(fmt.Sprintf("[4/%d] Checking providers... ✅ %d configured (%s)", totalChecks, len(names), strings.Join(names, ", ")),
				zap.Int("providers", len(names)))
			if keyed < len(names) {
				observability.CLILogger.Warn(fmt.Sprintf("       %d provider(s) expect an API key that is not set; requests may be rejected upstream.", len(names)-keyed))
			}
		}

		// Check 5: Resilience layer
		if cfgErr == nil {
			deps, depsErr := buildDeps(observability.CLILogger)
			if depsErr != nil {
				observability.CLILogger.Warn(fmt.Sprintf("[5/%d] Checking resilience layer... ⚠️  cannot build limiter/cache", totalChecks), zap.Error(depsErr))
				allChecks = false
			} else {
				observability.CLILogger.Info(fmt.Sprintf("[5/%d] Checking resilience layer... ✅ %d rate limit bucket(s), cache capacity %d", totalChecks, len(deps.Limiter.Services()), cfg.Cache.MaxSize),
					zap.Int("buckets", len(deps.Limiter.Services())),
					zap.Int("cache_max_size", cfg.Cache.MaxSize))
			}
		} else {
			observability.CLILogger.Warn(fmt.Sprintf("[5/%d] Checking resilience layer... ⚠️  skipped (config not loaded)", totalChecks))
		}

		observability.CLILogger.Info("")
		if allChecks {
			appName := "coinlens"
			if identity != nil && identity.BinaryName != "" {
				appName = identity.BinaryName
			}
			observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", appName))
		} else {
			observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		observability.CLILogger.Info("")
		observability.CLILogger.Info("=== End Diagnostics ===")
	},
}

var (
	doctorInitForce  bool
	doctorInitAPIKey string
	doctorResetForce bool
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		apiKey := strings.TrimSpace(doctorInitAPIKey)
		if strings.EqualFold(apiKey, "prompt") {
			key, err := promptForValue("Enter CoinGecko API key (leave blank to skip): ")
			if err != nil {
				return err
			}
			apiKey = key
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		mode := os.FileMode(0644)
		if apiKey != "" {
			mode = 0600
		}

		if err := os.WriteFile(configPath, []byte(buildInitConfig(apiKey)), mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration status and paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		configExists := fileExists(configPath)

		cacheDir := config.DefaultCacheDir()

		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info(fmt.Sprintf("  Config file:   %s (%s)", configPath, existenceStatus(configExists)))
		if cacheDir != "" {
			observability.CLILogger.Info(fmt.Sprintf("  Cache directory: %s (%s)", cacheDir, existenceStatus(fileExists(cacheDir))))
		} else {
			observability.CLILogger.Info("  Cache directory: (not resolved)")
		}

		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
			return nil
		}

		observability.CLILogger.Info("")
		observability.CLILogger.Info("Environment:")
		observability.CLILogger.Info("  COINLENS_PROVIDERS_COINGECKO_API_KEY: " + envStatus("COINLENS_PROVIDERS_COINGECKO_API_KEY"))

		observability.CLILogger.Info("")
		observability.CLILogger.Info("Effective Settings:")
		observability.CLILogger.Info(fmt.Sprintf("  providers: %d configured", len(cfg.Providers)))
		observability.CLILogger.Info(fmt.Sprintf("  cache.max_size: %d", cfg.Cache.MaxSize))
		observability.CLILogger.Info("  cache.default_ttl: " + cfg.Cache.DefaultTTL.String())
		observability.CLILogger.Info("  rate_limit.backoff_base: " + cfg.RateLimit.BackoffBase.String())

		return nil
	},
}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the user configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !doctorResetForce {
			return fmt.Errorf("pass --force to confirm removing the config file")
		}

		configPath := config.DefaultConfigPath()
		if configPath == "" {
			observability.CLILogger.Warn("Config path not resolved; nothing to reset")
			return nil
		}

		if err := os.Remove(configPath); err == nil {
			observability.CLILogger.Info("Config removed", zap.String("path", configPath))
		} else if os.IsNotExist(err) {
			observability.CLILogger.Info("Config already removed", zap.String("path", configPath))
		} else {
			return fmt.Errorf("remove config file: %w", err)
		}

		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", configPath)
		}

		if _, err := config.Load(viper.GetViper()); err != nil {
			return err
		}

		observability.CLILogger.Info("Config is valid", zap.String("path", configPath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorConfigCmd)
	doctorCmd.AddCommand(doctorResetCmd)
	doctorCmd.AddCommand(doctorValidateCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitAPIKey, "api-key", "", "set coingecko api key or use 'prompt' to enter")

	doctorResetCmd.Flags().BoolVar(&doctorResetForce, "force", false, "confirm removal of the user config file")
}

func buildInitConfig(apiKey string) string {
	lines := []string{
		"# coinlens config - created by 'coinlens doctor init'",
		"providers:",
		"  coingecko:",
		"    base_url: https://api.coingecko.com/api/v3",
		"    api_key_header: x-cg-demo-api-key",
		"    rate_limit: 30",
	}

	if strings.TrimSpace(apiKey) != "" {
		lines = append(lines, fmt.Sprintf("    api_key: %q", apiKey))
	} else {
		lines = append(lines, "    # api_key: \"\"  # Set via COINLENS_PROVIDERS_COINGECKO_API_KEY or uncomment")
	}

	lines = append(lines,
		"cache:",
		"  max_size: 1000",
		"  default_ttl: 5m",
		"rate_limit:",
		"  backoff_base: 60s",
		"  backoff_cap: 5m",
	)

	return strings.Join(lines, "\n") + "\n"
}

func promptForValue(prompt string) (string, error) {
	if _, err := fmt.Fprint(os.Stdout, prompt); err != nil {
		return "", err
	}
	reader := bufio.NewReader(os.Stdin)
	value, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}
