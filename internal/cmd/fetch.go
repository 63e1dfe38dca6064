package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coinlens/coinlens/internal/observability"
	"github.com/coinlens/coinlens/internal/output"
)

var (
	fetchParams  []string
	fetchOut     string
	fetchOutDir  string
	fetchTimeout time.Duration
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <service> <endpoint>",
	Short: "Fetch market data from a provider",
	Long: `Fetch data from a configured provider endpoint through the rate
limiter and response cache. Repeated identical requests are served from
cache until the endpoint's TTL lapses.

Examples:
  coinlens fetch coingecko simple/price --param ids=bitcoin --param vs_currencies=usd
  coinlens fetch coingecko coins/bitcoin/market_chart --param days=30
  coinlens fetch kraken Ticker --param pair=XBTUSD --out ticker.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		service, endpoint := args[0], args[1]

		params, err := parseParams(fetchParams)
		if err != nil {
			return err
		}

		deps, err := buildDeps(observability.CLILogger)
		if err != nil {
			return err
		}

		c, ok := deps.Clients[service]
		if !ok {
			return fmt.Errorf("unknown service %q (configured: %s)",
				service, strings.Join(deps.Limiter.Services(), ", "))
		}
		if fetchTimeout > 0 {
			c.AcquireTimeout = fetchTimeout
		}

		start := time.Now()
		result, err := c.Fetch(cmd.Context(), endpoint, params)
		if err != nil {
			return err
		}

		observability.CLILogger.Debug("Fetch completed",
			zap.String("service", service),
			zap.String("endpoint", endpoint),
			zap.Bool("from_cache", result.FromCache),
			zap.Duration("elapsed", time.Since(start)))

		outPath := strings.TrimSpace(fetchOut)
		outDir := strings.TrimSpace(fetchOutDir)
		if outPath != "" && outDir != "" {
			return fmt.Errorf("--out and --out-dir are mutually exclusive")
		}
		if outDir != "" {
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			name := sanitizeFilename(service + "." + endpoint)
			outPath = filepath.Join(outDir, name+".json")
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.JSON(result.Body)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", pair)
		}
		params[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return params, nil
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringArrayVar(&fetchParams, "param", nil, "Query parameter as key=value (repeatable)")
	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "Write output to a file (default stdout)")
	fetchCmd.Flags().StringVar(&fetchOutDir, "out-dir", "", "Write output to a directory")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 0, "Max time to wait for a rate limit token")
}
