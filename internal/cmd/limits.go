package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/coinlens/coinlens/internal/observability"
	"github.com/coinlens/coinlens/internal/output"
)

var (
	limitsOutput string
	limitsOut    string
	limitsOutDir string
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Show rate limiter state per provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		outPath, outDir, err := resolveOutputTargets(cmd)
		if err != nil {
			return err
		}

		deps, err := buildDeps(observability.CLILogger)
		if err != nil {
			return err
		}
		stats := deps.Limiter.Stats()

		if outDir != "" {
			dir, err := ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(dir, fmt.Sprintf("limits.%s", outputExtension(format)))
		}

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if format == output.FormatJSON {
			rendered, err := output.JSON(stats)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, rendered)
			return err
		}

		_, err = fmt.Fprintln(sink.writer, output.RateLimitTable(stats, time.Now().UTC()))
		return err
	},
}

var limitsResetCmd = &cobra.Command{
	Use:   "reset <service>",
	Short: "Clear the backoff deadline for a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(observability.CLILogger)
		if err != nil {
			return err
		}

		if err := deps.Limiter.ResetBackoff(args[0]); err != nil {
			return err
		}

		fmt.Printf("Backoff cleared for %s\n", args[0])
		return nil
	},
}

func init() {
	limitsCmd.AddCommand(limitsResetCmd)
	rootCmd.AddCommand(limitsCmd)

	limitsCmd.Flags().StringVar(&limitsOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	limitsCmd.Flags().StringVar(&limitsOut, "out", "", "Write output to a file (default stdout)")
	limitsCmd.Flags().StringVar(&limitsOutDir, "out-dir", "", "Write output to a directory")
}
