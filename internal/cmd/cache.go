package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coinlens/coinlens/internal/observability"
	"github.com/coinlens/coinlens/internal/output"
)

var cachePolicyOutput string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show response cache counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps(observability.CLILogger)
		if err != nil {
			return err
		}

		fmt.Println(output.CacheStatsTable(deps.Cache.Stats()))
		return nil
	},
}

var cachePolicyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Show the endpoint expiry policy",
	Long: `Show the TTL rule table in evaluation order. The first rule whose
pattern appears in the endpoint wins; endpoints matching no rule use the
default TTL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(cachePolicyOutput)
		if err != nil {
			return err
		}

		deps, err := buildDeps(observability.CLILogger)
		if err != nil {
			return err
		}
		rules, defaultTTL := deps.Cache.Rules()

		if format == output.FormatJSON {
			rendered := make([]map[string]string, 0, len(rules))
			for _, rule := range rules {
				rendered = append(rendered, map[string]string{
					"pattern": rule.Pattern,
					"ttl":     rule.TTL.String(),
				})
			}
			encoded, err := output.JSON(map[string]any{
				"rules":       rendered,
				"default_ttl": defaultTTL.String(),
			})
			if err != nil {
				return err
			}
			fmt.Println(encoded)
			return nil
		}

		fmt.Println(output.CachePolicyTable(rules, defaultTTL))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePolicyCmd)
	rootCmd.AddCommand(cacheCmd)

	cachePolicyCmd.Flags().StringVar(&cachePolicyOutput, "output-format", string(output.FormatTable), "Output format: table|json")
}
