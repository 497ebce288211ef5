package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pathq",
		Short: "pathq - path queries over remote resource graphs",
		Long: `pathq resolves path queries such as Account.Bank[INT:5] against a graph of
remote resources.

Fetched endpoints are cached for a cooldown and refreshed according to a
resolve mode (none, retry, retry_or_use_previous, use_previous). The outcome
of every fetch feeds a health tracker that classifies the remote side as
unknown, reliable, unreliable or rate limited.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newParseCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newRequiresCommand())
	rootCmd.AddCommand(newCatalogCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newMetricsCommand())

	return rootCmd
}
