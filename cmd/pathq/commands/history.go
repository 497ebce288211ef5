package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/pathq/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		dbPath     string
		attempts   bool
		stats      bool
		path       string
		since      time.Duration
		limit      int
		pruneOlder time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded state transitions and fetch attempts",
		Long: `Show the history recorded by resolve runs in the store configured under
store.path (or given with --db).

By default the API state transitions are listed, newest first. --attempts
lists fetch attempts instead and --stats summarizes them per endpoint path.`,
		Example: `  # State transitions
  pathq history --db pathq.db

  # Failed and successful fetches of one endpoint during the last hour
  pathq history --db pathq.db --attempts --path Account.Bank --since 1h

  # Drop everything older than a week
  pathq history --db pathq.db --prune-older-than 168h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if dbPath == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dbPath = cfg.Store.Path
			}
			if dbPath == "" {
				return fmt.Errorf("no store configured, set store.path or pass --db")
			}

			store, err := stores.Open(ctx, dbPath)
			if err != nil {
				return fmt.Errorf("failed to open history store: %w", err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					log.Warn().Err(err).Msg("Failed to close history store")
				}
			}()

			out := cmd.OutOrStdout()

			if pruneOlder > 0 {
				before := time.Now().Add(-pruneOlder)
				n, err := store.Prune(ctx, before)
				if err != nil {
					return err
				}
				log.Info().Int64("rows", n).Time("before", before).Msg("Pruned history")
				fmt.Fprintf(out, "Pruned %d rows\n", n)
				return nil
			}

			if stats {
				all, err := store.AttemptStats(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, all)
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PATH\tATTEMPTS\tFAILURES\tLAST")
				for _, s := range all {
					fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", s.Path, s.Attempts, s.Failures, s.LastAt.Format(time.RFC3339))
				}
				return w.Flush()
			}

			if attempts {
				filter := stores.AttemptFilter{Path: path, Limit: limit}
				if since > 0 {
					filter.Since = time.Now().Add(-since)
				}
				list, err := store.ListAttempts(ctx, filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, list)
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "AT\tPATH\tATTEMPT\tBULK\tOUTCOME\tDURATION")
				for _, a := range list {
					fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\t%s\n",
						a.At.Format(time.RFC3339), a.Path, a.Number, a.Bulk, a.Outcome, a.Duration)
				}
				return w.Flush()
			}

			list, err := store.ListTransitions(ctx, limit, 0)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(out, list)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "AT\tFROM\tTO\tISSUE RATIO")
			for _, t := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n", t.At.Format(time.RFC3339), t.From, t.To, t.IssueRatio)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "history database path (defaults to store.path)")
	cmd.Flags().BoolVar(&attempts, "attempts", false, "list fetch attempts instead of state transitions")
	cmd.Flags().BoolVar(&stats, "stats", false, "summarize fetch attempts per endpoint path")
	cmd.Flags().StringVar(&path, "path", "", "only list attempts for this endpoint path")
	cmd.Flags().DurationVar(&since, "since", 0, "only list attempts newer than this")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of rows (0 for all)")
	cmd.Flags().DurationVar(&pruneOlder, "prune-older-than", 0, "delete history older than this and exit")

	return cmd
}
