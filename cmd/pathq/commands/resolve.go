package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/pathq/pkg/config"
	"github.com/openfroyo/pathq/pkg/coordinator"
	"github.com/openfroyo/pathq/pkg/errdefs"
)

type resolveResult struct {
	Query string `json:"query"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
	Class string `json:"class,omitempty"`
	State string `json:"state"`
	Trace string `json:"trace_id,omitempty"`
}

func newResolveCommand() *cobra.Command {
	var (
		graphPath string
		repeat    int
		interval  time.Duration
		varFlags  variableFlags
		polFlags  policyFlags
		evFlags   eventFlags
	)

	cmd := &cobra.Command{
		Use:   "resolve <query>...",
		Short: "Resolve path queries against a graph",
		Long: `Resolve one or more path queries against the graph described by --graph.

Queries are resolved in order through a single coordinator, so later queries
hit the endpoint caches filled by earlier ones. With --repeat the whole list
is resolved several times, which makes cooldowns, fallbacks and health state
changes visible.`,
		Example: `  # Resolve a single value
  pathq resolve --graph graph.yaml 'Account.Bank[INT:0]'

  # Resolve with a variable index
  pathq resolve --graph graph.yaml --var name=Zed 'Characters[STRING:$name].Level'

  # Show cache and health events while resolving
  pathq resolve --graph graph.yaml --events all 'Account.Bank[INT:0]'

  # Fall back to the previous value when fetching fails
  pathq resolve --graph graph.yaml --mode retry_or_use_previous --retries 2 --delay 100ms \
    --repeat 3 --interval 2s 'Account.Bank'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if repeat < 1 {
				return fmt.Errorf("--repeat must be at least 1")
			}

			a, err := newApp(ctx, true, func(cfg *config.Config) {
				if evFlags.enabled() {
					cfg.Telemetry.Events.Enabled = true
				}
			})
			if err != nil {
				return err
			}
			defer a.close(ctx)

			out := cmd.OutOrStdout()
			stopEvents, err := a.watchEvents(out, evFlags)
			if err != nil {
				return err
			}
			defer stopEvents()

			policy, err := polFlags.policy(cmd, a.cfg.Resolve)
			if err != nil {
				return err
			}
			variables, err := a.variables(ctx, varFlags)
			if err != nil {
				return err
			}

			c, err := a.coordinator(graphPath)
			if err != nil {
				return err
			}
			defer c.Close()

			settings := coordinator.QuerySettings{Policy: policy, Variables: variables}
			log.Debug().
				Str("policy", policy.String()).
				Int("queries", len(args)).
				Int("repeat", repeat).
				Msg("Resolving queries")

			var failed int
			for round := 0; round < repeat; round++ {
				if round > 0 && interval > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(interval):
					}
				}

				for _, text := range args {
					value, traceID, rerr := a.resolve(ctx, c, text, settings)
					state, err := c.State()
					if err != nil {
						return err
					}

					res := resolveResult{Query: text, Value: value, State: string(state), Trace: traceID}
					if rerr != nil {
						failed++
						res.Value = nil
						res.Error = rerr.Error()
						res.Class = string(errdefs.ClassOf(rerr))
					}

					if jsonOutput {
						if err := writeJSON(out, res); err != nil {
							return err
						}
						continue
					}
					if res.Error != "" {
						fmt.Fprintf(out, "%s: error (%s): %s [state: %s]\n", res.Query, res.Class, res.Error, res.State)
					} else {
						fmt.Fprintf(out, "%s = %v [state: %s]\n", res.Query, res.Value, res.State)
					}
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d resolutions failed", failed, len(args)*repeat)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&graphPath, "graph", "g", "", "graph description file (required)")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "number of times to resolve the queries")
	cmd.Flags().DurationVar(&interval, "interval", 0, "pause between repetitions")
	varFlags.register(cmd)
	polFlags.register(cmd)
	evFlags.register(cmd)

	return cmd
}
