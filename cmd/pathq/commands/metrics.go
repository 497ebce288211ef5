package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/pathq/pkg/config"
	"github.com/openfroyo/pathq/pkg/coordinator"
	"github.com/openfroyo/pathq/pkg/health"
)

func newMetricsCommand() *cobra.Command {
	var (
		graphPath string
		listen    string
		interval  time.Duration
		varFlags  variableFlags
		polFlags  policyFlags
		evFlags   eventFlags
	)

	cmd := &cobra.Command{
		Use:   "metrics <query>...",
		Short: "Resolve queries periodically and expose Prometheus metrics",
		Long: `Resolve the given queries every --interval and serve the resulting metrics
over HTTP until interrupted. Fetch counts, cache hits, fallbacks and the API
health state are exported.`,
		Example: `  pathq metrics --graph graph.yaml --listen :9090 --interval 10s 'Account.Bank'`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}

			a, err := newApp(ctx, true, func(cfg *config.Config) {
				cfg.Telemetry.Metrics.Enabled = true
				if listen != "" {
					cfg.Telemetry.Metrics.ListenAddress = listen
				}
				if evFlags.enabled() {
					cfg.Telemetry.Events.Enabled = true
				}
			})
			if err != nil {
				return err
			}
			defer a.close(ctx)

			stopEvents, err := a.watchEvents(cmd.OutOrStdout(), evFlags)
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

			unsubscribe, err := c.OnStateChanged(func(s health.State) {
				log.Info().Str("state", string(s)).Msg("API state changed")
			})
			if err != nil {
				return err
			}
			defer unsubscribe()

			server := a.telemetry.Metrics.StartMetricsServer()
			log.Info().
				Str("address", a.cfg.Telemetry.Metrics.ListenAddress).
				Str("path", a.cfg.Telemetry.Metrics.Path).
				Dur("interval", interval).
				Msg("Serving metrics")

			settings := coordinator.QuerySettings{Policy: policy, Variables: variables}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				for _, text := range args {
					_, _, _ = a.resolve(ctx, c, text, settings)
				}
				if err := a.telemetry.Tracer.ForceFlush(ctx); err != nil {
					log.Warn().Err(err).Msg("Failed to flush spans")
				}

				select {
				case <-ctx.Done():
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
					defer cancel()
					if server != nil {
						if err := server.Shutdown(shutdownCtx); err != nil {
							log.Warn().Err(err).Msg("Failed to shut down metrics server")
						}
					}
					log.Info().Msg("Stopped serving metrics")
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().StringVarP(&graphPath, "graph", "g", "", "graph description file (required)")
	cmd.Flags().StringVar(&listen, "listen", "", "metrics listen address (defaults to telemetry.metrics.listen_address)")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "pause between resolution rounds")
	varFlags.register(cmd)
	polFlags.register(cmd)
	evFlags.register(cmd)

	return cmd
}
