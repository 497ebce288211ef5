package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/pathq/pkg/catalog"
	"github.com/openfroyo/pathq/pkg/config"
	"github.com/openfroyo/pathq/pkg/coordinator"
	"github.com/openfroyo/pathq/pkg/engine"
	"github.com/openfroyo/pathq/pkg/graph/docgraph"
	"github.com/openfroyo/pathq/pkg/query"
	"github.com/openfroyo/pathq/pkg/stores"
	"github.com/openfroyo/pathq/pkg/telemetry"
	"github.com/openfroyo/pathq/pkg/vars"
)

// app holds what a command built from the configuration.
type app struct {
	cfg          *config.Config
	parser       *query.Parser
	catalog      *catalog.Catalog
	requirements *catalog.Requirements
	telemetry    *telemetry.Telemetry
	store        *stores.SQLiteStore
	logger       zerolog.Logger
}

// loadConfig reads --config, or returns the defaults.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// newApp loads the configuration and everything derived from it. withStore
// opens the history database when one is configured. adjust runs on the
// loaded configuration before anything is built from it.
func newApp(ctx context.Context, withStore bool, adjust ...func(*config.Config)) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	for _, fn := range adjust {
		fn(cfg)
	}

	parser, err := cfg.Parser()
	if err != nil {
		return nil, err
	}
	cat, err := cfg.LoadCatalog(parser)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	a := &app{
		cfg:       cfg,
		parser:    parser,
		catalog:   cat,
		telemetry: tel,
		logger:    tel.Logger.Zerolog(),
	}

	a.requirements = catalog.NewRequirements(a.logger, nil)
	if cfg.Requirements.Path != "" {
		if err := a.requirements.LoadFile(cfg.Requirements.Path); err != nil {
			a.close(ctx)
			return nil, err
		}
		if cfg.Requirements.Watch {
			if err := a.requirements.Watch(ctx, cfg.Requirements.Path); err != nil {
				a.close(ctx)
				return nil, err
			}
		}
	}

	if withStore && cfg.Store.Path != "" {
		store, err := stores.Open(ctx, cfg.Store.Path)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		a.store = store
	}

	return a, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.requirements.StopWatching(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop requirements watcher")
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close history store")
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

// coordinator builds a coordinator over the graph described by graphPath.
func (a *app) coordinator(graphPath string) (*coordinator.Coordinator, error) {
	if graphPath == "" {
		return nil, fmt.Errorf("--graph is required")
	}
	root, err := docgraph.Load(graphPath)
	if err != nil {
		return nil, err
	}

	opts := []coordinator.Option{
		coordinator.WithParser(a.parser),
		coordinator.WithCatalog(a.catalog),
		coordinator.WithRequirements(a.requirements),
		coordinator.WithHealthSettings(a.cfg.Health),
		coordinator.WithCooldown(a.cfg.Cooldown),
		coordinator.WithPolicy(a.cfg.Resolve),
		coordinator.WithTelemetry(a.telemetry),
	}
	if a.store != nil {
		opts = append(opts, coordinator.WithStore(a.store))
	}
	return coordinator.New(root, opts...)
}

// resolve resolves text inside a traced operation and logs the outcome. It
// returns the trace ID of the operation, which is empty when tracing is off.
func (a *app) resolve(ctx context.Context, c *coordinator.Coordinator, text string, settings coordinator.QuerySettings) (any, string, error) {
	op := telemetry.StartOperation(a.telemetry.WithContext(ctx), "pathq.cli.resolve", telemetry.AttrQuery.String(text))
	value, err := c.Resolve(op.Ctx, text, settings)
	op.End(err)

	logger := op.Logger.WithQuery(text).WithField("duration", op.Timer.Duration().String())
	if err != nil {
		logger.WithError(err).Warn("Resolve failed")
	} else {
		logger.Debug("Query resolved")
	}
	return value, telemetry.TraceID(op.Ctx), err
}

// eventFlags select the telemetry events a command prints.
type eventFlags struct {
	types []string
	path  string
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.types, "events", nil,
		"print telemetry events of these types ("+strings.Join(telemetry.EventTypes(), ", ")+", or all)")
	cmd.Flags().StringVar(&f.path, "events-path", "", "only print events for this endpoint path")
}

func (f *eventFlags) enabled() bool { return len(f.types) > 0 }

func (f *eventFlags) filter() (telemetry.EventFilter, error) {
	var filters []telemetry.EventFilter
	if !slices.Contains(f.types, "all") {
		known := telemetry.EventTypes()
		for _, t := range f.types {
			if !slices.Contains(known, t) {
				return nil, fmt.Errorf("unknown event type %q (known: %s)", t, strings.Join(known, ", "))
			}
		}
		filters = append(filters, telemetry.FilterByType(f.types...))
	}
	if f.path != "" {
		filters = append(filters, telemetry.FilterByPath(f.path))
	}
	return func(e telemetry.Event) bool {
		for _, fn := range filters {
			if !fn(e) {
				return false
			}
		}
		return true
	}, nil
}

// watchEvents prints the events selected by f to w until the returned
// function is called.
func (a *app) watchEvents(w io.Writer, f eventFlags) (func(), error) {
	if !f.enabled() {
		return func() {}, nil
	}
	filter, err := f.filter()
	if err != nil {
		return nil, err
	}
	var mu sync.Mutex
	return a.telemetry.Events.Subscribe(func(e telemetry.Event) {
		mu.Lock()
		defer mu.Unlock()
		if jsonOutput {
			if err := writeJSON(w, e); err != nil {
				a.logger.Warn().Err(err).Str("event", e.Type).Msg("Failed to write event")
			}
			return
		}
		fmt.Fprintf(w, "event %s [%s] %s\n", e.Type, e.Level, e.Message)
	}, filter), nil
}

// variableFlags are the flags selecting variable sources.
type variableFlags struct {
	assignments []string
	script      string
	envPrefix   string
}

func (f *variableFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.assignments, "var", nil, "variable assignment name=value (repeatable)")
	cmd.Flags().StringVar(&f.script, "vars", "", "Starlark script defining variables")
	cmd.Flags().StringVar(&f.envPrefix, "env-prefix", "", "resolve variables from environment variables with this prefix")
}

// variables chains --var, then the script, then the environment. Flags fall
// back to the configured script and prefix. nil means no variables.
func (a *app) variables(ctx context.Context, f variableFlags) (query.VariableResolver, error) {
	script := f.script
	if script == "" {
		script = a.cfg.Vars.Script
	}
	prefix := f.envPrefix
	if prefix == "" {
		prefix = a.cfg.Vars.EnvPrefix
	}

	var chain vars.Chain
	if len(f.assignments) > 0 {
		static, err := vars.ParseAssignments(f.assignments)
		if err != nil {
			return nil, err
		}
		chain = append(chain, static)
	}
	if script != "" {
		s, err := vars.LoadStarlark(ctx, script, nil, vars.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		chain = append(chain, s)
	}
	if prefix != "" {
		chain = append(chain, vars.Env{Prefix: prefix})
	}

	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}

// policyFlags override the configured resolve policy.
type policyFlags struct {
	mode    string
	retries int
	delay   time.Duration
}

func (f *policyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", "", "resolve mode: none, retry, retry_or_use_previous, use_previous")
	cmd.Flags().IntVar(&f.retries, "retries", 0, "number of fetch attempts for retrying modes")
	cmd.Flags().DurationVar(&f.delay, "delay", 0, "delay between fetch attempts")
}

func (f *policyFlags) policy(cmd *cobra.Command, base engine.Policy) (engine.Policy, error) {
	p := base
	if f.mode != "" {
		mode, err := engine.ParseResolveMode(f.mode)
		if err != nil {
			return engine.Policy{}, err
		}
		p.Mode = mode
	}
	if cmd.Flags().Changed("retries") {
		p.RetryAmount = f.retries
	}
	if cmd.Flags().Changed("delay") {
		p.RetryDelay = f.delay
	}
	return p, p.Validate()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
