package coordinator

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/pathq/pkg/catalog"
	"github.com/openfroyo/pathq/pkg/clock"
	"github.com/openfroyo/pathq/pkg/engine"
	"github.com/openfroyo/pathq/pkg/health"
	"github.com/openfroyo/pathq/pkg/query"
	"github.com/openfroyo/pathq/pkg/stores"
	"github.com/openfroyo/pathq/pkg/telemetry"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithParser sets the parser used for query text. Defaults to
// query.DefaultParser.
func WithParser(p *query.Parser) Option {
	return func(c *Coordinator) { c.parser = p }
}

// WithCatalog sets the endpoint catalog used to pre-validate indices and to
// look up required capabilities.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(c *Coordinator) { c.catalog = cat }
}

// WithRequirements sets the capability table consulted before the catalog.
func WithRequirements(r *catalog.Requirements) Option {
	return func(c *Coordinator) { c.requirements = r }
}

// WithHealthSettings configures the health tracker.
func WithHealthSettings(s health.Settings) Option {
	return func(c *Coordinator) { c.healthSettings = s }
}

// WithCooldown sets the cooldown of every endpoint cache.
func WithCooldown(d time.Duration) Option {
	return func(c *Coordinator) { c.cooldown = d }
}

// WithPolicy sets the policy used when QuerySettings leaves it unset.
func WithPolicy(p engine.Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithClock sets the clock shared by the caches and the health tracker.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithStore records state transitions and fetch attempts. The store is not
// closed by the coordinator.
func WithStore(s stores.Store) Option {
	return func(c *Coordinator) { c.store = s }
}

// WithTelemetry sets metrics, tracer, events and logger from t.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(c *Coordinator) {
		if t == nil {
			return
		}
		c.metrics = t.Metrics
		c.tracer = t.Tracer
		c.events = t.Events
		if t.Logger != nil {
			c.logger = t.Logger.Zerolog()
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(c *Coordinator) { c.tracer = t }
}

// WithEvents sets the event publisher.
func WithEvents(ep *telemetry.EventPublisher) Option {
	return func(c *Coordinator) { c.events = ep }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}
