package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/pathq/pkg/clock"
	"github.com/openfroyo/pathq/pkg/errdefs"
	"github.com/openfroyo/pathq/pkg/graph"
	"github.com/openfroyo/pathq/pkg/health"
	"github.com/openfroyo/pathq/pkg/query"
	"github.com/openfroyo/pathq/pkg/telemetry"
)

// DefaultCooldown is how long a fetched value is served without refreshing.
const DefaultCooldown = 5 * time.Minute

// Recorder receives the outcome of every recoverable fetch attempt.
// *health.Tracker implements it.
type Recorder interface {
	Record(o health.Outcome) error
}

// Attempt describes one remote fetch made by an EndpointCache.
type Attempt struct {
	Path     string
	Number   int
	Bulk     bool
	Outcome  string
	Duration time.Duration
	At       time.Time
	Err      error
}

// AttemptObserver is called after every fetch attempt.
type AttemptObserver func(Attempt)

// EndpointCache caches the value of one resolved endpoint and refreshes it
// according to a Policy once the cooldown has elapsed.
//
// The mutex guards the cached value and timestamps only. It is released
// while fetching, so concurrent callers that both observe a refreshable
// cache may fetch in parallel.
type EndpointCache struct {
	path     query.Query
	key      string
	endpoint graph.Endpoint
	cooldown time.Duration

	clock    clock.Clock
	recorder Recorder
	observer AttemptObserver
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	events   *telemetry.EventPublisher
	logger   zerolog.Logger

	mu        sync.Mutex
	value     any
	hasValue  bool
	lastFetch time.Time
}

// Option configures an EndpointCache.
type Option func(*EndpointCache)

// WithCooldown sets how long a value is served before refreshing.
func WithCooldown(d time.Duration) Option {
	return func(c *EndpointCache) { c.cooldown = d }
}

// WithClock sets the clock used for cooldowns and retry delays.
func WithClock(clk clock.Clock) Option {
	return func(c *EndpointCache) { c.clock = clk }
}

// WithRecorder sets where attempt outcomes are reported.
func WithRecorder(r Recorder) Option {
	return func(c *EndpointCache) { c.recorder = r }
}

// WithObserver sets a callback invoked after every fetch attempt.
func WithObserver(fn AttemptObserver) Option {
	return func(c *EndpointCache) { c.observer = fn }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *EndpointCache) { c.metrics = m }
}

// WithTracer sets the tracer used for fetch spans.
func WithTracer(t *telemetry.Tracer) Option {
	return func(c *EndpointCache) { c.tracer = t }
}

// WithEvents sets the event publisher.
func WithEvents(ep *telemetry.EventPublisher) Option {
	return func(c *EndpointCache) { c.events = ep }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *EndpointCache) { c.logger = l }
}

// NewEndpointCache creates the cache for the endpoint found at path. It fails
// with a not-supported error if the endpoint can be fetched neither in bulk
// nor as a single document.
func NewEndpointCache(path query.Query, endpoint graph.Endpoint, opts ...Option) (*EndpointCache, error) {
	if endpoint == nil {
		return nil, errdefs.NewInternalError("endpoint cache needs an endpoint", nil).WithPath(path.String())
	}
	if !endpoint.BulkFetchable() && !endpoint.Fetchable() {
		return nil, errdefs.NewNotSupportedError("endpoint cannot be fetched", nil).WithPath(path.String())
	}

	c := &EndpointCache{
		path:     path,
		key:      path.String(),
		endpoint: endpoint,
		cooldown: DefaultCooldown,
		clock:    clock.Real{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "engine").Str("path", c.key).Logger()
	return c, nil
}

// Path returns the endpoint path the cache serves.
func (c *EndpointCache) Path() query.Query { return c.path }

// Get returns the cached value, refreshing it first when the cooldown has
// elapsed. candidatePath must be the path the cache was created for.
func (c *EndpointCache) Get(ctx context.Context, candidatePath query.Query, policy Policy) (any, error) {
	if !candidatePath.Equal(c.path) {
		return nil, errdefs.NewInternalError(
			fmt.Sprintf("engine for %s asked to resolve %s", c.key, candidatePath), nil).
			WithPath(c.key)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	now := c.clock.Now()
	if !c.canRefreshLocked(now) {
		value := c.value
		c.mu.Unlock()
		c.metrics.RecordCacheHit(c.key)
		trace.SpanFromContext(ctx).SetAttributes(telemetry.AttrCached.Bool(true))
		c.logger.Debug().Msg("Serving cached value")
		return value, nil
	}
	c.lastFetch = now
	c.mu.Unlock()
	trace.SpanFromContext(ctx).SetAttributes(telemetry.AttrCached.Bool(false))

	value, err := c.fetch(ctx, policy)
	if err != nil {
		return c.fallback(policy, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if value == nil {
		// An empty response keeps whatever was cached before.
		if !c.hasValue {
			return nil, errdefs.NewResolveError("endpoint returned no data", nil).
				WithCode(errdefs.ErrCodeEmptyResult).
				WithPath(c.key)
		}
		return c.value, nil
	}
	c.value = value
	c.hasValue = true
	return value, nil
}

func (c *EndpointCache) fallback(policy Policy, err error) (any, error) {
	if !policy.Mode.fallsBack() || !errdefs.IsRecoverable(err) {
		return nil, err
	}

	c.mu.Lock()
	value, ok := c.value, c.hasValue
	c.mu.Unlock()
	if !ok {
		return nil, err
	}

	c.logger.Warn().Err(err).Str("mode", policy.Mode.String()).Msg("Refresh failed, serving previous value")
	c.metrics.RecordFallback(c.key, policy.Mode.String())
	_ = c.events.PublishFallbackUsed(c.key, policy.Mode.String())
	return value, nil
}

// fetch runs the attempt loop. Recoverable failures are retried with a fixed
// delay; anything else ends the loop immediately.
func (c *EndpointCache) fetch(ctx context.Context, policy Policy) (any, error) {
	attempts := policy.Attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			c.clock.Sleep(policy.RetryDelay)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		value, err := c.attempt(ctx, attempt)
		if err == nil {
			c.record(health.OutcomeSuccess)
			return value, nil
		}
		if !errdefs.IsRecoverable(err) {
			c.logger.Debug().Err(err).Int("attempt", attempt).Msg("Fetch failed with non-recoverable error")
			return nil, err
		}

		kind, _ := errdefs.TransportKindOf(err)
		if outcome, ok := health.OutcomeFor(kind); ok {
			c.record(outcome)
		}
		c.logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("Fetch failed")
		_ = c.events.PublishFetchFailed(c.key, attempt, string(kind))
		lastErr = err
	}

	return nil, lastErr
}

// attempt performs one remote call, preferring the bulk capability.
func (c *EndpointCache) attempt(ctx context.Context, number int) (any, error) {
	bulk := c.endpoint.BulkFetchable()
	ctx, span := c.tracer.StartFetchSpan(ctx, c.key, number, bulk)
	defer span.End()

	start := c.clock.Now()
	var (
		value any
		err   error
	)
	if bulk {
		value, err = c.endpoint.FetchAll(ctx)
	} else {
		value, err = c.endpoint.FetchOne(ctx)
	}
	duration := c.clock.Now().Sub(start)

	outcome := outcomeLabel(err)
	if err != nil {
		telemetry.RecordError(span, err)
		var classified *errdefs.Error
		if errors.As(err, &classified) {
			c.metrics.RecordError(string(classified.Class), classified.Code)
		}
	} else {
		telemetry.RecordSuccess(span)
	}
	c.metrics.RecordFetch(c.key, outcome, duration)

	if c.observer != nil {
		c.observer(Attempt{
			Path:     c.key,
			Number:   number,
			Bulk:     bulk,
			Outcome:  outcome,
			Duration: duration,
			At:       start,
			Err:      err,
		})
	}
	return value, err
}

func (c *EndpointCache) record(o health.Outcome) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(o); err != nil {
		c.logger.Debug().Err(err).Str("outcome", string(o)).Msg("Outcome not recorded")
	}
}

// Clear drops the cached value and forgets the last fetch time.
func (c *EndpointCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = nil
	c.hasValue = false
	c.lastFetch = time.Time{}
}

// CanRefresh reports whether the next Get would contact the remote side.
func (c *EndpointCache) CanRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canRefreshLocked(c.clock.Now())
}

// LastFetch returns when the last refresh started, or the zero time.
func (c *EndpointCache) LastFetch() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFetch
}

// Cached returns the cached value without refreshing.
func (c *EndpointCache) Cached() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.hasValue
}

func (c *EndpointCache) canRefreshLocked(now time.Time) bool {
	return !c.hasValue || now.Sub(c.lastFetch) > c.cooldown
}

func outcomeLabel(err error) string {
	if err == nil {
		return string(health.OutcomeSuccess)
	}
	if kind, ok := errdefs.TransportKindOf(err); ok {
		return string(kind)
	}
	return "error"
}
