// Package coordinator is the entry point for resolving path queries against a
// capability graph.
//
// A Coordinator parses query text, walks the graph with a resolver, keeps one
// engine.EndpointCache per resolved endpoint path and applies whatever is
// left of the query to the value the cache returns. All caches report to one
// health.Tracker whose state the coordinator exposes.
package coordinator

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/pathq/pkg/catalog"
	"github.com/openfroyo/pathq/pkg/clock"
	"github.com/openfroyo/pathq/pkg/engine"
	"github.com/openfroyo/pathq/pkg/errdefs"
	"github.com/openfroyo/pathq/pkg/graph"
	"github.com/openfroyo/pathq/pkg/health"
	"github.com/openfroyo/pathq/pkg/query"
	"github.com/openfroyo/pathq/pkg/resolver"
	"github.com/openfroyo/pathq/pkg/stores"
	"github.com/openfroyo/pathq/pkg/telemetry"
)

// QuerySettings controls a single Resolve or RequiredCapabilities call.
type QuerySettings struct {
	// Policy decides retries and fallback. The coordinator's default policy
	// is used when Mode is empty.
	Policy engine.Policy

	// Variables resolves $name indices. Required when the query has any.
	Variables query.VariableResolver
}

// Coordinator owns the endpoint caches and the health tracker.
type Coordinator struct {
	root         graph.Node
	parser       *query.Parser
	catalog      *catalog.Catalog
	requirements *catalog.Requirements
	resolver     *resolver.Resolver

	healthSettings health.Settings
	tracker        *health.Tracker
	cooldown       time.Duration
	policy         engine.Policy
	clock          clock.Clock

	store   stores.Store
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	events  *telemetry.EventPublisher
	base    zerolog.Logger
	logger  zerolog.Logger

	mu          sync.Mutex
	engines     map[string]*engine.EndpointCache
	closed      bool
	unsubscribe func()

	stateMu   sync.Mutex
	lastState health.State
}

// New creates a coordinator for the graph rooted at root.
func New(root graph.Node, opts ...Option) (*Coordinator, error) {
	if root == nil {
		return nil, errdefs.NewConfigurationError("coordinator needs a root node", nil)
	}

	c := &Coordinator{
		root:           root,
		parser:         query.DefaultParser(),
		healthSettings: health.DefaultSettings(),
		cooldown:       engine.DefaultCooldown,
		policy:         engine.DefaultPolicy(),
		clock:          clock.Real{},
		logger:         zerolog.Nop(),
		engines:        make(map[string]*engine.EndpointCache),
		lastState:      health.StateUnknown,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.base = c.logger
	c.logger = c.base.With().Str("component", "coordinator").Logger()

	if err := c.policy.Validate(); err != nil {
		return nil, err
	}
	if c.cooldown < 0 {
		return nil, errdefs.NewConfigurationError("cooldown must not be negative", nil).
			WithCode(errdefs.ErrCodeInvalidSettings)
	}

	tracker, err := health.NewTracker(c.healthSettings,
		health.WithClock(c.clock),
		health.WithLogger(c.base),
	)
	if err != nil {
		return nil, err
	}
	c.tracker = tracker
	c.unsubscribe = tracker.Subscribe(c.stateChanged)

	c.resolver = resolver.New(
		resolver.WithCatalog(c.catalog),
		resolver.WithRegistry(c.parser.Registry()),
		resolver.WithLogger(c.base),
	)

	c.metrics.SetAPIState(string(health.StateUnknown), stateNames())
	c.metrics.SetEnginesRegistered(0)
	return c, nil
}

// Resolve parses text and resolves it.
func (c *Coordinator) Resolve(ctx context.Context, text string, settings QuerySettings) (any, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	q, err := c.parser.Parse(text)
	if err != nil {
		c.recordResult(err)
		return nil, err
	}
	return c.ResolveQuery(ctx, q, settings)
}

// ResolveQuery fetches the deepest endpoint addressed by q, or serves it from
// cache, and applies the rest of q to the value.
func (c *Coordinator) ResolveQuery(ctx context.Context, q query.Query, settings QuerySettings) (result any, err error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.StartResolveSpan(ctx, q.String())
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
		c.recordResult(err)
	}()

	cand, err := c.candidate(ctx, q, settings)
	if err != nil {
		return nil, err
	}

	cache, err := c.engineFor(cand)
	if err != nil {
		return nil, err
	}

	policy := c.policyFor(settings)
	span.SetAttributes(
		telemetry.AttrEndpointPath.String(cand.Path.String()),
		telemetry.AttrMode.String(policy.Mode.String()),
	)
	value, err := cache.Get(ctx, cand.Path, policy)
	if err != nil {
		return nil, err
	}

	return c.resolver.Apply(ctx, value, cand, settings.Variables)
}

// RequiredCapabilities resolves text without fetching and reports what a
// caller needs to access the endpoint. The returned set is empty for public
// endpoints. ok is false when the endpoint requires authorization but its
// requirements are not known.
func (c *Coordinator) RequiredCapabilities(ctx context.Context, text string, settings QuerySettings) (caps []string, ok bool, err error) {
	if err := c.checkOpen(); err != nil {
		return nil, false, err
	}
	q, err := c.parser.Parse(text)
	if err != nil {
		return nil, false, err
	}
	cand, err := c.candidate(ctx, q, settings)
	if err != nil {
		return nil, false, err
	}

	if caps, ok := c.requirements.Lookup(strings.Join(cand.Path.Names(), ".")); ok {
		return caps, true, nil
	}

	if e, found := c.catalog.Match(cand.Path); found {
		switch {
		case e.Public:
			return []string{}, true, nil
		case len(e.Requires) > 0:
			return slices.Clone(e.Requires), true, nil
		default:
			return nil, false, nil
		}
	}

	if a, isAuth := cand.Endpoint.(graph.Authenticated); isAuth && a.RequiresAuthorization() {
		return nil, false, nil
	}
	return []string{}, true, nil
}

// ClearCache drops every endpoint cache.
func (c *Coordinator) ClearCache() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errdefs.ErrDisposed
	}
	dropped := c.engines
	c.engines = make(map[string]*engine.EndpointCache)
	c.mu.Unlock()

	for _, cache := range dropped {
		cache.Clear()
		_ = c.events.PublishCacheCleared(cache.Path().String())
	}
	c.metrics.SetEnginesRegistered(0)
	c.logger.Debug().Int("engines", len(dropped)).Msg("Cache cleared")
	return nil
}

// ClearPath drops the cache of one endpoint path, given as query text. It
// reports whether a cache existed.
func (c *Coordinator) ClearPath(path string) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	q, err := c.parser.Parse(path)
	if err != nil {
		return false, err
	}
	key := q.Key()

	c.mu.Lock()
	cache, ok := c.engines[key]
	delete(c.engines, key)
	count := len(c.engines)
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	cache.Clear()
	c.metrics.SetEnginesRegistered(count)
	_ = c.events.PublishCacheCleared(q.String())
	c.logger.Debug().Str("path", q.String()).Msg("Endpoint cache cleared")
	return true, nil
}

// Paths returns the rendered endpoint paths that currently have a cache,
// sorted. After Close it returns an empty slice instead of failing.
func (c *Coordinator) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := make([]string, 0, len(c.engines))
	for _, cache := range c.engines {
		paths = append(paths, cache.Path().String())
	}
	sort.Strings(paths)
	return paths
}

// State returns the current API health state.
func (c *Coordinator) State() (health.State, error) {
	if err := c.checkOpen(); err != nil {
		return health.StateUnknown, err
	}
	return c.tracker.State(), nil
}

// Tracker returns the health tracker fed by the endpoint caches. After Close
// the tracker is still returned. It is closed and keeps its last window.
func (c *Coordinator) Tracker() *health.Tracker { return c.tracker }

// OnStateChanged registers fn for API state changes. Callbacks run outside
// the tracker's lock. Their order across subscribers is unspecified.
func (c *Coordinator) OnStateChanged(fn func(health.State)) (unsubscribe func(), err error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.tracker.Subscribe(fn), nil
}

// Close drops every cache and stops the health tracker. Later calls fail
// with errdefs.ErrDisposed. Close itself may be called more than once.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	engines := c.engines
	c.engines = nil
	c.mu.Unlock()

	c.unsubscribe()
	for _, cache := range engines {
		cache.Clear()
	}
	c.metrics.SetEnginesRegistered(0)
	c.logger.Debug().Msg("Coordinator closed")
	return c.tracker.Close()
}

func (c *Coordinator) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errdefs.ErrDisposed
	}
	return nil
}

func (c *Coordinator) candidate(ctx context.Context, q query.Query, settings QuerySettings) (resolver.Candidate, error) {
	if q.ContainsVariable() && settings.Variables == nil {
		return resolver.Candidate{}, errdefs.NewConfigurationError(
			"query contains variables but no variable resolver was given", nil).
			WithCode(errdefs.ErrCodeMissingResolver).
			WithQuery(q.String())
	}
	return c.resolver.Deepest(ctx, c.root, q, settings.Variables)
}

func (c *Coordinator) policyFor(settings QuerySettings) engine.Policy {
	if settings.Policy.Mode == "" {
		return c.policy
	}
	return settings.Policy
}

// engineFor returns the cache for the candidate's path, creating it on first
// use. Caches are keyed by query.Query.Key since rendered paths of string
// indices can collide.
func (c *Coordinator) engineFor(cand resolver.Candidate) (*engine.EndpointCache, error) {
	key := cand.Path.Key()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errdefs.ErrDisposed
	}
	if cache, ok := c.engines[key]; ok {
		return cache, nil
	}

	cache, err := engine.NewEndpointCache(cand.Path, cand.Endpoint,
		engine.WithCooldown(c.cooldown),
		engine.WithClock(c.clock),
		engine.WithRecorder(c.tracker),
		engine.WithObserver(c.recordAttempt),
		engine.WithMetrics(c.metrics),
		engine.WithTracer(c.tracer),
		engine.WithEvents(c.events),
		engine.WithLogger(c.base),
	)
	if err != nil {
		var e *errdefs.Error
		if errors.As(err, &e) && e.Class == errdefs.ClassNotSupported {
			return nil, e.WithQuery(cand.Path.String())
		}
		return nil, err
	}

	c.engines[key] = cache
	c.metrics.SetEnginesRegistered(len(c.engines))
	_ = c.events.PublishEngineCreated(cache.Path().String())
	c.logger.Debug().Str("path", cache.Path().String()).Msg("Endpoint cache created")
	return cache, nil
}

// stateChanged mirrors the tracker state into the gauge, the event stream and
// the store. Notifications run outside the tracker's lock and may arrive out
// of order, so the tracker is read again under stateMu and a notification
// that no longer changes anything is dropped.
func (c *Coordinator) stateChanged(health.State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	next := c.tracker.State()
	prev := c.lastState
	if next == prev {
		return
	}
	c.lastState = next

	c.metrics.SetAPIState(string(next), stateNames())
	_ = c.events.PublishStateChanged(string(prev), string(next))

	if c.store == nil {
		return
	}
	err := c.store.RecordTransition(context.Background(), &stores.Transition{
		From:       string(prev),
		To:         string(next),
		IssueRatio: c.tracker.IssueRatio(),
		At:         c.clock.Now(),
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record state transition")
	}
}

func (c *Coordinator) recordAttempt(a engine.Attempt) {
	if c.store == nil {
		return
	}
	rec := &stores.Attempt{
		Path:     a.Path,
		Number:   a.Number,
		Bulk:     a.Bulk,
		Outcome:  a.Outcome,
		Duration: a.Duration,
		At:       a.At,
	}
	if a.Err != nil {
		msg := a.Err.Error()
		rec.Error = &msg
	}
	if err := c.store.RecordAttempt(context.Background(), rec); err != nil {
		c.logger.Warn().Err(err).Str("path", a.Path).Msg("Failed to record fetch attempt")
	}
}

func (c *Coordinator) recordResult(err error) {
	if err == nil {
		c.metrics.RecordResolve("ok")
		return
	}
	var e *errdefs.Error
	if errors.As(err, &e) {
		c.metrics.RecordResolve(string(e.Class))
		c.metrics.RecordError(string(e.Class), e.Code)
		return
	}
	c.metrics.RecordResolve("error")
}

func stateNames() []string {
	states := health.States()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return names
}
