package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for query resolution.
type Metrics struct {
	config MetricsConfig

	// Fetch metrics
	fetchAttempts *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	cacheHits     *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec

	// Resolve metrics
	resolves *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Health metrics
	apiState         *prometheus.GaugeVec
	stateTransitions *prometheus.CounterVec

	enginesRegistered prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		fetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Total number of remote fetch attempts by endpoint path and outcome",
			},
			[]string{"path", "outcome"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of remote fetches in seconds",
				Buckets:   buckets,
			},
			[]string{"path"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of resolutions served from cache within the cooldown",
			},
			[]string{"path"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "previous_value_fallbacks_total",
				Help:      "Total number of failed refreshes answered with the previous value",
			},
			[]string{"path", "mode"},
		),
		resolves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolves_total",
				Help:      "Total number of query resolutions by status",
			},
			[]string{"status"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
		apiState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "api_state",
				Help:      "Current API health state (1 for the active state, 0 otherwise)",
			},
			[]string{"state"},
		),
		stateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_state_transitions_total",
				Help:      "Total number of API health state transitions by target state",
			},
			[]string{"state"},
		),
		enginesRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "engines_registered",
				Help:      "Current number of per-endpoint cache engines",
			},
		),
	}

	registry.MustRegister(
		m.fetchAttempts,
		m.fetchDuration,
		m.cacheHits,
		m.fallbacks,
		m.resolves,
		m.errorsByClass,
		m.errorsByCode,
		m.apiState,
		m.stateTransitions,
		m.enginesRegistered,
	)

	return m, nil
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordFetch records one remote fetch attempt with its outcome and duration.
func (m *Metrics) RecordFetch(path, outcome string, duration time.Duration) {
	if m == nil || m.fetchAttempts == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(path, outcome).Inc()
	m.fetchDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordCacheHit records a resolution answered without a remote call.
func (m *Metrics) RecordCacheHit(path string) {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.WithLabelValues(path).Inc()
}

// RecordFallback records a failed refresh answered with the previous value.
func (m *Metrics) RecordFallback(path, mode string) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.WithLabelValues(path, mode).Inc()
}

// RecordResolve records a completed resolution.
func (m *Metrics) RecordResolve(status string) {
	if m == nil || m.resolves == nil {
		return
	}
	m.resolves.WithLabelValues(status).Inc()
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// SetAPIState marks state as the active health state. all lists every
// state name so the previous one is reset to zero.
func (m *Metrics) SetAPIState(state string, all []string) {
	if m == nil || m.apiState == nil {
		return
	}
	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1.0
		}
		m.apiState.WithLabelValues(s).Set(value)
	}
	m.stateTransitions.WithLabelValues(state).Inc()
}

// SetEnginesRegistered sets the current number of cache engines.
func (m *Metrics) SetEnginesRegistered(count int) {
	if m == nil || m.enginesRegistered == nil {
		return
	}
	m.enginesRegistered.Set(float64(count))
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. The returned
// server can be shut down by the caller; it is nil when metrics are disabled.
func (m *Metrics) StartMetricsServer() *http.Server {
	if m == nil || !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server failed")
		}
	}()

	return server
}
