// Package telemetry provides observability instrumentation for pathq.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus) and an in-process event publisher.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	srv := tel.Metrics.StartMetricsServer()
//	defer srv.Close()
//
// # Metrics
//
// All collectors live on a private registry exposed through Metrics.Handler:
//
//   - pathq_fetch_attempts_total{path,outcome}
//   - pathq_fetch_duration_seconds{path}
//   - pathq_cache_hits_total{path}
//   - pathq_previous_value_fallbacks_total{path,mode}
//   - pathq_resolves_total{status}
//   - pathq_errors_by_class_total{class}, pathq_errors_by_code_total{code}
//   - pathq_api_state{state}, pathq_api_state_transitions_total{state}
//   - pathq_engines_registered
//
// A disabled Metrics, and a nil *Metrics, accept every Record call and do nothing.
//
// # Tracing
//
// The coordinator opens a "pathq.resolve" span per query and the cache engine a
// "pathq.fetch" span per remote attempt. Exporters: otlp (gRPC), stdout, none.
//
// # Events
//
// EventPublisher delivers API state transitions, fetch failures, previous-value
// fallbacks and cache clears to subscribers. Subscribe returns an unsubscribe func.
package telemetry
