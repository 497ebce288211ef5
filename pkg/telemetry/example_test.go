package telemetry_test

import (
	"bytes"
	"context"
	"fmt"

	"github.com/openfroyo/pathq/pkg/telemetry"
)

// Example_events shows synchronous delivery of a state transition.
func Example_events() {
	events := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	defer events.Shutdown(context.Background())

	unsubscribe := events.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Type, e.Level, e.Message)
	}, telemetry.FilterByType(telemetry.EventTypeStateChanged))
	defer unsubscribe()

	_ = events.PublishStateChanged("unknown", "reliable")
	_ = events.PublishCacheCleared("")
	_ = events.PublishStateChanged("reliable", "rate_limited")

	// Output:
	// api.state_changed info API state changed from unknown to reliable
	// api.state_changed warning API state changed from reliable to rate_limited
}

// Example_structuredLogging demonstrates component loggers.
func Example_structuredLogging() {
	var buf bytes.Buffer
	logger := telemetry.NewLoggerTo(&buf, "debug").NewComponentLogger("engine")

	logger.WithField("attempt", 2).Warn("Fetch failed")
	logger.WithQuery("Account.Bank[INT:5]").Debug("Serving cached value")

	fmt.Println(bytes.Count(buf.Bytes(), []byte("\n")))
	// Output: 2
}

// Example_metrics shows that disabled metrics are safe to call.
func Example_metrics() {
	m, _ := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: false})
	m.RecordCacheHit("Account")
	m.SetEnginesRegistered(3)
	fmt.Println(m.Registry() == nil)
	// Output: true
}
