package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/openfroyo/pathq/pkg/errdefs"
)

func testMetrics(t *testing.T) *Metrics {
	t.Helper()
	cfg := DefaultConfig().Metrics
	m, err := NewMetrics(cfg)
	require.NoError(t, err)
	return m
}

func TestMetricsRecordFetch(t *testing.T) {
	m := testMetrics(t)

	m.RecordFetch("Account.Bank", "success", 20*time.Millisecond)
	m.RecordFetch("Account.Bank", "server_error", time.Second)
	m.RecordFetch("Account.Bank", "server_error", time.Second)
	m.RecordCacheHit("Account.Bank")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetchAttempts.WithLabelValues("Account.Bank", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetchAttempts.WithLabelValues("Account.Bank", "server_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits.WithLabelValues("Account.Bank")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.fetchDuration))
}

func TestMetricsAPIState(t *testing.T) {
	m := testMetrics(t)
	all := []string{"unknown", "reliable", "unreliable", "rate_limited"}

	m.SetAPIState("reliable", all)
	m.SetAPIState("rate_limited", all)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.apiState.WithLabelValues("reliable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiState.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stateTransitions.WithLabelValues("reliable")))
}

func TestMetricsHandler(t *testing.T) {
	m := testMetrics(t)
	m.SetEnginesRegistered(4)
	m.RecordError("transport", "")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "pathq_engines_registered 4")
	assert.Contains(t, body, `pathq_errors_by_class_total{class="transport"} 1`)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordFetch("x", "success", time.Second)
	m.RecordResolve("ok")
	m.SetAPIState("reliable", nil)
	assert.Nil(t, m.StartMetricsServer())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
		}, "requires an endpoint"},
		{"sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, "sampling rate"},
		{"missing service", func(c *Config) { c.ServiceName = "" }, "service name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEventPublisherSync(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true})

	var got []Event
	unsubscribe := ep.Subscribe(func(e Event) { got = append(got, e) }, FilterByPath("Account"))

	require.NoError(t, ep.PublishEngineCreated("Account"))
	require.NoError(t, ep.PublishEngineCreated("Guild"))
	unsubscribe()
	unsubscribe()
	require.NoError(t, ep.PublishEngineCreated("Account"))

	require.Len(t, got, 1)
	assert.Equal(t, EventTypeEngineCreated, got[0].Type)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestEventPublisherAsyncDrainsOnShutdown(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 16})

	var mu sync.Mutex
	count := 0
	ep.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, ep.PublishFetchFailed("Account", i+1, "server error"))
	}
	require.NoError(t, ep.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, count)
	assert.Error(t, ep.Publish(Event{Type: "late"}))
}

func TestDisabledEventPublisher(t *testing.T) {
	ep := NewEventPublisher(EventsConfig{})
	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	require.NoError(t, ep.PublishCacheCleared(""))
	assert.False(t, called)
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info").NewComponentLogger("coordinator")

	logger.WithQuery("Account.Bank").WithField("path", "Account").Warn("resolved")
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "coordinator", entry["component"])
	assert.Equal(t, "Account.Bank", entry["query"])
	assert.Equal(t, "Account", entry["path"])
	assert.Equal(t, "resolved", entry["message"])
}

func TestStartOperationWithoutTelemetry(t *testing.T) {
	op := StartOperation(context.Background(), "noop")
	require.NotNil(t, op.Logger)
	op.End(nil)
}

func TestStartOperation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "none"
	cfg.Tracing.SamplingRate = 1
	tel, err := NewTelemetry(cfg)
	require.NoError(t, err)
	var buf bytes.Buffer
	tel.Logger = NewLoggerTo(&buf, "debug")
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	require.Same(t, tel, FromTelemetryContext(ctx))
	require.Same(t, tel.Logger, FromContext(ctx))

	op := StartOperation(ctx, "pathq.test", AttrQuery.String("Account"))
	assert.NotEmpty(t, TraceID(op.Ctx))
	op.Logger.WithQuery("Account").WithError(errdefs.ErrDisposed).Warn("failed")
	op.End(errdefs.NewResolveError("missing", nil).WithCode(errdefs.ErrCodeNoEndpoint))
	assert.GreaterOrEqual(t, op.Timer.Duration(), time.Duration(0))
	require.NoError(t, tel.Tracer.ForceFlush(context.Background()))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "pathq.test", entry["operation"])
	assert.Equal(t, TraceID(op.Ctx), entry["trace_id"])
	assert.Equal(t, "Account", entry["query"])
	assert.Contains(t, entry["error"], "component has been closed")
}

func TestNoopTracer(t *testing.T) {
	tr, err := NewTracer(TracingConfig{}, "pathq", "test", "test")
	require.NoError(t, err)

	ctx, span := tr.StartFetchSpan(context.Background(), "Account", 1, true)
	span.End()
	assert.Empty(t, TraceID(ctx))
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestRecordErrorAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, span := tracer.Start(context.Background(), "resolve")
	RecordError(span, errdefs.NewResolveError("missing", nil).WithCode(errdefs.ErrCodeNoEndpoint))
	span.End()

	_, plain := tracer.Start(context.Background(), "plain")
	RecordError(plain, context.Canceled)
	plain.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Contains(t, ended[0].Attributes(), AttrErrorClass.String(string(errdefs.ClassResolve)))
	assert.Contains(t, ended[0].Attributes(), AttrErrorCode.String(errdefs.ErrCodeNoEndpoint))
	assert.Empty(t, ended[1].Attributes())
}
