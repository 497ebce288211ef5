package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/pathq/pkg/engine"
	"github.com/openfroyo/pathq/pkg/errdefs"
	"github.com/openfroyo/pathq/pkg/health"
	"github.com/openfroyo/pathq/pkg/query"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Minute, cfg.Cooldown)
	assert.Equal(t, engine.DefaultPolicy(), cfg.Resolve)
	assert.Equal(t, health.DefaultSettings(), cfg.Health)
	assert.Equal(t, query.DefaultSyntax(), cfg.Syntax)
	assert.Equal(t, "info", cfg.Telemetry.Logging.Level)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
cooldown: 30s
resolve:
  mode: RetryOrUsePrevious
  retry_amount: 2
health:
  window_size: 10
syntax:
  separator: /
requirements:
  path: requirements.yaml
  watch: true
store:
  path: history.db
vars:
  script: vars.star
  env_prefix: PATHQ_
telemetry:
  logging:
    level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Cooldown)
	assert.Equal(t, engine.ModeRetryOrUsePrevious, cfg.Resolve.Mode)
	assert.Equal(t, 2, cfg.Resolve.RetryAmount)
	assert.Equal(t, 5*time.Second, cfg.Resolve.RetryDelay)
	assert.Equal(t, 10, cfg.Health.WindowSize)
	assert.Equal(t, 0.1, cfg.Health.ReliableCutoff)
	assert.Equal(t, "/", cfg.Syntax.Separator)
	assert.Equal(t, "[", cfg.Syntax.IndexOpen)
	assert.Equal(t, RequirementsConfig{Path: "requirements.yaml", Watch: true}, cfg.Requirements)
	assert.Equal(t, "history.db", cfg.Store.Path)
	assert.Equal(t, VarsConfig{Script: "vars.star", EnvPrefix: "PATHQ_"}, cfg.Vars)
	assert.Equal(t, "debug", cfg.Telemetry.Logging.Level)
	assert.Equal(t, "pathq", cfg.Telemetry.ServiceName)

	parser, err := cfg.Parser()
	require.NoError(t, err)
	q, err := parser.Parse("Account/Bank[INT:5]")
	require.NoError(t, err)
	assert.Equal(t, []string{"Account", "Bank"}, q.Names())
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "colldown: 5m"},
		{"bad duration", "cooldown: soon"},
		{"negative cooldown", "cooldown: -1s"},
		{"unknown mode", "resolve:\n  mode: sometimes"},
		{"zero retries", "resolve:\n  mode: retry\n  retry_amount: 0"},
		{"window", "health:\n  window_size: 0"},
		{"cutoff", "health:\n  reliable_cutoff: 1.5"},
		{"overlapping syntax", "syntax:\n  separator: \"[\""},
		{"lowercase env prefix", "vars:\n  env_prefix: pathq_"},
		{"otlp without endpoint", "telemetry:\n  tracing:\n    enabled: true\n    exporter: otlp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errdefs.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pathq.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cooldown: 1m\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Cooldown)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errdefs.IsConfiguration(err))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("cooldown: [\n"), 0o600))
	_, err = Load(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse configuration")
}

func TestLoadCatalog(t *testing.T) {
	cfg := Default()
	parser, err := cfg.Parser()
	require.NoError(t, err)

	cat, err := cfg.LoadCatalog(parser)
	require.NoError(t, err)
	assert.Positive(t, cat.Len())

	cfg.Catalog = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = cfg.LoadCatalog(parser)
	assert.Error(t, err)
}
