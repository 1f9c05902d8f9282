package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "common", cfg.Microsoft.TenantID)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, 0.1, cfg.OpenAI.Temperature)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "http://localhost:3000", cfg.FrontendURL)
	assert.Equal(t, 60*time.Second, cfg.Graph.Timeout)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, ExporterPrometheus, cfg.Telemetry.Metrics)
	assert.Equal(t, ExporterNone, cfg.Telemetry.Traces)
	assert.True(t, cfg.Telemetry.Audit.Enabled)
	assert.False(t, cfg.Telemetry.Audit.IncludePII)
	assert.NoError(t, cfg.Validate())
}

func TestLoadTelemetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
telemetry:
  traces: otlp
  otlp_endpoint: collector:4318
  sample_rate: 0.5
  audit:
    include_pii: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("METRICS_EXPORTER", "stdout")
	t.Setenv("METRICS_RULE_LABELS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	tel := cfg.Telemetry
	assert.True(t, tel.Enabled, "defaults survive a partial telemetry block")
	assert.Equal(t, ExporterStdout, tel.Metrics)
	assert.Equal(t, ExporterOTLP, tel.Traces)
	assert.Equal(t, "collector:4318", tel.OTLPEndpoint)
	assert.Equal(t, 0.5, tel.SampleRate)
	assert.True(t, tel.RuleLabels)
	assert.True(t, tel.Audit.Enabled)
	assert.True(t, tel.Audit.IncludePII)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
http_addr: ":9000"
microsoft:
  client_id: file-client
  redirect_uri: http://localhost:9000/api/auth/callback
database:
  driver: sqlite
  url: /tmp/inboxsorter.db
rate_limit:
  requests_per_second: 2
  burst: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("MS_CLIENT_ID", "env-client")
	t.Setenv("RATE_LIMIT_BURST", "8")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "env-client", cfg.Microsoft.ClientID, "env overrides file")
	assert.Equal(t, "common", cfg.Microsoft.TenantID, "defaults survive partial files")
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 2.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 8, cfg.RateLimit.Burst)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("RATE_LIMIT_RPS", "fast")
	_, err = Load("")
	assert.ErrorContains(t, err, "RATE_LIMIT_RPS")

	t.Setenv("RATE_LIMIT_RPS", "")
	t.Setenv("AUDIT_LOGGING_INCLUDE_PII", "maybe")
	_, err = Load("")
	assert.ErrorContains(t, err, "AUDIT_LOGGING_INCLUDE_PII")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mongo" },
			wantErr: "invalid database driver",
		},
		{
			name:    "sqlite without url",
			mutate:  func(c *Config) { c.Database.Driver = DriverSQLite },
			wantErr: "database url is required",
		},
		{
			name:    "client id without redirect",
			mutate:  func(c *Config) { c.Microsoft.ClientID = "abc" },
			wantErr: "MS_REDIRECT_URI",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.OpenAI.Temperature = 3 },
			wantErr: "temperature",
		},
		{
			name:    "negative burst",
			mutate:  func(c *Config) { c.RateLimit.Burst = -1 },
			wantErr: "must not be negative",
		},
		{
			name:    "unknown metrics exporter",
			mutate:  func(c *Config) { c.Telemetry.Metrics = "statsd" },
			wantErr: "invalid metrics exporter",
		},
		{
			name:    "unknown tracing exporter",
			mutate:  func(c *Config) { c.Telemetry.Traces = "jaeger" },
			wantErr: "invalid tracing exporter",
		},
		{
			name:    "otlp without endpoint",
			mutate:  func(c *Config) { c.Telemetry.Traces = ExporterOTLP },
			wantErr: "OTEL_EXPORTER_OTLP_ENDPOINT",
		},
		{
			name:    "sampling rate above one",
			mutate:  func(c *Config) { c.Telemetry.SampleRate = 1.5 },
			wantErr: "sampling rate",
		},
		{
			name: "disabled telemetry skips exporter checks",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = false
				c.Telemetry.Metrics = "statsd"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Equal(t, []string{"a", "b"}, SplitList(" a ,, b ,"))
	assert.Equal(t, []string{}, SplitList(" , "))
}
