package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Telemetry exporters.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// Config is the runtime configuration of the service.
type Config struct {
	HTTPAddr    string          `yaml:"http_addr"`
	FrontendURL string          `yaml:"frontend_url"`
	Microsoft   MicrosoftConfig `yaml:"microsoft"`
	OpenAI      OpenAIConfig    `yaml:"openai"`
	Database    DatabaseConfig  `yaml:"database"`
	Graph       GraphConfig     `yaml:"graph"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	CORSOrigins []string        `yaml:"cors_allowed_origins"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// MicrosoftConfig holds the Azure AD application registration.
type MicrosoftConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TenantID     string `yaml:"tenant_id"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// Configured reports whether the identity provider can be used.
func (m MicrosoftConfig) Configured() bool {
	return m.ClientID != ""
}

// OpenAIConfig configures the classification oracle.
// An empty APIKey leaves the oracle soft-disabled.
type OpenAIConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DatabaseConfig selects the persistent store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

// GraphConfig configures the Microsoft Graph client.
type GraphConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig bounds API requests per client address.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// TelemetryConfig selects where metrics, traces and audit events go.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Metrics string `yaml:"metrics"`
	Traces  string `yaml:"traces"`

	// OTLPEndpoint is host:port without a scheme. TLS is used unless
	// OTLPInsecure is set.
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	OTLPInsecure bool    `yaml:"otlp_insecure"`
	SampleRate   float64 `yaml:"sample_rate"`

	// RuleLabels attaches rule names to outcome metrics. Rule names are
	// user-defined, so this is off by default.
	RuleLabels bool        `yaml:"rule_labels"`
	Audit      AuditConfig `yaml:"audit"`
}

// AuditConfig controls the audit trail of tool calls and message moves.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	IncludePII bool `yaml:"include_pii"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPAddr:    ":8080",
		FrontendURL: "http://localhost:3000",
		Microsoft: MicrosoftConfig{
			TenantID: "common",
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o-mini",
			BaseURL:     "https://api.openai.com/v1",
			Temperature: 0.1,
			Timeout:     60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: DriverMemory,
		},
		Graph: GraphConfig{
			BaseURL: "https://graph.microsoft.com/v1.0",
			Timeout: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		CORSOrigins: []string{"*"},
		Telemetry: TelemetryConfig{
			Enabled:    true,
			Metrics:    ExporterPrometheus,
			Traces:     ExporterNone,
			SampleRate: 0.1,
			Audit:      AuditConfig{Enabled: true},
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in that order of precedence (later wins).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.FrontendURL, "FRONTEND_URL")

	setString(&c.Microsoft.ClientID, "MS_CLIENT_ID")
	setString(&c.Microsoft.ClientSecret, "MS_CLIENT_SECRET")
	setString(&c.Microsoft.TenantID, "MS_TENANT_ID")
	setString(&c.Microsoft.RedirectURI, "MS_REDIRECT_URI")

	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.Model, "OPENAI_MODEL")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")

	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.URL, "DATABASE_URL")

	setString(&c.Graph.BaseURL, "GRAPH_BASE_URL")

	var errs []error
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_RPS %q: %w", v, err))
		} else {
			c.RateLimit.RequestsPerSecond = rps
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_BURST %q: %w", v, err))
		} else {
			c.RateLimit.Burst = burst
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSOrigins = SplitList(v)
	}

	t := &c.Telemetry
	setString(&t.Metrics, "METRICS_EXPORTER")
	setString(&t.Traces, "TRACING_EXPORTER")
	setString(&t.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	errs = append(errs,
		setBool(&t.Enabled, "INSTRUMENTATION_ENABLED"),
		setBool(&t.OTLPInsecure, "OTEL_EXPORTER_OTLP_INSECURE"),
		setBool(&t.RuleLabels, "METRICS_RULE_LABELS"),
		setBool(&t.Audit.Enabled, "AUDIT_LOGGING_ENABLED"),
		setBool(&t.Audit.IncludePII, "AUDIT_LOGGING_INCLUDE_PII"),
	)
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid OTEL_TRACES_SAMPLER_ARG %q: %w", v, err))
		} else {
			t.SampleRate = rate
		}
	}

	return errors.Join(errs...)
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database url is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("invalid database driver %q, must be one of: memory, sqlite, postgres", c.Database.Driver)
	}

	if c.Microsoft.Configured() && c.Microsoft.RedirectURI == "" {
		return fmt.Errorf("MS_REDIRECT_URI is required when MS_CLIENT_ID is set")
	}

	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("openai temperature must be between 0 and 2, got %f", c.OpenAI.Temperature)
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}

	return c.Telemetry.validate()
}

func (t TelemetryConfig) validate() error {
	if !t.Enabled {
		return nil
	}
	switch t.Metrics {
	case ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", t.Metrics)
	}
	switch t.Traces {
	case ExporterNone, ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: none, otlp, stdout", t.Traces)
	}
	if (t.Metrics == ExporterOTLP || t.Traces == ExporterOTLP) && t.OTLPEndpoint == "" {
		return fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT is required for the otlp exporter")
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", t.SampleRate)
	}
	return nil
}

// SplitList splits a comma separated value, dropping empty entries.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}
