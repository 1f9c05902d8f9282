package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/teemow/inboxsorter/internal/config"
)

// ServiceName identifies the service in telemetry resources.
const ServiceName = "inboxsorter"

// Resource attribute keys describing how this instance is deployed.
const (
	attrStoreDriver   = attribute.Key("inboxsorter.store.driver")
	attrGraphHost     = attribute.Key("inboxsorter.graph.host")
	attrSignIn        = attribute.Key("inboxsorter.sign_in.enabled")
	attrOracleEnabled = attribute.Key("inboxsorter.oracle.enabled")
	attrOracleModel   = attribute.Key("inboxsorter.oracle.model")
)

// Provider owns the meter and tracer providers of the process.
type Provider struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	registry       *promclient.Registry
	metrics        *Metrics
}

// NewProvider builds the telemetry pipeline selected by cfg.Telemetry and
// installs it globally. When telemetry is disabled the provider hands out a
// no-op metrics recorder and leaves the global providers alone.
func NewProvider(ctx context.Context, cfg config.Config, version string) (*Provider, error) {
	tel := cfg.Telemetry
	if !tel.Enabled {
		return &Provider{metrics: &Metrics{}}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg, version)...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	reader, registry, err := newMetricReader(ctx, tel)
	if err != nil {
		return nil, err
	}
	spans, err := newSpanExporter(ctx, tel)
	if err != nil {
		return nil, errors.Join(err, reader.Shutdown(ctx))
	}

	p := &Provider{
		registry:      registry,
		meterProvider: metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(reader)),
	}
	if spans == nil {
		p.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.NeverSample()),
		)
	} else {
		p.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(spans),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tel.SampleRate))),
		)
	}

	p.metrics, err = NewMetrics(p.meterProvider.Meter(ServiceName), tel.RuleLabels)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create metrics recorder: %w", err), p.Shutdown(ctx))
	}

	otel.SetMeterProvider(p.meterProvider)
	otel.SetTracerProvider(p.tracerProvider)
	return p, nil
}

// resourceAttributes describes the instance: which store backs it, which
// Graph endpoint it talks to and whether sign-in and the oracle are usable.
// Secrets never end up here.
func resourceAttributes(cfg config.Config, version string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(version),
		attrStoreDriver.String(cfg.Database.Driver),
		attrSignIn.Bool(cfg.Microsoft.Configured()),
		attrOracleEnabled.Bool(cfg.OpenAI.APIKey != ""),
	}
	if hostname, err := os.Hostname(); err == nil {
		attrs = append(attrs, semconv.ServiceInstanceID(hostname))
	}
	if u, err := url.Parse(cfg.Graph.BaseURL); err == nil && u.Host != "" {
		attrs = append(attrs, attrGraphHost.String(u.Host))
	}
	if cfg.OpenAI.APIKey != "" {
		attrs = append(attrs, attrOracleModel.String(cfg.OpenAI.Model))
	}
	return attrs
}

// newMetricReader returns the reader for the configured metrics exporter.
// The Prometheus reader gets a private registry so several providers can
// live in one process.
func newMetricReader(ctx context.Context, tel config.TelemetryConfig) (metric.Reader, *promclient.Registry, error) {
	switch tel.Metrics {
	case config.ExporterPrometheus:
		registry := promclient.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		return exporter, registry, nil

	case config.ExporterOTLP:
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(tel.OTLPEndpoint)}
		if tel.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		return metric.NewPeriodicReader(exporter), nil, nil

	case config.ExporterStdout:
		slog.Warn("stdout metrics exporter enabled, use for development only", "component", "instrumentation")
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		return metric.NewPeriodicReader(exporter), nil, nil
	}
	return nil, nil, fmt.Errorf("unsupported metrics exporter: %q", tel.Metrics)
}

// newSpanExporter returns nil when tracing is off.
func newSpanExporter(ctx context.Context, tel config.TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch tel.Traces {
	case config.ExporterNone, "":
		return nil, nil

	case config.ExporterOTLP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(tel.OTLPEndpoint)}
		if tel.OTLPInsecure {
			// Spans carry rule and folder names.
			slog.Warn("OTLP traces sent without TLS", "component", "instrumentation", "endpoint", tel.OTLPEndpoint)
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		return exporter, nil

	case config.ExporterStdout:
		slog.Warn("stdout trace exporter enabled, use for development only", "component", "instrumentation")
		exporter, err := stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		return exporter, nil
	}
	return nil, fmt.Errorf("unsupported tracing exporter: %q", tel.Traces)
}

// Metrics returns the recorder. It is never nil.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Enabled reports whether telemetry is being exported.
func (p *Provider) Enabled() bool {
	return p.meterProvider != nil
}

// PrometheusHandler serves the scrape endpoint, or returns nil when metrics
// are not exported through Prometheus.
func (p *Provider) PrometheusHandler() http.Handler {
	if p.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Shutdown flushes pending telemetry.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
