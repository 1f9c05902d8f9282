package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/teemow/inboxsorter/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is where Prometheus scrapes unless --metrics-addr is set.
	DefaultMetricsAddr = ":9090"

	// DefaultShutdownTimeout bounds graceful shutdown of every listener.
	DefaultShutdownTimeout = 30 * time.Second
)

// MetricsServer serves /metrics on its own port so scrapes never share a
// listener with mailbox traffic.
type MetricsServer struct {
	srv *http.Server
}

// NewMetricsServer fails unless the provider exports through Prometheus.
func NewMetricsServer(addr string, provider *instrumentation.Provider) (*MetricsServer, error) {
	if provider == nil || !provider.Enabled() {
		return nil, errors.New("telemetry is disabled")
	}
	scrape := provider.PrometheusHandler()
	if scrape == nil {
		return nil, errors.New("metrics exporter is not prometheus")
	}
	if addr == "" {
		addr = DefaultMetricsAddr
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", scrape)
	return &MetricsServer{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}, nil
}

// Addr returns the listen address.
func (s *MetricsServer) Addr() string { return s.srv.Addr }

// Handler returns the scrape mux.
func (s *MetricsServer) Handler() http.Handler { return s.srv.Handler }

// Start blocks until the server stops.
func (s *MetricsServer) Start() error {
	slog.Info("starting metrics server", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops the server. It is safe to call before Start.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
