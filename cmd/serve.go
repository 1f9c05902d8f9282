package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxsorter/internal/api"
	"github.com/teemow/inboxsorter/internal/config"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/server"
	"github.com/teemow/inboxsorter/internal/store"
	"github.com/teemow/inboxsorter/internal/tools/classify_tools"
)

const (
	transportHTTP  = "streamable-http"
	transportStdio = "stdio"

	// mcpEndpoint is where the MCP server is mounted next to the REST API.
	mcpEndpoint = "/mcp"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

type serveOptions struct {
	configPath  string
	debug       bool
	logFormat   string
	transport   string
	httpAddr    string
	corsOrigins string
	readOnly    bool
	metrics     MetricsConfig
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and MCP server",
		Long: `Start the inboxsorter server.

Supports two transport types:
  - streamable-http: REST API under /api, MCP under /mcp and health
    endpoints under /healthz and /readyz (default)
  - stdio: MCP over standard input/output, for local AI assistants

Configuration is read from an optional YAML file (--config) and from
environment variables, which take precedence:
  MS_CLIENT_ID, MS_CLIENT_SECRET, MS_TENANT_ID, MS_REDIRECT_URI
  OPENAI_API_KEY, OPENAI_MODEL, OPENAI_BASE_URL
  DATABASE_DRIVER (memory, sqlite, postgres), DATABASE_URL
  FRONTEND_URL, CORS_ALLOWED_ORIGINS, RATE_LIMIT_RPS, RATE_LIMIT_BURST

Without Microsoft credentials sign-in is disabled; without an OpenAI key
every message is reported as unmatched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadMetricsEnvVars(cmd, &opts.metrics)
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML configuration file")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "json", "Log format: json or text")
	cmd.Flags().StringVar(&opts.transport, "transport", transportHTTP, "Transport type: streamable-http or stdio")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", "", "HTTP listen address (overrides HTTP_ADDR, default :8080)")
	cmd.Flags().StringVar(&opts.corsOrigins, "cors-origins", "", "Comma separated list of allowed CORS origins")
	cmd.Flags().BoolVar(&opts.readOnly, "read-only", false, "Do not register MCP tools that move messages")
	cmd.Flags().BoolVar(&opts.metrics.Enabled, "metrics", true, "Serve Prometheus metrics on a dedicated port")
	cmd.Flags().StringVar(&opts.metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server listen address")

	return cmd
}

// loadMetricsEnvVars applies METRICS_ENABLED and METRICS_ADDR when the
// corresponding flag was not set explicitly.
func loadMetricsEnvVars(cmd *cobra.Command, metrics *MetricsConfig) {
	if !cmd.Flags().Changed("metrics") {
		switch os.Getenv("METRICS_ENABLED") {
		case "true":
			metrics.Enabled = true
		case "false":
			metrics.Enabled = false
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			metrics.Addr = addr
		}
	}
}

// newLogger builds the process logger. Logs always go to w, which is stderr
// in production so the stdio transport keeps stdout for the protocol.
func newLogger(w io.Writer, format string, debug bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	switch format {
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q (supported: json, text)", format)
	}
}

// loadServeConfig reads the configuration and applies explicitly set flags.
func loadServeConfig(cmd *cobra.Command, opts serveOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("http-addr") {
		cfg.HTTPAddr = opts.httpAddr
	}
	if cmd.Flags().Changed("cors-origins") {
		cfg.CORSOrigins = config.SplitList(opts.corsOrigins)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if opts.transport != transportHTTP && opts.transport != transportStdio {
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", opts.transport, transportHTTP, transportStdio)
	}

	logger, err := newLogger(os.Stderr, opts.logFormat, opts.debug)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := loadServeConfig(cmd, opts)
	if err != nil {
		return err
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("instrumentation shutdown failed", slog.Any("error", err))
		}
	}()
	audit := instrumentation.NewAuditLogger(logger, cfg.Telemetry.Audit)

	st, err := store.Open(shutdownCtx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	serverContext, err := server.NewServerContext(shutdownCtx, cfg, st,
		server.WithLogger(logger),
		server.WithInstrumentation(provider.Metrics(), audit),
		server.WithVersion(version),
	)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("server context shutdown failed", slog.Any("error", err))
		}
	}()

	mcpSrv, err := newMCPServer(serverContext, opts.readOnly)
	if err != nil {
		return err
	}

	if opts.transport == transportStdio {
		return runStdioServer(mcpSrv)
	}

	var metricsServer *server.MetricsServer
	if opts.metrics.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(opts.metrics.Addr, provider)
		if err != nil {
			logger.Warn("metrics server disabled", slog.Any("error", err))
			metricsServer = nil
		}
	}

	return runHTTPServer(shutdownCtx, serverContext, mcpSrv, metricsServer, cfg.HTTPAddr)
}

// newMCPServer creates the MCP server with every tool registered.
func newMCPServer(sc *server.ServerContext, readOnly bool) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("inboxsorter", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := classify_tools.RegisterClassifyTools(mcpSrv, sc, readOnly); err != nil {
		return nil, fmt.Errorf("failed to register classification tools: %w", err)
	}
	return mcpSrv, nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// newRootHandler mounts the REST API, the MCP endpoint and the health checks
// on one mux.
func newRootHandler(sc *server.ServerContext, mcpSrv *mcpserver.MCPServer, health *server.HealthChecker) http.Handler {
	mux := http.NewServeMux()
	health.RegisterHealthEndpoints(mux)
	mux.Handle("/api/", api.NewHandler(sc).Routes())
	mux.Handle(mcpEndpoint, mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath(mcpEndpoint),
	))
	return mux
}

func runHTTPServer(ctx context.Context, sc *server.ServerContext, mcpSrv *mcpserver.MCPServer, metricsServer *server.MetricsServer, addr string) error {
	logger := sc.Logger()
	health := server.NewHealthChecker(sc)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           newRootHandler(sc, mcpSrv, health),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		logger.Info("starting HTTP server",
			slog.String("addr", addr),
			slog.String("version", sc.Version()),
			slog.String("mcp_endpoint", mcpEndpoint))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		health.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}
