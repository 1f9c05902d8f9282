package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/inboxsorter/internal/apperr"
	"github.com/teemow/inboxsorter/internal/classify"
	"github.com/teemow/inboxsorter/internal/config"
	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/graph"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/oracle"
	"github.com/teemow/inboxsorter/internal/rules"
	"github.com/teemow/inboxsorter/internal/store"
)

// IdentityProvider is the sign-in side of the Microsoft identity platform.
type IdentityProvider interface {
	credential.IdentityProvider
	AuthCodeURL(state string) string
}

// ServerContext holds the services shared by the HTTP API and the MCP tools.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	config   config.Config
	version  string
	store    store.Store
	graph    *graph.Client
	idp      IdentityProvider
	sessions *credential.Manager
	oracle   *oracle.Adapter
	rules    *rules.Service
	classify *classify.Service

	logger  *slog.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger

	// overrides applied by options before the services are built
	completer   oracle.Completer
	sleeper     classify.Sleeper
	graphClient *http.Client

	mu       sync.RWMutex
	shutdown bool
}

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithLogger sets the logger used by every service.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) {
		if logger != nil {
			sc.logger = logger
		}
	}
}

// WithInstrumentation records metrics and audit events.
func WithInstrumentation(metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) {
		sc.metrics = metrics
		sc.audit = audit
	}
}

// WithVersion sets the version reported by the API.
func WithVersion(version string) Option {
	return func(sc *ServerContext) { sc.version = version }
}

// WithIdentityProvider replaces the provider built from the Microsoft config.
func WithIdentityProvider(idp IdentityProvider) Option {
	return func(sc *ServerContext) { sc.idp = idp }
}

// WithCompleter replaces the OpenAI client built from the config.
func WithCompleter(c oracle.Completer) Option {
	return func(sc *ServerContext) { sc.completer = c }
}

// WithBatchSleeper replaces the pause between classification batches.
func WithBatchSleeper(s classify.Sleeper) Option {
	return func(sc *ServerContext) { sc.sleeper = s }
}

// WithGraphHTTPClient sets the HTTP client for Microsoft Graph calls.
func WithGraphHTTPClient(hc *http.Client) Option {
	return func(sc *ServerContext) { sc.graphClient = hc }
}

// NewServerContext wires the services for cfg on top of st. A missing
// Microsoft or OpenAI configuration is not an error: sign-in then answers
// with ConfigurationMissing and classification degrades to no match.
func NewServerContext(ctx context.Context, cfg config.Config, st store.Store, opts ...Option) (*ServerContext, error) {
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		config:  cfg,
		version: "dev",
		store:   st,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}

	graphOpts := []graph.Option{
		graph.WithBaseURL(cfg.Graph.BaseURL),
		graph.WithLogger(sc.logger),
		graph.WithMetrics(sc.metrics),
	}
	if sc.graphClient != nil {
		graphOpts = append(graphOpts, graph.WithHTTPClient(sc.graphClient))
	} else if cfg.Graph.Timeout > 0 {
		graphOpts = append(graphOpts, graph.WithHTTPClient(&http.Client{Timeout: cfg.Graph.Timeout}))
	}
	g, err := graph.NewClient(graphOpts...)
	if err != nil {
		cancel()
		return nil, err
	}
	sc.graph = g

	if sc.idp == nil {
		p, err := credential.NewProvider(credential.ProviderConfig{
			ClientID:     cfg.Microsoft.ClientID,
			ClientSecret: cfg.Microsoft.ClientSecret,
			TenantID:     cfg.Microsoft.TenantID,
			RedirectURI:  cfg.Microsoft.RedirectURI,
		})
		switch {
		case err == nil:
			sc.idp = p
		case apperr.Is(err, apperr.KindConfigurationMissing):
			sc.logger.Warn("Microsoft OAuth not configured, sign-in is disabled")
		default:
			cancel()
			return nil, err
		}
	}

	managerOpts := []credential.ManagerOption{
		credential.WithLogger(sc.logger),
		credential.WithMetrics(sc.metrics),
		credential.WithProfiles(sc.graph),
	}
	var idp credential.IdentityProvider
	if sc.idp != nil {
		idp = sc.idp
	}
	sc.sessions = credential.NewManager(st, idp, managerOpts...)

	if sc.completer == nil && cfg.OpenAI.APIKey != "" {
		c, err := oracle.NewOpenAIClient(oracle.OpenAIConfig{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			HTTPClient:  &http.Client{Timeout: timeoutOr(cfg.OpenAI.Timeout, oracle.DefaultTimeout)},
		})
		if err != nil {
			cancel()
			return nil, err
		}
		sc.completer = c
	}
	if sc.completer == nil {
		sc.logger.Warn("OpenAI API key not configured, classification will not match any rule")
		sc.oracle = oracle.NewAdapter(nil, sc.logger, sc.metrics)
	} else {
		sc.oracle = oracle.NewAdapter(sc.completer, sc.logger, sc.metrics)
	}

	sc.rules = rules.NewService(st, sc.logger)

	orchestrator := classify.NewOrchestrator(sc.graph, sc.oracle,
		classify.WithSleeper(sc.sleeper),
		classify.WithOrchestratorLogger(sc.logger),
		classify.WithOrchestratorMetrics(sc.metrics))
	engine := classify.NewEngine(sc.graph, st,
		classify.WithEngineLogger(sc.logger),
		classify.WithEngineMetrics(sc.metrics),
		classify.WithAuditLogger(sc.audit))
	sc.classify = classify.NewService(sc.rules, orchestrator, engine, st, sc.logger, sc.metrics)

	return sc, nil
}

func timeoutOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Context returns the server context. It is cancelled on Shutdown.
func (sc *ServerContext) Context() context.Context { return sc.ctx }

// Config returns the configuration the context was built from.
func (sc *ServerContext) Config() config.Config { return sc.config }

// Version returns the reported service version.
func (sc *ServerContext) Version() string { return sc.version }

// Store returns the persistent store.
func (sc *ServerContext) Store() store.Store { return sc.store }

// Graph returns the Microsoft Graph client.
func (sc *ServerContext) Graph() *graph.Client { return sc.graph }

// Sessions returns the token lifecycle manager.
func (sc *ServerContext) Sessions() *credential.Manager { return sc.sessions }

// Rules returns the rule service.
func (sc *ServerContext) Rules() *rules.Service { return sc.rules }

// Classifier returns the classification service.
func (sc *ServerContext) Classifier() *classify.Service { return sc.classify }

// Logger returns the logger.
func (sc *ServerContext) Logger() *slog.Logger { return sc.logger }

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics { return sc.metrics }

// AuditLogger returns the audit logger, which may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger { return sc.audit }

// OracleConfigured reports whether a language model is available.
func (sc *ServerContext) OracleConfigured() bool { return sc.oracle.Configured() }

// AuthCodeURL returns the sign-in URL for state, or ConfigurationMissing
// when no identity provider is configured.
func (sc *ServerContext) AuthCodeURL(state string) (string, error) {
	if sc.idp == nil {
		return "", apperr.ConfigurationMissing("Microsoft OAuth not configured")
	}
	return sc.idp.AuthCodeURL(state), nil
}

// Session resolves a caller token, refreshing it when expired.
func (sc *ServerContext) Session(ctx context.Context, token string) (credential.Session, error) {
	return sc.sessions.ResolveSession(ctx, token)
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the context and closes the store.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	if sc.store != nil {
		return sc.store.Close()
	}
	return nil
}
