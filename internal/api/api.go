package api

import (
	"log/slog"
	"net/http"

	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/server"
)

// ServiceName is reported by the root endpoint.
const ServiceName = "Outlook AI Classifier API"

// Handler serves the REST API.
type Handler struct {
	sc          *server.ServerContext
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	limiter     *clientLimiter
	corsOrigins []string
	newState    func() string
}

// NewHandler creates the API handler for sc. Rate limiting and CORS follow
// the server configuration; a zero requests-per-second disables limiting.
func NewHandler(sc *server.ServerContext) *Handler {
	cfg := sc.Config()

	h := &Handler{
		sc:          sc,
		logger:      sc.Logger().With("component", "api"),
		metrics:     sc.Metrics(),
		corsOrigins: cfg.CORSOrigins,
		newState:    newState,
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		h.limiter = newClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go h.limiter.run(sc.Context())
	}
	return h
}

// Routes returns the API routes wrapped in the middleware chain.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/{$}", h.root)
	mux.HandleFunc("GET /api/health", h.health)

	mux.HandleFunc("GET /api/auth/login", h.login)
	mux.HandleFunc("GET /api/auth/callback", h.callback)
	mux.HandleFunc("GET /api/auth/me", h.withSession(h.me))
	mux.HandleFunc("POST /api/auth/logout", h.logout)

	mux.HandleFunc("GET /api/mail/folders", h.withSession(h.listFolders))
	mux.HandleFunc("GET /api/mail/folders/{id}/children", h.withSession(h.childFolders))
	mux.HandleFunc("GET /api/mail/messages", h.withSession(h.listMessages))
	mux.HandleFunc("GET /api/mail/messages/{id}", h.withSession(h.getMessage))
	mux.HandleFunc("POST /api/mail/messages/{id}/move", h.withSession(h.moveMessage))

	for _, prefix := range []string{"/api/rules", "/api/rules/{$}"} {
		mux.HandleFunc("GET "+prefix, h.withSession(h.listRules))
		mux.HandleFunc("POST "+prefix, h.withSession(h.createRule))
	}
	mux.HandleFunc("PUT /api/rules/{id}", h.withSession(h.updateRule))
	mux.HandleFunc("DELETE /api/rules/{id}", h.withSession(h.deleteRule))
	mux.HandleFunc("PATCH /api/rules/{id}/toggle", h.withSession(h.toggleRule))

	mux.HandleFunc("POST /api/classify/analyze", h.withSession(h.analyze))
	mux.HandleFunc("POST /api/classify/execute", h.withSession(h.execute))
	mux.HandleFunc("GET /api/classify/history", h.withSession(h.history))
	mux.HandleFunc("GET /api/classify/stats", h.withSession(h.stats))

	return h.observe(h.cors(h.rateLimit(mux)))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session credential.Session)

// withSession resolves the caller token before calling next.
func (h *Handler) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := h.sc.Session(r.Context(), accessToken(r))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next(w, r, session)
	}
}

type rootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{Message: ServiceName, Version: h.sc.Version()})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
