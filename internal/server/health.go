package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const storePingTimeout = 2 * time.Second

// HealthChecker answers the liveness and readiness checks.
type HealthChecker struct {
	sc       *ServerContext
	draining atomic.Bool
}

// NewHealthChecker returns a checker for sc. A nil sc only reports liveness
// and the draining flag.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	return &HealthChecker{sc: sc}
}

// SetReady flips readiness; the server clears it before draining.
func (h *HealthChecker) SetReady(ready bool) {
	h.draining.Store(!ready)
}

// Readiness is the /readyz body. Checks fail readiness; Features only report
// which optional integrations this instance was configured with.
type Readiness struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Checks   map[string]string `json:"checks"`
	Features map[string]bool   `json:"features,omitempty"`
}

// RegisterHealthEndpoints mounts /healthz and /readyz.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("GET /healthz", h.LivenessHandler())
	mux.Handle("GET /readyz", h.ReadinessHandler())
}

// LivenessHandler succeeds while the process can serve HTTP at all.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// ReadinessHandler fails while draining, after shutdown, or when the store
// does not answer a ping.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := Readiness{Status: "ok", Checks: h.checks(r.Context())}
		for _, result := range resp.Checks {
			if result != "ok" {
				resp.Status = "not ready"
			}
		}
		if h.sc != nil {
			resp.Version = h.sc.Version()
			resp.Features = map[string]bool{
				"sign_in": h.sc.idp != nil,
				"oracle":  h.sc.OracleConfigured(),
			}
		}

		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeHealth(w, code, resp)
	})
}

func (h *HealthChecker) checks(ctx context.Context) map[string]string {
	checks := map[string]string{"ready": "ok"}
	if h.draining.Load() {
		checks["ready"] = "draining"
	}
	if h.sc == nil {
		return checks
	}

	checks["shutdown"] = "ok"
	if h.sc.IsShutdown() {
		checks["shutdown"] = "shutting down"
	}
	if st := h.sc.Store(); st != nil {
		ctx, cancel := context.WithTimeout(ctx, storePingTimeout)
		defer cancel()
		checks["store"] = "ok"
		if err := st.Ping(ctx); err != nil {
			checks["store"] = err.Error()
		}
	}
	return checks
}

func writeHealth(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
