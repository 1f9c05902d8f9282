package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxsorter/internal/config"
	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/server"
	"github.com/teemow/inboxsorter/internal/store"
)

const testToken = "tok-1"

type fakeCompleter struct {
	reply string
}

func (f fakeCompleter) Complete(context.Context, string, string) (string, error) {
	return f.reply, nil
}

func (fakeCompleter) Model() string { return "fake" }

type fakeIdentityProvider struct{}

func (fakeIdentityProvider) AuthCodeURL(state string) string {
	return "https://login.example/authorize?state=" + state
}

func (fakeIdentityProvider) Exchange(_ context.Context, code string) (credential.Grant, error) {
	if code == "bad" {
		return credential.Grant{}, errors.New("invalid_grant")
	}
	return credential.Grant{AccessToken: "new-token", RefreshToken: "refresh", Lifetime: time.Hour}, nil
}

func (fakeIdentityProvider) Refresh(context.Context, string) (credential.Grant, error) {
	return credential.Grant{}, errors.New("refresh not supported")
}

// fakeGraph serves the subset of Microsoft Graph the API touches.
type fakeGraph struct {
	mu    sync.Mutex
	moves map[string]string
}

func newFakeGraph(t *testing.T) (*fakeGraph, *httptest.Server) {
	t.Helper()
	g := &fakeGraph{moves: make(map[string]string)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"id":"user-2","displayName":"Ada Lovelace","mail":"ada@example.com"}`)
	})
	mux.HandleFunc("GET /me/mailFolders", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"value":[{"id":"inbox-id","displayName":"Inbox","childFolderCount":0,"unreadItemCount":3,"totalItemCount":10}]}`)
	})
	mux.HandleFunc("GET /me/mailFolders/{id}/messages", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"value":[
			{"id":"m1","subject":"","from":{"emailAddress":{"name":"Billing","address":"billing@example.com"}},"receivedDateTime":"2026-01-02T03:04:05Z","bodyPreview":"Your invoice","isRead":false,"parentFolderId":"inbox-id"},
			{"id":"m2","subject":"Flagged","flag":{"flagStatus":"flagged"}}
		]}`)
	})
	mux.HandleFunc("GET /me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      r.PathValue("id"),
			"subject": "Invoice " + r.PathValue("id"),
			"body":    map[string]string{"contentType": "html", "content": "<p>Amount due</p>"},
			"from":    map[string]any{"emailAddress": map[string]string{"name": "Billing", "address": "billing@example.com"}},
		})
	})
	mux.HandleFunc("POST /me/messages/{id}/move", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DestinationID string `json:"destinationId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		g.mu.Lock()
		g.moves[r.PathValue("id")] = body.DestinationID
		g.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "moved-" + r.PathValue("id"), "parentFolderId": body.DestinationID})
	})

	srv := httptest.NewServer(jsonResponses(mux))
	t.Cleanup(srv.Close)
	return g, srv
}

// jsonResponses marks every fake Graph response as JSON.
func jsonResponses(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (g *fakeGraph) movedTo(id string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.moves[id]
}

type testEnv struct {
	handler http.Handler
	graph   *fakeGraph
	store   *store.Memory
}

func newTestEnv(t *testing.T, mutate func(*config.Config), opts ...server.Option) *testEnv {
	t.Helper()
	g, srv := newFakeGraph(t)

	cfg := config.Default()
	cfg.Graph.BaseURL = srv.URL
	cfg.RateLimit.RequestsPerSecond = 0
	if mutate != nil {
		mutate(&cfg)
	}

	st := store.NewMemory()
	require.NoError(t, st.UpsertCredential(context.Background(), credential.Credential{
		UserID:       "user-1",
		Email:        "grace@example.com",
		DisplayName:  "Grace",
		AccessToken:  testToken,
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
		CreatedAt:    time.Now(),
	}))

	opts = append([]server.Option{
		server.WithVersion("1.2.3"),
		server.WithCompleter(fakeCompleter{reply: `{"rule_name": "Invoices", "confidence": 0.9, "reason": "billing"}`}),
		server.WithBatchSleeper(func(context.Context, time.Duration) error { return nil }),
	}, opts...)
	sc, err := server.NewServerContext(context.Background(), cfg, st, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	return &testEnv{handler: NewHandler(sc).Routes(), graph: g, store: st}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"message": ServiceName, "version": "1.2.3"}, decode[map[string]string](t, rec))

	rec = env.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestSessionToken(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{name: "bearer header", target: "/api/auth/me", header: "Bearer " + testToken, want: http.StatusOK},
		{name: "query parameter", target: "/api/auth/me?token=" + testToken, want: http.StatusOK},
		{name: "missing token", target: "/api/auth/me", want: http.StatusUnauthorized},
		{name: "unknown token", target: "/api/auth/me", header: "Bearer nope", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, map[string]string{
					"user_id":      "user-1",
					"email":        "grace@example.com",
					"display_name": "Grace",
				}, decode[map[string]string](t, rec))
			} else {
				assert.Contains(t, decode[map[string]string](t, rec), "detail")
			}
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out successfully", decode[map[string]string](t, rec)["message"])

	rec = env.do(t, http.MethodGet, "/api/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(t, http.MethodGet, "/api/auth/login", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "Microsoft OAuth not configured", decode[map[string]string](t, rec)["detail"])
	})

	t.Run("configured", func(t *testing.T) {
		env := newTestEnv(t, nil, server.WithIdentityProvider(fakeIdentityProvider{}))
		rec := env.do(t, http.MethodGet, "/api/auth/login", "")
		require.Equal(t, http.StatusOK, rec.Code)
		authURL := decode[map[string]string](t, rec)["auth_url"]
		assert.True(t, strings.HasPrefix(authURL, "https://login.example/authorize?state="))
		assert.Greater(t, len(authURL), len("https://login.example/authorize?state="))
	})
}

func TestCallback(t *testing.T) {
	env := newTestEnv(t, nil, server.WithIdentityProvider(fakeIdentityProvider{}))

	tests := []struct {
		name         string
		query        string
		wantStatus   int
		wantLocation string
		wantDetail   string
	}{
		{
			name:         "provider error with description",
			query:        "error=access_denied&error_description=User+cancelled",
			wantStatus:   http.StatusFound,
			wantLocation: "http://localhost:3000/login?error=User+cancelled",
		},
		{
			name:         "provider error without description",
			query:        "error=access_denied",
			wantStatus:   http.StatusFound,
			wantLocation: "http://localhost:3000/login?error=access_denied",
		},
		{
			name:       "missing code",
			query:      "",
			wantStatus: http.StatusBadRequest,
			wantDetail: "Authorization code missing",
		},
		{
			name:       "exchange failure",
			query:      "code=bad",
			wantStatus: http.StatusBadRequest,
			wantDetail: "Failed to exchange code for token",
		},
		{
			name:         "success",
			query:        "code=good&state=abc",
			wantStatus:   http.StatusFound,
			wantLocation: "http://localhost:3000?token=new-token&user=Ada+Lovelace",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/auth/callback?"+tt.query, "")
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			}
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, decode[map[string]string](t, rec)["detail"])
			}
		})
	}

	cred, err := env.store.CredentialByToken(context.Background(), "new-token")
	require.NoError(t, err)
	assert.Equal(t, "user-2", cred.UserID)
	assert.Equal(t, "ada@example.com", cred.Email)
}

func TestMail(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("folders", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/mail/folders", "")
		require.Equal(t, http.StatusOK, rec.Code)
		folders := decode[[]map[string]any](t, rec)
		require.Len(t, folders, 1)
		assert.Equal(t, "Inbox", folders[0]["display_name"])
		assert.Nil(t, folders[0]["parent_folder_id"])
		assert.EqualValues(t, 3, folders[0]["unread_item_count"])
	})

	t.Run("messages exclude flagged by default", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/mail/messages?folder_id=inbox-id", "")
		require.Equal(t, http.StatusOK, rec.Code)
		previews := decode[[]messagePreview](t, rec)
		require.Len(t, previews, 1)
		assert.Equal(t, messagePreview{
			ID:          "m1",
			Subject:     "(No Subject)",
			FromAddress: "billing@example.com",
			FromName:    "Billing",
			ReceivedAt:  "2026-01-02T03:04:05Z",
			BodyPreview: "Your invoice",
			FolderID:    "inbox-id",
		}, previews[0])
	})

	t.Run("messages including flagged", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/mail/messages?exclude_flagged=false", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]messagePreview](t, rec), 2)
	})

	t.Run("invalid query", func(t *testing.T) {
		for _, q := range []string{"top=abc", "top=0", "filter_read=maybe", "exclude_flagged=perhaps", "top=501"} {
			rec := env.do(t, http.MethodGet, "/api/mail/messages?"+q, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})

	t.Run("move requires destination", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/mail/messages/m1/move", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("move", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/mail/messages/m1/move?destination_folder_id=archive", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "archive", env.graph.movedTo("m1"))
	})
}

func TestRulesCRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/rules", `{"name":"Invoices","target_folder_id":"f-inv","target_folder_name":"Invoices","keywords":["invoice"," "],"ai_prompt":"bills"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[map[string]any](t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, true, created["is_active"])
	assert.Equal(t, []any{"invoice"}, created["keywords"])

	rec = env.do(t, http.MethodPut, "/api/rules/"+id, `{"name":"Bills","target_folder_id":"f-bills"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bills", decode[map[string]any](t, rec)["name"])

	rec = env.do(t, http.MethodPatch, "/api/rules/"+id+"/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"is_active":false}`, rec.Body.String())

	rec = env.do(t, http.MethodDelete, "/api/rules/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Rule deleted successfully", decode[map[string]string](t, rec)["message"])

	for _, tc := range []struct{ method, target, body string }{
		{http.MethodPut, "/api/rules/" + id, `{"name":"x","target_folder_id":"y"}`},
		{http.MethodDelete, "/api/rules/" + id, ""},
		{http.MethodPatch, "/api/rules/" + id + "/toggle", ""},
	} {
		rec := env.do(t, tc.method, tc.target, tc.body)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.method)
		assert.Equal(t, "Rule not found", decode[map[string]string](t, rec)["detail"])
	}
}

func TestRulesValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing name", body: `{"target_folder_id":"f"}`},
		{name: "missing folder", body: `{"name":"n"}`},
		{name: "not json", body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/rules", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestClassify(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/classify/analyze", `{"message_ids":["m1"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No active classification rules found", decode[map[string]string](t, rec)["detail"])

	rec = env.do(t, http.MethodPost, "/api/rules", `{"name":"Invoices","target_folder_id":"f-inv","target_folder_name":"Invoices"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("analyze does not move", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/classify/analyze", `{"message_ids":["m1"]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		outcomes := decode[[]map[string]any](t, rec)
		require.Len(t, outcomes, 1)
		assert.Equal(t, "Invoices", outcomes[0]["rule_applied"])
		assert.Equal(t, "f-inv", outcomes[0]["suggested_folder"])
		assert.Equal(t, false, outcomes[0]["moved"])
		assert.Empty(t, env.graph.movedTo("m1"))
	})

	t.Run("dry run does not move", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/classify/execute", `{"message_ids":["m1"],"dry_run":true}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, env.graph.movedTo("m1"))
	})

	t.Run("execute moves and records", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/classify/execute", `{"message_ids":["m1","m2"]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		outcomes := decode[[]map[string]any](t, rec)
		require.Len(t, outcomes, 2)
		for _, o := range outcomes {
			assert.Equal(t, true, o["moved"])
		}
		assert.Equal(t, "f-inv", env.graph.movedTo("m1"))
		assert.Equal(t, "f-inv", env.graph.movedTo("m2"))
	})

	t.Run("history", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/classify/history?limit=1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		records := decode[[]map[string]any](t, rec)
		require.Len(t, records, 1)
		assert.Equal(t, "Invoices", records[0]["rule_name"])
		assert.Equal(t, "inbox", records[0]["original_folder"])

		rec = env.do(t, http.MethodGet, "/api/classify/history?limit=ten", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stats", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/classify/stats", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{
			"total_classified": 2,
			"by_rule": [{"rule": "Invoices", "count": 2}],
			"by_folder": [{"folder": "Invoices", "count": 2}]
		}`, rec.Body.String())
	})
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.RateLimit.RequestsPerSecond = 0.001
		cfg.RateLimit.Burst = 2
	})

	for range 2 {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/health", "").Code)
	}
	rec := env.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Rate limit exceeded. Please try again later.", decode[map[string]string](t, rec)["detail"])

	// A different client keeps its own budget.
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "198.51.100.7:4321"
	other := httptest.NewRecorder()
	env.handler.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestCORS(t *testing.T) {
	t.Run("wildcard preflight", func(t *testing.T) {
		env := newTestEnv(t, nil)
		req := httptest.NewRequest(http.MethodOptions, "/api/rules", nil)
		req.Header.Set("Origin", "http://app.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
	})

	t.Run("configured origins", func(t *testing.T) {
		env := newTestEnv(t, func(cfg *config.Config) {
			cfg.CORSOrigins = []string{"http://app.example"}
		})

		tests := []struct {
			origin string
			want   string
		}{
			{origin: "http://app.example", want: "http://app.example"},
			{origin: "http://evil.example", want: ""},
		}
		for _, tt := range tests {
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"), tt.origin)
		}
	})
}

func TestAccessToken(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{name: "query wins", target: "/?token=q", header: "Bearer h", want: "q"},
		{name: "bearer", target: "/", header: "Bearer h", want: "h"},
		{name: "lowercase scheme", target: "/", header: "bearer h", want: "h"},
		{name: "other scheme", target: "/", header: "Basic abc", want: ""},
		{name: "none", target: "/", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, accessToken(req))
		})
	}
}

func TestRoutePattern(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/rules/abc", nil)
	assert.Equal(t, "unmatched", routePattern(req))

	req.Pattern = "PUT /api/rules/{id}"
	assert.Equal(t, "/api/rules/{id}", routePattern(req))
}
