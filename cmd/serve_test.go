package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxsorter/internal/config"
	"github.com/teemow/inboxsorter/internal/server"
	"github.com/teemow/inboxsorter/internal/store"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		debug     bool
		wantDebug bool
		wantJSON  bool
		wantErr   bool
	}{
		{name: "json default", format: "", wantJSON: true},
		{name: "json debug", format: "json", debug: true, wantJSON: true, wantDebug: true},
		{name: "text", format: "text"},
		{name: "unknown", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(&buf, tt.format, tt.debug)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			logger.Debug("debug line")
			logger.Info("info line")

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug line")))
			assert.Contains(t, buf.String(), "info line")
			assert.Equal(t, tt.wantJSON, bytes.HasPrefix(buf.Bytes(), []byte("{")))
		})
	}
}

func TestLoadMetricsEnvVars(t *testing.T) {
	t.Run("env applies when flags are unset", func(t *testing.T) {
		t.Setenv("METRICS_ENABLED", "false")
		t.Setenv("METRICS_ADDR", ":9191")

		cmd := newServeCmd()
		metrics := MetricsConfig{Enabled: true, Addr: server.DefaultMetricsAddr}
		loadMetricsEnvVars(cmd, &metrics)
		assert.Equal(t, MetricsConfig{Enabled: false, Addr: ":9191"}, metrics)
	})

	t.Run("flags win over env", func(t *testing.T) {
		t.Setenv("METRICS_ENABLED", "false")
		t.Setenv("METRICS_ADDR", ":9191")

		cmd := newServeCmd()
		require.NoError(t, cmd.Flags().Set("metrics", "true"))
		require.NoError(t, cmd.Flags().Set("metrics-addr", ":9292"))

		metrics := MetricsConfig{Enabled: true, Addr: ":9292"}
		loadMetricsEnvVars(cmd, &metrics)
		assert.Equal(t, MetricsConfig{Enabled: true, Addr: ":9292"}, metrics)
	})
}

func TestLoadServeConfig(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("HTTP_ADDR", ":7000")

	cmd := newServeCmd()
	require.NoError(t, cmd.Flags().Set("cors-origins", "http://a.example, http://b.example"))

	cfg, err := loadServeConfig(cmd, serveOptions{corsOrigins: "http://a.example, http://b.example"})
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)

	require.NoError(t, cmd.Flags().Set("http-addr", ":7001"))
	cfg, err = loadServeConfig(cmd, serveOptions{httpAddr: ":7001"})
	require.NoError(t, err)
	assert.Equal(t, ":7001", cfg.HTTPAddr)

	t.Setenv("DATABASE_DRIVER", "sqlite")
	_, err = loadServeConfig(newServeCmd(), serveOptions{})
	assert.ErrorContains(t, err, "database url is required")
}

func TestRootHandler(t *testing.T) {
	sc, err := server.NewServerContext(context.Background(), config.Default(), store.NewMemory(), server.WithVersion("9.9.9"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	mcpSrv, err := newMCPServer(sc, false)
	require.NoError(t, err)
	h := newRootHandler(sc, mcpSrv, server.NewHealthChecker(sc))

	tests := []struct {
		path string
		want int
	}{
		{path: "/healthz", want: http.StatusOK},
		{path: "/readyz", want: http.StatusOK},
		{path: "/api/health", want: http.StatusOK},
		{path: "/api/", want: http.StatusOK},
		{path: "/api/rules", want: http.StatusUnauthorized},
		{path: "/nowhere", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/", nil))
	var root map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &root))
	assert.Equal(t, "9.9.9", root["version"])
}

func TestNewMCPServer(t *testing.T) {
	sc, err := server.NewServerContext(context.Background(), config.Default(), store.NewMemory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	full, err := newMCPServer(sc, false)
	require.NoError(t, err)
	assert.Len(t, full.ListTools(), 5)

	readOnly, err := newMCPServer(sc, true)
	require.NoError(t, err)
	assert.Len(t, readOnly.ListTools(), 4)
	assert.NotContains(t, readOnly.ListTools(), "classify_execute")
}

func TestGenerateToolsMarkdown(t *testing.T) {
	tools := []mcp.Tool{
		mcp.NewTool("rules_list",
			mcp.WithDescription("List rules"),
			mcp.WithString("token", mcp.Required(), mcp.Description("Access token")),
		),
		mcp.NewTool("classify_history",
			mcp.WithDescription("List history"),
			mcp.WithString("token", mcp.Required(), mcp.Description("Access token")),
			mcp.WithNumber("limit", mcp.Description("Number of records")),
		),
		mcp.NewTool("classify_execute", mcp.WithDescription("Move messages")),
	}

	md := generateToolsMarkdown(tools, map[string]bool{"classify_execute": true})
	assert.Contains(t, md, "- [Classification](#classification)")
	assert.Contains(t, md, "- [Rules](#rules)")
	assert.Contains(t, md, "### classify_history\n\nList history\n\n")
	assert.Contains(t, md, "| `limit` | number | no | Number of records |\n")
	assert.Contains(t, md, "| `token` | string | yes | Access token |\n")
	assert.Less(t, bytes.Index([]byte(md), []byte("## Classification")), bytes.Index([]byte(md), []byte("## Rules")))

	execute := md[strings.Index(md, "### classify_execute"):strings.Index(md, "### classify_history")]
	assert.Contains(t, execute, "Not registered with `--read-only`")
	assert.Equal(t, 1, strings.Count(md, "Moves messages."))
}

func TestToolsReference(t *testing.T) {
	md, err := toolsReference()
	require.NoError(t, err)

	assert.Contains(t, md, "### rules_list")
	assert.Contains(t, md, "### classify_execute")
	assert.Equal(t, 1, strings.Count(md, "Moves messages."), "only classify_execute is hidden by --read-only")
}

func TestToolGroup(t *testing.T) {
	assert.Equal(t, "Classification", toolGroup("classify_execute"))
	assert.Equal(t, "Rules", toolGroup("rules_list"))
	assert.Equal(t, "Other", toolGroup("ping"))
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "inboxsorter version "+version+"\n", out.String())
}

func TestRunMigrate(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		var out bytes.Buffer
		cmd := newMigrateCmd()
		cmd.SetOut(&out)

		db := config.DatabaseConfig{Driver: config.DriverSQLite, URL: filepath.Join(t.TempDir(), "test.db")}
		require.NoError(t, runMigrate(context.Background(), cmd, db))
		assert.Equal(t, "database schema is at version 1\n", out.String())

		// Running twice is a no-op.
		out.Reset()
		require.NoError(t, runMigrate(context.Background(), cmd, db))
		assert.Equal(t, "database schema is at version 1\n", out.String())
	})

	t.Run("memory", func(t *testing.T) {
		err := runMigrate(context.Background(), newMigrateCmd(), config.DatabaseConfig{Driver: config.DriverMemory})
		assert.ErrorContains(t, err, "requires a SQL database driver")
	})
}
