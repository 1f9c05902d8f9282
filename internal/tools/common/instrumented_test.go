package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/teemow/inboxsorter/internal/config"
	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/server"
	"github.com/teemow/inboxsorter/internal/store"
)

func newTestContext(t *testing.T, audit *bytes.Buffer) *server.ServerContext {
	t.Helper()
	st := store.NewMemory()
	require.NoError(t, st.UpsertCredential(context.Background(), credential.Credential{
		UserID:      "user-1",
		Email:       "grace@example.com",
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
		CreatedAt:   time.Now(),
	}))

	metrics, err := instrumentation.NewMetrics(noop.NewMeterProvider().Meter("test"), false)
	require.NoError(t, err)
	auditLogger := instrumentation.NewAuditLogger(
		slog.New(slog.NewJSONHandler(audit, nil)),
		config.AuditConfig{Enabled: true},
	)

	sc, err := server.NewServerContext(context.Background(), config.Default(), st,
		server.WithInstrumentation(metrics, auditLogger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func request(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestInstrumentedToolHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var audit bytes.Buffer
		sc := newTestContext(t, &audit)

		var got credential.Session
		wrapped := InstrumentedToolHandler("test_tool", "analyze", sc,
			func(_ context.Context, _ mcp.CallToolRequest, session credential.Session) (*mcp.CallToolResult, error) {
				got = session
				return mcp.NewToolResultText("ok"), nil
			})

		result, err := wrapped(context.Background(), request(map[string]any{"token": "tok"}))
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, "user-1", got.UserID)

		assert.Contains(t, audit.String(), `"msg":"tool_executed"`)
		assert.Contains(t, audit.String(), `"user_domain":"example.com"`)
		assert.Contains(t, audit.String(), `"operation":"analyze"`)
		assert.NotContains(t, audit.String(), "grace@")
	})

	t.Run("unknown token", func(t *testing.T) {
		var audit bytes.Buffer
		sc := newTestContext(t, &audit)

		called := false
		wrapped := InstrumentedToolHandler("test_tool", "analyze", sc,
			func(context.Context, mcp.CallToolRequest, credential.Session) (*mcp.CallToolResult, error) {
				called = true
				return nil, nil
			})

		result, err := wrapped(context.Background(), request(map[string]any{"token": "nope"}))
		require.NoError(t, err)
		assert.False(t, called)
		require.True(t, result.IsError)
		assert.Contains(t, audit.String(), `"msg":"tool_failed"`)
	})

	t.Run("handler error", func(t *testing.T) {
		var audit bytes.Buffer
		sc := newTestContext(t, &audit)

		boom := errors.New("boom")
		wrapped := InstrumentedToolHandler("test_tool", "stats", sc,
			func(context.Context, mcp.CallToolRequest, credential.Session) (*mcp.CallToolResult, error) {
				return nil, boom
			})

		_, err := wrapped(context.Background(), request(map[string]any{"token": "tok"}))
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, audit.String(), `"error":"boom"`)
	})

	t.Run("error result", func(t *testing.T) {
		var audit bytes.Buffer
		sc := newTestContext(t, &audit)

		wrapped := InstrumentedToolHandler("test_tool", "stats", sc,
			func(context.Context, mcp.CallToolRequest, credential.Session) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultError("error message"), nil
			})

		result, err := wrapped(context.Background(), request(map[string]any{"token": "tok"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, audit.String(), `"success":false`)
	})
}

func TestErrorResult(t *testing.T) {
	result := ErrorResult("list rules", errors.New("sql: connection refused"))
	require.True(t, result.IsError)
	assert.Equal(t, "Failed to list rules: internal error", resultText(t, result))
}

func TestInstrumentedToolHandler_RegistersWithMCPServer(t *testing.T) {
	var audit bytes.Buffer
	sc := newTestContext(t, &audit)

	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))
	s.AddTool(mcp.NewTool("echo_tool"), InstrumentedToolHandler("echo_tool", "analyze", sc,
		func(context.Context, mcp.CallToolRequest, credential.Session) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok"), nil
		}))

	tools := s.ListTools()
	require.Contains(t, tools, "echo_tool")

	result, err := tools["echo_tool"].Handler(context.Background(), request(map[string]any{"token": "tok"}))
	require.NoError(t, err)
	assert.Equal(t, "ok", resultText(t, result))
}

func TestJSONResult(t *testing.T) {
	result := JSONResult(map[string]int{"count": 2})
	require.False(t, result.IsError)
	assert.JSONEq(t, `{"count": 2}`, resultText(t, result))
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}
