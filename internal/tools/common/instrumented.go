package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/instrumentation"
	"github.com/teemow/inboxsorter/internal/server"
)

// ToolHandler is the signature mcp-go registers tool handlers with.
type ToolHandler = mcpserver.ToolHandlerFunc

// SessionToolHandler is a tool handler running on behalf of a resolved session.
type SessionToolHandler func(ctx context.Context, request mcp.CallToolRequest, session credential.Session) (*mcp.CallToolResult, error)

// InstrumentedToolHandler resolves the caller session from the token
// argument, then runs handler inside a tool span. It records tool invocation
// metrics and logs the invocation for audit purposes.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", "analyze", sc, handler))
func InstrumentedToolHandler(toolName, operation string, sc *server.ServerContext, handler SessionToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		invocation := instrumentation.NewToolInvocation(toolName).
			WithOperation(operation).
			WithSpanContext(ctx)

		var (
			result *mcp.CallToolResult
			err    error
		)
		session, sessErr := SessionFromArgs(ctx, sc, request.GetArguments())
		if sessErr != nil {
			result = ErrorResult("authenticate", sessErr)
		} else {
			invocation.WithUser(session.Email)
			result, err = handler(ctx, request, session)
		}

		status := instrumentation.StatusSuccess
		switch {
		case err != nil:
			status = instrumentation.StatusError
			invocation.Complete(false, err)
			instrumentation.SetSpanError(span, err)
		case sessErr != nil:
			status = instrumentation.StatusError
			invocation.Complete(false, sessErr)
			instrumentation.SetSpanError(span, sessErr)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			invocation.Complete(false, nil)
		default:
			invocation.Complete(true, nil)
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, status, time.Since(start))
		sc.AuditLogger().LogToolInvocation(invocation)

		return result, err
	}
}
