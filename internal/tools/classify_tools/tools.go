package classify_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxsorter/internal/classify"
	"github.com/teemow/inboxsorter/internal/credential"
	"github.com/teemow/inboxsorter/internal/rules"
	"github.com/teemow/inboxsorter/internal/server"
	"github.com/teemow/inboxsorter/internal/tools/batch"
	"github.com/teemow/inboxsorter/internal/tools/common"
)

const tokenDescription = "Access token returned by the sign-in callback"

// RegisterClassifyTools registers the classification tools with the MCP
// server. classify_execute moves messages and is skipped in read-only mode.
func RegisterClassifyTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if s == nil || sc == nil {
		return fmt.Errorf("mcp server and server context are required")
	}

	analyzeTool := mcp.NewTool("classify_analyze",
		mcp.WithDescription("Classify messages against the active rules without moving them"),
		mcp.WithString(common.TokenArg, mcp.Required(), mcp.Description(tokenDescription)),
		mcp.WithString("messageIds",
			mcp.Required(),
			mcp.Description("Message ID (string) or array of message IDs to classify"),
		),
		mcp.WithString("ruleIds",
			mcp.Description("Rule ID (string) or array of rule IDs to restrict classification to (default: all active rules)"),
		),
	)
	s.AddTool(analyzeTool, common.InstrumentedToolHandler("classify_analyze", classify.ModeAnalyze, sc, handleAnalyze(sc)))

	if !readOnly {
		executeTool := mcp.NewTool("classify_execute",
			mcp.WithDescription("Classify messages and move every confident match into its rule's folder"),
			mcp.WithString(common.TokenArg, mcp.Required(), mcp.Description(tokenDescription)),
			mcp.WithString("messageIds",
				mcp.Required(),
				mcp.Description("Message ID (string) or array of message IDs to classify"),
			),
			mcp.WithString("ruleIds",
				mcp.Description("Rule ID (string) or array of rule IDs to restrict classification to (default: all active rules)"),
			),
			mcp.WithBoolean("dryRun",
				mcp.Description("Report what would be moved without moving anything (default: false)"),
			),
		)
		s.AddTool(executeTool, common.InstrumentedToolHandler("classify_execute", classify.ModeExecute, sc, handleExecute(sc)))
	}

	historyTool := mcp.NewTool("classify_history",
		mcp.WithDescription("List the most recently moved messages, newest first"),
		mcp.WithString(common.TokenArg, mcp.Required(), mcp.Description(tokenDescription)),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Number of records to return (1-%d, default: %d)", classify.MaxHistoryLimit, classify.DefaultHistoryLimit)),
		),
	)
	s.AddTool(historyTool, common.InstrumentedToolHandler("classify_history", "history", sc, handleHistory(sc)))

	statsTool := mcp.NewTool("classify_stats",
		mcp.WithDescription("Count moved messages by rule and by target folder"),
		mcp.WithString(common.TokenArg, mcp.Required(), mcp.Description(tokenDescription)),
	)
	s.AddTool(statsTool, common.InstrumentedToolHandler("classify_stats", "stats", sc, handleStats(sc)))

	rulesTool := mcp.NewTool("rules_list",
		mcp.WithDescription("List the caller's classification rules"),
		mcp.WithString(common.TokenArg, mcp.Required(), mcp.Description(tokenDescription)),
	)
	s.AddTool(rulesTool, common.InstrumentedToolHandler("rules_list", "rules", sc, handleRulesList(sc)))

	return nil
}

func parseRequest(args map[string]interface{}) (classify.Request, error) {
	messageIDs, err := batch.ParseIDs(args["messageIds"], "messageIds", true)
	if err != nil {
		return classify.Request{}, err
	}
	ruleIDs, err := batch.ParseIDs(args["ruleIds"], "ruleIds", false)
	if err != nil {
		return classify.Request{}, err
	}
	dryRun, _ := args["dryRun"].(bool)
	return classify.Request{MessageIDs: messageIDs, RuleIDs: ruleIDs, DryRun: dryRun}, nil
}

func handleAnalyze(sc *server.ServerContext) common.SessionToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest, session credential.Session) (*mcp.CallToolResult, error) {
		req, err := parseRequest(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		req.DryRun = false

		outcomes, err := sc.Classifier().Analyze(ctx, session, req)
		if err != nil {
			return common.ErrorResult("classify messages", err), nil
		}
		return common.JSONResult(batch.NewReport(outcomes)), nil
	}
}

func handleExecute(sc *server.ServerContext) common.SessionToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest, session credential.Session) (*mcp.CallToolResult, error) {
		req, err := parseRequest(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		outcomes, err := sc.Classifier().Execute(ctx, session, req)
		if err != nil {
			return common.ErrorResult("execute classification", err), nil
		}
		return common.JSONResult(batch.NewReport(outcomes)), nil
	}
}

func handleHistory(sc *server.ServerContext) common.SessionToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest, session credential.Session) (*mcp.CallToolResult, error) {
		limit := classify.DefaultHistoryLimit
		if v, ok := request.GetArguments()["limit"].(float64); ok {
			limit = int(v)
		}

		records, err := sc.Classifier().History(ctx, session, limit)
		if err != nil {
			return common.ErrorResult("load history", err), nil
		}
		return common.JSONResult(records), nil
	}
}

func handleStats(sc *server.ServerContext) common.SessionToolHandler {
	return func(ctx context.Context, _ mcp.CallToolRequest, session credential.Session) (*mcp.CallToolResult, error) {
		stats, err := sc.Classifier().Stats(ctx, session)
		if err != nil {
			return common.ErrorResult("load statistics", err), nil
		}
		return common.JSONResult(stats), nil
	}
}

func handleRulesList(sc *server.ServerContext) common.SessionToolHandler {
	return func(ctx context.Context, _ mcp.CallToolRequest, session credential.Session) (*mcp.CallToolResult, error) {
		list, err := sc.Rules().List(ctx, session.UserID)
		if err != nil {
			return common.ErrorResult("list rules", err), nil
		}
		if list == nil {
			list = []rules.Rule{}
		}
		return common.JSONResult(list), nil
	}
}
