// Package instrumentation provides OpenTelemetry instrumentation for the
// inboxsorter server.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Microsoft Graph Metrics:
//   - graph_api_operations_total: Counter of Graph calls by operation and status
//   - graph_api_operation_duration_seconds: Histogram of Graph call durations
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of sign-in completions by result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// Classification Metrics:
//   - oracle_classifications_total: Counter of language model calls by result
//   - oracle_duration_seconds: Histogram of language model latency
//   - classification_outcomes_total: Counter of per-message results
//   - messages_moved_total: Counter of move attempts by status
//   - classification_runs_total: Counter of analyze/execute runs by mode and status
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Tracing
//
// Spans are created for MCP tool invocations (tool.<name>), Graph calls
// (graph.<operation>) and language model completions (oracle.classify).
//
// # Configuration
//
// Exporters, sampling and audit behavior come from the telemetry section of
// config.Config (METRICS_EXPORTER, TRACING_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT,
// OTEL_TRACES_SAMPLER_ARG, METRICS_RULE_LABELS, AUDIT_LOGGING_*). The
// resource attributes name the store driver, the Graph host and whether
// sign-in and the oracle are configured.
package instrumentation
