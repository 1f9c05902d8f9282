// Package common provides shared utilities for MCP tool implementations:
// session resolution from the token argument, result encoding and the
// instrumentation wrapper every tool handler is registered through.
package common
