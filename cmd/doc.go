// Package cmd implements the command-line interface for inboxsorter.
//
// This package provides the following commands:
//   - serve: Start the HTTP API and the MCP server
//   - migrate: Apply database migrations and exit
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The serve command is the default command when no subcommand is specified.
package cmd
