// Package classify_tools provides MCP tools for classifying mailbox messages
// against the caller's rules.
//
// # Available Tools
//
//   - classify_analyze: Suggest a rule and folder for each message
//   - classify_execute: Classify messages and move confident matches
//   - classify_history: List recently moved messages
//   - classify_stats: Count moved messages by rule and folder
//   - rules_list: List the caller's classification rules
//
// # Authentication
//
// Every tool takes a 'token' argument: the access token handed out by the
// sign-in callback of the HTTP API.
package classify_tools
