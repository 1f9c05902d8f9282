// Package classify runs rule-based classification over a batch of mailbox
// messages and optionally moves the matched messages.
//
// The Orchestrator fetches and classifies messages in fixed-size batches with
// a pause between batches. The Engine applies the resulting outcomes and
// appends an audit Record for each move. Service ties both to the rule set
// and the record store and is what the HTTP API and the MCP tools call.
package classify
