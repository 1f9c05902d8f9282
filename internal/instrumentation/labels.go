package instrumentation

import "strings"

// Label values shared by metrics, spans and audit events.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"

	// Oracle verdicts.
	OracleResultMatched       = "matched"
	OracleResultNone          = "none"
	OracleResultDegraded      = "degraded"
	OracleResultNotConfigured = "not_configured"

	// Per-message classification outcomes.
	OutcomeResolved   = "resolved"
	OutcomeUnresolved = "unresolved"
	OutcomeDropped    = "dropped"
)

// Graph operations, used as the operation label and as the graph.<op> span name.
const (
	OperationListFolders   = "list_folders"
	OperationChildFolders  = "child_folders"
	OperationListMessages  = "list_messages"
	OperationGetMessage    = "get_message"
	OperationMoveMessage   = "move_message"
	OperationGetProfile    = "get_profile"
	OperationExchangeToken = "exchange_token"
	OperationRefreshToken  = "refresh_token"
)

// mailDomain keeps only the domain of a mailbox address so audit lines and
// labels never carry the local part. Anything unparsable is "unknown".
func mailDomain(address string) string {
	_, domain, ok := strings.Cut(strings.TrimSpace(address), "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "unknown"
	}
	return strings.ToLower(domain)
}
