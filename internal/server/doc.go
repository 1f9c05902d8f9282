// Package server wires the inboxsorter services together and provides the
// operational endpoints around them.
//
// ServerContext is the composition root: it builds the Microsoft Graph
// client, the identity provider, the token lifecycle manager, the oracle
// adapter and the rule and classification services on top of a store, and
// hands them to the HTTP API and the MCP tools. Sign-in and the oracle are
// optional; without configuration they report ConfigurationMissing or
// degrade to no match.
//
// HealthChecker serves /healthz and /readyz for Kubernetes. The
// readiness check pings the store and lists the configured integrations.
//
// MetricsServer exposes the Prometheus registry of an instrumentation
// Provider on a dedicated port.
package server
