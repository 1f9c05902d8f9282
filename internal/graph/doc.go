// Package graph is a small typed client for the Microsoft Graph mail API,
// built on the msgraph SDK.
//
// Every method takes the caller's access token explicitly; the client holds
// no per-user state and is safe for concurrent use. SDK models are converted
// into the plain structs of this package at the boundary. Failed calls
// return an *apperr.Error of kind UpstreamUnavailable carrying the Graph
// status code.
package graph
