// Package api serves the inboxsorter REST API under /api.
//
// Callers authenticate with the access token handed out at sign-in, passed
// either as the "token" query parameter or as a Bearer Authorization header.
// Expired tokens are refreshed transparently. Errors are returned as
// {"detail": "..."} with the status derived from the apperr kind.
package api
