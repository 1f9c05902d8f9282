// Package apperr defines the error taxonomy shared across inboxsorter.
//
// Every error that crosses a package boundary and needs a specific HTTP
// status is an *Error carrying a Kind. Batch operations absorb per-message
// failures; single-resource operations propagate the upstream status:
//
//	if apperr.Is(err, apperr.KindUnauthorized) {
//	    // re-authenticate
//	}
//	status := apperr.HTTPStatus(err)
package apperr
