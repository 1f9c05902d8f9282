package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindUnauthorized         Kind = "unauthorized"
	KindUpstreamUnavailable  Kind = "upstream_unavailable"
	KindConfigurationMissing Kind = "configuration_missing"
	KindMalformedResponse    Kind = "malformed_response"
	KindInvalidRequest       Kind = "invalid_request"
	KindNotFound             Kind = "not_found"
	KindInternal             Kind = "internal"
)

// Error is the application error type shared by all packages.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "graph.get_message"
	Message string // safe to show to callers
	Status  int    // upstream or HTTP status, 0 if unknown
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Unauthorized is returned when a session cannot be resolved.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

// Upstream wraps a failed call to a provider. status is the provider's HTTP
// status, or 0 when the request never got a response.
func Upstream(op string, status int, err error) *Error {
	return &Error{
		Kind:    KindUpstreamUnavailable,
		Op:      op,
		Message: "upstream request failed",
		Status:  status,
		Err:     err,
	}
}

// ConfigurationMissing reports that an optional collaborator is not configured.
func ConfigurationMissing(message string) *Error {
	return &Error{Kind: KindConfigurationMissing, Message: message, Status: http.StatusServiceUnavailable}
}

// Malformed reports a provider response that could not be decoded.
func Malformed(op string, err error) *Error {
	return &Error{
		Kind:    KindMalformedResponse,
		Op:      op,
		Message: "malformed response",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// InvalidRequest reports bad caller input.
func InvalidRequest(message string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: message, Status: http.StatusBadRequest}
}

// NotFound reports a missing resource.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Status: http.StatusNotFound}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to the status code returned to API callers.
// Upstream failures propagate the provider status when it is an error status.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindUpstreamUnavailable:
		if e.Status >= 400 {
			return e.Status
		}
		return http.StatusBadGateway
	case KindInternal:
		return http.StatusInternalServerError
	}
	if e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Message returns the caller-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}
