// Package errs defines the gateway error taxonomy shared by the HTTP
// dispatcher, the upstream client, and the stream translator.
//
// Responsibilities:
//   - Provide a closed set of error kinds with a stable wire form
//   - Map each kind to the HTTP status the dispatcher responds with
//   - Carry upstream hints (Retry-After) without leaking transport details
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a gateway error class. The set is closed; the string
// values are the wire-visible "error.type" field.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindAuth           Kind = "auth_error"
	KindModelNotFound  Kind = "model_not_found"
	KindCapability     Kind = "capability_error"
	KindRateLimited    Kind = "rate_limited"
	KindUpstream       Kind = "upstream_error"
	KindConnection     Kind = "connection_error"
	KindTranslator     Kind = "translator_error"
)

// Error is the gateway error type. It is returned by every component that
// can fail in a client-visible way.
type Error struct {
	Kind    Kind
	Message string

	// RetryAfter carries the upstream Retry-After header value for
	// rate_limited errors. Empty otherwise.
	RetryAfter string

	// StatusOverride replaces the kind's default HTTP status when set.
	// Used for deadline expiry, which is upstream_error on the wire but
	// answers 504 rather than 502.
	StatusOverride int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Timeout reports a request deadline that expired before the upstream
// produced any data.
func Timeout(message string) *Error {
	return &Error{
		Kind:           KindUpstream,
		Message:        message,
		StatusOverride: http.StatusGatewayTimeout,
	}
}

// Status returns the HTTP status code the dispatcher uses for this kind.
func (e *Error) Status() int {
	if e.StatusOverride != 0 {
		return e.StatusOverride
	}
	switch e.Kind {
	case KindInvalidRequest, KindCapability:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindModelNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	case KindConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// wireError is the JSON body written for pre-stream failures and carried
// inside SSE error events.
type wireError struct {
	Error wireErrorBody `json:"error"`
}

type wireErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// WireBody returns the {"error":{"type","message"}} JSON body.
func (e *Error) WireBody() []byte {
	b, err := json.Marshal(wireError{Error: wireErrorBody{
		Type:    string(e.Kind),
		Message: e.Message,
	}})
	if err != nil {
		// Marshal of two strings cannot fail; keep a fallback anyway.
		return []byte(`{"error":{"type":"translator_error","message":"failed to encode error"}}`)
	}
	return b
}

// From extracts an *Error from err, wrapping unknown errors as
// translator_error so the dispatcher always has a kind to act on.
func From(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Kind: KindTranslator, Message: err.Error()}
}
