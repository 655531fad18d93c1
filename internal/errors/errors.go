// Package errors provides the stable error taxonomy shared across the
// provider adapters, the model fallback client and the orchestrator.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable error code.
type Kind string

const (
	// KindUnknown represents an unclassified error.
	KindUnknown Kind = "UNKNOWN"

	// Caller input errors, surfaced verbatim.
	KindInvalidFilter    Kind = "INVALID_FILTER"
	KindInvalidTimeRange Kind = "INVALID_TIME_RANGE"
	KindMissingParameter Kind = "MISSING_PARAMETER"

	// KindReauthRequired means the stored credential is permanently
	// invalid and the user must re-authorize. Never retried silently.
	KindReauthRequired Kind = "REAUTH_REQUIRED"

	// KindTransientProvider covers retryable provider failures:
	// network errors, timeouts, throttling.
	KindTransientProvider Kind = "TRANSIENT_PROVIDER"

	// KindAllModelsExhausted means the whole model fallback chain
	// failed. The last underlying cause is attached.
	KindAllModelsExhausted Kind = "ALL_MODELS_EXHAUSTED"
)

// Error carries a stable kind, a readable message and the wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error with a kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error with a kind and formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error with a kind, message and underlying cause.
// The cause stays reachable through errors.Unwrap for logging.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of err, walking the wrap chain. Errors that
// never passed through this package report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to the HTTP status handlers respond with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidFilter, KindInvalidTimeRange, KindMissingParameter:
		return http.StatusBadRequest
	case KindReauthRequired:
		return http.StatusUnauthorized
	case KindTransientProvider:
		return http.StatusBadGateway
	case KindAllModelsExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
