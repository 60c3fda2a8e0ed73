// Package apperr defines the error taxonomy shared by the authorization
// core and the HTTP layer. Services return typed errors; the HTTP layer maps
// their kind to a status code and a safe client message without ever leaking
// internal detail (query text, stack traces).
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindUnauthenticated        Kind = "unauthenticated"
	KindForbiddenTenant        Kind = "forbidden_tenant"
	KindInsufficientPermission Kind = "insufficient_permission"
	KindInsufficientRole       Kind = "insufficient_role"
	KindNoTenantContext        Kind = "no_tenant_context"
	KindValidation             Kind = "validation_error"
	KindConflict               Kind = "conflict"
	KindLastOwnerViolation     Kind = "last_owner_violation"
	KindSelfRemovalForbidden   Kind = "self_removal_forbidden"
	KindRateLimited            Kind = "rate_limited"
	KindNotFound               Kind = "not_found"
	KindMethodNotAllowed       Kind = "method_not_allowed"
	KindUnavailable            Kind = "unavailable"
	KindTimeout                Kind = "timeout"
	KindInternal               Kind = "internal"
)

// Error is a classified error with an optional wrapped cause and, for
// validation failures, per-field detail.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a classified error with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted client-safe message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a classified error. The cause is kept for logging
// and errors.Is but is never serialized to clients.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation creates a validation error carrying per-field detail.
func Validation(fields map[string]string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: "request validation failed",
		Fields:  fields,
	}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// FieldsOf returns per-field validation detail if err carries any.
func FieldsOf(err error) map[string]string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Fields
	}
	return nil
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbiddenTenant, KindInsufficientPermission, KindInsufficientRole,
		KindLastOwnerViolation, KindSelfRemovalForbidden:
		return http.StatusForbidden
	case KindNotFound, KindNoTenantContext:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ClientMessage returns the message safe to show to clients. Unclassified
// errors collapse to a generic message.
func ClientMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal server error"
}
