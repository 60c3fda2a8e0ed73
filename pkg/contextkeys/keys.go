// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestKey contains *guard.RequestContext
	// Set by: guard.Policy after the full check pipeline passes
	// Required by: all guarded handlers
	RequestKey Key = "request_context"

	// IdentityKey contains *auth.Identity
	// Set by: guard.Policy after identity resolution
	// Used by: rate limiting, audit trail
	IdentityKey Key = "identity"

	// CompanyIDKey contains the resolved tenant company id (int64)
	// Set by: guard.Policy after tenant resolution
	// Used by: tenant-scoped repositories, audit trail
	CompanyIDKey Key = "company_id"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: api request-ID middleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: api middleware
	// Used by: handlers that need structured logging with request context
	LoggerKey Key = "logger"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithCompanyID adds the resolved tenant id to the context
func WithCompanyID(ctx context.Context, companyID int64) context.Context {
	return context.WithValue(ctx, CompanyIDKey, companyID)
}

// GetCompanyID retrieves the resolved tenant id from context; the second
// return value is false when no tenant was resolved for this request.
func GetCompanyID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(CompanyIDKey).(int64)
	return id, ok
}
