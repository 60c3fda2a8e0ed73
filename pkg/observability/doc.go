// Package observability provides structured logging and Prometheus metrics
// for the Meridian backend.
//
// Logging uses stdlib slog with a JSON handler wrapped in a small Logger type
// that supports field chaining and context plumbing (request id, tenant id).
// Metrics cover the HTTP surface plus the authorization pipeline: denial
// counters by reason, rate limiting, permission cache effectiveness, and
// best-effort audit write failures.
package observability
