// Package middleware provides HTTP middleware shared by the API server:
// request-id propagation, request metrics, and the two rate limiter
// implementations consumed by the authorization guard.
package middleware
