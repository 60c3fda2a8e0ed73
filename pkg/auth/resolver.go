package auth

import (
	"context"
	"net/http"
	"strings"
)

// Identity is the provider-agnostic result of credential verification.
// ExternalID is the provider's stable subject identifier, never a local
// database id.
type Identity struct {
	ExternalID string
	Email      string
	Name       string
}

// Resolver verifies a bearer credential and returns the identity it proves.
// Implementations must return an Unauthenticated error for anything invalid,
// expired, or malformed.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (*Identity, error)
}

// BearerToken extracts the credential from an Authorization header. The
// second return is false when no bearer credential is present.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
