package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/meridianhq/meridian/pkg/apperr"
)

// OIDCResolver verifies ID tokens issued by an OpenID Connect provider.
// When an opaque access token is presented instead, the provider's UserInfo
// endpoint is consulted.
type OIDCResolver struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// NewOIDCResolver discovers the issuer's configuration and prepares an ID
// token verifier for the given client.
func NewOIDCResolver(ctx context.Context, issuerURL, clientID string) (*OIDCResolver, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &OIDCResolver{provider: provider, verifier: verifier}, nil
}

type oidcClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Resolve verifies the credential as an ID token, falling back to the
// UserInfo endpoint for opaque access tokens.
func (r *OIDCResolver) Resolve(ctx context.Context, credential string) (*Identity, error) {
	idToken, err := r.verifier.Verify(ctx, credential)
	if err == nil {
		var claims oidcClaims
		if err := idToken.Claims(&claims); err != nil {
			return nil, apperr.Wrap(apperr.KindUnauthenticated, "invalid token claims", err)
		}
		return &Identity{
			ExternalID: idToken.Subject,
			Email:      claims.Email,
			Name:       claims.Name,
		}, nil
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential})
	info, err := r.provider.UserInfo(ctx, source)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "invalid credential", err)
	}
	var claims oidcClaims
	if err := info.Claims(&claims); err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "invalid userinfo claims", err)
	}
	name := claims.Name
	if name == "" {
		name = info.Email
	}
	return &Identity{
		ExternalID: info.Subject,
		Email:      info.Email,
		Name:       name,
	}, nil
}
