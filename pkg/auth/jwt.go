package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meridianhq/meridian/pkg/apperr"
)

// SessionClaims holds the claims carried by session tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
}

// JWTResolver verifies HS256-signed session tokens issued by the login
// service.
type JWTResolver struct {
	secret []byte
	issuer string
}

// NewJWTResolver creates a session token verifier. issuer, when non-empty,
// is validated against the token's iss claim.
func NewJWTResolver(secret, issuer string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), issuer: issuer}
}

// Resolve verifies the token's signature, expiry, and issuer.
func (r *JWTResolver) Resolve(ctx context.Context, credential string) (*Identity, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.Newf(apperr.KindUnauthenticated, "unexpected signing method %v", token.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "invalid session token", err)
	}
	if !token.Valid {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid session token")
	}
	if r.issuer != "" && claims.Issuer != r.issuer {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid session token")
	}
	if claims.Subject == "" {
		return nil, apperr.New(apperr.KindUnauthenticated, "session token missing subject")
	}
	return &Identity{
		ExternalID: claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
	}, nil
}

// IssueSessionToken signs a session token for the given identity. Used by
// tests and by local development tooling; production tokens come from the
// login service.
func IssueSessionToken(secret, issuer string, identity *Identity, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ExternalID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: identity.Email,
		Name:  identity.Name,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
