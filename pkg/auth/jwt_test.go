package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/pkg/apperr"
)

const testSecret = "test-secret-for-sessions"

func TestJWTResolverRoundTrip(t *testing.T) {
	identity := &Identity{ExternalID: "auth0|u123", Email: "kim@example.com", Name: "Kim"}
	token, err := IssueSessionToken(testSecret, "meridian", identity, time.Hour)
	require.NoError(t, err)

	resolver := NewJWTResolver(testSecret, "meridian")
	got, err := resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, identity.ExternalID, got.ExternalID)
	assert.Equal(t, identity.Email, got.Email)
	assert.Equal(t, identity.Name, got.Name)
}

func TestJWTResolverRejections(t *testing.T) {
	identity := &Identity{ExternalID: "auth0|u123", Email: "kim@example.com"}

	t.Run("wrong secret", func(t *testing.T) {
		token, err := IssueSessionToken("other-secret", "meridian", identity, time.Hour)
		require.NoError(t, err)

		resolver := NewJWTResolver(testSecret, "meridian")
		_, err = resolver.Resolve(context.Background(), token)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
	})

	t.Run("expired", func(t *testing.T) {
		token, err := IssueSessionToken(testSecret, "meridian", identity, -time.Minute)
		require.NoError(t, err)

		resolver := NewJWTResolver(testSecret, "meridian")
		_, err = resolver.Resolve(context.Background(), token)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := IssueSessionToken(testSecret, "someone-else", identity, time.Hour)
		require.NoError(t, err)

		resolver := NewJWTResolver(testSecret, "meridian")
		_, err = resolver.Resolve(context.Background(), token)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
	})

	t.Run("missing subject", func(t *testing.T) {
		claims := SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "meridian",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		resolver := NewJWTResolver(testSecret, "meridian")
		_, err = resolver.Resolve(context.Background(), token)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
	})

	t.Run("garbage", func(t *testing.T) {
		resolver := NewJWTResolver(testSecret, "meridian")
		_, err := resolver.Resolve(context.Background(), "not.a.token")
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"valid", "Bearer abc123", "abc123", true},
		{"lowercase scheme", "bearer abc123", "abc123", true},
		{"missing", "", "", false},
		{"wrong scheme", "Basic abc123", "", false},
		{"empty credential", "Bearer ", "", false},
		{"no space", "Bearerabc123", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := BearerToken(r)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
