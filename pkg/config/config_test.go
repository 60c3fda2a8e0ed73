package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("MERIDIAN_JWT_SECRET", "test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 100, cfg.Rate.RequestsPerWindow)
	assert.Equal(t, time.Minute, cfg.Rate.WindowDuration)
	assert.False(t, cfg.Tenant.RequireExplicitCompany)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("MERIDIAN_JWT_SECRET", "test-secret")
	t.Setenv("MERIDIAN_PORT", "3000")
	t.Setenv("MERIDIAN_RATE_REQUESTS", "50")
	t.Setenv("MERIDIAN_RATE_WINDOW", "30s")
	t.Setenv("MERIDIAN_REQUIRE_EXPLICIT_COMPANY", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 50, cfg.Rate.RequestsPerWindow)
	assert.Equal(t, 30*time.Second, cfg.Rate.WindowDuration)
	assert.True(t, cfg.Tenant.RequireExplicitCompany)
}

func TestValidate(t *testing.T) {
	t.Run("requires an identity backend", func(t *testing.T) {
		t.Setenv("MERIDIAN_JWT_SECRET", "")
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT secret or an OIDC issuer")
	})

	t.Run("OIDC issuer requires client id", func(t *testing.T) {
		t.Setenv("MERIDIAN_OIDC_ISSUER_URL", "https://issuer.example.com")
		t.Setenv("MERIDIAN_OIDC_CLIENT_ID", "")
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "OIDC client ID")
	})

	t.Run("ports must differ", func(t *testing.T) {
		t.Setenv("MERIDIAN_JWT_SECRET", "test-secret")
		t.Setenv("MERIDIAN_PORT", "9090")
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be different")
	})
}

func TestParseSecretPairs(t *testing.T) {
	t.Run("multiple providers", func(t *testing.T) {
		secrets := parseSecretPairs("stripe=whsec_a,paddle=whsec_b")
		assert.Equal(t, map[string]string{"stripe": "whsec_a", "paddle": "whsec_b"}, secrets)
	})

	t.Run("skips malformed pairs", func(t *testing.T) {
		secrets := parseSecretPairs("stripe=whsec_a,nosecret,=orphan, paddle=whsec_b")
		assert.Equal(t, map[string]string{"stripe": "whsec_a", "paddle": "whsec_b"}, secrets)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, parseSecretPairs(""))
	})

	t.Run("secret containing equals", func(t *testing.T) {
		secrets := parseSecretPairs("stripe=whsec=extra")
		assert.Equal(t, map[string]string{"stripe": "whsec=extra"}, secrets)
	})
}
