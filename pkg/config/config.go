// Package config loads application configuration from environment variables
// with sensible defaults and fail-fast validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Tenant TenantConfig
	Rate   RateConfig
	Roles  RolesConfig

	Webhooks WebhookConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DBConfig holds PostgreSQL configuration
type DBConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	QueryTimeout time.Duration
}

// RedisConfig holds Redis configuration for distributed rate limiting.
// When URL is empty the in-process limiter is used instead.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// AuthConfig selects and configures the identity resolver
type AuthConfig struct {
	// JWTSecret enables the HS256 session verifier when non-empty
	JWTSecret string
	JWTIssuer string

	// OIDCIssuerURL enables the OIDC verifier when non-empty
	OIDCIssuerURL string
	OIDCClientID  string

	ResolveTimeout time.Duration
}

// TenantConfig controls tenant resolution policy
type TenantConfig struct {
	// RequireExplicitCompany disables the earliest-membership default: when
	// true, requests without an X-Company-ID header fail NoTenantContext.
	RequireExplicitCompany bool
}

// RateConfig holds rate limiting configuration
type RateConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
	BurstSize         int
}

// RolesConfig holds the optional custom role template catalog
type RolesConfig struct {
	// TemplatesFile is a YAML file of role templates loaded at startup
	TemplatesFile string
}

// WebhookConfig holds billing webhook verification settings
type WebhookConfig struct {
	// Secrets maps a provider name to its HMAC signing secret. Parsed from
	// MERIDIAN_WEBHOOK_SECRETS as comma-separated provider=secret pairs.
	Secrets map[string]string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("MERIDIAN_HOST", "0.0.0.0"),
			Port:            getEnv("MERIDIAN_PORT", "8080"),
			ReadTimeout:     getEnvDuration("MERIDIAN_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("MERIDIAN_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("MERIDIAN_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("MERIDIAN_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("MERIDIAN_HEALTH_PORT", "9090"),
		},
		DB: DBConfig{
			URL:          getEnv("MERIDIAN_POSTGRES_URL", "postgres://localhost/meridian?sslmode=disable"),
			MaxOpenConns: getEnvInt("MERIDIAN_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("MERIDIAN_POSTGRES_IDLE_CONNS", 5),
			QueryTimeout: getEnvDuration("MERIDIAN_POSTGRES_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("MERIDIAN_REDIS_URL", ""),
			Password: getEnv("MERIDIAN_REDIS_PASSWORD", ""),
			DB:       getEnvInt("MERIDIAN_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("MERIDIAN_JWT_SECRET", ""),
			JWTIssuer:      getEnv("MERIDIAN_JWT_ISSUER", "meridian"),
			OIDCIssuerURL:  getEnv("MERIDIAN_OIDC_ISSUER_URL", ""),
			OIDCClientID:   getEnv("MERIDIAN_OIDC_CLIENT_ID", ""),
			ResolveTimeout: getEnvDuration("MERIDIAN_AUTH_TIMEOUT", 5*time.Second),
		},
		Tenant: TenantConfig{
			RequireExplicitCompany: getEnvBool("MERIDIAN_REQUIRE_EXPLICIT_COMPANY", false),
		},
		Rate: RateConfig{
			RequestsPerWindow: getEnvInt("MERIDIAN_RATE_REQUESTS", 100),
			WindowDuration:    getEnvDuration("MERIDIAN_RATE_WINDOW", time.Minute),
			BurstSize:         getEnvInt("MERIDIAN_RATE_BURST", 10),
		},
		Roles: RolesConfig{
			TemplatesFile: getEnv("MERIDIAN_ROLE_TEMPLATES_FILE", ""),
		},
		Webhooks: WebhookConfig{
			Secrets: parseSecretPairs(getEnv("MERIDIAN_WEBHOOK_SECRETS", "")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.DB.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Auth.JWTSecret == "" && c.Auth.OIDCIssuerURL == "" {
		return fmt.Errorf("either a JWT secret or an OIDC issuer URL is required")
	}
	if c.Auth.OIDCIssuerURL != "" && c.Auth.OIDCClientID == "" {
		return fmt.Errorf("OIDC client ID is required when an OIDC issuer is configured")
	}

	if c.Rate.RequestsPerWindow <= 0 {
		return fmt.Errorf("rate limit requests per window must be positive")
	}
	if c.Rate.WindowDuration <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	return nil
}

// parseSecretPairs parses "provider=secret,provider2=secret2" into a map.
// Malformed pairs are skipped.
func parseSecretPairs(raw string) map[string]string {
	secrets := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		secrets[parts[0]] = parts[1]
	}
	return secrets
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
