// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN. Required for the server and migrate commands.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// DBPoolSize is the number of persistent database connections (default 10).
	DBPoolSize int `mapstructure:"DB_POOL_SIZE"`
	// DBMaxOverflow is the number of extra short-lived connections allowed
	// beyond DBPoolSize under load (default 20). Zero disables overflow.
	DBMaxOverflow int `mapstructure:"DB_MAX_OVERFLOW"`
	// DBAcquireTimeout is how long an acquire waits for a connection before
	// failing (e.g. "30s").
	DBAcquireTimeout string `mapstructure:"DB_ACQUIRE_TIMEOUT"`
	// DBRecycle is the idle age after which a pooled connection is probed and
	// replaced if dead (e.g. "1h").
	DBRecycle string `mapstructure:"DB_RECYCLE"`

	// OAuthTenantID is the identity provider tenant.
	OAuthTenantID string `mapstructure:"OAUTH_TENANT_ID"`
	// OAuthClientID is the application (client) id registered with the provider.
	OAuthClientID string `mapstructure:"OAUTH_CLIENT_ID"`
	// OAuthClientSecret is the client secret for the code exchange.
	OAuthClientSecret string `mapstructure:"OAUTH_CLIENT_SECRET"`
	// OAuthRedirectURL is the callback URL registered with the provider.
	OAuthRedirectURL string `mapstructure:"OAUTH_REDIRECT_URL"`

	// SessionSigningSecret signs session credentials. Required for the server.
	SessionSigningSecret string `mapstructure:"SESSION_SIGNING_SECRET"`
	// SessionSigningAlg is the HMAC algorithm: HS256 (default), HS384, or HS512.
	SessionSigningAlg string `mapstructure:"SESSION_SIGNING_ALG"`
	// SessionTTLRaw is the session credential lifetime (e.g. "24h").
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`
	// SessionIssuer is the iss claim on session credentials.
	SessionIssuer string `mapstructure:"SESSION_ISSUER"`

	// CSRFStateTTLRaw is how long an issued login state stays valid (e.g. "10m").
	CSRFStateTTLRaw string `mapstructure:"CSRF_STATE_TTL"`
	// RedisAddr selects the Redis-backed state store when set (host:port);
	// empty keeps states in process memory.
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_POOL_SIZE", 10)
	v.SetDefault("DB_MAX_OVERFLOW", 20)
	v.SetDefault("DB_ACQUIRE_TIMEOUT", "30s")
	v.SetDefault("DB_RECYCLE", "1h")
	v.SetDefault("OAUTH_TENANT_ID", "")
	v.SetDefault("OAUTH_CLIENT_ID", "")
	v.SetDefault("OAUTH_CLIENT_SECRET", "")
	v.SetDefault("OAUTH_REDIRECT_URL", "")
	v.SetDefault("SESSION_SIGNING_SECRET", "")
	v.SetDefault("SESSION_SIGNING_ALG", "HS256")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_ISSUER", "siteguard-auth")
	v.SetDefault("CSRF_STATE_TTL", "10m")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.DBPoolSize <= 0 {
		return nil, errors.New("config: DB_POOL_SIZE must be positive")
	}
	if cfg.DBMaxOverflow < 0 {
		return nil, errors.New("config: DB_MAX_OVERFLOW must not be negative")
	}

	return &cfg, nil
}

// AcquireTimeout parses DBAcquireTimeout. Returns 30s if unset or invalid.
func (c *Config) AcquireTimeout() time.Duration {
	return durationOr(c.DBAcquireTimeout, 30*time.Second)
}

// RecycleAfter parses DBRecycle. Returns 1h if unset or invalid.
func (c *Config) RecycleAfter() time.Duration {
	return durationOr(c.DBRecycle, time.Hour)
}

// SessionTTL parses SessionTTLRaw. Returns 24h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return durationOr(c.SessionTTLRaw, 24*time.Hour)
}

// CSRFStateTTL parses CSRFStateTTLRaw. Returns 10m if unset or invalid.
func (c *Config) CSRFStateTTL() time.Duration {
	return durationOr(c.CSRFStateTTLRaw, 10*time.Minute)
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
