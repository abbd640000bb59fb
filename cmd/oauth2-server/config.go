package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/giantswarm/oauth2-server/server"
)

// Config holds the environment-based configuration of the demo server
type Config struct {
	Port   string `env:"PORT" envDefault:"8080"`
	Issuer string `env:"ISSUER" envDefault:"https://as.example.com"`

	Scopes []string `env:"SCOPES" envDefault:"api:read,api:write" envSeparator:","`

	// Lifetimes accept plain seconds ("900") or durations ("15m")
	AuthorizationCodeTTL            string `env:"AUTHORIZATION_CODE_TTL"`
	AccessTokenTTL                  string `env:"ACCESS_TOKEN_TTL"`
	ClientCredentialsAccessTokenTTL string `env:"CLIENT_CREDENTIALS_ACCESS_TOKEN_TTL"`
	RefreshTokenTTL                 string `env:"REFRESH_TOKEN_TTL"`

	// Signing key: a JWK document inline or a JWK/PEM file. The demo key is
	// used when neither is set.
	SigningKey     string `env:"SIGNING_KEY"`
	SigningKeyFile string `env:"SIGNING_KEY_FILE"`
	SigningKeyID   string `env:"SIGNING_KEY_ID"`

	// Storage: Redis when REDIS_URL is set, memory otherwise
	RedisURL       string `env:"REDIS_URL"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"oauth2:"`

	// Sign-in sessions and remembered consent
	SessionMaxAge  time.Duration `env:"SESSION_MAX_AGE" envDefault:"24h"`
	AccessGrantTTL time.Duration `env:"ACCESS_GRANT_TTL" envDefault:"15s"`

	// Token endpoint rate limiting (requests per second per client IP, 0 disables)
	RateLimit         float64 `env:"RATE_LIMIT" envDefault:"10"`
	RateLimitBurst    int     `env:"RATE_LIMIT_BURST" envDefault:"20"`
	TrustProxy        bool    `env:"TRUST_PROXY" envDefault:"false"`
	TrustedProxyCount int     `env:"TRUSTED_PROXY_COUNT" envDefault:"0"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	LogClientIPs   bool `env:"LOG_CLIENT_IPS" envDefault:"false"`

	// Logging: JSON to stdout, or to a rotated file when LOG_FILE is set
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`
	LogCompress   bool   `env:"LOG_COMPRESS" envDefault:"true"`
}

// LoadConfig reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.SigningKey != "" && c.SigningKeyFile != "" {
		return fmt.Errorf("SIGNING_KEY and SIGNING_KEY_FILE are mutually exclusive")
	}
	if c.AccessGrantTTL <= 0 {
		return fmt.Errorf("ACCESS_GRANT_TTL must be positive")
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive")
	}
	if _, err := c.logLevel(); err != nil {
		return err
	}
	if _, err := c.ServerConfig(); err != nil {
		return err
	}
	return nil
}

// ServerConfig maps the environment onto the protocol configuration
func (c *Config) ServerConfig() (server.Config, error) {
	cfg := server.Config{
		Issuer:          c.Issuer,
		SupportedScopes: trimAll(c.Scopes),
	}

	ttls := []struct {
		name  string
		value string
		dst   *int64
	}{
		{"AUTHORIZATION_CODE_TTL", c.AuthorizationCodeTTL, &cfg.AuthorizationCodeTTL},
		{"ACCESS_TOKEN_TTL", c.AccessTokenTTL, &cfg.AccessTokenTTL},
		{"CLIENT_CREDENTIALS_ACCESS_TOKEN_TTL", c.ClientCredentialsAccessTokenTTL, &cfg.ClientCredentialsAccessTokenTTL},
		{"REFRESH_TOKEN_TTL", c.RefreshTokenTTL, &cfg.RefreshTokenTTL},
	}
	for _, ttl := range ttls {
		if ttl.value == "" {
			continue
		}
		seconds, err := server.ParseTTL(ttl.value)
		if err != nil {
			return server.Config{}, fmt.Errorf("invalid %s: %w", ttl.name, err)
		}
		*ttl.dst = seconds
	}

	return cfg, nil
}

func (c *Config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
