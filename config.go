package oauth

import (
	"time"
)

const (
	// DefaultMaxRequestBodyBytes bounds token request bodies
	DefaultMaxRequestBodyBytes = 64 << 10

	// DefaultRateLimitRetryAfter is the Retry-After value sent with 429 responses
	DefaultRateLimitRetryAfter = 60 * time.Second
)

// Config holds the HTTP adapter configuration. Protocol settings (issuer,
// scopes, lifetimes) belong to server.Config.
type Config struct {
	// Rate limiting configuration for the token endpoint
	RateLimit RateLimitConfig

	// Security settings
	Security SecurityConfig

	// MaxRequestBodyBytes bounds the size of token request bodies.
	// Default: 64 KiB
	MaxRequestBodyBytes int64
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate float64

	// Burst is the maximum burst size allowed per IP.
	Burst int

	// MaxEntries bounds the number of tracked IPs.
	MaxEntries int

	// CleanupInterval is how often to cleanup inactive rate limiters.
	CleanupInterval time.Duration
}

// SecurityConfig holds HTTP security settings
type SecurityConfig struct {
	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies in front of this server.
	// Default: 1
	TrustedProxyCount int
}

func (c *Config) applyDefaults() {
	if c.MaxRequestBodyBytes <= 0 {
		c.MaxRequestBodyBytes = DefaultMaxRequestBodyBytes
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = max(1, int(c.RateLimit.Rate))
	}
}
