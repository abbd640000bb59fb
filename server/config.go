package server

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/giantswarm/oauth2-server/internal/util"
)

// Default lifetimes in seconds
const (
	DefaultAuthorizationCodeTTL            int64 = 60      // 1 minute
	DefaultAccessTokenTTL                  int64 = 900     // 15 minutes
	DefaultClientCredentialsAccessTokenTTL int64 = 3600    // 1 hour
	DefaultRefreshTokenTTL                 int64 = 2592000 // 30 days
)

// Config holds OAuth server configuration. It is copied by New and not
// modified afterwards.
type Config struct {
	// Issuer is the server's issuer identifier (base URL). Endpoint URLs in the
	// metadata document are derived from it.
	Issuer string

	// SupportedScopes lists the scopes clients may request.
	// When empty, any request carrying a scope is rejected with invalid_scope.
	SupportedScopes []string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 60 (1 minute)

	// AccessTokenTTL is how long access tokens issued to resource owners are valid
	AccessTokenTTL int64 // seconds, default: 900 (15 minutes)

	// ClientCredentialsAccessTokenTTL is how long client_credentials access tokens are valid
	ClientCredentialsAccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid
	RefreshTokenTTL int64 // seconds, default: 2592000 (30 days)
}

// applyDefaults fills zero lifetimes and normalizes the issuer
func (c *Config) applyDefaults() {
	c.Issuer = util.NormalizeURL(c.Issuer)

	if c.AuthorizationCodeTTL == 0 {
		c.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.ClientCredentialsAccessTokenTTL == 0 {
		c.ClientCredentialsAccessTokenTTL = DefaultClientCredentialsAccessTokenTTL
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
}

// Validate checks the configuration after defaults were applied
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}

	// RFC 8414 section 2: https URL without query or fragment. Plain http is
	// accepted for local development.
	u, err := url.Parse(c.Issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("issuer must be an http(s) URL, got %q", c.Issuer)
	}
	if u.Host == "" {
		return fmt.Errorf("issuer must include a host, got %q", c.Issuer)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("issuer must not contain a query or fragment")
	}

	ttls := map[string]int64{
		"authorization code TTL":               c.AuthorizationCodeTTL,
		"access token TTL":                     c.AccessTokenTTL,
		"client credentials access token TTL": c.ClientCredentialsAccessTokenTTL,
		"refresh token TTL":                    c.RefreshTokenTTL,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, ttl)
		}
	}

	for _, scope := range c.SupportedScopes {
		if scope == "" || !isScopeToken(scope) {
			return fmt.Errorf("invalid supported scope %q", scope)
		}
	}
	if len(slices.Compact(slices.Sorted(slices.Values(c.SupportedScopes)))) != len(c.SupportedScopes) {
		return fmt.Errorf("supported scopes must not contain duplicates")
	}

	return nil
}
