package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors returned by storage implementations when a record does not exist.
// Callers check them with errors.Is; any other error is treated as a backend failure.
var (
	ErrClientNotFound            = errors.New("client not found")
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")
	ErrRefreshTokenNotFound      = errors.New("refresh token not found")
	ErrAccessGrantNotFound       = errors.New("access grant not found")
)

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrAuthorizationCodeNotFound) ||
		errors.Is(err, ErrRefreshTokenNotFound) ||
		errors.Is(err, ErrAccessGrantNotFound)
}

// ClientStore resolves registered clients.
type ClientStore interface {
	// GetClient retrieves a client by ID. Returns ErrClientNotFound if it does not exist.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// AuthorizationCodeStore persists issued authorization codes.
type AuthorizationCodeStore interface {
	// SaveAuthorizationCode stores an authorization code until its ExpiresAt.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode retrieves a code issued to clientID.
	// Returns ErrAuthorizationCodeNotFound if it does not exist.
	GetAuthorizationCode(ctx context.Context, code, clientID string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes a code issued to clientID.
	// Returns ErrAuthorizationCodeNotFound if nothing was deleted.
	DeleteAuthorizationCode(ctx context.Context, code, clientID string) error
}

// RefreshTokenStore persists issued refresh tokens.
type RefreshTokenStore interface {
	// SaveRefreshToken stores a refresh token until its ExpiresAt.
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken retrieves a refresh token issued to clientID.
	// Returns ErrRefreshTokenNotFound if it does not exist.
	GetRefreshToken(ctx context.Context, token, clientID string) (*RefreshToken, error)

	// DeleteRefreshToken removes a refresh token issued to clientID.
	// Returns ErrRefreshTokenNotFound if nothing was deleted.
	DeleteRefreshToken(ctx context.Context, token, clientID string) error
}

// AccessGrantStore remembers which scopes a resource owner granted a client.
// Hosts use it to skip the consent interaction for repeated requests.
type AccessGrantStore interface {
	// SaveAccessGrant stores a grant until its ExpiresAt, replacing any
	// earlier grant of the same subject to the same client.
	SaveAccessGrant(ctx context.Context, grant *AccessGrant) error

	// GetAccessGrant retrieves the grant of subject to clientID.
	// Returns ErrAccessGrantNotFound if it does not exist or has expired.
	GetAccessGrant(ctx context.Context, subject, clientID string) (*AccessGrant, error)
}

// Client represents a registered OAuth client
type Client struct {
	ClientID     string   `json:"client_id"`
	SecretHash   []byte   `json:"secret_hash,omitempty"` // bcrypt hash, empty for public clients
	RedirectURIs []string `json:"redirect_uris"`
	ClientName   string   `json:"client_name,omitempty"`
}

// NewClient builds a client record, hashing the plaintext secret with bcrypt.
// An empty secret produces a public client.
func NewClient(clientID, secret string, redirectURIs ...string) (*Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}

	client := &Client{
		ClientID:     clientID,
		RedirectURIs: redirectURIs,
	}

	if secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash client secret: %w", err)
		}
		client.SecretHash = hash
	}

	return client, nil
}

// IsPublic reports whether the client has no registered secret.
func (c *Client) IsPublic() bool {
	return len(c.SecretHash) == 0
}

// AuthorizationCode represents an issued authorization code
type AuthorizationCode struct {
	Code        string    `json:"code"`
	Subject     string    `json:"subject"`
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri,omitempty"` // as sent in the authorization request
	Scope       string    `json:"scope,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the code's expiry lies before now, at second precision.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return c.ExpiresAt.Unix() < now.Unix()
}

// RefreshToken represents an issued refresh token
type RefreshToken struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token's expiry lies before now, at second precision.
func (t *RefreshToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Unix() < now.Unix()
}

// AccessGrant records the scopes a resource owner consented to for a client
type AccessGrant struct {
	Subject   string    `json:"subject"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the grant's expiry lies before now, at second precision.
func (g *AccessGrant) Expired(now time.Time) bool {
	return g.ExpiresAt.Unix() < now.Unix()
}

// Covers reports whether every scope in scopes was granted
func (g *AccessGrant) Covers(scopes []string) bool {
	for _, scope := range scopes {
		if !slices.Contains(g.Scopes, scope) {
			return false
		}
	}
	return true
}
