package oauth

import (
	"github.com/giantswarm/oauth2-server/server"
)

// ErrorResponse represents an OAuth error response body (RFC 6749 section 5.2)
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description"`
}

// TokenResponse is a successful access token response (RFC 6749 section 5.1)
type TokenResponse = server.TokenResponse

// AuthorizationServerMetadata is the RFC 8414 metadata document
type AuthorizationServerMetadata = server.AuthorizationServerMetadata

// InteractionRequired is handed to the InteractionHandler when the resource
// owner must sign in or decide on an authorization request
type InteractionRequired = server.InteractionRequired
