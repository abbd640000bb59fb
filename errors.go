package oauth

import (
	"github.com/giantswarm/oauth2-server/server"
)

// OAuth error codes
const (
	ErrorCodeInvalidRequest          = server.ErrorCodeInvalidRequest
	ErrorCodeInvalidClient           = server.ErrorCodeInvalidClient
	ErrorCodeAccessDenied            = server.ErrorCodeAccessDenied
	ErrorCodeInvalidScope            = server.ErrorCodeInvalidScope
	ErrorCodeInvalidGrant            = server.ErrorCodeInvalidGrant
	ErrorCodeUnsupportedGrantType    = server.ErrorCodeUnsupportedGrantType
	ErrorCodeUnsupportedResponseType = server.ErrorCodeUnsupportedResponseType
	ErrorCodeServerError             = server.ErrorCodeServerError
	ErrorCodeRateLimitExceeded       = server.ErrorCodeRateLimitExceeded
)

// OAuthError represents an OAuth 2.0 error response
type OAuthError = server.OAuthError

// NewOAuthError creates a new OAuth error
var NewOAuthError = server.NewOAuthError

// Common OAuth errors
var (
	ErrInvalidRequest          = server.ErrInvalidRequest
	ErrInvalidClient           = server.ErrInvalidClient
	ErrAccessDenied            = server.ErrAccessDenied
	ErrInvalidScope            = server.ErrInvalidScope
	ErrInvalidGrant            = server.ErrInvalidGrant
	ErrUnsupportedGrantType    = server.ErrUnsupportedGrantType
	ErrUnsupportedResponseType = server.ErrUnsupportedResponseType
	ErrServerError             = server.ErrServerError
	ErrRateLimitExceeded       = server.ErrRateLimitExceeded
)

// AsOAuthError returns err as an *OAuthError, coercing anything else to server_error
var AsOAuthError = server.AsOAuthError
