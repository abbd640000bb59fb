package server

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth error codes (RFC 6749 sections 4.1.2.1 and 5.2)
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeServerError             = "server_error"
	ErrorCodeRateLimitExceeded       = "rate_limit_exceeded"
)

// OAuthError is a protocol error carrying the machine readable code, a human
// readable description and the HTTP status used on the token endpoint.
type OAuthError struct {
	Code        string
	Description string
	Status      int
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// ErrInvalidRequest indicates a missing or malformed parameter, or more than
// one client authentication mechanism.
func ErrInvalidRequest(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidRequest, desc, http.StatusBadRequest)
}

// ErrInvalidClient indicates client authentication failed
func ErrInvalidClient(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidClient, desc, http.StatusUnauthorized)
}

// ErrAccessDenied indicates the resource owner denied the request
func ErrAccessDenied(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeAccessDenied, desc, http.StatusForbidden)
}

// ErrInvalidScope indicates the requested scope is unknown or exceeds the granted scope
func ErrInvalidScope(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidScope, desc, http.StatusBadRequest)
}

// ErrInvalidGrant indicates the authorization code or refresh token is invalid, expired or consumed
func ErrInvalidGrant(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidGrant, desc, http.StatusBadRequest)
}

// ErrUnsupportedGrantType indicates the grant type is not supported
func ErrUnsupportedGrantType(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeUnsupportedGrantType, desc, http.StatusBadRequest)
}

// ErrUnsupportedResponseType indicates the response type is not supported
func ErrUnsupportedResponseType(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeUnsupportedResponseType, desc, http.StatusBadRequest)
}

// ErrServerError indicates an unexpected failure
func ErrServerError(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeServerError, desc, http.StatusInternalServerError)
}

// ErrRateLimitExceeded indicates the caller exceeded the token endpoint rate limit
func ErrRateLimitExceeded(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
}

// Error descriptions
const (
	descMissingCredentials = "the client authentication failed due to missing credentials"
	descInvalidCredentials = "the client authentication failed due to invalid credentials"
	descMultipleMechanisms = "the request utilizes more than one mechanism for authenticating the client"
	descAccessDenied       = "the resource owner denied the request"
	descInvalidCode        = "the provided authorization code is invalid, expired or revoked"
	descInvalidRefresh     = "the provided refresh token is invalid, expired or revoked"
	descServerError        = "the authorization server encountered an unexpected condition that prevented it from fulfilling the request"
)

func errMissingParameter(name string) *OAuthError {
	return ErrInvalidRequest(fmt.Sprintf("the request is missing a required parameter %q", name))
}

func errInvalidParameter(name string) *OAuthError {
	return ErrInvalidRequest(fmt.Sprintf("the request includes an invalid value for parameter %q", name))
}

func errInvalidScopeValue(scope string) *OAuthError {
	return ErrInvalidScope(fmt.Sprintf("the requested scope is invalid, unknown, or malformed %q", scope))
}

// AsOAuthError returns err as an *OAuthError, or a server_error when err is
// not a protocol error. It returns nil for a nil error.
func AsOAuthError(err error) *OAuthError {
	if err == nil {
		return nil
	}
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return ErrServerError(descServerError)
}
