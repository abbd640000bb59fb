package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *OAuthError
		wantCode   string
		wantStatus int
	}{
		{"invalid_request", ErrInvalidRequest("d"), ErrorCodeInvalidRequest, http.StatusBadRequest},
		{"invalid_client", ErrInvalidClient("d"), ErrorCodeInvalidClient, http.StatusUnauthorized},
		{"access_denied", ErrAccessDenied("d"), ErrorCodeAccessDenied, http.StatusForbidden},
		{"invalid_scope", ErrInvalidScope("d"), ErrorCodeInvalidScope, http.StatusBadRequest},
		{"invalid_grant", ErrInvalidGrant("d"), ErrorCodeInvalidGrant, http.StatusBadRequest},
		{"unsupported_grant_type", ErrUnsupportedGrantType("d"), ErrorCodeUnsupportedGrantType, http.StatusBadRequest},
		{"unsupported_response_type", ErrUnsupportedResponseType("d"), ErrorCodeUnsupportedResponseType, http.StatusBadRequest},
		{"server_error", ErrServerError("d"), ErrorCodeServerError, http.StatusInternalServerError},
		{"rate_limit_exceeded", ErrRateLimitExceeded("d"), ErrorCodeRateLimitExceeded, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.wantStatus)
			}
			if tt.err.Error() != tt.wantCode+": d" {
				t.Errorf("Error() = %q", tt.err.Error())
			}
		})
	}
}

func TestAsOAuthError(t *testing.T) {
	if AsOAuthError(nil) != nil {
		t.Error("AsOAuthError(nil) should be nil")
	}

	wrapped := fmt.Errorf("grant failed: %w", ErrInvalidGrant("expired"))
	if got := AsOAuthError(wrapped); got.Code != ErrorCodeInvalidGrant {
		t.Errorf("AsOAuthError(wrapped).Code = %q, want %q", got.Code, ErrorCodeInvalidGrant)
	}

	got := AsOAuthError(errors.New("connection refused"))
	if got.Code != ErrorCodeServerError || got.Status != http.StatusInternalServerError {
		t.Errorf("AsOAuthError(plain) = %+v, want server_error 500", got)
	}
}
