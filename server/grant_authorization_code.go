package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/storage"
)

// authorizationCodeGrant redeems an authorization code (RFC 6749 section 4.1.3)
func (s *Server) authorizationCodeGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, err := s.AuthenticateClient(ctx, req.ClientCredentials)
	if err != nil {
		return nil, err
	}

	if req.Code == "" {
		return nil, errMissingParameter("code")
	}

	clientIP := security.GetClientIP(ctx)

	code, err := s.codeStore.GetAuthorizationCode(ctx, req.Code, client.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
			s.Auditor.LogInvalidGrant(client.ClientID, clientIP, GrantTypeAuthorizationCode, "authorization_code_not_found")
			return nil, ErrInvalidGrant(descInvalidCode)
		}
		return nil, fmt.Errorf("failed to load authorization code: %w", err)
	}

	if code.Expired(s.now()) {
		if err := s.codeStore.DeleteAuthorizationCode(ctx, req.Code, client.ClientID); err != nil &&
			!errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
			return nil, fmt.Errorf("failed to delete expired authorization code: %w", err)
		}
		s.Auditor.LogInvalidGrant(client.ClientID, clientIP, GrantTypeAuthorizationCode, "authorization_code_expired")
		return nil, ErrInvalidGrant(descInvalidCode)
	}

	if req.RedirectURI != code.RedirectURI {
		s.Auditor.LogInvalidGrant(client.ClientID, clientIP, GrantTypeAuthorizationCode, "redirect_uri_mismatch")
		return nil, errInvalidParameter("redirect_uri")
	}

	resp, err := s.issueTokenPair(ctx, code.Subject, client.ClientID, GrantTypeAuthorizationCode, code.Scope)
	if err != nil {
		return nil, err
	}

	// The code is consumed only once both tokens exist. Losing the delete to a
	// concurrent redemption means that request won.
	if err := s.codeStore.DeleteAuthorizationCode(ctx, req.Code, client.ClientID); err != nil {
		s.discardRefreshToken(ctx, resp.RefreshToken, client.ClientID)
		if errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
			s.Auditor.LogInvalidGrant(client.ClientID, clientIP, GrantTypeAuthorizationCode, "authorization_code_already_redeemed")
			return nil, ErrInvalidGrant(descInvalidCode)
		}
		return nil, fmt.Errorf("failed to delete authorization code: %w", err)
	}

	s.Auditor.LogTokenIssued(code.Subject, client.ClientID, clientIP, GrantTypeAuthorizationCode, code.Scope)
	return resp, nil
}
