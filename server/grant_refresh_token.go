package server

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth2-server/instrumentation"
	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/storage"
)

// refreshTokenGrant exchanges a refresh token for a new access token and a
// new refresh token (RFC 6749 section 6). The presented token is rotated.
func (s *Server) refreshTokenGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, err := s.AuthenticateClient(ctx, req.ClientCredentials)
	if err != nil {
		return nil, err
	}

	if req.RefreshToken == "" {
		return nil, errMissingParameter("refresh_token")
	}

	clientIP := security.GetClientIP(ctx)

	stored, err := s.refreshTokenStore.GetRefreshToken(ctx, req.RefreshToken, client.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			s.Auditor.LogInvalidGrant(client.ClientID, clientIP, GrantTypeRefreshToken, "refresh_token_not_found")
			return nil, ErrInvalidGrant(descInvalidRefresh)
		}
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}

	if stored.Expired(s.now()) {
		if err := s.refreshTokenStore.DeleteRefreshToken(ctx, req.RefreshToken, client.ClientID); err != nil &&
			!errors.Is(err, storage.ErrRefreshTokenNotFound) {
			return nil, fmt.Errorf("failed to delete expired refresh token: %w", err)
		}
		s.Auditor.LogInvalidGrant(client.ClientID, clientIP, GrantTypeRefreshToken, "refresh_token_expired")
		return nil, ErrInvalidGrant(descInvalidRefresh)
	}

	scope := stored.Scope
	if req.Scope != "" {
		if err := assertScopeSubset(req.Scope, stored.Scope); err != nil {
			s.Auditor.LogScopeEscalationAttempt(stored.Subject, client.ClientID, req.Scope, stored.Scope)
			return nil, err
		}
		scope = req.Scope
	}

	resp, err := s.issueTokenPair(ctx, stored.Subject, client.ClientID, GrantTypeRefreshToken, scope)
	if err != nil {
		return nil, err
	}

	if err := s.refreshTokenStore.DeleteRefreshToken(ctx, req.RefreshToken, client.ClientID); err != nil {
		s.discardRefreshToken(ctx, resp.RefreshToken, client.ClientID)
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			s.Auditor.LogInvalidGrant(client.ClientID, clientIP, GrantTypeRefreshToken, "refresh_token_already_redeemed")
			return nil, ErrInvalidGrant(descInvalidRefresh)
		}
		return nil, fmt.Errorf("failed to delete refresh token: %w", err)
	}

	instrumentation.SetSpanAttributes(trace.SpanFromContext(ctx), attribute.Bool(instrumentation.AttrTokenRotated, true))
	s.Auditor.LogTokenRefreshed(stored.Subject, client.ClientID, clientIP, true)
	return resp, nil
}
