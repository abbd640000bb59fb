package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/oauth2-server/instrumentation"
	"github.com/giantswarm/oauth2-server/internal/util"
	"github.com/giantswarm/oauth2-server/signing"
	"github.com/giantswarm/oauth2-server/storage"
)

// issueAccessToken signs a self-contained access token. It has no storage side effects.
func (s *Server) issueAccessToken(ctx context.Context, subject, clientID, grantType string, ttl int64, scope string) (string, error) {
	now := s.now()
	token, err := s.signer.Sign(ctx, signing.Claims{
		Issuer:    s.config.Issuer,
		Subject:   subject,
		ClientID:  clientID,
		Scope:     scope,
		ID:        uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Duration(ttl) * time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	instrumentation.AddOAuthFlowAttributes(trace.SpanFromContext(ctx), clientID, subject, scope)

	if s.metrics != nil {
		s.metrics.RecordTokenIssued(ctx, "access_token", grantType)
	}
	return token, nil
}

// issueRefreshToken generates and persists an opaque refresh token
func (s *Server) issueRefreshToken(ctx context.Context, subject, clientID, grantType, scope string) (string, error) {
	value, err := util.RandomHex(tokenBytes)
	if err != nil {
		return "", err
	}

	err = s.refreshTokenStore.SaveRefreshToken(ctx, &storage.RefreshToken{
		Token:     value,
		Subject:   subject,
		ClientID:  clientID,
		Scope:     scope,
		ExpiresAt: s.now().Add(time.Duration(s.config.RefreshTokenTTL) * time.Second),
	})
	if err != nil {
		return "", fmt.Errorf("failed to save refresh token: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordTokenIssued(ctx, "refresh_token", grantType)
	}
	return value, nil
}

// issueTokenPair issues an access token and a refresh token concurrently.
// Either failure fails the pair.
func (s *Server) issueTokenPair(ctx context.Context, subject, clientID, grantType, scope string) (*TokenResponse, error) {
	var accessToken, refreshToken string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accessToken, err = s.issueAccessToken(gctx, subject, clientID, grantType, s.config.AccessTokenTTL, scope)
		return err
	})
	g.Go(func() error {
		var err error
		refreshToken, err = s.issueRefreshToken(gctx, subject, clientID, grantType, scope)
		return err
	})
	if err := g.Wait(); err != nil {
		if refreshToken != "" {
			s.discardRefreshToken(ctx, refreshToken, clientID)
		}
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    s.config.AccessTokenTTL,
		RefreshToken: refreshToken,
		Scope:        scope,
	}, nil
}

// discardRefreshToken removes a refresh token that was issued but will not be
// handed out.
func (s *Server) discardRefreshToken(ctx context.Context, token, clientID string) {
	if err := s.refreshTokenStore.DeleteRefreshToken(ctx, token, clientID); err != nil {
		s.Logger.Warn("Failed to discard unused refresh token",
			"client_id", clientID,
			"token_prefix", util.SafeTruncate(token, 8),
			"error", err)
	}
}
