package server

import (
	"context"

	"github.com/giantswarm/oauth2-server/security"
)

// clientCredentialsGrant issues an access token to a confidential client
// acting on its own behalf (RFC 6749 section 4.4). No refresh token is issued.
func (s *Server) clientCredentialsGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	client, err := s.AuthenticateClient(ctx, req.ClientCredentials, confidentialClientAuthMethods...)
	if err != nil {
		return nil, err
	}

	if err := s.assertScope(req.Scope); err != nil {
		return nil, err
	}

	ttl := s.config.ClientCredentialsAccessTokenTTL
	accessToken, err := s.issueAccessToken(ctx, client.ClientID, client.ClientID, GrantTypeClientCredentials, ttl, req.Scope)
	if err != nil {
		return nil, err
	}

	s.Auditor.LogTokenIssued(client.ClientID, client.ClientID, security.GetClientIP(ctx), GrantTypeClientCredentials, req.Scope)

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   ttl,
		Scope:       req.Scope,
	}, nil
}
