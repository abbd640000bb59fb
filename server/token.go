package server

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/oauth2-server/instrumentation"
)

// Grant types
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeRefreshToken      = "refresh_token"
)

// TokenTypeBearer is the token_type of every access token
const TokenTypeBearer = "Bearer"

// TokenRequest holds the parameters of an access token request (RFC 6749
// section 4). Empty fields are treated as absent.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	RefreshToken string
	Scope        string

	ClientCredentials
}

// TokenRequestFromForm reads a token request from the form body and the
// Authorization header.
func TokenRequestFromForm(authorization string, form url.Values) *TokenRequest {
	return &TokenRequest{
		GrantType:    form.Get("grant_type"),
		Code:         form.Get("code"),
		RedirectURI:  form.Get("redirect_uri"),
		RefreshToken: form.Get("refresh_token"),
		Scope:        form.Get("scope"),
		ClientCredentials: ClientCredentials{
			Authorization: authorization,
			ClientID:      form.Get("client_id"),
			ClientSecret:  form.Get("client_secret"),
		},
	}
}

// TokenResponse is a successful access token response (RFC 6749 section 5.1)
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Token handles an access token request by dispatching on grant_type.
// All failures are returned as errors; *OAuthError values carry the status
// of the error response.
func (s *Server) Token(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	ctx, span := s.tracer.Start(ctx, "server.Token")
	defer span.End()

	span.SetAttributes(attribute.String(instrumentation.AttrGrantType, req.GrantType))
	start := time.Now()

	var (
		resp *TokenResponse
		err  error
	)
	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		resp, err = s.authorizationCodeGrant(ctx, req)
	case GrantTypeClientCredentials:
		resp, err = s.clientCredentialsGrant(ctx, req)
	case GrantTypeRefreshToken:
		resp, err = s.refreshTokenGrant(ctx, req)
	default:
		err = s.unsupportedGrant(ctx, req)
	}

	if err != nil {
		oauthErr := AsOAuthError(err)
		if oauthErr.Code == ErrorCodeServerError {
			s.Logger.Error("Token request failed",
				"grant_type", req.GrantType,
				"error", err)
		}
		instrumentation.AddOAuthErrorAttributes(span, oauthErr.Code, oauthErr.Description)
		instrumentation.RecordError(span, err)
		s.recordTokenRequest(ctx, req.GrantType, oauthErr.Code)
		return nil, err
	}

	s.Logger.Debug("Token request completed",
		"grant_type", req.GrantType,
		"duration", time.Since(start))
	span.SetAttributes(attribute.Int64(instrumentation.AttrExpiresIn, resp.ExpiresIn))
	instrumentation.SetSpanSuccess(span)
	s.recordTokenRequest(ctx, req.GrantType, instrumentation.ResultSuccess)
	return resp, nil
}

// unsupportedGrant authenticates the client before rejecting the grant type
// so grant support cannot be probed without credentials.
func (s *Server) unsupportedGrant(ctx context.Context, req *TokenRequest) error {
	if _, err := s.AuthenticateClient(ctx, req.ClientCredentials); err != nil {
		return err
	}
	if req.GrantType == "" {
		return errMissingParameter("grant_type")
	}
	return ErrUnsupportedGrantType(fmt.Sprintf("the authorization grant type %q is not supported by the authorization server", req.GrantType))
}

func (s *Server) recordTokenRequest(ctx context.Context, grantType, result string) {
	if s.metrics != nil {
		s.metrics.RecordTokenRequest(ctx, grantType, result)
	}
}
