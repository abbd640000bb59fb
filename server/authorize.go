package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth2-server/instrumentation"
	"github.com/giantswarm/oauth2-server/internal/util"
	"github.com/giantswarm/oauth2-server/storage"
)

// ResponseTypeCode is the only supported response type
const ResponseTypeCode = "code"

// tokenBytes is the entropy of authorization codes and refresh tokens
const tokenBytes = 20

// AuthorizationRequest holds the parameters of an authorization request
// (RFC 6749 section 4.1.1). Empty fields are treated as absent.
type AuthorizationRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string

	// Query is the full query of the request, for hosts that need more
	// parameters than the protocol fields above.
	Query url.Values
}

// AuthorizationRequestFromQuery reads an authorization request from query parameters
func AuthorizationRequestFromQuery(query url.Values) *AuthorizationRequest {
	return &AuthorizationRequest{
		ResponseType: query.Get("response_type"),
		ClientID:     query.Get("client_id"),
		RedirectURI:  query.Get("redirect_uri"),
		Scope:        query.Get("scope"),
		State:        query.Get("state"),
		Query:        query,
	}
}

// Authorize handles an authorization request.
//
// Failures to resolve the client or the redirect URI are returned as errors,
// since no redirect target is known yet. Every later failure is rendered into
// the returned *Redirect. When authn or authz needs the resource owner the
// outcome is *InteractionRequired and nothing is persisted.
func (s *Server) Authorize(ctx context.Context, req *AuthorizationRequest, authn Authenticator, authz Authorizer) (AuthorizeOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "server.Authorize")
	defer span.End()

	span.SetAttributes(
		attribute.String(instrumentation.AttrClientID, req.ClientID),
		attribute.String(instrumentation.AttrResponseType, req.ResponseType),
	)

	client, redirectURI, err := s.resolveClientAndRedirect(ctx, req)
	if err != nil {
		s.recordAuthorizationRequest(ctx, req.ClientID, AsOAuthError(err).Code)
		instrumentation.RecordError(span, err)
		return nil, err
	}

	switch req.ResponseType {
	case ResponseTypeCode:
	case "":
		return s.redirectError(ctx, redirectURI, req, errMissingParameter("response_type")), nil
	default:
		return s.redirectError(ctx, redirectURI, req,
			ErrUnsupportedResponseType(fmt.Sprintf("the authorization server does not support response type %q", req.ResponseType))), nil
	}

	outcome, err := s.authorizeCode(ctx, client, redirectURI, req, authn, authz)
	if err != nil {
		return s.redirectError(ctx, redirectURI, req, err), nil
	}

	if interaction, ok := outcome.(*InteractionRequired); ok {
		span.SetAttributes(attribute.String(instrumentation.AttrInteraction, interaction.Kind.String()))
		s.recordAuthorizationRequest(ctx, client.ClientID, instrumentation.ResultInteraction)
	} else {
		s.recordAuthorizationRequest(ctx, client.ClientID, instrumentation.ResultSuccess)
	}
	instrumentation.SetSpanSuccess(span)
	return outcome, nil
}

// resolveClientAndRedirect loads the client and picks the redirect URI
func (s *Server) resolveClientAndRedirect(ctx context.Context, req *AuthorizationRequest) (*storage.Client, *url.URL, error) {
	if req.ClientID == "" {
		return nil, nil, errMissingParameter("client_id")
	}

	client, err := s.clientStore.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, nil, errInvalidParameter("client_id")
		}
		return nil, nil, fmt.Errorf("failed to load client: %w", err)
	}

	redirect := req.RedirectURI
	if redirect == "" {
		if len(client.RedirectURIs) != 1 {
			return nil, nil, errMissingParameter("redirect_uri")
		}
		redirect = client.RedirectURIs[0]
	} else if !slices.Contains(client.RedirectURIs, redirect) {
		s.Auditor.LogInvalidRedirect(client.ClientID, redirect)
		return nil, nil, errInvalidParameter("redirect_uri")
	}

	u, err := url.Parse(redirect)
	if err != nil || !u.IsAbs() {
		s.Auditor.LogInvalidRedirect(client.ClientID, redirect)
		return nil, nil, errInvalidParameter("redirect_uri")
	}

	return client, u, nil
}

// authorizeCode runs the response_type=code steps after resolution
func (s *Server) authorizeCode(
	ctx context.Context,
	client *storage.Client,
	redirectURI *url.URL,
	req *AuthorizationRequest,
	authn Authenticator,
	authz Authorizer,
) (AuthorizeOutcome, error) {
	if req.State != "" && !isVisibleASCII(req.State) {
		return nil, errInvalidParameter("state")
	}

	if err := s.assertScope(req.Scope); err != nil {
		return nil, err
	}

	authnOutcome, err := authn.Authenticate(ctx, client, req)
	if err != nil {
		return nil, err
	}
	subject, decided := authnOutcome.Value()
	if !decided {
		return &InteractionRequired{Kind: InteractionUnauthenticated, Client: client, Request: req}, nil
	}

	authzOutcome, err := authz.Authorize(ctx, client, req, subject)
	if err != nil {
		return nil, err
	}
	granted, decided := authzOutcome.Value()
	if !decided {
		return &InteractionRequired{Kind: InteractionUnresolvedAuthorization, Client: client, Request: req, Subject: subject}, nil
	}
	if !granted {
		s.Auditor.LogAccessDenied(subject, client.ClientID)
		return nil, ErrAccessDenied(descAccessDenied)
	}

	code, err := util.RandomHex(tokenBytes)
	if err != nil {
		return nil, err
	}

	authCode := &storage.AuthorizationCode{
		Code:        code,
		Subject:     subject,
		ClientID:    client.ClientID,
		RedirectURI: req.RedirectURI,
		Scope:       req.Scope,
		ExpiresAt:   s.now().Add(time.Duration(s.config.AuthorizationCodeTTL) * time.Second),
	}
	if err := s.codeStore.SaveAuthorizationCode(ctx, authCode); err != nil {
		return nil, fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.Auditor.LogAuthorizationCodeIssued(subject, client.ClientID, req.Scope)
	instrumentation.AddOAuthFlowAttributes(trace.SpanFromContext(ctx), client.ClientID, subject, req.Scope)
	s.Logger.Debug("Authorization code issued",
		"client_id", client.ClientID,
		"code_prefix", util.SafeTruncate(code, 8))

	u := withQuery(redirectURI, req.State, url.Values{"code": {code}})
	return &Redirect{URL: u}, nil
}

// redirectError renders err into the redirect URI. Protocol errors are kept
// as they are; anything else is logged and replaced by server_error.
func (s *Server) redirectError(ctx context.Context, redirectURI *url.URL, req *AuthorizationRequest, err error) *Redirect {
	oauthErr := AsOAuthError(err)
	if oauthErr.Code == ErrorCodeServerError {
		s.Logger.Error("Authorization request failed", "client_id", req.ClientID, "error", err)
	}

	s.recordAuthorizationRequest(ctx, req.ClientID, oauthErr.Code)

	return &Redirect{URL: withQuery(redirectURI, req.State, url.Values{
		"error":             {oauthErr.Code},
		"error_description": {oauthErr.Description},
	})}
}

// withQuery returns a copy of base with params and state added to its query
func withQuery(base *url.URL, state string, params url.Values) *url.URL {
	u := *base
	q := u.Query()
	if state != "" {
		q.Set("state", state)
	}
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return &u
}

// isVisibleASCII reports whether s only contains %x20-7E (RFC 6749 appendix A.5)
func isVisibleASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}

func (s *Server) recordAuthorizationRequest(ctx context.Context, clientID, result string) {
	if s.metrics != nil {
		s.metrics.RecordAuthorizationRequest(ctx, clientID, result)
	}
}
