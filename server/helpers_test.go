package server

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/giantswarm/oauth2-server/internal/testutil"
	"github.com/giantswarm/oauth2-server/signing"
	"github.com/giantswarm/oauth2-server/storage"
	"github.com/giantswarm/oauth2-server/storage/mock"
)

type testEnv struct {
	srv    *Server
	store  *mock.MockStore
	clock  *testutil.MockTime
	signer *signing.JWKSigner
	client *storage.Client
}

func newTestSigner(t *testing.T) *signing.JWKSigner {
	t.Helper()
	signer, err := signing.NewSignerFromJSON([]byte(testutil.TestSigningJWK))
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	return signer
}

func newTestEnv(t *testing.T, clients ...*storage.Client) *testEnv {
	t.Helper()

	client := testutil.NewTestClient(t)
	store := mock.NewMockStore(append([]*storage.Client{client, testutil.NewTestPublicClient(t)}, clients...)...)
	signer := newTestSigner(t)

	srv, err := New(store, store, store, signer, Config{
		Issuer:          testutil.TestIssuer,
		SupportedScopes: []string{"api:read", "api:write"},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	clock := testutil.NewMockTime(time.Now())
	srv.SetClock(clock.Now)

	return &testEnv{srv: srv, store: store, clock: clock, signer: signer, client: client}
}

func authnAs(subject string) Authenticator {
	return AuthenticatorFunc(func(context.Context, *storage.Client, *AuthorizationRequest) (Outcome[string], error) {
		return Decided(subject), nil
	})
}

func authzDecision(granted bool) Authorizer {
	return AuthorizerFunc(func(context.Context, *storage.Client, *AuthorizationRequest, string) (Outcome[bool], error) {
		return Decided(granted), nil
	})
}

func codeRequest(clientID, redirectURI, scope, state string) *AuthorizationRequest {
	return &AuthorizationRequest{
		ResponseType: ResponseTypeCode,
		ClientID:     clientID,
		RedirectURI:  redirectURI,
		Scope:        scope,
		State:        state,
	}
}

// mustRedirect fails the test unless Authorize returned a redirect
func mustRedirect(t *testing.T, outcome AuthorizeOutcome, err error) *url.URL {
	t.Helper()
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	redirect, ok := outcome.(*Redirect)
	if !ok {
		t.Fatalf("Authorize() outcome = %T, want *Redirect", outcome)
	}
	return redirect.URL
}

// issueCode runs a successful authorization request and returns the code
func (e *testEnv) issueCode(t *testing.T, redirectURI, scope string) string {
	t.Helper()
	outcome, err := e.srv.Authorize(context.Background(),
		codeRequest(testutil.TestClientID, redirectURI, scope, ""),
		authnAs(testutil.TestSubject), authzDecision(true))
	u := mustRedirect(t, outcome, err)

	code := u.Query().Get("code")
	if code == "" {
		t.Fatalf("redirect %s carries no code", u)
	}
	return code
}

func confidentialPost() ClientCredentials {
	return ClientCredentials{ClientID: testutil.TestClientID, ClientSecret: testutil.TestClientSecret}
}

// assertOAuthError fails unless err is an *OAuthError with the given code
func assertOAuthError(t *testing.T, err error, code string) *OAuthError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	oauthErr, ok := err.(*OAuthError)
	if !ok {
		t.Fatalf("error = %T (%v), want *OAuthError", err, err)
	}
	if oauthErr.Code != code {
		t.Fatalf("error code = %q (%s), want %q", oauthErr.Code, oauthErr.Description, code)
	}
	return oauthErr
}
