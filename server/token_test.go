package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/oauth2-server/internal/testutil"
	"github.com/giantswarm/oauth2-server/signing"
	"github.com/giantswarm/oauth2-server/storage"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{40}$`)

func codeTokenRequest(code, redirectURI string) *TokenRequest {
	return &TokenRequest{
		GrantType:         GrantTypeAuthorizationCode,
		Code:              code,
		RedirectURI:       redirectURI,
		ClientCredentials: confidentialPost(),
	}
}

func refreshTokenRequest(token, scope string) *TokenRequest {
	return &TokenRequest{
		GrantType:         GrantTypeRefreshToken,
		RefreshToken:      token,
		Scope:             scope,
		ClientCredentials: confidentialPost(),
	}
}

func TestTokenRequestFromForm(t *testing.T) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {"abc"},
		"redirect_uri":  {testutil.TestRedirectURI},
		"refresh_token": {"rt"},
		"scope":         {"api:read"},
		"client_id":     {"id"},
		"client_secret": {"secret"},
	}

	req := TokenRequestFromForm("Basic xyz", form)
	if req.GrantType != "authorization_code" || req.Code != "abc" || req.RedirectURI != testutil.TestRedirectURI ||
		req.RefreshToken != "rt" || req.Scope != "api:read" {
		t.Errorf("unexpected request %+v", req)
	}
	if req.Authorization != "Basic xyz" || req.ClientID != "id" || req.ClientSecret != "secret" {
		t.Errorf("unexpected credentials %+v", req.ClientCredentials)
	}
}

func TestToken_Dispatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("missing grant_type", func(t *testing.T) {
		_, err := env.srv.Token(ctx, &TokenRequest{ClientCredentials: confidentialPost()})
		oauthErr := assertOAuthError(t, err, ErrorCodeInvalidRequest)
		if oauthErr.Description != `the request is missing a required parameter "grant_type"` {
			t.Errorf("Description = %q", oauthErr.Description)
		}
	})

	t.Run("unknown grant_type", func(t *testing.T) {
		_, err := env.srv.Token(ctx, &TokenRequest{GrantType: "password", ClientCredentials: confidentialPost()})
		oauthErr := assertOAuthError(t, err, ErrorCodeUnsupportedGrantType)
		if oauthErr.Description != `the authorization grant type "password" is not supported by the authorization server` {
			t.Errorf("Description = %q", oauthErr.Description)
		}
	})

	t.Run("client is authenticated before the grant type is rejected", func(t *testing.T) {
		_, err := env.srv.Token(ctx, &TokenRequest{GrantType: "password"})
		assertOAuthError(t, err, ErrorCodeInvalidClient)

		_, err = env.srv.Token(ctx, &TokenRequest{ClientCredentials: ClientCredentials{ClientID: testutil.TestClientID, ClientSecret: "wrong"}})
		assertOAuthError(t, err, ErrorCodeInvalidClient)
	})
}

func TestToken_AuthorizationCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code := env.issueCode(t, testutil.TestRedirectURI, "api:read api:write")

	resp, err := env.srv.Token(ctx, codeTokenRequest(code, testutil.TestRedirectURI))
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	if resp.TokenType != "Bearer" {
		t.Errorf("TokenType = %q", resp.TokenType)
	}
	if resp.ExpiresIn != 900 {
		t.Errorf("ExpiresIn = %d, want 900", resp.ExpiresIn)
	}
	if resp.Scope != "api:read api:write" {
		t.Errorf("Scope = %q", resp.Scope)
	}
	if !hexToken.MatchString(resp.RefreshToken) {
		t.Errorf("RefreshToken = %q, want 40 hex characters", resp.RefreshToken)
	}

	claims, err := signing.Verify(resp.AccessToken, env.signer.PublicKey())
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.Issuer != testutil.TestIssuer || claims.Subject != testutil.TestSubject || claims.ClientID != testutil.TestClientID {
		t.Errorf("unexpected claims %+v", claims)
	}
	if claims.Scope != "api:read api:write" {
		t.Errorf("scope claim = %q", claims.Scope)
	}
	if claims.ID == "" {
		t.Error("jti should be set")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != 15*time.Minute {
		t.Errorf("lifetime = %v, want 15m", got)
	}

	stored, err := env.store.GetRefreshToken(ctx, resp.RefreshToken, testutil.TestClientID)
	if err != nil {
		t.Fatalf("refresh token not stored: %v", err)
	}
	if stored.Subject != testutil.TestSubject || stored.Scope != "api:read api:write" {
		t.Errorf("unexpected stored refresh token %+v", stored)
	}
	testutil.AssertTimeEqual(t, stored.ExpiresAt, env.clock.Now().Add(30*24*time.Hour), time.Second)

	if env.store.AuthorizationCodeCount() != 0 {
		t.Error("authorization code should be consumed")
	}
}

func TestToken_AuthorizationCodeIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code := env.issueCode(t, testutil.TestRedirectURI, "")

	if _, err := env.srv.Token(ctx, codeTokenRequest(code, testutil.TestRedirectURI)); err != nil {
		t.Fatalf("first redemption error = %v", err)
	}

	_, err := env.srv.Token(ctx, codeTokenRequest(code, testutil.TestRedirectURI))
	if got := assertOAuthError(t, err, ErrorCodeInvalidGrant).Description; got != descInvalidCode {
		t.Errorf("Description = %q", got)
	}
}

func TestToken_AuthorizationCodeErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing code", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.srv.Token(ctx, codeTokenRequest("", testutil.TestRedirectURI))
		assertOAuthError(t, err, ErrorCodeInvalidRequest)
	})

	t.Run("unknown code", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.srv.Token(ctx, codeTokenRequest("0000", testutil.TestRedirectURI))
		assertOAuthError(t, err, ErrorCodeInvalidGrant)
	})

	t.Run("expired code is deleted", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.issueCode(t, testutil.TestRedirectURI, "")
		env.clock.Advance(2 * time.Minute)

		_, err := env.srv.Token(ctx, codeTokenRequest(code, testutil.TestRedirectURI))
		if got := assertOAuthError(t, err, ErrorCodeInvalidGrant).Description; got != descInvalidCode {
			t.Errorf("expired and unknown codes must share the description, got %q", got)
		}
		if env.store.AuthorizationCodeCount() != 0 {
			t.Error("expired code should be deleted")
		}
	})

	t.Run("code at its expiry second is still valid", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.issueCode(t, testutil.TestRedirectURI, "")
		env.clock.Advance(time.Minute)

		if _, err := env.srv.Token(ctx, codeTokenRequest(code, testutil.TestRedirectURI)); err != nil {
			t.Errorf("Token() error = %v", err)
		}
	})

	t.Run("redirect_uri mismatch", func(t *testing.T) {
		env := newTestEnv(t)
		code := env.issueCode(t, testutil.TestRedirectURI, "")

		_, err := env.srv.Token(ctx, codeTokenRequest(code, testutil.TestRedirectURI2))
		if got := assertOAuthError(t, err, ErrorCodeInvalidRequest).Description; got != `the request includes an invalid value for parameter "redirect_uri"` {
			t.Errorf("Description = %q", got)
		}

		_, err = env.srv.Token(ctx, codeTokenRequest(code, ""))
		assertOAuthError(t, err, ErrorCodeInvalidRequest)
	})

	t.Run("code issued to another client", func(t *testing.T) {
		other, _ := storage.NewClient("other", "other-secret", testutil.TestRedirectURI)
		env := newTestEnv(t, other)
		code := env.issueCode(t, testutil.TestRedirectURI, "")

		req := codeTokenRequest(code, testutil.TestRedirectURI)
		req.ClientCredentials = ClientCredentials{ClientID: "other", ClientSecret: "other-secret"}
		_, err := env.srv.Token(ctx, req)
		assertOAuthError(t, err, ErrorCodeInvalidGrant)

		if env.store.AuthorizationCodeCount() != 1 {
			t.Error("a foreign client must not consume the code")
		}
	})

	t.Run("storage failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.GetAuthorizationCodeFunc = func(context.Context, string, string) (*storage.AuthorizationCode, error) {
			return nil, errors.New("connection reset")
		}
		_, err := env.srv.Token(ctx, codeTokenRequest("abc", testutil.TestRedirectURI))
		if err == nil || AsOAuthError(err).Status != http.StatusInternalServerError {
			t.Errorf("error = %v, want server_error", err)
		}
	})
}

func TestToken_PublicClientAuthorizationCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	outcome, err := env.srv.Authorize(ctx,
		codeRequest(testutil.TestPublicClientID, "", "", ""),
		authnAs(testutil.TestSubject), authzDecision(true))
	code := mustRedirect(t, outcome, err).Query().Get("code")

	resp, err := env.srv.Token(ctx, &TokenRequest{
		GrantType:         GrantTypeAuthorizationCode,
		Code:              code,
		ClientCredentials: ClientCredentials{ClientID: testutil.TestPublicClientID},
	})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if resp.RefreshToken == "" {
		t.Error("refresh token should be issued")
	}
}

// The consumed code is deleted only after both tokens exist, so a failed
// issuance leaves it redeemable. A crash between issuance and deletion would
// therefore permit a second redemption; this pins that ordering.
func TestToken_CodeSurvivesFailedIssuance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code := env.issueCode(t, testutil.TestRedirectURI, "")

	saveRefreshToken := env.store.SaveRefreshTokenFunc
	env.store.SaveRefreshTokenFunc = func(context.Context, *storage.RefreshToken) error {
		return errors.New("write failed")
	}
	_, err := env.srv.Token(ctx, codeTokenRequest(code, testutil.TestRedirectURI))
	if AsOAuthError(err).Code != ErrorCodeServerError {
		t.Fatalf("error = %v, want server_error", err)
	}
	if env.store.CallCount("DeleteAuthorizationCode") != 0 {
		t.Error("code must not be deleted when issuance fails")
	}

	env.store.SaveRefreshTokenFunc = saveRefreshToken
	if _, err := env.srv.Token(ctx, codeTokenRequest(code, testutil.TestRedirectURI)); err != nil {
		t.Errorf("code should still be redeemable, got %v", err)
	}
}

func TestToken_LostDeleteRaceIsInvalidGrant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code := env.issueCode(t, testutil.TestRedirectURI, "")

	env.store.DeleteAuthorizationCodeFunc = func(context.Context, string, string) error {
		return storage.ErrAuthorizationCodeNotFound
	}

	_, err := env.srv.Token(ctx, codeTokenRequest(code, testutil.TestRedirectURI))
	assertOAuthError(t, err, ErrorCodeInvalidGrant)

	if n := env.store.RefreshTokenCount(); n != 0 {
		t.Errorf("refresh tokens = %d, want the unused token discarded", n)
	}
}

func TestToken_ConcurrentCodeRedemption(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code := env.issueCode(t, testutil.TestRedirectURI, "")

	const attempts = 5
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.srv.Token(ctx, codeTokenRequest(code, testutil.TestRedirectURI))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		assertOAuthError(t, err, ErrorCodeInvalidGrant)
	}
	if successes != 1 {
		t.Errorf("successful redemptions = %d, want 1", successes)
	}
	if n := env.store.RefreshTokenCount(); n != 1 {
		t.Errorf("refresh tokens = %d, want 1", n)
	}
}

func TestToken_ClientCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.srv.Token(ctx, &TokenRequest{
		GrantType:         GrantTypeClientCredentials,
		Scope:             "api:read",
		ClientCredentials: ClientCredentials{Authorization: basicHeader(testutil.TestClientID + ":" + testutil.TestClientSecret)},
	})
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	if resp.ExpiresIn != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", resp.ExpiresIn)
	}
	if resp.RefreshToken != "" {
		t.Error("client_credentials must not issue a refresh token")
	}
	if resp.Scope != "api:read" {
		t.Errorf("Scope = %q", resp.Scope)
	}

	claims, err := signing.Verify(resp.AccessToken, env.signer.PublicKey())
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.Subject != testutil.TestClientID {
		t.Errorf("sub = %q, want the client ID", claims.Subject)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != time.Hour {
		t.Errorf("lifetime = %v, want 1h", got)
	}
	if env.store.RefreshTokenCount() != 0 {
		t.Error("no refresh token may be stored")
	}
}

func TestToken_ClientCredentialsErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("public client", func(t *testing.T) {
		_, err := env.srv.Token(ctx, &TokenRequest{
			GrantType:         GrantTypeClientCredentials,
			ClientCredentials: ClientCredentials{ClientID: testutil.TestPublicClientID},
		})
		oauthErr := assertOAuthError(t, err, ErrorCodeInvalidClient)
		if oauthErr.Status != http.StatusUnauthorized {
			t.Errorf("Status = %d, want 401", oauthErr.Status)
		}
	})

	t.Run("unsupported scope", func(t *testing.T) {
		_, err := env.srv.Token(ctx, &TokenRequest{
			GrantType:         GrantTypeClientCredentials,
			Scope:             "admin",
			ClientCredentials: confidentialPost(),
		})
		assertOAuthError(t, err, ErrorCodeInvalidScope)
	})
}

func TestToken_RefreshTokenRotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code := env.issueCode(t, testutil.TestRedirectURI, "api:read api:write")
	first, err := env.srv.Token(ctx, codeTokenRequest(code, testutil.TestRedirectURI))
	if err != nil {
		t.Fatal(err)
	}

	second, err := env.srv.Token(ctx, refreshTokenRequest(first.RefreshToken, ""))
	if err != nil {
		t.Fatalf("refresh error = %v", err)
	}
	if second.RefreshToken == "" || second.RefreshToken == first.RefreshToken {
		t.Errorf("refresh token not rotated: %q", second.RefreshToken)
	}
	if second.Scope != "api:read api:write" {
		t.Errorf("Scope = %q, want the stored scope", second.Scope)
	}
	if second.ExpiresIn != 900 {
		t.Errorf("ExpiresIn = %d", second.ExpiresIn)
	}

	_, err = env.srv.Token(ctx, refreshTokenRequest(first.RefreshToken, ""))
	if got := assertOAuthError(t, err, ErrorCodeInvalidGrant).Description; got != descInvalidRefresh {
		t.Errorf("Description = %q", got)
	}

	if _, err := env.srv.Token(ctx, refreshTokenRequest(second.RefreshToken, "")); err != nil {
		t.Errorf("rotated token should be redeemable, got %v", err)
	}
}

func TestToken_RefreshTokenScope(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, env *testEnv, scope string) string {
		t.Helper()
		token := testutil.GenerateRandomString(40)
		err := env.store.SaveRefreshToken(ctx, &storage.RefreshToken{
			Token:     token,
			Subject:   testutil.TestSubject,
			ClientID:  testutil.TestClientID,
			Scope:     scope,
			ExpiresAt: env.clock.Now().Add(time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
		return token
	}

	t.Run("escalation is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		token := seed(t, env, "api:read")

		_, err := env.srv.Token(ctx, refreshTokenRequest(token, "api:read api:write"))
		assertOAuthError(t, err, ErrorCodeInvalidScope)

		if _, err := env.store.GetRefreshToken(ctx, token, testutil.TestClientID); err != nil {
			t.Error("a rejected refresh must not consume the token")
		}
	})

	t.Run("downgrade succeeds", func(t *testing.T) {
		env := newTestEnv(t)
		token := seed(t, env, "api:read api:write")

		resp, err := env.srv.Token(ctx, refreshTokenRequest(token, "api:read"))
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if resp.Scope != "api:read" {
			t.Errorf("Scope = %q, want api:read", resp.Scope)
		}

		stored, err := env.store.GetRefreshToken(ctx, resp.RefreshToken, testutil.TestClientID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Scope != "api:read" {
			t.Errorf("new refresh token scope = %q, want the downgraded scope", stored.Scope)
		}
	})
}

func TestToken_RefreshTokenErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing refresh_token", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.srv.Token(ctx, refreshTokenRequest("", ""))
		assertOAuthError(t, err, ErrorCodeInvalidRequest)
	})

	t.Run("unknown token", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.srv.Token(ctx, refreshTokenRequest("nope", ""))
		assertOAuthError(t, err, ErrorCodeInvalidGrant)
	})

	t.Run("expired token is deleted", func(t *testing.T) {
		env := newTestEnv(t)
		_ = env.store.SaveRefreshToken(ctx, &storage.RefreshToken{
			Token:     "expired",
			Subject:   testutil.TestSubject,
			ClientID:  testutil.TestClientID,
			ExpiresAt: env.clock.Now().Add(-time.Minute),
		})

		_, err := env.srv.Token(ctx, refreshTokenRequest("expired", ""))
		assertOAuthError(t, err, ErrorCodeInvalidGrant)
		if env.store.RefreshTokenCount() != 0 {
			t.Error("expired token should be deleted")
		}
	})

	t.Run("token of another client", func(t *testing.T) {
		env := newTestEnv(t)
		_ = env.store.SaveRefreshToken(ctx, &storage.RefreshToken{
			Token:     "foreign",
			Subject:   testutil.TestSubject,
			ClientID:  testutil.TestPublicClientID,
			ExpiresAt: env.clock.Now().Add(time.Hour),
		})

		_, err := env.srv.Token(ctx, refreshTokenRequest("foreign", ""))
		assertOAuthError(t, err, ErrorCodeInvalidGrant)
	})

	t.Run("signing failure keeps the old token", func(t *testing.T) {
		env := newTestEnv(t)
		_ = env.store.SaveRefreshToken(ctx, &storage.RefreshToken{
			Token:     "keep",
			Subject:   testutil.TestSubject,
			ClientID:  testutil.TestClientID,
			ExpiresAt: env.clock.Now().Add(time.Hour),
		})
		env.srv.signer = failingSigner{env.signer}

		_, err := env.srv.Token(ctx, refreshTokenRequest("keep", ""))
		if AsOAuthError(err).Code != ErrorCodeServerError {
			t.Fatalf("error = %v, want server_error", err)
		}
		if _, err := env.store.GetRefreshToken(ctx, "keep", testutil.TestClientID); err != nil {
			t.Error("old refresh token must survive a failed issuance")
		}
		if n := env.store.RefreshTokenCount(); n != 1 {
			t.Errorf("refresh tokens = %d, want only the old one", n)
		}
	})
}

type failingSigner struct {
	signing.Signer
}

func (failingSigner) Sign(context.Context, signing.Claims) (string, error) {
	return "", errors.New("kms unavailable")
}
