package server

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/giantswarm/oauth2-server/internal/testutil"
	"github.com/giantswarm/oauth2-server/storage"
)

func basicHeader(raw string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

func TestParseBasicAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantID     string
		wantSecret string
		wantOK     bool
	}{
		{name: "plain", header: basicHeader("s6BhdRkqt3:secret"), wantID: "s6BhdRkqt3", wantSecret: "secret", wantOK: true},
		{name: "plus decodes to space", header: basicHeader("my+client:a+b"), wantID: "my client", wantSecret: "a b", wantOK: true},
		{name: "percent decoding", header: basicHeader("client%3A1:p%40ss%3Aword"), wantID: "client:1", wantSecret: "p@ss:word", wantOK: true},
		{name: "splits on first colon", header: basicHeader("client:se:cret"), wantID: "client", wantSecret: "se:cret", wantOK: true},
		{name: "lowercase scheme", header: "basic " + base64.StdEncoding.EncodeToString([]byte("c:s")), wantID: "c", wantSecret: "s", wantOK: true},
		{name: "empty header", header: ""},
		{name: "bearer", header: "Bearer abc"},
		{name: "not base64", header: "Basic !!!"},
		{name: "no colon", header: basicHeader("client")},
		{name: "empty secret", header: basicHeader("client:")},
		{name: "empty id", header: basicHeader(":secret")},
		{name: "bad percent escape", header: basicHeader("client:%zz")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, secret, ok := parseBasicAuth(tt.header)
			if ok != tt.wantOK {
				t.Fatalf("parseBasicAuth() ok = %v, want %v", ok, tt.wantOK)
			}
			if id != tt.wantID || secret != tt.wantSecret {
				t.Errorf("parseBasicAuth() = (%q, %q), want (%q, %q)", id, secret, tt.wantID, tt.wantSecret)
			}
		})
	}
}

func TestAuthenticateClient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	validBasic := basicHeader(testutil.TestClientID + ":" + testutil.TestClientSecret)

	tests := []struct {
		name       string
		creds      ClientCredentials
		methods    []ClientAuthMethod
		wantClient string
		wantCode   string
	}{
		{
			name:       "basic",
			creds:      ClientCredentials{Authorization: validBasic},
			wantClient: testutil.TestClientID,
		},
		{
			name:       "post",
			creds:      confidentialPost(),
			wantClient: testutil.TestClientID,
		},
		{
			name:       "none for public client",
			creds:      ClientCredentials{ClientID: testutil.TestPublicClientID},
			wantClient: testutil.TestPublicClientID,
		},
		{
			name:       "basic with body client_id only is one mechanism",
			creds:      ClientCredentials{Authorization: validBasic, ClientID: testutil.TestClientID},
			wantClient: testutil.TestClientID,
		},
		{
			name:     "basic and post together",
			creds:    ClientCredentials{Authorization: validBasic, ClientID: testutil.TestClientID, ClientSecret: testutil.TestClientSecret},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name:     "no credentials",
			creds:    ClientCredentials{},
			wantCode: ErrorCodeInvalidClient,
		},
		{
			name:     "secret without client id",
			creds:    ClientCredentials{ClientSecret: testutil.TestClientSecret},
			wantCode: ErrorCodeInvalidClient,
		},
		{
			name:     "wrong secret",
			creds:    ClientCredentials{ClientID: testutil.TestClientID, ClientSecret: "wrong"},
			wantCode: ErrorCodeInvalidClient,
		},
		{
			name:     "unknown client",
			creds:    ClientCredentials{ClientID: "unknown", ClientSecret: "secret"},
			wantCode: ErrorCodeInvalidClient,
		},
		{
			name:     "unknown public client",
			creds:    ClientCredentials{ClientID: "unknown"},
			wantCode: ErrorCodeInvalidClient,
		},
		{
			name:     "confidential client omitting secret",
			creds:    ClientCredentials{ClientID: testutil.TestClientID},
			wantCode: ErrorCodeInvalidClient,
		},
		{
			name:     "public client presenting a secret",
			creds:    ClientCredentials{ClientID: testutil.TestPublicClientID, ClientSecret: "anything"},
			wantCode: ErrorCodeInvalidClient,
		},
		{
			name:     "none not allowed",
			creds:    ClientCredentials{ClientID: testutil.TestPublicClientID},
			methods:  confidentialClientAuthMethods,
			wantCode: ErrorCodeInvalidClient,
		},
		{
			name:       "post ignored when not allowed",
			creds:      ClientCredentials{Authorization: validBasic, ClientID: testutil.TestClientID, ClientSecret: testutil.TestClientSecret},
			methods:    []ClientAuthMethod{ClientAuthSecretBasic},
			wantClient: testutil.TestClientID,
		},
		{
			name:     "malformed basic header",
			creds:    ClientCredentials{Authorization: "Basic not-base64"},
			wantCode: ErrorCodeInvalidClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := env.srv.AuthenticateClient(ctx, tt.creds, tt.methods...)
			if tt.wantCode != "" {
				assertOAuthError(t, err, tt.wantCode)
				if client != nil {
					t.Error("client should be nil on failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("AuthenticateClient() error = %v", err)
			}
			if client.ClientID != tt.wantClient {
				t.Errorf("ClientID = %q, want %q", client.ClientID, tt.wantClient)
			}
		})
	}
}

func TestAuthenticateClient_ErrorDescriptions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.srv.AuthenticateClient(ctx, ClientCredentials{})
	if got := assertOAuthError(t, err, ErrorCodeInvalidClient).Description; got != descMissingCredentials {
		t.Errorf("missing credentials description = %q", got)
	}

	_, err = env.srv.AuthenticateClient(ctx, ClientCredentials{ClientID: testutil.TestClientID, ClientSecret: "wrong"})
	if got := assertOAuthError(t, err, ErrorCodeInvalidClient).Description; got != descInvalidCredentials {
		t.Errorf("invalid credentials description = %q", got)
	}
}

func TestAuthenticateClient_StorageFailure(t *testing.T) {
	env := newTestEnv(t)
	backendErr := errors.New("connection refused")
	env.store.GetClientFunc = func(context.Context, string) (*storage.Client, error) {
		return nil, backendErr
	}

	_, err := env.srv.AuthenticateClient(context.Background(), confidentialPost())
	if !errors.Is(err, backendErr) {
		t.Fatalf("error = %v, want the storage error", err)
	}
	if AsOAuthError(err).Code != ErrorCodeServerError {
		t.Errorf("storage failures should map to server_error")
	}
}
