package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/oauth2-server/storage"
)

// Fixture values shared by the server, handler and storage tests
const (
	TestIssuer = "https://as.example.com"

	TestClientID     = "s6BhdRkqt3"
	TestClientSecret = "cf136dc3c1fc93f31185e5885805d"
	TestRedirectURI  = "https://client.example.org/callback"
	TestRedirectURI2 = "https://client.example.org/callback2"

	TestPublicClientID = "public-client"

	TestSubject = "demouser"

	// TestSigningKeyID is the "kid" of TestSigningJWK
	TestSigningKeyID = "69d009aa-2043-4d64-9665-6ab6d0ad3166"

	// TestSigningJWK is a private Ed25519 key used to sign test access tokens
	TestSigningJWK = `{
		"kid": "69d009aa-2043-4d64-9665-6ab6d0ad3166",
		"d": "a2B7AkpDPkFliSk5Ls2YzGQRmS8-y15d5bAdAcbf-oo",
		"use": "sig",
		"crv": "Ed25519",
		"x": "tFxkk7eoMyE9CYXSWYkDCIB0ETaFW6q8CGo7poHnoSs",
		"kty": "OKP",
		"alg": "EdDSA"
	}`
)

// MockTime provides a controllable time source for deterministic testing.
// Pass its Now method wherever a clock function is accepted.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// NewTestClient returns the confidential demo client registered with
// TestClientSecret and both test redirect URIs.
func NewTestClient(t *testing.T) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(TestClientID, TestClientSecret, TestRedirectURI, TestRedirectURI2)
	if err != nil {
		t.Fatalf("failed to create test client: %v", err)
	}
	client.ClientName = "Demo Client"
	return client
}

// NewTestPublicClient returns a client without a secret
func NewTestPublicClient(t *testing.T) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(TestPublicClientID, "", TestRedirectURI)
	if err != nil {
		t.Fatalf("failed to create public test client: %v", err)
	}
	return client
}

// GenerateRandomString returns a URL-safe random string of the given length
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual(t *testing.T, got, want any) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertStringContains fails the test if s does not contain substr
func AssertStringContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("string %q does not contain %q", s, substr)
	}
}

// AssertTimeEqual asserts two times are equal within a tolerance
func AssertTimeEqual(t *testing.T, got, want time.Time, tolerance time.Duration) {
	t.Helper()
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Errorf("time mismatch: got %v, want %v (tolerance: %v, diff: %v)", got, want, tolerance, diff)
	}
}

// HTTPRequest builds requests against an http.Handler
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Form    url.Values
}

// NewHTTPRequest creates a new HTTP request helper
func NewHTTPRequest(method, url string) *HTTPRequest {
	return &HTTPRequest{
		Method:  method,
		URL:     url,
		Headers: make(map[string]string),
	}
}

// WithHeader adds a header to the request
func (r *HTTPRequest) WithHeader(key, value string) *HTTPRequest {
	r.Headers[key] = value
	return r
}

// WithBasicAuth sets HTTP Basic credentials
func (r *HTTPRequest) WithBasicAuth(username, password string) *HTTPRequest {
	creds := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return r.WithHeader("Authorization", "Basic "+creds)
}

// WithForm sets an application/x-www-form-urlencoded body
func (r *HTTPRequest) WithForm(form url.Values) *HTTPRequest {
	r.Form = form
	return r
}

// Do executes the request against handler
func (r *HTTPRequest) Do(handler http.Handler) *httptest.ResponseRecorder {
	var req *http.Request
	if r.Form != nil {
		req = httptest.NewRequest(r.Method, r.URL, strings.NewReader(r.Form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(r.Method, r.URL, nil)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
