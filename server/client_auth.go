package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth2-server/instrumentation"
	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/storage"
)

// ClientAuthMethod is a token endpoint client authentication method (RFC 8414)
type ClientAuthMethod string

// Supported client authentication methods
const (
	ClientAuthSecretBasic ClientAuthMethod = "client_secret_basic"
	ClientAuthSecretPost  ClientAuthMethod = "client_secret_post"
	ClientAuthNone        ClientAuthMethod = "none"
)

// DefaultClientAuthMethods is the allow-list used unless a grant restricts it
var DefaultClientAuthMethods = []ClientAuthMethod{ClientAuthSecretBasic, ClientAuthSecretPost, ClientAuthNone}

// confidentialClientAuthMethods excludes "none"
var confidentialClientAuthMethods = []ClientAuthMethod{ClientAuthSecretBasic, ClientAuthSecretPost}

// dummySecretHash is compared when the client does not exist so unknown and
// known client IDs take the same time to reject.
var dummySecretHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-client-secret"), bcrypt.DefaultCost)

// ClientCredentials carries every place a client may put its credentials
type ClientCredentials struct {
	// Authorization is the raw Authorization header
	Authorization string

	// ClientID and ClientSecret are the request body parameters
	ClientID     string
	ClientSecret string
}

type credentialCandidate struct {
	method   ClientAuthMethod
	clientID string
	secret   string
}

// parseBasicAuth decodes an "Authorization: Basic" header. Both halves are
// form-urlencoded per RFC 6749 section 2.3.1.
func parseBasicAuth(header string) (clientID, secret string, ok bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}

	rawID, rawSecret, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", false
	}

	clientID, err = url.QueryUnescape(rawID)
	if err != nil {
		return "", "", false
	}
	secret, err = url.QueryUnescape(rawSecret)
	if err != nil {
		return "", "", false
	}
	if clientID == "" || secret == "" {
		return "", "", false
	}
	return clientID, secret, true
}

// extractCandidates collects credentials for every allowed method that found
// some. "none" is only considered when no other method produced a candidate.
func extractCandidates(creds ClientCredentials, methods []ClientAuthMethod) []credentialCandidate {
	var candidates []credentialCandidate

	if slices.Contains(methods, ClientAuthSecretBasic) {
		if id, secret, ok := parseBasicAuth(creds.Authorization); ok {
			candidates = append(candidates, credentialCandidate{method: ClientAuthSecretBasic, clientID: id, secret: secret})
		}
	}

	if slices.Contains(methods, ClientAuthSecretPost) && creds.ClientID != "" && creds.ClientSecret != "" {
		candidates = append(candidates, credentialCandidate{method: ClientAuthSecretPost, clientID: creds.ClientID, secret: creds.ClientSecret})
	}

	if len(candidates) == 0 && slices.Contains(methods, ClientAuthNone) && creds.ClientID != "" && creds.ClientSecret == "" {
		candidates = append(candidates, credentialCandidate{method: ClientAuthNone, clientID: creds.ClientID})
	}

	return candidates
}

// AuthenticateClient resolves exactly one set of client credentials using the
// allowed methods (DefaultClientAuthMethods when none are given) and checks
// them against the client store.
func (s *Server) AuthenticateClient(ctx context.Context, creds ClientCredentials, methods ...ClientAuthMethod) (*storage.Client, error) {
	ctx, span := s.tracer.Start(ctx, "server.AuthenticateClient")
	defer span.End()

	if len(methods) == 0 {
		methods = DefaultClientAuthMethods
	}

	candidates := extractCandidates(creds, methods)
	switch len(candidates) {
	case 0:
		s.recordClientAuthentication(ctx, "", false)
		s.Auditor.LogAuthFailure(creds.ClientID, security.GetClientIP(ctx), "missing_client_credentials")
		err := ErrInvalidClient(descMissingCredentials)
		instrumentation.RecordError(span, err)
		return nil, err
	case 1:
	default:
		s.recordClientAuthentication(ctx, "", false)
		s.Auditor.LogAuthFailure(creds.ClientID, security.GetClientIP(ctx), "multiple_client_auth_mechanisms")
		err := ErrInvalidRequest(descMultipleMechanisms)
		instrumentation.RecordError(span, err)
		return nil, err
	}

	candidate := candidates[0]
	span.SetAttributes(
		attribute.String(instrumentation.AttrClientID, candidate.clientID),
		attribute.String(instrumentation.AttrAuthMethod, string(candidate.method)),
	)

	client, err := s.clientStore.GetClient(ctx, candidate.clientID)
	if err != nil && !errors.Is(err, storage.ErrClientNotFound) {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	if !verifyClientSecret(client, candidate) {
		s.recordClientAuthentication(ctx, string(candidate.method), false)
		s.Auditor.LogAuthFailure(candidate.clientID, security.GetClientIP(ctx), "invalid_client_credentials")
		s.Logger.Debug("Client authentication failed",
			"client_id", candidate.clientID,
			"method", candidate.method)
		err := ErrInvalidClient(descInvalidCredentials)
		instrumentation.RecordError(span, err)
		return nil, err
	}

	s.recordClientAuthentication(ctx, string(candidate.method), true)
	instrumentation.SetSpanSuccess(span)
	return client, nil
}

// verifyClientSecret checks candidate against client, which is nil when the
// client does not exist.
func verifyClientSecret(client *storage.Client, candidate credentialCandidate) bool {
	if client == nil {
		if candidate.method != ClientAuthNone {
			_ = bcrypt.CompareHashAndPassword(dummySecretHash, []byte(candidate.secret))
		}
		return false
	}

	if candidate.method == ClientAuthNone {
		// A confidential client must not authenticate without its secret.
		return client.IsPublic()
	}

	if client.IsPublic() {
		// A public client presenting a secret is rejected.
		_ = bcrypt.CompareHashAndPassword(dummySecretHash, []byte(candidate.secret))
		return false
	}

	return bcrypt.CompareHashAndPassword(client.SecretHash, []byte(candidate.secret)) == nil
}

func (s *Server) recordClientAuthentication(ctx context.Context, method string, success bool) {
	if s.metrics != nil {
		s.metrics.RecordClientAuthentication(ctx, method, success)
	}
}
