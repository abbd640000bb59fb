package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Supported signing algorithms
const (
	AlgorithmRS256 = string(jose.RS256)
	AlgorithmEdDSA = string(jose.EdDSA)
)

var supportedAlgorithms = []jose.SignatureAlgorithm{jose.RS256, jose.EdDSA}

// Key validation errors
var (
	ErrMissingAlgorithm = errors.New(`missing JWK "alg" (algorithm) parameter`)
	ErrMissingKeyID     = errors.New(`missing or invalid JWK "kid" (Key ID) parameter`)
	ErrPublicKey        = errors.New("JWK does not contain a private key")
)

// Claims is the claim set of an access token
type Claims struct {
	Issuer    string
	Subject   string
	ClientID  string
	Scope     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Signer produces compact signed tokens from a claim set
type Signer interface {
	// Sign returns the compact JWS serialization of claims
	Sign(ctx context.Context, claims Claims) (string, error)

	// PublicKey returns the public projection of the signing key
	PublicKey() jose.JSONWebKey
}

// extraClaims are the registered claims go-jose does not model
type extraClaims struct {
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// JWKSigner signs tokens with a private JSON Web Key
type JWKSigner struct {
	key    jose.JSONWebKey
	signer jose.Signer
}

var _ Signer = (*JWKSigner)(nil)

// NewSignerFromJSON parses a private JWK document and creates a signer
func NewSignerFromJSON(data []byte) (*JWKSigner, error) {
	var key jose.JSONWebKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("failed to parse JWK: %w", err)
	}
	return NewSigner(key)
}

// NewSigner validates key and creates a signer. The key must be private and
// carry "kid" and an "alg" of RS256 or EdDSA matching its key type.
func NewSigner(key jose.JSONWebKey) (*JWKSigner, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	// Passing the JWK (not the raw key) makes go-jose emit its "kid" header.
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.SignatureAlgorithm(key.Algorithm), Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	return &JWKSigner{key: key, signer: signer}, nil
}

func validateKey(key jose.JSONWebKey) error {
	if key.Algorithm == "" {
		return ErrMissingAlgorithm
	}
	if key.KeyID == "" {
		return ErrMissingKeyID
	}
	if key.Key == nil || key.IsPublic() {
		return ErrPublicKey
	}

	switch key.Algorithm {
	case AlgorithmRS256:
		if _, ok := key.Key.(*rsa.PrivateKey); !ok {
			return fmt.Errorf("JWK algorithm %s requires an RSA key, got %T", key.Algorithm, key.Key)
		}
	case AlgorithmEdDSA:
		if _, ok := key.Key.(ed25519.PrivateKey); !ok {
			return fmt.Errorf("JWK algorithm %s requires an Ed25519 key, got %T", key.Algorithm, key.Key)
		}
	default:
		return fmt.Errorf(`invalid JWK "alg" (algorithm) parameter %q`, key.Algorithm)
	}

	return nil
}

// Sign returns the compact JWS serialization of claims
func (s *JWKSigner) Sign(_ context.Context, claims Claims) (string, error) {
	registered := jwt.Claims{
		Issuer:   claims.Issuer,
		Subject:  claims.Subject,
		ID:       claims.ID,
		IssuedAt: jwt.NewNumericDate(claims.IssuedAt),
		Expiry:   jwt.NewNumericDate(claims.ExpiresAt),
	}

	token, err := jwt.Signed(s.signer).
		Claims(registered).
		Claims(extraClaims{Scope: claims.Scope, ClientID: claims.ClientID}).
		Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// PublicKey returns the public projection of the signing key. Private
// components are stripped; kty, use, alg, kid and the public parameters remain.
func (s *JWKSigner) PublicKey() jose.JSONWebKey {
	return s.key.Public()
}

// KeyID returns the "kid" of the signing key
func (s *JWKSigner) KeyID() string {
	return s.key.KeyID
}

// Algorithm returns the signing algorithm
func (s *JWKSigner) Algorithm() string {
	return s.key.Algorithm
}

// Verify checks the signature of token against publicKey and that it has not
// expired, returning its claims.
func Verify(token string, publicKey jose.JSONWebKey) (*Claims, error) {
	parsed, err := jwt.ParseSigned(token, supportedAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	var registered jwt.Claims
	var extra extraClaims
	if err := parsed.Claims(publicKey.Key, &registered, &extra); err != nil {
		return nil, fmt.Errorf("failed to verify token signature: %w", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{Time: time.Now()}, 0); err != nil {
		return nil, fmt.Errorf("token is not valid: %w", err)
	}

	claims := &Claims{
		Issuer:   registered.Issuer,
		Subject:  registered.Subject,
		ID:       registered.ID,
		Scope:    extra.Scope,
		ClientID: extra.ClientID,
	}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time()
	}
	if registered.Expiry != nil {
		claims.ExpiresAt = registered.Expiry.Time()
	}
	return claims, nil
}
