package signing

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// DefaultRSAKeyBits is the modulus size used by GenerateRSA when bits is zero
const DefaultRSAKeyBits = 2048

// GenerateEd25519 creates a fresh EdDSA signing key. An empty kid is replaced by
// the key's RFC 7638 thumbprint.
func GenerateEd25519(kid string) (jose.JSONWebKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return jose.JSONWebKey{}, fmt.Errorf("failed to generate Ed25519 key: %w", err)
	}
	return newPrivateJWK(priv, AlgorithmEdDSA, kid)
}

// GenerateRSA creates a fresh RS256 signing key
func GenerateRSA(kid string, bits int) (jose.JSONWebKey, error) {
	if bits == 0 {
		bits = DefaultRSAKeyBits
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return jose.JSONWebKey{}, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return newPrivateJWK(priv, AlgorithmRS256, kid)
}

// ParsePEM reads a PKCS#8, PKCS#1 or "BEGIN RSA PRIVATE KEY" PEM block into a
// signing JWK. The algorithm follows the key type. An empty kid is replaced
// by the key's thumbprint.
func ParsePEM(data []byte, kid string) (jose.JSONWebKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return jose.JSONWebKey{}, errors.New("no PEM block found")
	}

	var key any
	var err error
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return jose.JSONWebKey{}, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
	if err != nil {
		return jose.JSONWebKey{}, fmt.Errorf("failed to parse private key: %w", err)
	}

	switch k := key.(type) {
	case *rsa.PrivateKey:
		return newPrivateJWK(k, AlgorithmRS256, kid)
	case ed25519.PrivateKey:
		return newPrivateJWK(k, AlgorithmEdDSA, kid)
	default:
		return jose.JSONWebKey{}, fmt.Errorf("unsupported private key type %T", key)
	}
}

// LoadSignerFile creates a signer from a file holding either a JWK document or
// a PEM encoded private key.
func LoadSignerFile(path, kid string) (*JWKSigner, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key file: %w", err)
	}

	if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		return NewSignerFromJSON(data)
	}

	key, err := ParsePEM(data, kid)
	if err != nil {
		return nil, err
	}
	return NewSigner(key)
}

func newPrivateJWK(key crypto.PrivateKey, alg, kid string) (jose.JSONWebKey, error) {
	jwk := jose.JSONWebKey{
		Key:       key,
		Algorithm: alg,
		Use:       "sig",
		KeyID:     kid,
	}

	if jwk.KeyID == "" {
		thumbprint, err := jwk.Thumbprint(crypto.SHA256)
		if err != nil {
			return jose.JSONWebKey{}, fmt.Errorf("failed to compute key thumbprint: %w", err)
		}
		jwk.KeyID = base64.RawURLEncoding.EncodeToString(thumbprint)
	}

	return jwk, nil
}
