package server

import (
	"github.com/go-jose/go-jose/v4"
)

// Endpoint paths relative to the issuer
const (
	AuthorizationEndpointPath = "/authorize"
	TokenEndpointPath         = "/token"
	JWKSPath                  = "/jwks.json"
	MetadataPath              = "/.well-known/oauth-authorization-server"
)

// AuthorizationServerMetadata is the discovery document (RFC 8414 section 2)
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// Metadata returns the discovery document. It only reflects configuration.
func (s *Server) Metadata() *AuthorizationServerMetadata {
	authMethods := make([]string, 0, len(DefaultClientAuthMethods))
	for _, m := range DefaultClientAuthMethods {
		authMethods = append(authMethods, string(m))
	}

	var scopes []string
	if len(s.config.SupportedScopes) > 0 {
		scopes = append(scopes, s.config.SupportedScopes...)
	}

	return &AuthorizationServerMetadata{
		Issuer:                            s.config.Issuer,
		AuthorizationEndpoint:             s.config.Issuer + AuthorizationEndpointPath,
		TokenEndpoint:                     s.config.Issuer + TokenEndpointPath,
		JWKSURI:                           s.config.Issuer + JWKSPath,
		ScopesSupported:                   scopes,
		ResponseTypesSupported:            []string{ResponseTypeCode},
		GrantTypesSupported:               []string{GrantTypeAuthorizationCode, GrantTypeClientCredentials, GrantTypeRefreshToken},
		TokenEndpointAuthMethodsSupported: authMethods,
	}
}

// JWKS returns the public key set holding the public projection of the
// signing key.
func (s *Server) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{s.signer.PublicKey()}}
}
