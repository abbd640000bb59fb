// Package server implements the protocol logic of an OAuth 2.0 authorization
// server (RFC 6749) independent of any HTTP framework.
//
// Server.Authorize handles response_type=code authorization requests. The host
// supplies an Authenticator and an Authorizer; either may answer with
// NeedsInteraction, in which case Authorize returns *InteractionRequired and
// the host renders a sign-in or consent page before retrying. All other
// outcomes are a *Redirect carrying either a code or an error.
//
// Server.Token dispatches access token requests to the authorization_code,
// client_credentials and refresh_token grants. Errors are *OAuthError values
// carrying the HTTP status of the error response; anything else is a
// server_error.
//
// Storage is consumed through the narrow interfaces of package storage and
// access tokens are signed through signing.Signer.
package server
