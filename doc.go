// Package oauth exposes the authorization server over net/http.
//
// The protocol logic lives in package server; this package maps it onto the
// wire: query and form parsing, JSON bodies, redirects, CORS, no-cache
// headers, per-IP rate limiting on the token endpoint and request IDs.
//
// The host application supplies the resource-owner side of the authorization
// endpoint through Host: an Authenticator, an Authorizer and an
// InteractionHandler that renders sign-in or consent pages.
//
//	srv, _ := server.New(store, store, store, signer, server.Config{Issuer: issuer}, logger)
//	h, _ := oauth.NewHandler(srv, oauth.Host{...}, oauth.Config{}, logger)
//	http.ListenAndServe(":8080", h.Routes())
package oauth
