package server

import (
	"context"
	"net/url"

	"github.com/giantswarm/oauth2-server/storage"
)

// Outcome is the result of a host decision that may need the resource owner
// before it can be answered. It is either decided with a value or requires
// interaction.
type Outcome[T any] struct {
	value   T
	decided bool
}

// Decided returns an outcome holding v
func Decided[T any](v T) Outcome[T] {
	return Outcome[T]{value: v, decided: true}
}

// NeedsInteraction returns an outcome that cannot be decided without the
// resource owner.
func NeedsInteraction[T any]() Outcome[T] {
	return Outcome[T]{}
}

// Value returns the decided value and whether the outcome was decided
func (o Outcome[T]) Value() (T, bool) {
	return o.value, o.decided
}

// Authenticator identifies the resource owner behind an authorization request.
// It returns the subject, or NeedsInteraction when the owner must sign in first.
type Authenticator interface {
	Authenticate(ctx context.Context, client *storage.Client, req *AuthorizationRequest) (Outcome[string], error)
}

// Authorizer decides whether subject grants client's request. It returns
// NeedsInteraction when the owner has not answered yet.
type Authorizer interface {
	Authorize(ctx context.Context, client *storage.Client, req *AuthorizationRequest, subject string) (Outcome[bool], error)
}

// AuthenticatorFunc adapts a function to Authenticator
type AuthenticatorFunc func(ctx context.Context, client *storage.Client, req *AuthorizationRequest) (Outcome[string], error)

// Authenticate calls f
func (f AuthenticatorFunc) Authenticate(ctx context.Context, client *storage.Client, req *AuthorizationRequest) (Outcome[string], error) {
	return f(ctx, client, req)
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(ctx context.Context, client *storage.Client, req *AuthorizationRequest, subject string) (Outcome[bool], error)

// Authorize calls f
func (f AuthorizerFunc) Authorize(ctx context.Context, client *storage.Client, req *AuthorizationRequest, subject string) (Outcome[bool], error) {
	return f(ctx, client, req, subject)
}

// InteractionKind tells which host decision could not be made
type InteractionKind int

const (
	// InteractionUnauthenticated means the resource owner must sign in
	InteractionUnauthenticated InteractionKind = iota + 1

	// InteractionUnresolvedAuthorization means the resource owner must consent
	InteractionUnresolvedAuthorization
)

// String returns the kind as used in logs and metrics
func (k InteractionKind) String() string {
	switch k {
	case InteractionUnauthenticated:
		return "unauthenticated"
	case InteractionUnresolvedAuthorization:
		return "unresolved_authorization"
	default:
		return "unknown"
	}
}

// AuthorizeOutcome is the result of Server.Authorize: either a *Redirect or an
// *InteractionRequired.
type AuthorizeOutcome interface {
	authorizeOutcome()
}

// Redirect carries the authorization response. URL holds either "code" or
// "error" and "error_description", plus "state" when the request had one.
type Redirect struct {
	URL *url.URL
}

// InteractionRequired signals that the host must render a sign-in or consent
// interaction and retry the authorization request afterwards.
type InteractionRequired struct {
	Kind    InteractionKind
	Client  *storage.Client
	Request *AuthorizationRequest

	// Subject is set for InteractionUnresolvedAuthorization
	Subject string
}

func (*Redirect) authorizeOutcome()            {}
func (*InteractionRequired) authorizeOutcome() {}
