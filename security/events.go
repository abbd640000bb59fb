package security

// Event type constants for security audit logging.
const (
	// Authorization endpoint events

	// EventAuthorizationCodeIssued is logged when an authorization code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAccessDenied is logged when the resource owner denies an authorization request
	EventAccessDenied = "access_denied"

	// EventInvalidRedirect is logged when an authorization request carries an unregistered redirect URI
	EventInvalidRedirect = "invalid_redirect"

	// Token endpoint events

	// EventTokenIssued is logged when an access token is issued to a client
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh token is redeemed
	EventTokenRefreshed = "token_refreshed"

	// EventInvalidGrant is logged when an authorization code or refresh token is rejected
	EventInvalidGrant = "invalid_grant"

	// EventScopeEscalationAttempt is logged when a refresh requests scopes beyond the original grant
	EventScopeEscalationAttempt = "scope_escalation_attempt"

	// Security violation events

	// EventAuthFailure is logged when client authentication fails
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"
)
