// Package security provides security helpers for the authorization server:
// audit logging, response hardening headers, per-client-IP rate limiting,
// client IP extraction and request IDs.
//
// # Audit Logging
//
// The Auditor writes "security_audit" records through slog. Subjects are
// hashed before logging; credentials are never logged.
//
//	auditor := security.NewAuditor(logger, true)
//	auditor.LogTokenIssued(subject, clientID, ip, "authorization_code", scope)
//
// # Rate Limiting
//
// RateLimiter is a token bucket per identifier (golang.org/x/time/rate) with
// LRU eviction so memory stays bounded under distributed attacks.
//
//	limiter := security.NewRateLimiter(security.RateLimitConfig{
//		RequestsPerSecond: 10,
//		Burst:             20,
//	}, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(ip) {
//		// respond 429
//	}
//
// # Headers
//
// SetSecurityHeaders adds hardening headers; SetNoCacheHeaders adds the
// Cache-Control and Pragma headers required on token responses.
package security
