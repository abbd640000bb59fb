package server

import (
	"slices"
	"strings"
)

// isScopeToken reports whether s is a scope-token per RFC 6749 section 3.3:
// 1*( %x21 / %x23-5B / %x5D-7E )
func isScopeToken(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x21 || c == 0x22 || c == 0x5C || c > 0x7E {
			return false
		}
	}
	return len(s) > 0
}

// splitScope splits a scope string on single spaces. Empty tokens from
// repeated or surrounding spaces are kept so that validation rejects them.
func splitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Split(scope, " ")
}

// assertScope checks every token of scope against the supported scopes.
// An empty scope is valid.
func (s *Server) assertScope(scope string) error {
	for _, token := range splitScope(scope) {
		if !isScopeToken(token) || !slices.Contains(s.config.SupportedScopes, token) {
			return errInvalidScopeValue(token)
		}
	}
	return nil
}

// assertScopeSubset checks that every token of requested is part of granted
func assertScopeSubset(requested, granted string) error {
	grantedTokens := splitScope(granted)
	for _, token := range splitScope(requested) {
		if !isScopeToken(token) || !slices.Contains(grantedTokens, token) {
			return errInvalidScopeValue(token)
		}
	}
	return nil
}
