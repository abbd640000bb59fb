// Package storage defines the persistence interfaces used by the authorization server.
//
// The core depends on three narrow capability interfaces rather than one monolithic store:
//   - ClientStore: looks up registered OAuth clients
//   - AuthorizationCodeStore: saves, finds and deletes authorization codes
//   - RefreshTokenStore: saves, finds and deletes refresh tokens
//
// Codes and refresh tokens are always addressed by the (value, clientID) pair,
// never by value alone, so one client can never redeem another client's credential.
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/redis: Redis storage for multi-replica deployments
//   - storage/mock: Mock storage with failure injection for unit testing
package storage
