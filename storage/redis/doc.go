// Package redis provides a Redis implementation of the storage interfaces.
//
// Records are stored as JSON under keys of the form
//
//	{prefix}client:{clientID}
//	{prefix}authorization-code:{clientID}:{code}
//	{prefix}refresh-token:{clientID}:{token}
//
// Codes and refresh tokens carry an absolute expiry (EXAT) one second past
// their ExpiresAt, so Redis evicts them on its own. Deletes rely on the DEL
// reply count: of two replicas redeeming the same code, only one sees a
// successful delete.
package redis
