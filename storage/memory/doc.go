// Package memory provides an in-memory implementation of the storage interfaces.
//
// Records live in mutex protected maps keyed by (client ID, value). Reads and
// deletes of the same key are serialized, so exactly one of two concurrent
// redemptions of a code or refresh token observes a successful delete.
// A background goroutine removes expired codes and refresh tokens.
//
// The store is suitable for development, testing and single-instance
// deployments. Multi-instance deployments use storage/redis.
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, _ := server.New(store, store, store, signer, config, logger)
package memory
