// Package kvstore provides the key-value contract backing the job store.
//
// The contract is deliberately minimal: put with TTL, get, delete. There is
// no compare-and-swap and no multi-key transaction, matching the semantics of
// the hosted KV the protocol was designed against. Callers must not build
// cross-key invariants on top of it; races between readers of the same key
// are expected and tolerated.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get when a key is absent or has expired.
var ErrKeyNotFound = errors.New("key not found")

// Store is the eventually-consistent key-value contract.
type Store interface {
	// Put writes a value under key. A ttl <= 0 stores the value without
	// expiry. An existing value is overwritten along with its TTL.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value for key, or ErrKeyNotFound if the key is
	// absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
