// Package kv defines the key-value collaborator contract the authentication
// core is written against, together with a Redis-backed implementation and an
// in-memory implementation for tests and single-process deployments.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// ErrConflict is returned by Atomic when a watched key changed between the
// read phase and the commit. The caller decides whether to retry.
var ErrConflict = errors.New("kv: transaction conflict")

// Store is the narrow surface the core consumes. Implementations must treat a
// zero TTL as "no expiry" and must expire keys no later than their TTL plus
// scheduling slack.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// List returns every stored key with the given prefix. Order is not
	// specified.
	List(ctx context.Context, prefix string) ([]string, error)

	// Atomic runs fn against a transactional view of the watched keys.
	// Reads inside fn observe committed state; writes are staged and
	// applied only if none of the watched keys changed concurrently.
	// A lost race surfaces as ErrConflict and none of the staged writes
	// are applied.
	Atomic(ctx context.Context, keys []string, fn func(tx Tx) error) error
}

// Tx is the view handed to an Atomic callback.
type Tx interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}
