// Package cache keeps access tokens between requests. Tokens are held in
// process by default, or in Valkey so that every replica of the bridge
// reuses the same token for a credential.
package cache

import (
	"context"
)

// KeyPrefix namespaces the entries written to a shared Valkey instance.
const KeyPrefix = "translator-bridge:token:"

// TokenCache stores values of type T by key. Keys are credential digests,
// never the credential itself.
type TokenCache[T any] interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (T, bool, error)

	Set(ctx context.Context, key string, value T) error

	Invalidate(ctx context.Context, key string) error

	// Close releases the cache's connections. The cache must not be used
	// afterwards.
	Close() error
}
