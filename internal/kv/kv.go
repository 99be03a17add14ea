package kv

import (
	"context"
	"time"
)

// Store is the key-value port used for quote caching, session markers and
// quote locks. All coordination between concurrent workers happens through
// an implementation of this interface, never through in-process state.
//
// Implementations: MemoryStore. Deployments spanning multiple processes
// should back this with a shared store (Redis, memcached, a transient
// table) offering the same get/set/delete-with-TTL semantics.
type Store interface {
	// Get returns the value for key. The second return is false when the
	// key is absent or its TTL has elapsed.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A zero ttl means the entry does not
	// expire until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Add stores value under key only if the key is absent or expired,
	// atomically with respect to concurrent Adds. Returns true when the
	// value was stored. This is the primitive the quote lock is built on.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
