package cache

import (
	"context"
	"time"
)

// KV is the persisted cache tier: byte values under string keys with TTLs.
// Implementations must tolerate concurrent use and treat an expired entry
// exactly like a missing one.
type KV interface {
	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Get returns the live value for key. The boolean is false on a miss;
	// the error reports store failures only, never absence.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl from now, replacing any previous
	// value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys; absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// PurgeExpired removes entries dead at now and reports how many went.
	// Backends with server-side expiry return 0.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)

	// Close releases the underlying store.
	Close() error
}
