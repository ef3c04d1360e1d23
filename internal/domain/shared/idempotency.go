package shared

import (
	"context"
	"time"
)

// IdempotencyStore records the outcome of a request under a client-supplied key
// so that a retried request can be answered without repeating its effects.
//
// Reserve is atomic per key: among concurrent callers exactly one observes
// reserved=true. The holder either Completes the key with the serialized result
// or Releases it when the work fails, letting a later retry try again.
type IdempotencyStore interface {
	// Lookup returns the stored result for key. found is false when the key is
	// unknown, expired, or still reserved without a result.
	Lookup(ctx context.Context, key string) (payload []byte, found bool, err error)

	// Reserve claims key for ttl. Returns false if another caller holds it.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Complete stores payload under a reserved key
	Complete(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// Release drops a reservation that never completed
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a completed result is replayed. After it elapses the same
	// key is treated as new.
	TTL time.Duration

	// PollInterval is how often a caller that lost the reservation race checks
	// for the winner's result
	PollInterval time.Duration
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:          24 * time.Hour,
		PollInterval: 50 * time.Millisecond,
	}
}
