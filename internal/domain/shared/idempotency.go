package shared

import (
	"context"
	"time"
)

// OperationCache stores the serialized result of a completed operation under its
// idempotency key so redelivered events can be collapsed into the original effect
// without taking any lock.
type OperationCache interface {
	// Get returns the cached payload for the key, or found=false when absent.
	Get(ctx context.Context, key string) (payload []byte, found bool, err error)

	// Set stores the payload under the key with a TTL.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// Delete removes the key. Absent keys are not an error.
	Delete(ctx context.Context, key string) error

	// Close closes the cache and releases resources
	Close() error
}

// OperationCacheConfig holds configuration for operation result caching
type OperationCacheConfig struct {
	// TTL is the time-to-live for cached operation results.
	// After this duration, a redelivered event is processed from scratch
	// (the storage-level uniqueness constraint still collapses duplicates).
	// Default: 7 days.
	TTL time.Duration

	// Enabled determines whether result caching is enabled
	// Default: true
	Enabled bool
}

// DefaultOperationCacheConfig returns the default operation cache configuration
func DefaultOperationCacheConfig() OperationCacheConfig {
	return OperationCacheConfig{
		TTL:     7 * 24 * time.Hour,
		Enabled: true,
	}
}
