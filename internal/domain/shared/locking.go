package shared

import (
	"context"
	"time"
)

// LockManager provides per-key mutual exclusion across processes, backed by an
// external store with TTL so a crashed holder can never wedge the system.
type LockManager interface {
	// Acquire blocks up to maxWait for the lock on key, polling with backoff.
	// On success it returns an owner token; on expiry of maxWait it returns
	// ErrLockTimeout.
	Acquire(ctx context.Context, key string, maxWait, ttl time.Duration) (token string, err error)

	// Release releases the lock identified by key if token still owns it.
	// A token mismatch (e.g. the lock expired and was re-acquired by a later
	// holder) is a silent no-op, not an error.
	Release(ctx context.Context, key string, token string) error
}
