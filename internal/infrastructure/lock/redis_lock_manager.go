package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if the caller still owns it.
// Without the token check a slow holder could release a lock that expired
// and was re-acquired by someone else.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// RedisLockManager implements shared.LockManager on Redis using the
// SET NX PX pattern with an owner token.
type RedisLockManager struct {
	client       *redis.Client
	pollInterval time.Duration
	release      *redis.Script
}

// RedisLockManagerOption is a functional option for configuring the manager
type RedisLockManagerOption func(*RedisLockManager)

// WithPollInterval sets how often a waiting acquirer re-attempts the lock
func WithPollInterval(interval time.Duration) RedisLockManagerOption {
	return func(m *RedisLockManager) {
		m.pollInterval = interval
	}
}

// NewRedisLockManager creates a lock manager on an existing Redis client
func NewRedisLockManager(client *redis.Client, opts ...RedisLockManagerOption) *RedisLockManager {
	m := &RedisLockManager{
		client:       client,
		pollInterval: 50 * time.Millisecond,
		release:      redis.NewScript(releaseScript),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Acquire blocks up to maxWait for the lock on key, polling with backoff.
// On success it returns an owner token; on expiry of maxWait it returns
// ErrLockTimeout.
func (m *RedisLockManager) Acquire(ctx context.Context, key string, maxWait, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(maxWait)

	for {
		ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", fmt.Errorf("failed to acquire lock %q: %w", key, err)
		}
		if ok {
			return token, nil
		}

		if time.Now().After(deadline) {
			return "", shared.ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

// Release releases the lock identified by key if token still owns it.
// A token mismatch is a silent no-op, not an error.
func (m *RedisLockManager) Release(ctx context.Context, key string, token string) error {
	if err := m.release.Run(ctx, m.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %q: %w", key, err)
	}
	return nil
}

// Ensure RedisLockManager implements LockManager
var _ shared.LockManager = (*RedisLockManager)(nil)
