package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

// RedisOperationCache implements OperationCache using Redis.
// This is suitable for distributed deployments where multiple instances
// need to share completed-operation results.
type RedisOperationCache struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisOperationCache creates a new Redis-based operation cache
func NewRedisOperationCache(cfg RedisConfig) (*RedisOperationCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisOperationCache{
		client:    client,
		keyPrefix: "op:result:",
	}, nil
}

// NewRedisOperationCacheWithClient creates a cache with an existing Redis client.
// This is useful for testing or when sharing a client across components.
func NewRedisOperationCacheWithClient(client *redis.Client, keyPrefix string) *RedisOperationCache {
	if keyPrefix == "" {
		keyPrefix = "op:result:"
	}
	return &RedisOperationCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get returns the cached payload for the key, or found=false when absent
func (c *RedisOperationCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached result: %w", err)
	}
	return payload, true, nil
}

// Set stores the payload under the key with a TTL
func (c *RedisOperationCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.keyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

// Delete removes the key. Absent keys are not an error.
func (c *RedisOperationCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cached result: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisOperationCache) Close() error {
	return c.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (c *RedisOperationCache) GetClient() *redis.Client {
	return c.client
}

// Ensure RedisOperationCache implements OperationCache
var _ shared.OperationCache = (*RedisOperationCache)(nil)
