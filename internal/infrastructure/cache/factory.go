package cache

import (
	"fmt"

	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/crosslist/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// OperationCacheFactory creates operation caches based on configuration
type OperationCacheFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// OperationCacheFactoryOption is a functional option for configuring the factory
type OperationCacheFactoryOption func(*OperationCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) OperationCacheFactoryOption {
	return func(f *OperationCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory cache when Redis is unavailable.
// Default is true (allow fallback).
func WithInMemoryFallback(allow bool) OperationCacheFactoryOption {
	return func(f *OperationCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewOperationCacheFactory creates a new factory
func NewOperationCacheFactory(cfg config.RedisConfig, opts ...OperationCacheFactoryOption) *OperationCacheFactory {
	f := &OperationCacheFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true, // Default to allowing fallback
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisCache creates a Redis-based operation cache
func (f *OperationCacheFactory) CreateRedisCache() (shared.OperationCache, error) {
	redisCfg := RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}

	cache, err := NewRedisOperationCache(redisCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis operation cache: %w", err)
	}

	return cache, nil
}

// CreateInMemoryCache creates an in-memory operation cache.
// WARNING: In-memory caches do not share state across process instances,
// which weakens redelivery collapsing in distributed deployments (the
// storage-level uniqueness constraint still holds).
func (f *OperationCacheFactory) CreateInMemoryCache() shared.OperationCache {
	return NewInMemoryOperationCache()
}

// CreateCache creates an operation cache for the configured backend.
// For the redis backend it tries Redis first and falls back to in-memory
// when Redis is unavailable and fallback is allowed.
func (f *OperationCacheFactory) CreateCache(backend string) (shared.OperationCache, error) {
	if backend == "memory" {
		return f.CreateInMemoryCache(), nil
	}

	cache, err := f.CreateRedisCache()
	if err == nil {
		f.logger.Info("using Redis operation cache")
		return cache, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for operation cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory operation cache. "+
		"Redelivered events may be reprocessed across instances.",
		zap.Error(err),
	)
	return f.CreateInMemoryCache(), nil
}
