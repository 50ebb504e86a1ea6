package cache

import (
	"context"
	"sync"
	"time"

	"github.com/crosslist/backend/internal/domain/shared"
)

// entry represents a stored payload with expiration
type entry struct {
	payload   []byte
	expiresAt time.Time
}

// InMemoryOperationCache implements OperationCache using an in-memory map.
// This is suitable for single-instance deployments and testing.
type InMemoryOperationCache struct {
	mu        sync.RWMutex
	entries   map[string]entry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryOperationCache creates a new in-memory operation cache.
// It starts a background goroutine to clean up expired entries.
func NewInMemoryOperationCache() *InMemoryOperationCache {
	cache := &InMemoryOperationCache{
		entries:  make(map[string]entry),
		stopChan: make(chan struct{}),
	}

	// Start cleanup goroutine
	cache.wg.Add(1)
	go cache.cleanupLoop()

	return cache
}

// Get returns the cached payload for the key, or found=false when absent
func (c *InMemoryOperationCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[key]
	if !exists {
		return nil, false, nil
	}

	// Check if entry has expired
	if time.Now().After(e.expiresAt) {
		return nil, false, nil // Expired, treat as absent
	}

	return e.payload, true, nil
}

// Set stores the payload under the key with a TTL
func (c *InMemoryOperationCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		payload:   payload,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Delete removes the key. Absent keys are not an error.
func (c *InMemoryOperationCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// Close stops the cleanup goroutine and releases resources.
// Safe to call multiple times.
func (c *InMemoryOperationCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired entries
func (c *InMemoryOperationCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired entries from the cache
func (c *InMemoryOperationCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Size returns the number of entries in the cache (for testing/monitoring)
func (c *InMemoryOperationCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Ensure InMemoryOperationCache implements OperationCache
var _ shared.OperationCache = (*InMemoryOperationCache)(nil)
