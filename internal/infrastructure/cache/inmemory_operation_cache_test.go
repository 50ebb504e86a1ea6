package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryOperationCache_SetAndGet(t *testing.T) {
	c := NewInMemoryOperationCache()
	defer c.Close()

	ctx := context.Background()

	err := c.Set(ctx, "key-1", []byte(`{"quantity":4}`), time.Hour)
	require.NoError(t, err)

	payload, found, err := c.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte(`{"quantity":4}`), payload)
}

func TestInMemoryOperationCache_GetMissing(t *testing.T) {
	c := NewInMemoryOperationCache()
	defer c.Close()

	payload, found, err := c.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, payload)
}

func TestInMemoryOperationCache_Expiry(t *testing.T) {
	c := NewInMemoryOperationCache()
	defer c.Close()

	ctx := context.Background()

	err := c.Set(ctx, "short-lived", []byte("x"), time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, found, err := c.Get(ctx, "short-lived")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInMemoryOperationCache_Overwrite(t *testing.T) {
	c := NewInMemoryOperationCache()
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("old"), time.Hour))
	require.NoError(t, c.Set(ctx, "key", []byte("new"), time.Hour))

	payload, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("new"), payload)
}

func TestInMemoryOperationCache_Delete(t *testing.T) {
	c := NewInMemoryOperationCache()
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", []byte("x"), time.Hour))
	require.NoError(t, c.Delete(ctx, "key"))

	_, found, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is not an error
	assert.NoError(t, c.Delete(ctx, "never-set"))
}

func TestInMemoryOperationCache_Cleanup(t *testing.T) {
	c := NewInMemoryOperationCache()
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "expired", []byte("x"), time.Millisecond))
	require.NoError(t, c.Set(ctx, "fresh", []byte("y"), time.Hour))

	time.Sleep(5 * time.Millisecond)
	c.cleanup()

	assert.Equal(t, 1, c.Size())
}

func TestInMemoryOperationCache_CloseTwice(t *testing.T) {
	c := NewInMemoryOperationCache()

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
