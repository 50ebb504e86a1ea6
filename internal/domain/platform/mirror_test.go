package platform

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslist/backend/internal/domain/shared"
)

func TestNewMirror(t *testing.T) {
	shopID := uuid.New()
	productID := uuid.New()

	t.Run("valid mirror", func(t *testing.T) {
		m, err := NewMirror(shopID, productID, CodeEbay, "EB-100", 7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), m.Quantity)
		assert.False(t, m.Ended)
		assert.False(t, m.LastSyncAt.IsZero())
	})

	t.Run("nil product rejected", func(t *testing.T) {
		_, err := NewMirror(shopID, uuid.Nil, CodeEbay, "EB-100", 7)
		assert.True(t, shared.IsCode(err, "INVALID_PRODUCT"))
	})

	t.Run("unknown platform rejected", func(t *testing.T) {
		_, err := NewMirror(shopID, productID, Code("ETSY"), "ET-100", 7)
		assert.True(t, shared.IsCode(err, "INVALID_PLATFORM"))
	})

	t.Run("empty platform item rejected", func(t *testing.T) {
		_, err := NewMirror(shopID, productID, CodeWhatnot, "", 7)
		assert.True(t, shared.IsCode(err, "INVALID_PLATFORM_ITEM"))
	})
}

func TestMirror_RecordSync(t *testing.T) {
	m, err := NewMirror(uuid.New(), uuid.New(), CodeWhatnot, "WN-3", 5)
	require.NoError(t, err)

	at := time.Now().Add(time.Minute)
	m.RecordSync(2, at)

	assert.Equal(t, int64(2), m.Quantity)
	assert.Equal(t, at, m.LastSyncAt)
}

func TestMirror_RecordEnded(t *testing.T) {
	m, err := NewMirror(uuid.New(), uuid.New(), CodeEbay, "EB-3", 5)
	require.NoError(t, err)

	at := time.Now()
	m.RecordEnded(at)

	assert.True(t, m.Ended)
	assert.Zero(t, m.Quantity)
	assert.Equal(t, at, m.LastSyncAt)
}

func TestCode_IsValid(t *testing.T) {
	assert.True(t, CodeEbay.IsValid())
	assert.True(t, CodeWhatnot.IsValid())
	assert.False(t, Code("AMAZON").IsValid())
	assert.Len(t, AllCodes(), 2)
}
