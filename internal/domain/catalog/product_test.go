package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslist/backend/internal/domain/shared"
)

func TestNewProduct(t *testing.T) {
	shopID := uuid.New()

	t.Run("starts active with quantity", func(t *testing.T) {
		p, err := NewProduct(shopID, "Vintage Camera", 5)
		require.NoError(t, err)
		assert.Equal(t, shopID, p.ShopID)
		assert.Equal(t, int64(5), p.Quantity)
		assert.Equal(t, int64(5), p.InitialQuantity)
		assert.Equal(t, ProductStatusActive, p.Status)
		assert.False(t, p.ImportedAt.IsZero())
	})

	t.Run("zero quantity imports as completed", func(t *testing.T) {
		p, err := NewProduct(shopID, "Sold Out Item", 0)
		require.NoError(t, err)
		assert.Equal(t, ProductStatusCompleted, p.Status)
		assert.True(t, p.IsSoldOut())
	})

	t.Run("empty title rejected", func(t *testing.T) {
		_, err := NewProduct(shopID, "", 5)
		assert.True(t, shared.IsCode(err, "INVALID_TITLE"))
	})

	t.Run("negative quantity rejected", func(t *testing.T) {
		_, err := NewProduct(shopID, "Vintage Camera", -1)
		assert.True(t, shared.IsCode(err, "INVALID_QUANTITY"))
	})
}

func TestProduct_ApplyDelta(t *testing.T) {
	newProduct := func(t *testing.T, qty int64) *Product {
		t.Helper()
		p, err := NewProduct(uuid.New(), "Trading Card Lot", qty)
		require.NoError(t, err)
		return p
	}

	t.Run("applies signed change and bumps version", func(t *testing.T) {
		p := newProduct(t, 10)
		v := p.GetVersion()

		changed, err := p.ApplyDelta(-3)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, int64(7), p.Quantity)
		assert.Equal(t, v+1, p.GetVersion())
	})

	t.Run("draining to zero completes the product", func(t *testing.T) {
		p := newProduct(t, 2)

		changed, err := p.ApplyDelta(-2)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, ProductStatusCompleted, p.Status)
		assert.NotEmpty(t, p.GetDomainEvents())
	})

	t.Run("restock reactivates a completed product", func(t *testing.T) {
		p := newProduct(t, 1)
		_, err := p.ApplyDelta(-1)
		require.NoError(t, err)

		changed, err := p.ApplyDelta(3)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, ProductStatusActive, p.Status)
	})

	t.Run("restock does not touch an inactive product's status", func(t *testing.T) {
		p := newProduct(t, 5)
		p.Status = ProductStatusInactive

		changed, err := p.ApplyDelta(2)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, ProductStatusInactive, p.Status)
	})

	t.Run("never drives quantity negative", func(t *testing.T) {
		p := newProduct(t, 2)

		_, err := p.ApplyDelta(-3)
		assert.ErrorIs(t, err, shared.ErrInsufficientInventory)
		assert.Equal(t, int64(2), p.Quantity)
	})
}

func TestProduct_SetQuantity(t *testing.T) {
	p, err := NewProduct(uuid.New(), "Enamel Pin", 10)
	require.NoError(t, err)

	delta, changed, err := p.SetQuantity(4)
	require.NoError(t, err)
	assert.Equal(t, int64(-6), delta)
	assert.False(t, changed)
	assert.Equal(t, int64(4), p.Quantity)

	delta, changed, err = p.SetQuantity(0)
	require.NoError(t, err)
	assert.Equal(t, int64(-4), delta)
	assert.True(t, changed)
	assert.Equal(t, ProductStatusCompleted, p.Status)

	_, _, err = p.SetQuantity(-1)
	assert.True(t, shared.IsCode(err, "INVALID_QUANTITY"))
}

func TestProduct_CanFulfill(t *testing.T) {
	p, err := NewProduct(uuid.New(), "Poster", 3)
	require.NoError(t, err)

	assert.True(t, p.CanFulfill(3))
	assert.False(t, p.CanFulfill(4))
}

func TestProductStatus_IsValid(t *testing.T) {
	for _, s := range []ProductStatus{ProductStatusActive, ProductStatusInactive, ProductStatusCompleted, ProductStatusDraft} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, ProductStatus("archived").IsValid())
}
