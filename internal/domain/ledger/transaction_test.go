package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/shared"
)

func TestNewTransaction(t *testing.T) {
	shopID := uuid.New()
	productID := uuid.New()

	t.Run("valid allocation", func(t *testing.T) {
		tx, err := NewTransaction(shopID, productID, TransactionTypeAllocation, -2, 10, 8)
		require.NoError(t, err)
		assert.Equal(t, int64(-2), tx.Delta)
		assert.False(t, tx.Processed)
		assert.False(t, tx.OccurredAt.IsZero())
	})

	t.Run("nil product rejected", func(t *testing.T) {
		_, err := NewTransaction(shopID, uuid.Nil, TransactionTypeAllocation, -1, 5, 4)
		assert.True(t, shared.IsCode(err, "INVALID_PRODUCT"))
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		_, err := NewTransaction(shopID, productID, TransactionType("transfer"), -1, 5, 4)
		assert.True(t, shared.IsCode(err, "INVALID_TRANSACTION_TYPE"))
	})

	t.Run("delta must bridge previous and new quantity", func(t *testing.T) {
		_, err := NewTransaction(shopID, productID, TransactionTypeRelease, 2, 5, 6)
		assert.True(t, shared.IsCode(err, "INVALID_DELTA"))
	})

	t.Run("failure markers skip the bridge check", func(t *testing.T) {
		// allocation_failed records the shortfall without changing state.
		tx, err := NewTransaction(shopID, productID, TransactionTypeAllocationFailed, -5, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(-5), tx.Delta)
	})

	t.Run("negative new quantity rejected", func(t *testing.T) {
		_, err := NewTransaction(shopID, productID, TransactionTypeManualAdjustment, -6, 5, -1)
		assert.True(t, shared.IsCode(err, "INVALID_QUANTITY"))
	})
}

func TestTransaction_WithOrderRef(t *testing.T) {
	tx, err := NewTransaction(uuid.New(), uuid.New(), TransactionTypeAllocation, -1, 3, 2)
	require.NoError(t, err)

	tx.WithOrderRef(platform.CodeEbay, "EB-ORD-1", "EB-ITEM-1").WithNotes("webhook")

	assert.Equal(t, platform.CodeEbay, tx.Platform)
	assert.Equal(t, "EB-ORD-1", tx.PlatformOrderID)
	assert.Equal(t, "EB-ITEM-1", tx.PlatformItemID)
	assert.Equal(t, "webhook", tx.Notes)
}

func TestTransactionType_CountsTowardBalance(t *testing.T) {
	counting := []TransactionType{
		TransactionTypeAllocation,
		TransactionTypeRelease,
		TransactionTypeManualAdjustment,
		TransactionTypeReconciliation,
	}
	for _, tt := range counting {
		assert.True(t, tt.CountsTowardBalance(), tt)
	}
	assert.False(t, TransactionTypeAllocationFailed.CountsTowardBalance())
	assert.False(t, TransactionTypeStatusChange.CountsTowardBalance())
}

func TestExpectedQuantity(t *testing.T) {
	shopID := uuid.New()
	productID := uuid.New()

	mustTx := func(txType TransactionType, delta, prev, next int64) Transaction {
		tx, err := NewTransaction(shopID, productID, txType, delta, prev, next)
		require.NoError(t, err)
		return *tx
	}

	t.Run("replays only balance-counting transactions", func(t *testing.T) {
		txs := []Transaction{
			mustTx(TransactionTypeAllocation, -3, 10, 7),
			mustTx(TransactionTypeAllocationFailed, -9, 7, 7),
			mustTx(TransactionTypeRelease, 1, 7, 8),
			mustTx(TransactionTypeStatusChange, 0, 8, 8),
			mustTx(TransactionTypeManualAdjustment, -2, 8, 6),
		}
		assert.Equal(t, int64(6), ExpectedQuantity(10, txs))
	})

	t.Run("clamps at zero", func(t *testing.T) {
		// A lost adjustment can leave the log summing below zero; the
		// quantity of record never goes negative.
		txs := []Transaction{
			mustTx(TransactionTypeAllocation, -2, 5, 3),
			mustTx(TransactionTypeAllocation, -2, 3, 1),
		}
		assert.Equal(t, int64(0), ExpectedQuantity(1, txs))
	})

	t.Run("empty log returns the initial quantity", func(t *testing.T) {
		assert.Equal(t, int64(4), ExpectedQuantity(4, nil))
	})
}
