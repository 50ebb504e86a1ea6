package ledger

import (
	"context"

	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/google/uuid"
)

// TransactionRepository is the append-only store for ledger transactions
type TransactionRepository interface {
	// Create appends a transaction to the ledger
	Create(ctx context.Context, tx *Transaction) error

	// FindByOrderRef finds the transaction of the given type bound to a
	// (product, order item) pair, or nil when none exists. This is the
	// storage-level half of the double-checked idempotency guard.
	FindByOrderRef(ctx context.Context, productID uuid.UUID, txType TransactionType, code platform.Code, orderID, itemID string) (*Transaction, error)

	// FindByProduct lists all transactions of a product, oldest first
	FindByProduct(ctx context.Context, productID uuid.UUID) ([]Transaction, error)

	// FindUnprocessed lists transactions of a product not yet confirmed as
	// pushed to the connected platforms
	FindUnprocessed(ctx context.Context, productID uuid.UUID) ([]Transaction, error)

	// MarkProcessedForProduct flags all unprocessed transactions of a product
	// as processed and returns the number updated
	MarkProcessedForProduct(ctx context.Context, productID uuid.UUID) (int64, error)
}
