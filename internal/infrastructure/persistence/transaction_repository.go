package persistence

import (
	"context"
	"errors"

	"github.com/crosslist/backend/internal/domain/ledger"
	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTransactionRepository implements ledger.TransactionRepository using GORM.
// The ledger is append-only: rows are created and flagged processed, never
// updated in place or deleted.
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// Create appends a transaction to the ledger. A unique-violation on the
// order-reference index surfaces as ErrDuplicateOperation so callers can
// treat a concurrent double-apply as idempotent redelivery.
func (r *GormTransactionRepository) Create(ctx context.Context, tx *ledger.Transaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrDuplicateOperation
		}
		return err
	}
	return nil
}

// FindByOrderRef finds the transaction of the given type bound to a
// (product, order item) pair, or nil when none exists
func (r *GormTransactionRepository) FindByOrderRef(ctx context.Context, productID uuid.UUID, txType ledger.TransactionType, code platform.Code, orderID, itemID string) (*ledger.Transaction, error) {
	var tx ledger.Transaction
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND type = ? AND platform = ? AND platform_order_id = ? AND platform_item_id = ?",
			productID, txType, code, orderID, itemID).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

// FindByProduct lists all transactions of a product, oldest first
func (r *GormTransactionRepository) FindByProduct(ctx context.Context, productID uuid.UUID) ([]ledger.Transaction, error) {
	var txs []ledger.Transaction
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("occurred_at ASC, id ASC").
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// FindUnprocessed lists transactions of a product not yet confirmed as pushed
func (r *GormTransactionRepository) FindUnprocessed(ctx context.Context, productID uuid.UUID) ([]ledger.Transaction, error) {
	var txs []ledger.Transaction
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND processed = ?", productID, false).
		Order("occurred_at ASC, id ASC").
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

// MarkProcessedForProduct flags all unprocessed transactions of a product as
// processed and returns the number updated
func (r *GormTransactionRepository) MarkProcessedForProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&ledger.Transaction{}).
		Where("product_id = ? AND processed = ?", productID, false).
		Update("processed", true)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Ensure GormTransactionRepository implements TransactionRepository
var _ ledger.TransactionRepository = (*GormTransactionRepository)(nil)
