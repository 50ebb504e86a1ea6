package ledger

import (
	"time"

	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// TransactionType represents the type of ledger transaction
type TransactionType string

const (
	// TransactionTypeAllocation represents quantity consumed by an order
	TransactionTypeAllocation TransactionType = "allocation"
	// TransactionTypeRelease represents quantity restored by a cancellation
	TransactionTypeRelease TransactionType = "release"
	// TransactionTypeManualAdjustment represents an operator-initiated change
	TransactionTypeManualAdjustment TransactionType = "manual_adjustment"
	// TransactionTypeReconciliation represents a drift correction computed from replay
	TransactionTypeReconciliation TransactionType = "reconciliation"
	// TransactionTypeAllocationFailed records a shortfall; it never changes state
	TransactionTypeAllocationFailed TransactionType = "allocation_failed"
	// TransactionTypeStatusChange records a product status transition (delta zero)
	TransactionTypeStatusChange TransactionType = "status_change"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid returns true if the transaction type is valid
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeAllocation,
		TransactionTypeRelease,
		TransactionTypeManualAdjustment,
		TransactionTypeReconciliation,
		TransactionTypeAllocationFailed,
		TransactionTypeStatusChange:
		return true
	}
	return false
}

// CountsTowardBalance returns true if the transaction type participates in the
// quantity replay. Failure markers and status changes carry no balance weight.
func (t TransactionType) CountsTowardBalance() bool {
	switch t {
	case TransactionTypeAllocation,
		TransactionTypeRelease,
		TransactionTypeManualAdjustment,
		TransactionTypeReconciliation:
		return true
	}
	return false
}

// Transaction is an immutable, append-only record of one inventory change.
// Corrections are made with new transactions, never by editing old ones.
// At most one transaction of a given balance-counting type may exist per
// (product, order item) pair; that uniqueness is the storage-level
// idempotency guard.
type Transaction struct {
	shared.BaseEntity
	ShopID           uuid.UUID       `gorm:"type:uuid;not null;index:idx_ledger_tx_shop_time,priority:1"`
	ProductID        uuid.UUID       `gorm:"type:uuid;not null;index:idx_ledger_tx_product"`
	Type             TransactionType `gorm:"type:varchar(30);not null;index:idx_ledger_tx_type"`
	Delta            int64           `gorm:"not null"`
	PreviousQuantity int64           `gorm:"not null"`
	NewQuantity      int64           `gorm:"not null"`
	Platform         platform.Code   `gorm:"type:varchar(20)"`
	PlatformOrderID  string          `gorm:"type:varchar(64)"`
	PlatformItemID   string          `gorm:"type:varchar(64)"`
	Processed        bool            `gorm:"not null;default:false;index"`
	Notes            string          `gorm:"type:varchar(255)"`
	OccurredAt       time.Time       `gorm:"type:timestamptz;not null;index:idx_ledger_tx_shop_time,priority:2"`
}

// TableName returns the table name for GORM
func (Transaction) TableName() string {
	return "ledger_transactions"
}

// NewTransaction creates a new ledger transaction
func NewTransaction(
	shopID, productID uuid.UUID,
	txType TransactionType,
	delta, previousQuantity, newQuantity int64,
) (*Transaction, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if !txType.IsValid() {
		return nil, shared.NewDomainError("INVALID_TRANSACTION_TYPE", "Invalid transaction type")
	}
	if txType.CountsTowardBalance() && previousQuantity+delta != newQuantity {
		return nil, shared.NewDomainError("INVALID_DELTA", "Delta does not bridge previous and new quantity")
	}
	if newQuantity < 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "New quantity cannot be negative")
	}

	return &Transaction{
		BaseEntity:       shared.NewBaseEntity(),
		ShopID:           shopID,
		ProductID:        productID,
		Type:             txType,
		Delta:            delta,
		PreviousQuantity: previousQuantity,
		NewQuantity:      newQuantity,
		OccurredAt:       time.Now(),
	}, nil
}

// WithOrderRef binds the transaction to the platform order item that caused it
func (t *Transaction) WithOrderRef(code platform.Code, orderID, itemID string) *Transaction {
	t.Platform = code
	t.PlatformOrderID = orderID
	t.PlatformItemID = itemID
	return t
}

// WithNotes sets free-form notes on the transaction
func (t *Transaction) WithNotes(notes string) *Transaction {
	t.Notes = notes
	return t
}

// MarkProcessed flags the transaction as pushed to the connected platforms
func (t *Transaction) MarkProcessed() {
	t.Processed = true
	t.Touch()
}

// ExpectedQuantity replays balance-counting transactions over the initial
// quantity. The result is clamped at zero: the quantity of record is never
// negative regardless of what the log sums to.
func ExpectedQuantity(initialQuantity int64, txs []Transaction) int64 {
	total := initialQuantity
	for i := range txs {
		if txs[i].Type.CountsTowardBalance() {
			total += txs[i].Delta
		}
	}
	if total < 0 {
		return 0
	}
	return total
}
