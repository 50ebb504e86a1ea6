package ledger

import (
	"github.com/crosslist/backend/internal/domain/catalog"
	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// AllocateRequest asks the ledger to consume quantity for an order item
type AllocateRequest struct {
	ShopID          uuid.UUID
	ProductID       uuid.UUID
	Quantity        int64
	Platform        platform.Code
	PlatformOrderID string
	PlatformItemID  string
	// SuppressSync skips follow-up push actions; the caller owns downstream
	// synchronization explicitly instead of hidden instance state.
	SuppressSync bool
}

// Validate validates the request
func (r *AllocateRequest) Validate() error {
	if r.ProductID == uuid.Nil {
		return shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if r.Quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if !r.Platform.IsValid() {
		return shared.NewDomainError("INVALID_PLATFORM", "Invalid platform code")
	}
	if r.PlatformOrderID == "" || r.PlatformItemID == "" {
		return shared.NewDomainError("INVALID_ORDER_REF", "Platform order and item IDs are required")
	}
	return nil
}

// ReleaseRequest asks the ledger to restore quantity for a cancelled order item
type ReleaseRequest struct {
	ShopID          uuid.UUID
	ProductID       uuid.UUID
	Quantity        int64
	Platform        platform.Code
	PlatformOrderID string
	PlatformItemID  string
	SuppressSync    bool
}

// Validate validates the request
func (r *ReleaseRequest) Validate() error {
	a := AllocateRequest{
		ShopID: r.ShopID, ProductID: r.ProductID, Quantity: r.Quantity,
		Platform: r.Platform, PlatformOrderID: r.PlatformOrderID, PlatformItemID: r.PlatformItemID,
	}
	return a.Validate()
}

// ManualAdjustmentRequest applies an operator-initiated signed delta.
// IdempotencyKey is caller-supplied: manual edits have no marketplace-native
// identity to derive one from.
type ManualAdjustmentRequest struct {
	ShopID         uuid.UUID
	ProductID      uuid.UUID
	Delta          int64
	Notes          string
	IdempotencyKey string
	SuppressSync   bool
}

// Validate validates the request
func (r *ManualAdjustmentRequest) Validate() error {
	if r.ProductID == uuid.Nil {
		return shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if r.Delta == 0 {
		return shared.NewDomainError("INVALID_DELTA", "Adjustment delta cannot be zero")
	}
	if r.IdempotencyKey == "" {
		return shared.NewDomainError("INVALID_IDEMPOTENCY_KEY", "Manual adjustments require an idempotency key")
	}
	return nil
}

// ReconcileRequest recomputes a product's expected quantity from the ledger
// and corrects any gap.
type ReconcileRequest struct {
	ShopID       uuid.UUID
	ProductID    uuid.UUID
	SuppressSync bool
}

// Validate validates the request
func (r *ReconcileRequest) Validate() error {
	if r.ProductID == uuid.Nil {
		return shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	return nil
}

// FollowUp is a side effect the ledger asks its caller to schedule after the
// atomic unit commits: a cross-platform quantity push, and optionally ending
// listings when the product sold out. The ledger itself never dispatches.
type FollowUp struct {
	ShopID    uuid.UUID       `json:"shop_id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	Targets   []platform.Code `json:"targets"`
	// Origin is the platform that originated the event, excluded from
	// Targets so it is never redundantly re-pushed to itself.
	Origin      platform.Code `json:"origin,omitempty"`
	EndListings bool          `json:"end_listings"`
}

// OperationResult is the outcome of one ledger operation. Results are cached
// under the operation's idempotency key so redelivery returns the original
// effect without taking any lock.
type OperationResult struct {
	Operation        string                `json:"operation"`
	ShopID           uuid.UUID             `json:"shop_id"`
	ProductID        uuid.UUID             `json:"product_id"`
	TransactionID    uuid.UUID             `json:"transaction_id"`
	Delta            int64                 `json:"delta"`
	PreviousQuantity int64                 `json:"previous_quantity"`
	NewQuantity      int64                 `json:"new_quantity"`
	ProductStatus    catalog.ProductStatus `json:"product_status"`
	// AlreadyApplied is true when the storage-level uniqueness guard found an
	// existing transaction: the duplicate resolved silently to a no-op success.
	AlreadyApplied bool       `json:"already_applied"`
	SyncSuppressed bool       `json:"sync_suppressed"`
	FollowUps      []FollowUp `json:"follow_ups,omitempty"`
	// FromCache is true when this result was served from the idempotency
	// cache rather than fresh work. Never serialized: a cached copy is
	// tagged at read time.
	FromCache bool `json:"-"`
}
