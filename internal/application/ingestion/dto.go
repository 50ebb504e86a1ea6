package ingestion

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appledger "github.com/crosslist/backend/internal/application/ledger"
	"github.com/crosslist/backend/internal/domain/platform"
)

// NormalizedOrder is the platform-agnostic order record handed to the
// pipeline. Field extraction from marketplace payloads is the order-sync
// collaborator's responsibility; by the time an order reaches here it is
// already normalized.
type NormalizedOrder struct {
	ShopID          uuid.UUID        `validate:"required"`
	Platform        platform.Code    `validate:"required"`
	PlatformOrderID string           `validate:"required"`
	BuyerUsername   string           `validate:"omitempty,max=128"`
	PlacedAt        time.Time        `validate:"required"`
	CancelledAt     *time.Time       `validate:"omitempty"`
	Currency        string           `validate:"omitempty,len=3"`
	ItemTotal       decimal.Decimal  `validate:"-"`
	ShippingTotal   decimal.Decimal  `validate:"-"`
	TaxTotal        decimal.Decimal  `validate:"-"`
	OrderTotal      decimal.Decimal  `validate:"-"`
	Items           []NormalizedItem `validate:"required,min=1,dive"`
}

// IsCancelled reports whether the order is cancelled as of evaluation time.
func (o *NormalizedOrder) IsCancelled() bool {
	return o.CancelledAt != nil
}

// NormalizedItem is one line item of a normalized order.
type NormalizedItem struct {
	PlatformItemID string          `validate:"required"`
	Quantity       int64           `validate:"required,gt=0"`
	UnitPrice      decimal.Decimal `validate:"-"`
}

// ItemAction is what the pipeline decided to do with one line item.
type ItemAction string

const (
	// ItemActionAllocated means inventory was consumed for the item
	ItemActionAllocated ItemAction = "allocated"
	// ItemActionReleased means inventory was restored for the item
	ItemActionReleased ItemAction = "released"
	// ItemActionSkipped means the timeline rule decided the item must not
	// touch inventory. A normal outcome, not an error.
	ItemActionSkipped ItemAction = "skipped"
	// ItemActionFailed means the item could not be processed
	ItemActionFailed ItemAction = "failed"
)

// ItemOutcome is the per-line-item result of order processing.
type ItemOutcome struct {
	PlatformItemID string     `json:"platform_item_id"`
	Action         ItemAction `json:"action"`
	// Reason explains a skip or a failure in operator terms.
	Reason        string    `json:"reason,omitempty"`
	Quantity      int64     `json:"quantity"`
	TransactionID uuid.UUID `json:"transaction_id,omitempty"`
}

// Failed reports whether the item ended in an error.
func (o ItemOutcome) Failed() bool { return o.Action == ItemActionFailed }

// OrderOutcome is the aggregate result of processing one order. The order
// record itself persists even when some items failed; callers inspect
// ItemErrors() to decide whether the delivery needs a retry.
type OrderOutcome struct {
	ShopID          uuid.UUID            `json:"shop_id"`
	OrderID         uuid.UUID            `json:"order_id"`
	Platform        platform.Code        `json:"platform"`
	PlatformOrderID string               `json:"platform_order_id"`
	Cancelled       bool                 `json:"cancelled"`
	Items           []ItemOutcome        `json:"items"`
	FollowUps       []appledger.FollowUp `json:"follow_ups,omitempty"`
	// FromCache is true when this outcome was served from the idempotency
	// cache. Cached hits must not count toward batch-progress counters.
	FromCache bool `json:"-"`
}

// ItemErrors returns the outcomes of the items that failed.
func (o *OrderOutcome) ItemErrors() []ItemOutcome {
	var out []ItemOutcome
	for _, item := range o.Items {
		if item.Failed() {
			out = append(out, item)
		}
	}
	return out
}
