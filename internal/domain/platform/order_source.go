package platform

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PulledOrder is one order as reported by a marketplace, already reduced to
// the fields the ingestion pipeline consumes. Monetary amounts are in the
// order's currency.
type PulledOrder struct {
	PlatformOrderID string
	BuyerUsername   string
	PlacedAt        time.Time
	CancelledAt     *time.Time
	Currency        string
	ItemTotal       decimal.Decimal
	ShippingTotal   decimal.Decimal
	TaxTotal        decimal.Decimal
	OrderTotal      decimal.Decimal
	Items           []PulledOrderItem
}

// PulledOrderItem is one line item of a pulled order.
type PulledOrderItem struct {
	PlatformItemID string
	Quantity       int64
	UnitPrice      decimal.Decimal
}

// OrderPullRequest asks a marketplace for the orders touched since Since.
// PageToken carries the marketplace's native pagination cursor; empty means
// the first page.
type OrderPullRequest struct {
	ShopID    uuid.UUID
	Since     time.Time
	PageToken string
	PageSize  int
}

// OrderPullPage is one page of pulled orders.
type OrderPullPage struct {
	Orders        []PulledOrder
	NextPageToken string
	HasMore       bool
}

// OrderSource is the inbound counterpart of Adapter: it pulls recently
// created or changed orders from one marketplace. Pulls overlap between runs
// by design; the ingestion pipeline's idempotency absorbs redeliveries.
type OrderSource interface {
	// Code returns the marketplace this source pulls from
	Code() Code

	// PullOrders returns one page of orders touched since req.Since
	PullOrders(ctx context.Context, req OrderPullRequest) (*OrderPullPage, error)
}
