package order

import (
	"time"

	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a marketplace order as persisted by the ingestion pipeline.
// Orders are created and updated by ingestion and read-only to the ledger.
type Order struct {
	shared.ShopAggregateRoot
	Platform        platform.Code   `gorm:"type:varchar(20);not null;uniqueIndex:idx_order_platform_native,priority:1"`
	PlatformOrderID string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_order_platform_native,priority:2"`
	BuyerUsername   string          `gorm:"type:varchar(100)"`
	PlacedAt        time.Time       `gorm:"type:timestamptz;not null;index"`
	CancelledAt     *time.Time      `gorm:"type:timestamptz"`
	ItemTotal       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	ShippingTotal   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TaxTotal        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	OrderTotal      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Currency        string          `gorm:"type:varchar(3);not null;default:'USD'"`

	Items []Item `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName returns the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// Item is a single line of a marketplace order
type Item struct {
	shared.BaseEntity
	OrderID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	PlatformItemID string          `gorm:"type:varchar(64);not null;index"`
	Quantity       int64           `gorm:"not null"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (Item) TableName() string {
	return "order_items"
}

// NewOrder creates an order from a normalized marketplace payload
func NewOrder(shopID uuid.UUID, code platform.Code, platformOrderID string, placedAt time.Time) (*Order, error) {
	if !code.IsValid() {
		return nil, shared.NewDomainError("INVALID_PLATFORM", "Invalid platform code")
	}
	if platformOrderID == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_ID", "Platform order ID cannot be empty")
	}
	if placedAt.IsZero() {
		return nil, shared.NewDomainError("INVALID_PLACED_AT", "Order placement timestamp is required")
	}

	return &Order{
		ShopAggregateRoot: shared.NewShopAggregateRoot(shopID),
		Platform:          code,
		PlatformOrderID:   platformOrderID,
		PlacedAt:          placedAt,
		Items:             make([]Item, 0),
	}, nil
}

// AddItem appends a line item to the order
func (o *Order) AddItem(platformItemID string, quantity int64, unitPrice decimal.Decimal) error {
	if platformItemID == "" {
		return shared.NewDomainError("INVALID_PLATFORM_ITEM", "Platform item ID cannot be empty")
	}
	if quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Item quantity must be positive")
	}
	o.Items = append(o.Items, Item{
		BaseEntity:     shared.NewBaseEntity(),
		OrderID:        o.ID,
		PlatformItemID: platformItemID,
		Quantity:       quantity,
		UnitPrice:      unitPrice,
	})
	return nil
}

// Cancel records the marketplace-side cancellation timestamp
func (o *Order) Cancel(at time.Time) {
	o.CancelledAt = &at
	o.UpdatedAt = time.Now()
	o.IncrementVersion()
}

// IsCancelled returns true if the order is cancelled as of evaluation time
func (o *Order) IsCancelled() bool {
	return o.CancelledAt != nil
}
