package catalog

import (
	"github.com/crosslist/backend/internal/domain/shared"
)

const (
	// EventTypeProductCompleted is emitted when a product sells out
	EventTypeProductCompleted = "catalog.product.completed"
	// EventTypeProductReactivated is emitted when a sold-out product regains quantity
	EventTypeProductReactivated = "catalog.product.reactivated"
)

// ProductCompletedEvent signals the product quantity reached zero
type ProductCompletedEvent struct {
	shared.BaseDomainEvent
	SKU string `json:"sku"`
}

// NewProductCompletedEvent creates a ProductCompletedEvent
func NewProductCompletedEvent(p *Product) *ProductCompletedEvent {
	return &ProductCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductCompleted, "Product", p.ID, p.ShopID),
		SKU:             p.SKU,
	}
}

// ProductReactivatedEvent signals a completed product regained quantity
type ProductReactivatedEvent struct {
	shared.BaseDomainEvent
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

// NewProductReactivatedEvent creates a ProductReactivatedEvent
func NewProductReactivatedEvent(p *Product) *ProductReactivatedEvent {
	return &ProductReactivatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductReactivated, "Product", p.ID, p.ShopID),
		SKU:             p.SKU,
		Quantity:        p.Quantity,
	}
}
