package catalog

import (
	"time"

	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ProductStatus represents the lifecycle status of a tracked product
type ProductStatus string

const (
	// ProductStatusActive means the product is listed and sellable
	ProductStatusActive ProductStatus = "active"
	// ProductStatusInactive means the product is temporarily delisted
	ProductStatusInactive ProductStatus = "inactive"
	// ProductStatusCompleted means the product sold out (quantity reached zero)
	ProductStatusCompleted ProductStatus = "completed"
	// ProductStatusDraft means the product is not yet published
	ProductStatusDraft ProductStatus = "draft"
)

// IsValid returns true if the status is valid
func (s ProductStatus) IsValid() bool {
	switch s {
	case ProductStatusActive, ProductStatusInactive, ProductStatusCompleted, ProductStatusDraft:
		return true
	}
	return false
}

// String returns the string representation of ProductStatus
func (s ProductStatus) String() string {
	return string(s)
}

// Product is the quantity-of-record for one listing tracked across the internal
// store and the connected marketplaces. Quantity is mutated only through ledger
// operations; everything else reads it.
type Product struct {
	shared.ShopAggregateRoot
	Title           string        `gorm:"type:varchar(255);not null"`
	SKU             string        `gorm:"type:varchar(100);index"`
	Quantity        int64         `gorm:"not null;default:0"`
	InitialQuantity int64         `gorm:"not null;default:0"`
	Status          ProductStatus `gorm:"type:varchar(20);not null;default:'draft';index"`
	ImportedAt      time.Time     `gorm:"type:timestamptz;not null"`
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a new tracked product. ImportedAt marks the moment the
// product started being tracked for inventory purposes; orders placed before it
// never touch inventory.
func NewProduct(shopID uuid.UUID, title string, quantity int64) (*Product, error) {
	if title == "" {
		return nil, shared.NewDomainError("INVALID_TITLE", "Product title cannot be empty")
	}
	if quantity < 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Initial quantity cannot be negative")
	}

	status := ProductStatusActive
	if quantity == 0 {
		status = ProductStatusCompleted
	}

	return &Product{
		ShopAggregateRoot: shared.NewShopAggregateRoot(shopID),
		Title:             title,
		Quantity:          quantity,
		InitialQuantity:   quantity,
		Status:            status,
		ImportedAt:        time.Now(),
	}, nil
}

// CanFulfill returns true if the current quantity covers the requested quantity
func (p *Product) CanFulfill(qty int64) bool {
	return p.Quantity >= qty
}

// ApplyDelta applies a signed quantity change and returns whether the product
// status changed as a consequence. The caller must have verified the delta does
// not drive the quantity negative; this method enforces it as a final guard.
func (p *Product) ApplyDelta(delta int64) (statusChanged bool, err error) {
	next := p.Quantity + delta
	if next < 0 {
		return false, shared.ErrInsufficientInventory
	}

	p.Quantity = next
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	switch {
	case next == 0 && p.Status == ProductStatusActive:
		p.Status = ProductStatusCompleted
		p.AddDomainEvent(NewProductCompletedEvent(p))
		return true, nil
	case next > 0 && p.Status == ProductStatusCompleted:
		p.Status = ProductStatusActive
		p.AddDomainEvent(NewProductReactivatedEvent(p))
		return true, nil
	}
	return false, nil
}

// SetQuantity forces the quantity to an absolute value (reconciliation path)
// and returns the applied delta plus whether the status changed.
func (p *Product) SetQuantity(quantity int64) (delta int64, statusChanged bool, err error) {
	if quantity < 0 {
		return 0, false, shared.NewDomainError("INVALID_QUANTITY", "Quantity cannot be negative")
	}
	delta = quantity - p.Quantity
	statusChanged, err = p.ApplyDelta(delta)
	return delta, statusChanged, err
}

// IsSoldOut returns true if the product has no remaining quantity
func (p *Product) IsSoldOut() bool {
	return p.Quantity == 0
}
