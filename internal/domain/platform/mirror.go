package platform

import (
	"time"

	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Mirror is the locally cached snapshot of a product's state as last observed
// on one external marketplace. It exists for the timeline decision and for
// drift detection only; the ledger, never the mirror, is the source of truth.
type Mirror struct {
	shared.BaseEntity
	ShopID         uuid.UUID `gorm:"type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_mirror_product_platform,priority:1"`
	Platform       Code      `gorm:"type:varchar(20);not null;uniqueIndex:idx_mirror_product_platform,priority:2"`
	PlatformItemID string    `gorm:"type:varchar(64);not null;index:idx_mirror_platform_item"`
	Quantity       int64     `gorm:"not null;default:0"`
	LastSyncAt     time.Time `gorm:"type:timestamptz;not null"`
	Ended          bool      `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (Mirror) TableName() string {
	return "platform_mirrors"
}

// NewMirror creates a mirror for a product on one marketplace. LastSyncAt
// starts at creation time: anything the marketplace recorded before that is
// already folded into the observed quantity.
func NewMirror(shopID, productID uuid.UUID, code Code, platformItemID string, quantity int64) (*Mirror, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if !code.IsValid() {
		return nil, shared.NewDomainError("INVALID_PLATFORM", "Invalid platform code")
	}
	if platformItemID == "" {
		return nil, shared.NewDomainError("INVALID_PLATFORM_ITEM", "Platform item ID cannot be empty")
	}

	return &Mirror{
		BaseEntity:     shared.NewBaseEntity(),
		ShopID:         shopID,
		ProductID:      productID,
		Platform:       code,
		PlatformItemID: platformItemID,
		Quantity:       quantity,
		LastSyncAt:     time.Now(),
	}, nil
}

// RecordSync records a confirmed push: the marketplace now shows quantity, and
// every order event placed before now is folded into that observation.
func (m *Mirror) RecordSync(quantity int64, at time.Time) {
	m.Quantity = quantity
	m.LastSyncAt = at
	m.UpdatedAt = time.Now()
}

// RecordEnded marks the listing as ended on the marketplace
func (m *Mirror) RecordEnded(at time.Time) {
	m.Ended = true
	m.Quantity = 0
	m.LastSyncAt = at
	m.UpdatedAt = time.Now()
}
