package persistence

import (
	"context"

	"github.com/crosslist/backend/internal/domain/catalog"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormShopDirectory enumerates the shops that currently hold inventory.
// The reconciliation sweep uses it to decide which shops to visit.
type GormShopDirectory struct {
	db *gorm.DB
}

// NewGormShopDirectory creates a new GormShopDirectory
func NewGormShopDirectory(db *gorm.DB) *GormShopDirectory {
	return &GormShopDirectory{db: db}
}

// GetAllActiveShopIDs returns the distinct shop IDs that own at least one
// non-draft product. Draft products have never been listed, so there is
// nothing on any marketplace to reconcile against.
func (d *GormShopDirectory) GetAllActiveShopIDs(ctx context.Context) ([]uuid.UUID, error) {
	var shopIDs []uuid.UUID
	if err := d.db.WithContext(ctx).
		Model(&catalog.Product{}).
		Distinct("shop_id").
		Where("status <> ?", catalog.ProductStatusDraft).
		Order("shop_id ASC").
		Pluck("shop_id", &shopIDs).Error; err != nil {
		return nil, err
	}
	return shopIDs, nil
}
