package persistence

import (
	"context"
	"errors"

	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormMirrorRepository implements platform.MirrorRepository using GORM
type GormMirrorRepository struct {
	db *gorm.DB
}

// NewGormMirrorRepository creates a new GormMirrorRepository
func NewGormMirrorRepository(db *gorm.DB) *GormMirrorRepository {
	return &GormMirrorRepository{db: db}
}

// FindByProduct lists all mirrors of a product
func (r *GormMirrorRepository) FindByProduct(ctx context.Context, productID uuid.UUID) ([]platform.Mirror, error) {
	var mirrors []platform.Mirror
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("platform ASC").
		Find(&mirrors).Error; err != nil {
		return nil, err
	}
	return mirrors, nil
}

// FindByProductAndPlatform finds the mirror of a product on one marketplace
func (r *GormMirrorRepository) FindByProductAndPlatform(ctx context.Context, productID uuid.UUID, code platform.Code) (*platform.Mirror, error) {
	var mirror platform.Mirror
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND platform = ?", productID, code).
		First(&mirror).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &mirror, nil
}

// FindByPlatformItem resolves a marketplace-native item ID to its mirror within a shop
func (r *GormMirrorRepository) FindByPlatformItem(ctx context.Context, shopID uuid.UUID, code platform.Code, platformItemID string) (*platform.Mirror, error) {
	var mirror platform.Mirror
	if err := r.db.WithContext(ctx).
		Where("shop_id = ? AND platform = ? AND platform_item_id = ?", shopID, code, platformItemID).
		First(&mirror).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &mirror, nil
}

// Save creates or updates a mirror
func (r *GormMirrorRepository) Save(ctx context.Context, mirror *platform.Mirror) error {
	return r.db.WithContext(ctx).Save(mirror).Error
}

// Ensure GormMirrorRepository implements MirrorRepository
var _ platform.MirrorRepository = (*GormMirrorRepository)(nil)
