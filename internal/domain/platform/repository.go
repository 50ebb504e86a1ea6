package platform

import (
	"context"

	"github.com/google/uuid"
)

// MirrorRepository defines persistence operations for platform mirrors
type MirrorRepository interface {
	// FindByProduct lists all mirrors of a product
	FindByProduct(ctx context.Context, productID uuid.UUID) ([]Mirror, error)

	// FindByProductAndPlatform finds the mirror of a product on one marketplace
	FindByProductAndPlatform(ctx context.Context, productID uuid.UUID, code Code) (*Mirror, error)

	// FindByPlatformItem resolves a marketplace-native item ID to its mirror
	// within a shop. This is how order line items find their linked product.
	FindByPlatformItem(ctx context.Context, shopID uuid.UUID, code Code, platformItemID string) (*Mirror, error)

	// Save creates or updates a mirror
	Save(ctx context.Context, mirror *Mirror) error
}
