package catalog

import (
	"context"

	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// ProductRepository defines persistence operations for products
type ProductRepository interface {
	// FindByID finds a product by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindByIDForShop finds a product by ID within a shop
	FindByIDForShop(ctx context.Context, shopID, id uuid.UUID) (*Product, error)

	// FindByIDForUpdate finds a product by ID taking a row-level write lock.
	// Only valid inside a transaction scope.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Product, error)

	// FindBySKU finds a product by SKU within a shop
	FindBySKU(ctx context.Context, shopID uuid.UUID, sku string) (*Product, error)

	// FindAllForShop finds all products for a shop
	FindAllForShop(ctx context.Context, shopID uuid.UUID, filter shared.Filter) ([]Product, error)

	// FindActiveIDs returns the IDs of all non-draft products for a shop,
	// used by the reconciliation sweep.
	FindActiveIDs(ctx context.Context, shopID uuid.UUID) ([]uuid.UUID, error)

	// Save creates or updates a product
	Save(ctx context.Context, product *Product) error
}
