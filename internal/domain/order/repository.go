package order

import (
	"context"

	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/google/uuid"
)

// Repository defines persistence operations for marketplace orders
type Repository interface {
	// FindByID finds an order with its items
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByPlatformOrder finds an order by its marketplace-native ID within a shop
	FindByPlatformOrder(ctx context.Context, shopID uuid.UUID, code platform.Code, platformOrderID string) (*Order, error)

	// Save creates or updates an order together with its items
	Save(ctx context.Context, o *Order) error
}
