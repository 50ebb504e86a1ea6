package recovery

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FailureRecordRepository defines persistence operations for sync failure records
type FailureRecordRepository interface {
	// FindByID finds a failure record by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*SyncFailureRecord, error)

	// FindOpenByProduct finds the non-terminal record of a product, or nil.
	// A product carries at most one open record at a time.
	FindOpenByProduct(ctx context.Context, productID uuid.UUID) (*SyncFailureRecord, error)

	// FindDue lists non-terminal records whose next retry is at or before now
	FindDue(ctx context.Context, now time.Time, limit int) ([]SyncFailureRecord, error)

	// Save creates or updates a failure record
	Save(ctx context.Context, record *SyncFailureRecord) error
}
