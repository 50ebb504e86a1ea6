package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/crosslist/backend/internal/domain/recovery"
	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormFailureRecordRepository implements recovery.FailureRecordRepository using GORM
type GormFailureRecordRepository struct {
	db *gorm.DB
}

// NewGormFailureRecordRepository creates a new GormFailureRecordRepository
func NewGormFailureRecordRepository(db *gorm.DB) *GormFailureRecordRepository {
	return &GormFailureRecordRepository{db: db}
}

// FindByID finds a failure record by its ID
func (r *GormFailureRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*recovery.SyncFailureRecord, error) {
	var record recovery.SyncFailureRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// FindOpenByProduct finds the non-terminal record of a product, or nil
func (r *GormFailureRecordRepository) FindOpenByProduct(ctx context.Context, productID uuid.UUID) (*recovery.SyncFailureRecord, error) {
	var record recovery.SyncFailureRecord
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND status IN ?", productID, []recovery.Status{recovery.StatusPending, recovery.StatusCritical}).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// FindDue lists non-terminal records whose next retry is at or before now
func (r *GormFailureRecordRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]recovery.SyncFailureRecord, error) {
	var records []recovery.SyncFailureRecord
	query := r.db.WithContext(ctx).
		Where("status IN ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
			[]recovery.Status{recovery.StatusPending, recovery.StatusCritical}, now).
		Order("next_retry_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Save creates or updates a failure record
func (r *GormFailureRecordRepository) Save(ctx context.Context, record *recovery.SyncFailureRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

// Ensure GormFailureRecordRepository implements FailureRecordRepository
var _ recovery.FailureRecordRepository = (*GormFailureRecordRepository)(nil)
