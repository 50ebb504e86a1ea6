// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"

	"github.com/crosslist/backend/internal/domain/catalog"
	"github.com/crosslist/backend/internal/domain/recovery"
)

// InventoryObserver supplies the datapoints for the observable inventory
// gauges. The metrics exporter polls it on its collection interval, so every
// method should stay a single cheap aggregate query.
type InventoryObserver interface {
	// ProductCountsByStatus returns the number of tracked products per lifecycle status.
	ProductCountsByStatus(ctx context.Context) (map[string]int64, error)
	// TrackedUnits returns the total sellable quantity across active products.
	TrackedUnits(ctx context.Context) (int64, error)
	// OpenFailureRecords returns the number of unresolved sync failure records.
	OpenFailureRecords(ctx context.Context) (int64, error)
	// DueRetries returns how many failure records are past their next retry time.
	DueRetries(ctx context.Context, now time.Time) (int64, error)
}

// GormInventoryObserver implements InventoryObserver on the primary database.
type GormInventoryObserver struct {
	db *gorm.DB
}

// NewGormInventoryObserver creates a new GormInventoryObserver.
func NewGormInventoryObserver(db *gorm.DB) *GormInventoryObserver {
	return &GormInventoryObserver{db: db}
}

// ProductCountsByStatus returns the number of tracked products per lifecycle status.
func (o *GormInventoryObserver) ProductCountsByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string `gorm:"column:status"`
		Count  int64  `gorm:"column:count"`
	}
	var rows []row
	if err := o.db.WithContext(ctx).
		Model(&catalog.Product{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// TrackedUnits returns the total sellable quantity across active products.
func (o *GormInventoryObserver) TrackedUnits(ctx context.Context) (int64, error) {
	var total int64
	err := o.db.WithContext(ctx).
		Model(&catalog.Product{}).
		Where("status = ?", catalog.ProductStatusActive).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return total, err
}

// OpenFailureRecords returns the number of unresolved sync failure records.
func (o *GormInventoryObserver) OpenFailureRecords(ctx context.Context) (int64, error) {
	var count int64
	err := o.db.WithContext(ctx).
		Model(&recovery.SyncFailureRecord{}).
		Where("status IN ?", []recovery.Status{
			recovery.StatusPending,
			recovery.StatusRetrying,
			recovery.StatusCritical,
		}).
		Count(&count).Error
	return count, err
}

// DueRetries returns how many failure records are past their next retry time.
func (o *GormInventoryObserver) DueRetries(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := o.db.WithContext(ctx).
		Model(&recovery.SyncFailureRecord{}).
		Where("status IN ?", []recovery.Status{recovery.StatusPending, recovery.StatusCritical}).
		Where("next_retry_at IS NOT NULL AND next_retry_at <= ?", now).
		Count(&count).Error
	return count, err
}

// RegisterInventoryObservers registers the observable inventory gauges on the
// meter. The callback runs once per export interval on a single batch, so a
// failing database does not wedge the exporter.
func RegisterInventoryObservers(meter metric.Meter, observer InventoryObserver) error {
	products, err := meter.Int64ObservableGauge(
		"inventory.products",
		metric.WithDescription("Number of tracked products per lifecycle status"),
		metric.WithUnit("{product}"),
	)
	if err != nil {
		return err
	}
	units, err := meter.Int64ObservableGauge(
		"inventory.units_tracked",
		metric.WithDescription("Total sellable quantity across active products"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return err
	}
	openFailures, err := meter.Int64ObservableGauge(
		"sync.failure_records_open",
		metric.WithDescription("Unresolved sync failure records"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return err
	}
	dueRetries, err := meter.Int64ObservableGauge(
		"sync.retries_due",
		metric.WithDescription("Failure records past their next retry time"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		counts, err := observer.ProductCountsByStatus(ctx)
		if err != nil {
			return err
		}
		for status, count := range counts {
			obs.ObserveInt64(products, count, metric.WithAttributes(attribute.String("status", status)))
		}

		total, err := observer.TrackedUnits(ctx)
		if err != nil {
			return err
		}
		obs.ObserveInt64(units, total)

		open, err := observer.OpenFailureRecords(ctx)
		if err != nil {
			return err
		}
		obs.ObserveInt64(openFailures, open)

		due, err := observer.DueRetries(ctx, time.Now())
		if err != nil {
			return err
		}
		obs.ObserveInt64(dueRetries, due)

		return nil
	}, products, units, openFailures, dueRetries)
	return err
}
