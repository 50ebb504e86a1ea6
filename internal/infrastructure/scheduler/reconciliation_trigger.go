package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crosslist/backend/internal/application/reconciliation"
	"github.com/crosslist/backend/internal/domain/shared"
)

// ShopProvider lists the shops a periodic sweep should cover.
type ShopProvider interface {
	GetAllActiveShopIDs(ctx context.Context) ([]uuid.UUID, error)
}

// ReconciliationRunner runs a drift sweep for one shop.
type ReconciliationRunner interface {
	ReconcileShop(ctx context.Context, shopID uuid.UUID) (*reconciliation.SweepResult, error)
}

// ReconciliationTriggerConfig holds configuration for the reconciliation trigger.
type ReconciliationTriggerConfig struct {
	// Interval is how often a full sweep over all shops runs.
	Interval time.Duration
}

// DefaultReconciliationTriggerConfig returns default trigger configuration.
func DefaultReconciliationTriggerConfig() ReconciliationTriggerConfig {
	return ReconciliationTriggerConfig{
		Interval: 6 * time.Hour,
	}
}

// ReconciliationTrigger periodically sweeps every active shop for quantity
// drift. A shop that is busy with a conflicting job is skipped and picked up
// on the next sweep.
type ReconciliationTrigger struct {
	config       ReconciliationTriggerConfig
	runner       ReconciliationRunner
	shopProvider ShopProvider
	logger       *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewReconciliationTrigger creates a new reconciliation trigger.
func NewReconciliationTrigger(
	config ReconciliationTriggerConfig,
	runner ReconciliationRunner,
	shopProvider ShopProvider,
	logger *zap.Logger,
) *ReconciliationTrigger {
	return &ReconciliationTrigger{
		config:       config,
		runner:       runner,
		shopProvider: shopProvider,
		logger:       logger,
	}
}

// Start starts the trigger loop.
func (r *ReconciliationTrigger) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = true
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.runLoop(ctx)

	r.logger.Info("Reconciliation trigger started",
		zap.Duration("interval", r.config.Interval),
	)

	return nil
}

// Stop stops the trigger and waits for an in-flight sweep to finish.
func (r *ReconciliationTrigger) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Reconciliation trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *ReconciliationTrigger) runLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep runs one full pass over all active shops.
func (r *ReconciliationTrigger) sweep(ctx context.Context) {
	shopIDs, err := r.shopProvider.GetAllActiveShopIDs(ctx)
	if err != nil {
		r.logger.Error("Failed to list shops for reconciliation sweep", zap.Error(err))
		return
	}

	r.logger.Info("Starting reconciliation sweep",
		zap.Int("shop_count", len(shopIDs)),
	)

	var corrections, skipped int
	for _, shopID := range shopIDs {
		if ctx.Err() != nil {
			return
		}
		result, err := r.runner.ReconcileShop(ctx, shopID)
		if err != nil {
			if errors.Is(err, shared.ErrJobConflict) {
				skipped++
				r.logger.Debug("Shop busy, reconciliation deferred to next sweep",
					zap.String("shop_id", shopID.String()),
				)
				continue
			}
			r.logger.Error("Reconciliation sweep failed for shop",
				zap.String("shop_id", shopID.String()),
				zap.Error(err),
			)
			continue
		}
		corrections += result.Corrections
	}

	r.logger.Info("Reconciliation sweep finished",
		zap.Int("shop_count", len(shopIDs)),
		zap.Int("corrections", corrections),
		zap.Int("skipped", skipped),
	)
}

// TriggerManualSweep runs a sweep for a single shop outside the schedule.
func (r *ReconciliationTrigger) TriggerManualSweep(ctx context.Context, shopID uuid.UUID) (*reconciliation.SweepResult, error) {
	return r.runner.ReconcileShop(ctx, shopID)
}
