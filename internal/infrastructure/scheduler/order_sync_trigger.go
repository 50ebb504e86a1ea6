package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crosslist/backend/internal/application/ingestion"
	appledger "github.com/crosslist/backend/internal/application/ledger"
	"github.com/crosslist/backend/internal/domain/coordination"
	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/shared"
)

// OrderProcessor runs one normalized order through the ingestion pipeline.
type OrderProcessor interface {
	ProcessOrder(ctx context.Context, o ingestion.NormalizedOrder) (*ingestion.OrderOutcome, error)
}

// FollowUpSink receives the follow-up actions an ingested order produced,
// for asynchronous cross-platform dispatch.
type FollowUpSink interface {
	SubmitAll(followUps []appledger.FollowUp) error
}

// OrderSyncTriggerConfig holds configuration for the order sync trigger.
type OrderSyncTriggerConfig struct {
	// Interval is how often each shop's marketplaces are polled.
	Interval time.Duration

	// Lookback is how far back each poll reaches. Polls overlap on purpose;
	// the ingestion pipeline's idempotency absorbs the redeliveries.
	Lookback time.Duration

	// PageSize is the pull page size requested from each marketplace.
	PageSize int

	// MaxPages caps how many pages one poll walks per shop and marketplace,
	// so a backlogged marketplace cannot monopolize a tick.
	MaxPages int
}

// DefaultOrderSyncTriggerConfig returns default trigger configuration.
func DefaultOrderSyncTriggerConfig() OrderSyncTriggerConfig {
	return OrderSyncTriggerConfig{
		Interval: 5 * time.Minute,
		Lookback: 30 * time.Minute,
		PageSize: 50,
		MaxPages: 20,
	}
}

// OrderSyncTrigger periodically pulls recent orders from every registered
// marketplace and feeds them through the ingestion pipeline. It is the
// producer side of the sync dispatcher: the follow-up actions the ledger
// returns for each ingested order are handed to the sink for async pushes.
// Each shop's poll runs under the order_sync job slot, so it can never
// interleave with an inventory import or reconciliation for the same shop.
type OrderSyncTrigger struct {
	config      OrderSyncTriggerConfig
	processor   OrderProcessor
	sink        FollowUpSink
	sources     []platform.OrderSource
	shops       ShopProvider
	coordinator coordination.Coordinator
	logger      *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewOrderSyncTrigger creates a new order sync trigger.
func NewOrderSyncTrigger(
	config OrderSyncTriggerConfig,
	processor OrderProcessor,
	sink FollowUpSink,
	sources []platform.OrderSource,
	shops ShopProvider,
	coordinator coordination.Coordinator,
	logger *zap.Logger,
) *OrderSyncTrigger {
	if config.Interval <= 0 {
		config.Interval = DefaultOrderSyncTriggerConfig().Interval
	}
	if config.Lookback <= 0 {
		config.Lookback = DefaultOrderSyncTriggerConfig().Lookback
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultOrderSyncTriggerConfig().PageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultOrderSyncTriggerConfig().MaxPages
	}
	return &OrderSyncTrigger{
		config:      config,
		processor:   processor,
		sink:        sink,
		sources:     sources,
		shops:       shops,
		coordinator: coordinator,
		logger:      logger,
	}
}

// Start starts the trigger loop.
func (t *OrderSyncTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Order sync trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Duration("lookback", t.config.Lookback),
		zap.Int("sources", len(t.sources)),
	)

	return nil
}

// Stop stops the trigger and waits for an in-flight poll to finish.
func (t *OrderSyncTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Order sync trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *OrderSyncTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.poll(ctx)
		}
	}
}

// poll runs one pull pass over all active shops.
func (t *OrderSyncTrigger) poll(ctx context.Context) {
	shopIDs, err := t.shops.GetAllActiveShopIDs(ctx)
	if err != nil {
		t.logger.Error("Failed to list shops for order sync", zap.Error(err))
		return
	}

	var processed, skipped int
	for _, shopID := range shopIDs {
		if ctx.Err() != nil {
			return
		}
		n, err := t.SyncShop(ctx, shopID)
		if err != nil {
			if errors.Is(err, shared.ErrJobConflict) {
				skipped++
				t.logger.Debug("Shop busy, order sync deferred to next poll",
					zap.String("shop_id", shopID.String()),
				)
				continue
			}
			t.logger.Error("Order sync failed for shop",
				zap.String("shop_id", shopID.String()),
				zap.Error(err),
			)
			continue
		}
		processed += n
	}

	t.logger.Info("Order sync poll finished",
		zap.Int("shop_count", len(shopIDs)),
		zap.Int("orders_processed", processed),
		zap.Int("skipped", skipped),
	)
}

// SyncShop pulls and ingests one shop's recent orders from every registered
// marketplace. Returns the number of orders newly processed; cached hits from
// earlier polls do not count.
func (t *OrderSyncTrigger) SyncShop(ctx context.Context, shopID uuid.UUID) (int, error) {
	identity, err := t.coordinator.AcquireJobLock(ctx, shopID, coordination.JobKindOrderSync)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := t.coordinator.ReleaseJobLock(ctx, identity); err != nil {
			t.logger.Warn("failed to release order sync job slot",
				zap.String("shop_id", shopID.String()), zap.Error(err))
		}
	}()

	since := time.Now().Add(-t.config.Lookback)
	total := 0
	for _, source := range t.sources {
		n, err := t.pullFromSource(ctx, shopID, source, since)
		total += n
		if err != nil {
			// One marketplace being down must not stall the others.
			t.logger.Warn("Order pull from marketplace failed",
				zap.String("shop_id", shopID.String()),
				zap.String("platform", source.Code().String()),
				zap.Error(err))
		}
	}
	return total, nil
}

func (t *OrderSyncTrigger) pullFromSource(ctx context.Context, shopID uuid.UUID, source platform.OrderSource, since time.Time) (int, error) {
	processed := 0
	pageToken := ""
	for page := 0; page < t.config.MaxPages; page++ {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		pulled, err := source.PullOrders(ctx, platform.OrderPullRequest{
			ShopID:    shopID,
			Since:     since,
			PageToken: pageToken,
			PageSize:  t.config.PageSize,
		})
		if err != nil {
			return processed, err
		}

		for i := range pulled.Orders {
			if t.ingestOne(ctx, shopID, source.Code(), &pulled.Orders[i]) {
				processed++
			}
		}

		if !pulled.HasMore {
			break
		}
		pageToken = pulled.NextPageToken
	}
	return processed, nil
}

// ingestOne feeds a pulled order through the pipeline and schedules its
// follow-up pushes. Reports whether the order was newly processed.
func (t *OrderSyncTrigger) ingestOne(ctx context.Context, shopID uuid.UUID, code platform.Code, pulled *platform.PulledOrder) bool {
	outcome, err := t.processor.ProcessOrder(ctx, normalizePulledOrder(shopID, code, pulled))
	if err != nil {
		t.logger.Error("Order ingestion failed",
			zap.String("shop_id", shopID.String()),
			zap.String("platform", code.String()),
			zap.String("platform_order_id", pulled.PlatformOrderID),
			zap.Error(err))
		return false
	}
	if outcome.FromCache {
		return false
	}

	if len(outcome.FollowUps) > 0 {
		if err := t.sink.SubmitAll(outcome.FollowUps); err != nil {
			t.logger.Error("Failed to schedule follow-up pushes",
				zap.String("shop_id", shopID.String()),
				zap.String("platform_order_id", pulled.PlatformOrderID),
				zap.Error(err))
		}
	}
	return true
}

// normalizePulledOrder maps a marketplace's pulled order onto the ingestion
// pipeline's input shape.
func normalizePulledOrder(shopID uuid.UUID, code platform.Code, o *platform.PulledOrder) ingestion.NormalizedOrder {
	normalized := ingestion.NormalizedOrder{
		ShopID:          shopID,
		Platform:        code,
		PlatformOrderID: o.PlatformOrderID,
		BuyerUsername:   o.BuyerUsername,
		PlacedAt:        o.PlacedAt,
		CancelledAt:     o.CancelledAt,
		Currency:        o.Currency,
		ItemTotal:       o.ItemTotal,
		ShippingTotal:   o.ShippingTotal,
		TaxTotal:        o.TaxTotal,
		OrderTotal:      o.OrderTotal,
	}
	for _, item := range o.Items {
		normalized.Items = append(normalized.Items, ingestion.NormalizedItem{
			PlatformItemID: item.PlatformItemID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
		})
	}
	return normalized
}
