package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appledger "github.com/crosslist/backend/internal/application/ledger"
	"github.com/crosslist/backend/internal/domain/catalog"
	"github.com/crosslist/backend/internal/domain/order"
	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/shared"
)

// LedgerOperations is the slice of the ledger the pipeline drives.
type LedgerOperations interface {
	Allocate(ctx context.Context, req appledger.AllocateRequest) (*appledger.OperationResult, error)
	Release(ctx context.Context, req appledger.ReleaseRequest) (*appledger.OperationResult, error)
}

// OrderProcessingError wraps a failure of the pipeline itself (as opposed to a
// per-item failure, which is collected into the outcome). Deliberately never
// cached: redelivery retries the entire order from scratch.
type OrderProcessingError struct {
	Platform        platform.Code
	PlatformOrderID string
	Err             error
}

// Error implements the error interface.
func (e *OrderProcessingError) Error() string {
	return fmt.Sprintf("processing order %s on %s: %v", e.PlatformOrderID, e.Platform, e.Err)
}

// Unwrap returns the underlying error.
func (e *OrderProcessingError) Unwrap() error { return e.Err }

// Service is the order ingestion pipeline. It upserts the order record,
// resolves each line item to its linked product through the mirror table, and
// decides allocate/release/no-op per item using the timeline rule. Per-item
// failures are collected, never aborting the order record or the remaining
// items.
type Service struct {
	scope    appledger.TransactionScope
	ledger   LedgerOperations
	cache    shared.OperationCache
	logger   *zap.Logger
	validate *validator.Validate
	cacheTTL time.Duration
}

// NewService creates an ingestion service
func NewService(
	scope appledger.TransactionScope,
	ledger LedgerOperations,
	cache shared.OperationCache,
	logger *zap.Logger,
) *Service {
	return &Service{
		scope:    scope,
		ledger:   ledger,
		cache:    cache,
		logger:   logger,
		validate: validator.New(),
		cacheTTL: shared.DefaultOperationCacheConfig().TTL,
	}
}

// ProcessOrder runs one normalized order through the pipeline. The outcome is
// cached under the order's idempotency key only when every item succeeded;
// callers distinguish a cached hit via OrderOutcome.FromCache.
func (s *Service) ProcessOrder(ctx context.Context, o NormalizedOrder) (*OrderOutcome, error) {
	if err := s.validateOrder(&o); err != nil {
		return nil, err
	}

	key := OrderKey(&o)
	if outcome, ok := s.cachedOutcome(ctx, key); ok {
		return outcome, nil
	}

	persisted, err := s.upsertOrder(ctx, &o)
	if err != nil {
		return nil, &OrderProcessingError{Platform: o.Platform, PlatformOrderID: o.PlatformOrderID, Err: err}
	}

	outcome := &OrderOutcome{
		ShopID:          o.ShopID,
		OrderID:         persisted.ID,
		Platform:        o.Platform,
		PlatformOrderID: o.PlatformOrderID,
		Cancelled:       o.IsCancelled(),
	}
	for _, item := range o.Items {
		itemOutcome := s.processItem(ctx, &o, item)
		outcome.Items = append(outcome.Items, itemOutcome.ItemOutcome)
		outcome.FollowUps = append(outcome.FollowUps, itemOutcome.followUps...)
	}

	if len(outcome.ItemErrors()) == 0 {
		s.cacheOutcome(ctx, key, outcome)
	} else {
		s.logger.Warn("order processed with item errors",
			zap.String("platform_order_id", o.PlatformOrderID),
			zap.String("platform", o.Platform.String()),
			zap.Int("failed_items", len(outcome.ItemErrors())))
	}
	return outcome, nil
}

func (s *Service) validateOrder(o *NormalizedOrder) error {
	if !o.Platform.IsValid() {
		return shared.NewDomainError("INVALID_PLATFORM", "Invalid platform code")
	}
	if err := s.validate.Struct(o); err != nil {
		return shared.NewDomainError("INVALID_ORDER", err.Error())
	}
	return nil
}

// upsertOrder persists the order record in its own atomic unit, before any
// inventory is touched: the order must survive even when items fail.
func (s *Service) upsertOrder(ctx context.Context, o *NormalizedOrder) (*order.Order, error) {
	var persisted *order.Order
	err := s.scope.Execute(ctx, func(repos appledger.Repositories) error {
		existing, err := repos.Orders().FindByPlatformOrder(ctx, o.ShopID, o.Platform, o.PlatformOrderID)
		switch {
		case err == nil:
			if o.CancelledAt != nil && !existing.IsCancelled() {
				existing.Cancel(*o.CancelledAt)
				if err := repos.Orders().Save(ctx, existing); err != nil {
					return err
				}
			}
			persisted = existing
			return nil
		case errors.Is(err, shared.ErrNotFound):
			created, err := order.NewOrder(o.ShopID, o.Platform, o.PlatformOrderID, o.PlacedAt)
			if err != nil {
				return err
			}
			created.BuyerUsername = o.BuyerUsername
			created.Currency = o.Currency
			created.ItemTotal = o.ItemTotal
			created.ShippingTotal = o.ShippingTotal
			created.TaxTotal = o.TaxTotal
			created.OrderTotal = o.OrderTotal
			for _, item := range o.Items {
				if err := created.AddItem(item.PlatformItemID, item.Quantity, item.UnitPrice); err != nil {
					return err
				}
			}
			if o.CancelledAt != nil {
				created.Cancel(*o.CancelledAt)
			}
			if err := repos.Orders().Save(ctx, created); err != nil {
				return err
			}
			persisted = created
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return persisted, nil
}

type itemResult struct {
	ItemOutcome
	followUps []appledger.FollowUp
}

func (s *Service) processItem(ctx context.Context, o *NormalizedOrder, item NormalizedItem) itemResult {
	res := itemResult{ItemOutcome: ItemOutcome{
		PlatformItemID: item.PlatformItemID,
		Quantity:       item.Quantity,
	}}

	var (
		mirror  *platform.Mirror
		product *catalog.Product
	)
	err := s.scope.Execute(ctx, func(repos appledger.Repositories) error {
		m, err := repos.Mirrors().FindByPlatformItem(ctx, o.ShopID, o.Platform, item.PlatformItemID)
		if err != nil {
			return err
		}
		p, err := repos.Products().FindByID(ctx, m.ProductID)
		if err != nil {
			return err
		}
		mirror, product = m, p
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			res.Action = ItemActionFailed
			res.Reason = "no linked product for platform item"
			return res
		}
		res.Action = ItemActionFailed
		res.Reason = err.Error()
		return res
	}

	action, reason := decideTimelineAction(product.ImportedAt, mirror.LastSyncAt, o.PlacedAt, o.CancelledAt)
	if action == ItemActionSkipped {
		res.Action = ItemActionSkipped
		res.Reason = reason
		return res
	}

	var opResult *appledger.OperationResult
	switch action {
	case ItemActionAllocated:
		opResult, err = s.ledger.Allocate(ctx, appledger.AllocateRequest{
			ShopID:          o.ShopID,
			ProductID:       product.ID,
			Quantity:        item.Quantity,
			Platform:        o.Platform,
			PlatformOrderID: o.PlatformOrderID,
			PlatformItemID:  item.PlatformItemID,
		})
	case ItemActionReleased:
		opResult, err = s.ledger.Release(ctx, appledger.ReleaseRequest{
			ShopID:          o.ShopID,
			ProductID:       product.ID,
			Quantity:        item.Quantity,
			Platform:        o.Platform,
			PlatformOrderID: o.PlatformOrderID,
			PlatformItemID:  item.PlatformItemID,
		})
	}
	if err != nil {
		res.Action = ItemActionFailed
		res.Reason = err.Error()
		return res
	}

	res.Action = action
	res.TransactionID = opResult.TransactionID
	if opResult.AlreadyApplied {
		res.Reason = "already applied"
	}
	res.followUps = opResult.FollowUps
	return res
}

// decideTimelineAction implements the timeline rule deciding whether an order
// event should still affect inventory:
//   - the product must have been tracked before the order was placed, and
//   - the order must postdate the mirror's last confirmed snapshot, otherwise
//     the marketplace's own bookkeeping already folded the event into the
//     quantity our mirror observed and re-applying would double-count.
//
// For a cancelled order the same snapshot logic applies to the cancellation
// timestamp: a cancellation the marketplace already restored is a no-op.
func decideTimelineAction(importedAt, lastSyncAt, placedAt time.Time, cancelledAt *time.Time) (ItemAction, string) {
	if !importedAt.Before(placedAt) {
		return ItemActionSkipped, "product imported after order placement"
	}
	if !placedAt.After(lastSyncAt) {
		return ItemActionSkipped, "order predates the mirror snapshot"
	}
	if cancelledAt != nil {
		if cancelledAt.After(lastSyncAt) {
			return ItemActionReleased, ""
		}
		return ItemActionSkipped, "cancellation already restored by marketplace"
	}
	return ItemActionAllocated, ""
}

func (s *Service) cachedOutcome(ctx context.Context, key string) (*OrderOutcome, bool) {
	payload, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("idempotency cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	var outcome OrderOutcome
	if err := json.Unmarshal(payload, &outcome); err != nil {
		s.logger.Warn("discarding malformed cached outcome", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	outcome.FromCache = true
	outcome.FollowUps = nil
	return &outcome, true
}

func (s *Service) cacheOutcome(ctx context.Context, key string, outcome *OrderOutcome) {
	payload, err := json.Marshal(outcome)
	if err != nil {
		s.logger.Warn("failed to serialize order outcome", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
		s.logger.Warn("idempotency cache write failed", zap.String("key", key), zap.Error(err))
	}
}
