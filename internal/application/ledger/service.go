package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crosslist/backend/internal/domain/catalog"
	"github.com/crosslist/backend/internal/domain/ledger"
	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultLockMaxWait bounds how long an operation waits for the
	// per-product lock before failing with LockTimeout.
	DefaultLockMaxWait = 30 * time.Second
	// DefaultLockTTL auto-expires a held lock so a crashed worker can never
	// wedge the product.
	DefaultLockTTL = 2 * time.Minute
)

// Config holds tunables for the ledger service
type Config struct {
	LockMaxWait time.Duration
	LockTTL     time.Duration
	CacheTTL    time.Duration
}

// DefaultConfig returns the default ledger service configuration
func DefaultConfig() Config {
	return Config{
		LockMaxWait: DefaultLockMaxWait,
		LockTTL:     DefaultLockTTL,
		CacheTTL:    shared.DefaultOperationCacheConfig().TTL,
	}
}

// Service is the inventory ledger: allocate, release, manual-adjust and
// reconcile, each atomic and idempotent. Every operation follows the same
// shape: idempotency-cache short circuit, per-product distributed lock, one
// short database transaction with a row-level re-read, double-checked
// idempotency against the storage uniqueness guard, then result caching and
// follow-up actions for the caller to schedule.
type Service struct {
	scope    TransactionScope
	locks    shared.LockManager
	cache    shared.OperationCache
	notifier platform.Notifier
	logger   *zap.Logger
	cfg      Config
}

// NewService creates a ledger service
func NewService(
	scope TransactionScope,
	locks shared.LockManager,
	cache shared.OperationCache,
	notifier platform.Notifier,
	logger *zap.Logger,
	cfg Config,
) *Service {
	if cfg.LockMaxWait <= 0 {
		cfg.LockMaxWait = DefaultLockMaxWait
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = shared.DefaultOperationCacheConfig().TTL
	}
	return &Service{
		scope:    scope,
		locks:    locks,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

// Allocate consumes quantity for one order item. An insufficient balance is
// recorded in the ledger as an allocation_failed transaction (no state
// change), notified, and returned as InsufficientInventory.
func (s *Service) Allocate(ctx context.Context, req AllocateRequest) (*OperationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := AllocationKey(req.Platform, req.PlatformOrderID, req.PlatformItemID, req.Quantity)
	if res, ok := s.cachedResult(ctx, key); ok {
		return res, nil
	}

	token, err := s.locks.Acquire(ctx, productLockKey(req.ProductID), s.cfg.LockMaxWait, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, req.ProductID, token)

	var (
		res       *OperationResult
		shortfall *catalog.Product
	)
	err = s.scope.Execute(ctx, func(repos Repositories) error {
		p, err := repos.Products().FindByIDForUpdate(ctx, req.ProductID)
		if err != nil {
			return err
		}

		existing, err := repos.Transactions().FindByOrderRef(ctx, p.ID,
			ledger.TransactionTypeAllocation, req.Platform, req.PlatformOrderID, req.PlatformItemID)
		if err != nil {
			return err
		}
		if existing != nil {
			res = resultFromExisting("allocate", p, existing)
			return nil
		}

		if !p.CanFulfill(req.Quantity) {
			failTx, err := ledger.NewTransaction(req.ShopID, p.ID,
				ledger.TransactionTypeAllocationFailed, -req.Quantity, p.Quantity, p.Quantity)
			if err != nil {
				return err
			}
			failTx.WithOrderRef(req.Platform, req.PlatformOrderID, req.PlatformItemID).
				WithNotes(fmt.Sprintf("requested %d, available %d", req.Quantity, p.Quantity))
			if err := repos.Transactions().Create(ctx, failTx); err != nil {
				return err
			}
			shortfall = p
			return nil
		}

		prev := p.Quantity
		prevStatus := p.Status
		statusChanged, err := p.ApplyDelta(-req.Quantity)
		if err != nil {
			return err
		}

		tx, err := ledger.NewTransaction(req.ShopID, p.ID,
			ledger.TransactionTypeAllocation, -req.Quantity, prev, p.Quantity)
		if err != nil {
			return err
		}
		tx.WithOrderRef(req.Platform, req.PlatformOrderID, req.PlatformItemID)
		if err := repos.Transactions().Create(ctx, tx); err != nil {
			return err
		}
		if statusChanged {
			if err := s.recordStatusChange(ctx, repos, p, prevStatus); err != nil {
				return err
			}
		}
		if err := repos.Products().Save(ctx, p); err != nil {
			return err
		}

		followUps, err := s.buildFollowUps(ctx, repos, p, req.Platform, req.SuppressSync)
		if err != nil {
			return err
		}
		res = newResult("allocate", p, tx, req.SuppressSync, followUps)
		return nil
	})
	if errors.Is(err, shared.ErrDuplicateOperation) {
		// A concurrent writer won the race between our order-ref lookup and
		// the insert; the unique index is the arbiter. Resolve to the row
		// that got there first.
		return s.resolveDuplicate(ctx, "allocate", req.ProductID,
			ledger.TransactionTypeAllocation, req.Platform, req.PlatformOrderID, req.PlatformItemID, err)
	}
	if err != nil {
		return nil, err
	}

	if shortfall != nil {
		s.notifyShortfall(ctx, req, shortfall)
		return nil, shared.ErrInsufficientInventory
	}

	s.cacheResult(ctx, key, res)
	return res, nil
}

// Release restores quantity for a cancelled order item and reactivates a
// completed product.
func (s *Service) Release(ctx context.Context, req ReleaseRequest) (*OperationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := ReleaseKey(req.Platform, req.PlatformOrderID, req.PlatformItemID, req.Quantity)
	if res, ok := s.cachedResult(ctx, key); ok {
		return res, nil
	}

	token, err := s.locks.Acquire(ctx, productLockKey(req.ProductID), s.cfg.LockMaxWait, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, req.ProductID, token)

	var res *OperationResult
	err = s.scope.Execute(ctx, func(repos Repositories) error {
		p, err := repos.Products().FindByIDForUpdate(ctx, req.ProductID)
		if err != nil {
			return err
		}

		existing, err := repos.Transactions().FindByOrderRef(ctx, p.ID,
			ledger.TransactionTypeRelease, req.Platform, req.PlatformOrderID, req.PlatformItemID)
		if err != nil {
			return err
		}
		if existing != nil {
			res = resultFromExisting("release", p, existing)
			return nil
		}

		prev := p.Quantity
		prevStatus := p.Status
		statusChanged, err := p.ApplyDelta(req.Quantity)
		if err != nil {
			return err
		}

		tx, err := ledger.NewTransaction(req.ShopID, p.ID,
			ledger.TransactionTypeRelease, req.Quantity, prev, p.Quantity)
		if err != nil {
			return err
		}
		tx.WithOrderRef(req.Platform, req.PlatformOrderID, req.PlatformItemID)
		if err := repos.Transactions().Create(ctx, tx); err != nil {
			return err
		}
		if statusChanged {
			if err := s.recordStatusChange(ctx, repos, p, prevStatus); err != nil {
				return err
			}
		}
		if err := repos.Products().Save(ctx, p); err != nil {
			return err
		}

		followUps, err := s.buildFollowUps(ctx, repos, p, req.Platform, req.SuppressSync)
		if err != nil {
			return err
		}
		res = newResult("release", p, tx, req.SuppressSync, followUps)
		return nil
	})
	if errors.Is(err, shared.ErrDuplicateOperation) {
		return s.resolveDuplicate(ctx, "release", req.ProductID,
			ledger.TransactionTypeRelease, req.Platform, req.PlatformOrderID, req.PlatformItemID, err)
	}
	if err != nil {
		return nil, err
	}

	s.cacheResult(ctx, key, res)
	return res, nil
}

// ManualAdjustment applies an operator-initiated signed delta. A delta that
// would drive the quantity negative is rejected up front: no transaction is
// written.
func (s *Service) ManualAdjustment(ctx context.Context, req ManualAdjustmentRequest) (*OperationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := ManualAdjustmentKey(req.IdempotencyKey)
	if res, ok := s.cachedResult(ctx, key); ok {
		return res, nil
	}

	token, err := s.locks.Acquire(ctx, productLockKey(req.ProductID), s.cfg.LockMaxWait, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, req.ProductID, token)

	var res *OperationResult
	err = s.scope.Execute(ctx, func(repos Repositories) error {
		p, err := repos.Products().FindByIDForUpdate(ctx, req.ProductID)
		if err != nil {
			return err
		}

		if p.Quantity+req.Delta < 0 {
			return shared.ErrInsufficientInventory
		}

		prev := p.Quantity
		prevStatus := p.Status
		statusChanged, err := p.ApplyDelta(req.Delta)
		if err != nil {
			return err
		}

		tx, err := ledger.NewTransaction(req.ShopID, p.ID,
			ledger.TransactionTypeManualAdjustment, req.Delta, prev, p.Quantity)
		if err != nil {
			return err
		}
		tx.WithNotes(req.Notes)
		if err := repos.Transactions().Create(ctx, tx); err != nil {
			return err
		}
		if statusChanged {
			if err := s.recordStatusChange(ctx, repos, p, prevStatus); err != nil {
				return err
			}
		}
		if err := repos.Products().Save(ctx, p); err != nil {
			return err
		}

		// Manual adjustments push to every connected platform.
		followUps, err := s.buildFollowUps(ctx, repos, p, "", req.SuppressSync)
		if err != nil {
			return err
		}
		res = newResult("manual_adjustment", p, tx, req.SuppressSync, followUps)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cacheResult(ctx, key, res)
	return res, nil
}

// Reconcile replays the ledger over the initial quantity and writes a
// reconciliation transaction correcting any gap. A run that finds no gap is
// a no-op result, not an error.
func (s *Service) Reconcile(ctx context.Context, req ReconcileRequest) (*OperationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	token, err := s.locks.Acquire(ctx, productLockKey(req.ProductID), s.cfg.LockMaxWait, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(ctx, req.ProductID, token)

	var res *OperationResult
	err = s.scope.Execute(ctx, func(repos Repositories) error {
		p, err := repos.Products().FindByIDForUpdate(ctx, req.ProductID)
		if err != nil {
			return err
		}

		txs, err := repos.Transactions().FindByProduct(ctx, p.ID)
		if err != nil {
			return err
		}
		expected := ledger.ExpectedQuantity(p.InitialQuantity, txs)
		if expected == p.Quantity {
			res = &OperationResult{
				Operation:        "reconcile",
				ShopID:           p.ShopID,
				ProductID:        p.ID,
				PreviousQuantity: p.Quantity,
				NewQuantity:      p.Quantity,
				ProductStatus:    p.Status,
				SyncSuppressed:   req.SuppressSync,
			}
			return nil
		}

		prev := p.Quantity
		prevStatus := p.Status
		delta, statusChanged, err := p.SetQuantity(expected)
		if err != nil {
			return err
		}

		tx, err := ledger.NewTransaction(req.ShopID, p.ID,
			ledger.TransactionTypeReconciliation, delta, prev, p.Quantity)
		if err != nil {
			return err
		}
		tx.WithNotes(fmt.Sprintf("ledger replay expected %d, found %d", expected, prev))
		if err := repos.Transactions().Create(ctx, tx); err != nil {
			return err
		}
		if statusChanged {
			if err := s.recordStatusChange(ctx, repos, p, prevStatus); err != nil {
				return err
			}
		}
		if err := repos.Products().Save(ctx, p); err != nil {
			return err
		}

		// Reconciliations push to every connected platform.
		followUps, err := s.buildFollowUps(ctx, repos, p, "", req.SuppressSync)
		if err != nil {
			return err
		}
		res = newResult("reconcile", p, tx, req.SuppressSync, followUps)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// resolveDuplicate re-reads the transaction that tripped the storage
// uniqueness guard and returns it as an already-applied result. Finding
// nothing means the guard fired for a row we cannot see yet, so the original
// error stands and the caller retries.
func (s *Service) resolveDuplicate(
	ctx context.Context,
	op string,
	productID uuid.UUID,
	txType ledger.TransactionType,
	code platform.Code,
	orderID, itemID string,
	cause error,
) (*OperationResult, error) {
	var res *OperationResult
	err := s.scope.Execute(ctx, func(repos Repositories) error {
		p, err := repos.Products().FindByID(ctx, productID)
		if err != nil {
			return err
		}
		existing, err := repos.Transactions().FindByOrderRef(ctx, productID, txType, code, orderID, itemID)
		if err != nil {
			return err
		}
		if existing == nil {
			return cause
		}
		res = resultFromExisting(op, p, existing)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// recordStatusChange appends a zero-delta status_change transaction so status
// transitions are visible in the ledger alongside the quantity history.
func (s *Service) recordStatusChange(
	ctx context.Context,
	repos Repositories,
	p *catalog.Product,
	prevStatus catalog.ProductStatus,
) error {
	tx, err := ledger.NewTransaction(p.ShopID, p.ID,
		ledger.TransactionTypeStatusChange, 0, p.Quantity, p.Quantity)
	if err != nil {
		return err
	}
	tx.WithNotes(fmt.Sprintf("status: %s -> %s", prevStatus, p.Status))
	return repos.Transactions().Create(ctx, tx)
}

// buildFollowUps computes the push targets for an operation: the platforms
// with a live mirror, minus the platform that originated the event.
func (s *Service) buildFollowUps(
	ctx context.Context,
	repos Repositories,
	p *catalog.Product,
	origin platform.Code,
	suppress bool,
) ([]FollowUp, error) {
	if suppress {
		return nil, nil
	}

	mirrors, err := repos.Mirrors().FindByProduct(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	targets := make([]platform.Code, 0, len(mirrors))
	for i := range mirrors {
		if mirrors[i].Platform == origin || mirrors[i].Ended {
			continue
		}
		targets = append(targets, mirrors[i].Platform)
	}
	if len(targets) == 0 {
		return nil, nil
	}

	return []FollowUp{{
		ShopID:      p.ShopID,
		ProductID:   p.ID,
		Quantity:    p.Quantity,
		Targets:     targets,
		Origin:      origin,
		EndListings: p.IsSoldOut(),
	}}, nil
}

func (s *Service) notifyShortfall(ctx context.Context, req AllocateRequest, p *catalog.Product) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, platform.Notification{
		ShopID:   req.ShopID,
		Title:    "Allocation failed: insufficient inventory",
		Message:  fmt.Sprintf("Order %s on %s requested %d of %q but only %d remain", req.PlatformOrderID, req.Platform, req.Quantity, p.Title, p.Quantity),
		Category: platform.NotificationCategoryInventory,
		Severity: platform.NotificationSeverityWarning,
		Metadata: map[string]string{
			"product_id":        p.ID.String(),
			"platform":          req.Platform.String(),
			"platform_order_id": req.PlatformOrderID,
		},
	})
	if err != nil {
		s.logger.Warn("failed to emit shortfall notification",
			zap.String("product_id", p.ID.String()), zap.Error(err))
	}
}

func (s *Service) cachedResult(ctx context.Context, key string) (*OperationResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	payload, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("idempotency cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	var res OperationResult
	if err := json.Unmarshal(payload, &res); err != nil {
		s.logger.Warn("discarding malformed cached result", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	res.FromCache = true
	// A cached result's follow-ups were already scheduled by the original call.
	res.FollowUps = nil
	return &res, true
}

func (s *Service) cacheResult(ctx context.Context, key string, res *OperationResult) {
	if s.cache == nil || res == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		s.logger.Warn("failed to serialize operation result", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("idempotency cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) releaseLock(ctx context.Context, productID uuid.UUID, token string) {
	if err := s.locks.Release(ctx, productLockKey(productID), token); err != nil {
		s.logger.Warn("failed to release product lock",
			zap.String("product_id", productID.String()), zap.Error(err))
	}
}

func newResult(op string, p *catalog.Product, tx *ledger.Transaction, suppressed bool, followUps []FollowUp) *OperationResult {
	return &OperationResult{
		Operation:        op,
		ShopID:           p.ShopID,
		ProductID:        p.ID,
		TransactionID:    tx.ID,
		Delta:            tx.Delta,
		PreviousQuantity: tx.PreviousQuantity,
		NewQuantity:      tx.NewQuantity,
		ProductStatus:    p.Status,
		SyncSuppressed:   suppressed,
		FollowUps:        followUps,
	}
}

func resultFromExisting(op string, p *catalog.Product, tx *ledger.Transaction) *OperationResult {
	return &OperationResult{
		Operation:        op,
		ShopID:           p.ShopID,
		ProductID:        p.ID,
		TransactionID:    tx.ID,
		Delta:            tx.Delta,
		PreviousQuantity: tx.PreviousQuantity,
		NewQuantity:      tx.NewQuantity,
		ProductStatus:    p.Status,
		AlreadyApplied:   true,
	}
}
