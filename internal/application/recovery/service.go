package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appledger "github.com/crosslist/backend/internal/application/ledger"
	"github.com/crosslist/backend/internal/domain/coordination"
	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/recovery"
	"github.com/crosslist/backend/internal/domain/shared"
)

// PushOutcome describes one cross-platform push attempt for a product.
type PushOutcome struct {
	ShopID    uuid.UUID
	ProductID uuid.UUID
	Targeted  []platform.Code
	// Successful lists the platforms that accepted the push.
	Successful []platform.Code
	// Failed maps each failing platform to its error message.
	Failed map[platform.Code]string
}

// Service is the sync failure recovery manager. It turns failed push attempts
// into tracked failure records and drives their retry state machine:
// pending -> retrying -> {resolved | critical} -> ... -> {resolved | failed}.
type Service struct {
	scope       appledger.TransactionScope
	registry    platform.AdapterRegistry
	notifier    platform.Notifier
	coordinator coordination.Coordinator
	logger      *zap.Logger
}

// Option configures optional service collaborators
type Option func(*Service)

// WithCoordinator gates each retry on the shop's sync_retry job slot, so
// retries yield to a reconciliation sweep running for the same shop.
func WithCoordinator(c coordination.Coordinator) Option {
	return func(s *Service) {
		s.coordinator = c
	}
}

// NewService creates a recovery service
func NewService(
	scope appledger.TransactionScope,
	registry platform.AdapterRegistry,
	notifier platform.Notifier,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		scope:    scope,
		registry: registry,
		notifier: notifier,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandlePushFailure records a failed push attempt. A product carries at most
// one open record: a second failure while one is open merges into it. Critical
// outcomes additionally mark the product's unprocessed ledger transactions as
// processed so the backlog cannot grow unbounded; the drift stays tracked by
// the record itself.
func (s *Service) HandlePushFailure(ctx context.Context, outcome PushOutcome) error {
	if len(outcome.Failed) == 0 {
		return nil
	}

	var record *recovery.SyncFailureRecord
	err := s.scope.Execute(ctx, func(repos appledger.Repositories) error {
		existing, err := repos.FailureRecords().FindOpenByProduct(ctx, outcome.ProductID)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := existing.MergePushFailure(outcome.Failed, joinErrors(outcome.Failed)); err != nil {
				return err
			}
			record = existing
		} else {
			created, err := recovery.NewSyncFailureRecord(
				outcome.ShopID, outcome.ProductID,
				outcome.Targeted, outcome.Successful,
				outcome.Failed, joinErrors(outcome.Failed))
			if err != nil {
				return err
			}
			record = created
		}
		if err := repos.FailureRecords().Save(ctx, record); err != nil {
			return err
		}

		if record.IsCritical() {
			if _, err := repos.Transactions().MarkProcessedForProduct(ctx, outcome.ProductID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Warn("cross-platform push failed",
		zap.String("product_id", outcome.ProductID.String()),
		zap.String("failure_type", string(record.FailureType)),
		zap.String("status", string(record.Status)),
		zap.Int("failed_platforms", len(record.FailedPlatforms)))

	if record.IsCritical() {
		s.notify(ctx, record, platform.NotificationSeverityCritical,
			"Marketplace sync failing",
			fmt.Sprintf("Pushing inventory for product %s failed on %d of %d platforms; retrying shortly",
				outcome.ProductID, len(record.FailedPlatforms), len(record.TargetedPlatforms)))
	}
	return nil
}

// ProcessDueRetries retries every record whose backoff has elapsed, up to
// limit records per sweep. Each retry re-attempts only the still-failing
// platforms. Returns the number of records attempted.
func (s *Service) ProcessDueRetries(ctx context.Context, now time.Time, limit int) (int, error) {
	var due []recovery.SyncFailureRecord
	err := s.scope.Execute(ctx, func(repos appledger.Repositories) error {
		var err error
		due, err = repos.FailureRecords().FindDue(ctx, now, limit)
		return err
	})
	if err != nil {
		return 0, err
	}

	attempted := 0
	for i := range due {
		release, err := s.acquireRetrySlot(ctx, due[i].ShopID)
		if errors.Is(err, shared.ErrJobConflict) {
			// A conflicting job holds the shop; the record stays due and is
			// picked up by a later sweep.
			s.logger.Debug("retry deferred, shop busy",
				zap.String("record_id", due[i].ID.String()),
				zap.String("shop_id", due[i].ShopID.String()))
			continue
		}
		if err != nil {
			return attempted, err
		}
		err = s.retryRecord(ctx, &due[i])
		release()
		if err != nil {
			s.logger.Error("retry attempt failed",
				zap.String("record_id", due[i].ID.String()), zap.Error(err))
			continue
		}
		attempted++
	}
	return attempted, nil
}

// acquireRetrySlot takes the shop's sync_retry job slot when a coordinator is
// configured. The returned release func is always safe to call.
func (s *Service) acquireRetrySlot(ctx context.Context, shopID uuid.UUID) (func(), error) {
	if s.coordinator == nil {
		return func() {}, nil
	}
	identity, err := s.coordinator.AcquireJobLock(ctx, shopID, coordination.JobKindSyncRetry)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := s.coordinator.ReleaseJobLock(ctx, identity); err != nil {
			s.logger.Warn("failed to release retry job slot",
				zap.String("shop_id", shopID.String()), zap.Error(err))
		}
	}, nil
}

// retryRecord drives one due record through a retry attempt. The retrying
// state is deliberately never persisted on its own: the record is saved only
// together with the attempt's outcome, so a crash or transient error anywhere
// in between leaves the stored record due and a later sweep picks it up.
// Re-running a half-finished attempt is safe; the pushes are idempotent.
func (s *Service) retryRecord(ctx context.Context, record *recovery.SyncFailureRecord) error {
	if err := record.BeginRetry(); err != nil {
		return err
	}

	var quantity int64
	var mirrors map[platform.Code]*platform.Mirror
	err := s.scope.Execute(ctx, func(repos appledger.Repositories) error {
		p, err := repos.Products().FindByID(ctx, record.ProductID)
		if err != nil {
			return err
		}
		quantity = p.Quantity

		all, err := repos.Mirrors().FindByProduct(ctx, record.ProductID)
		if err != nil {
			return err
		}
		mirrors = make(map[platform.Code]*platform.Mirror, len(all))
		for i := range all {
			mirrors[all[i].Platform] = &all[i]
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Re-attempt only the platforms still failing.
	var nowSuccessful []platform.Code
	stillFailed := make(map[platform.Code]string)
	for _, code := range record.FailedPlatforms {
		if err := s.pushOne(ctx, code, mirrors[code], quantity); err != nil {
			stillFailed[code] = err.Error()
			continue
		}
		nowSuccessful = append(nowSuccessful, code)
	}

	if err := record.RecordRetryOutcome(nowSuccessful, stillFailed, joinErrors(stillFailed)); err != nil {
		return err
	}

	err = s.scope.Execute(ctx, func(repos appledger.Repositories) error {
		if err := repos.FailureRecords().Save(ctx, record); err != nil {
			return err
		}
		for _, code := range nowSuccessful {
			if m := mirrors[code]; m != nil {
				m.RecordSync(quantity, time.Now())
				if err := repos.Mirrors().Save(ctx, m); err != nil {
					return err
				}
			}
		}
		if record.Status == recovery.StatusResolved {
			if _, err := repos.Transactions().MarkProcessedForProduct(ctx, record.ProductID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	switch record.Status {
	case recovery.StatusResolved:
		s.logger.Info("sync failure resolved",
			zap.String("record_id", record.ID.String()),
			zap.String("product_id", record.ProductID.String()),
			zap.Int("retries", record.RetryCount))
	case recovery.StatusFailed:
		s.notify(ctx, record, platform.NotificationSeverityCritical,
			"Marketplace sync abandoned",
			fmt.Sprintf("Inventory for product %s could not be synchronized after %d retries; manual intervention required",
				record.ProductID, record.RetryCount))
	}
	return nil
}

func (s *Service) pushOne(ctx context.Context, code platform.Code, mirror *platform.Mirror, quantity int64) error {
	if mirror == nil {
		return fmt.Errorf("no mirror for %s", code)
	}
	adapter, err := s.registry.Get(code)
	if err != nil {
		return err
	}
	return adapter.PushQuantity(ctx, mirror, quantity)
}

func (s *Service) notify(ctx context.Context, record *recovery.SyncFailureRecord, severity platform.NotificationSeverity, title, message string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, platform.Notification{
		ShopID:   record.ShopID,
		Title:    title,
		Message:  message,
		Category: platform.NotificationCategorySync,
		Severity: severity,
		Metadata: map[string]string{
			"product_id":   record.ProductID.String(),
			"record_id":    record.ID.String(),
			"failure_type": string(record.FailureType),
		},
	})
	if err != nil {
		s.logger.Warn("failed to emit sync notification",
			zap.String("record_id", record.ID.String()), zap.Error(err))
	}
}

func joinErrors(failed map[platform.Code]string) string {
	if len(failed) == 0 {
		return ""
	}
	parts := make([]string, 0, len(failed))
	for _, c := range platform.AllCodes() {
		if msg, ok := failed[c]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", c, msg))
		}
	}
	return strings.Join(parts, "; ")
}
