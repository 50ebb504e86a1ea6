package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appledger "github.com/crosslist/backend/internal/application/ledger"
	"github.com/crosslist/backend/internal/domain/coordination"
	"github.com/crosslist/backend/internal/domain/platform"
)

// LedgerReconciler is the slice of the ledger the engine drives.
type LedgerReconciler interface {
	Reconcile(ctx context.Context, req appledger.ReconcileRequest) (*appledger.OperationResult, error)
}

// Config holds the drift-significance thresholds.
type Config struct {
	// PercentThreshold is the relative drift above which a discrepancy is
	// significant. Zero-quantity sides are always significant.
	PercentThreshold float64
	// AlertThreshold is the absolute drift above which the owner is notified
	// even when the correction succeeded.
	AlertThreshold int64
}

// DefaultConfig returns the default reconciliation thresholds.
func DefaultConfig() Config {
	return Config{
		PercentThreshold: 0.10,
		AlertThreshold:   5,
	}
}

// Discrepancy describes one mirror's drift from the ledger-derived quantity.
type Discrepancy struct {
	Platform       platform.Code `json:"platform"`
	MirrorQuantity int64         `json:"mirror_quantity"`
	LedgerQuantity int64         `json:"ledger_quantity"`
	Corrected      bool          `json:"corrected"`
	Error          string        `json:"error,omitempty"`
}

// Drift returns the signed gap between the ledger and the mirror.
func (d Discrepancy) Drift() int64 {
	return d.LedgerQuantity - d.MirrorQuantity
}

// Report is the outcome of reconciling one product.
type Report struct {
	ProductID uuid.UUID `json:"product_id"`
	// LedgerCorrection is the delta the ledger replay applied, zero when the
	// stored quantity already matched.
	LedgerCorrection int64         `json:"ledger_correction"`
	Quantity         int64         `json:"quantity"`
	Discrepancies    []Discrepancy `json:"discrepancies,omitempty"`
	Notified         bool          `json:"notified"`
}

// SweepResult summarizes a reconciliation pass over a shop.
type SweepResult struct {
	Products      int `json:"products"`
	Corrections   int `json:"corrections"`
	Uncorrectable int `json:"uncorrectable"`
}

// Service is the drift reconciliation engine. It replays the ledger to fix
// the internal quantity, then compares it against each connected mirror and
// pushes corrections to the marketplaces found divergent — only those, never
// the whole fleet.
type Service struct {
	ledger      LedgerReconciler
	scope       appledger.TransactionScope
	registry    platform.AdapterRegistry
	notifier    platform.Notifier
	coordinator coordination.Coordinator
	logger      *zap.Logger
	cfg         Config
}

// NewService creates a reconciliation service
func NewService(
	ledger LedgerReconciler,
	scope appledger.TransactionScope,
	registry platform.AdapterRegistry,
	notifier platform.Notifier,
	logger *zap.Logger,
	cfg Config,
	opts ...Option,
) *Service {
	if cfg.PercentThreshold <= 0 {
		cfg.PercentThreshold = DefaultConfig().PercentThreshold
	}
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = DefaultConfig().AlertThreshold
	}
	s := &Service{
		ledger:   ledger,
		scope:    scope,
		registry: registry,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option configures optional service collaborators
type Option func(*Service)

// WithCoordinator makes ReconcileShop hold the shop's reconciliation job slot
// for the duration of the sweep. Acquisition fails fast with ErrJobConflict
// when a conflicting job holds the shop.
func WithCoordinator(c coordination.Coordinator) Option {
	return func(s *Service) {
		s.coordinator = c
	}
}

// ReconcileProduct reconciles one product: ledger replay first, then mirror
// drift detection and per-platform correction. The ledger call suppresses its
// own follow-up sync because the engine pushes only to divergent platforms.
func (s *Service) ReconcileProduct(ctx context.Context, shopID, productID uuid.UUID) (*Report, error) {
	res, err := s.ledger.Reconcile(ctx, appledger.ReconcileRequest{
		ShopID:       shopID,
		ProductID:    productID,
		SuppressSync: true,
	})
	if err != nil {
		return nil, err
	}

	report := &Report{
		ProductID:        productID,
		LedgerCorrection: res.Delta,
		Quantity:         res.NewQuantity,
	}

	var mirrors []platform.Mirror
	err = s.scope.Execute(ctx, func(repos appledger.Repositories) error {
		mirrors, err = repos.Mirrors().FindByProduct(ctx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range mirrors {
		m := &mirrors[i]
		if m.Ended {
			continue
		}
		if !s.isSignificant(res.NewQuantity, m.Quantity) {
			continue
		}

		d := Discrepancy{
			Platform:       m.Platform,
			MirrorQuantity: m.Quantity,
			LedgerQuantity: res.NewQuantity,
		}
		if err := s.correct(ctx, m, res.NewQuantity, now); err != nil {
			d.Error = err.Error()
			s.logger.Warn("drift correction failed",
				zap.String("product_id", productID.String()),
				zap.String("platform", m.Platform.String()),
				zap.Error(err))
		} else {
			d.Corrected = true
		}
		report.Discrepancies = append(report.Discrepancies, d)
	}

	if s.shouldNotify(report) {
		s.notifyDrift(ctx, shopID, report)
		report.Notified = true
	}
	return report, nil
}

// ReconcileShop sweeps every non-draft product of a shop.
func (s *Service) ReconcileShop(ctx context.Context, shopID uuid.UUID) (*SweepResult, error) {
	if s.coordinator != nil {
		identity, err := s.coordinator.AcquireJobLock(ctx, shopID, coordination.JobKindReconciliation)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := s.coordinator.ReleaseJobLock(ctx, identity); err != nil {
				s.logger.Warn("failed to release reconciliation job slot",
					zap.String("shop_id", shopID.String()), zap.Error(err))
			}
		}()
	}

	var ids []uuid.UUID
	err := s.scope.Execute(ctx, func(repos appledger.Repositories) error {
		var err error
		ids, err = repos.Products().FindActiveIDs(ctx, shopID)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	for _, id := range ids {
		report, err := s.ReconcileProduct(ctx, shopID, id)
		if err != nil {
			s.logger.Error("product reconciliation failed",
				zap.String("shop_id", shopID.String()),
				zap.String("product_id", id.String()),
				zap.Error(err))
			continue
		}
		result.Products++
		for _, d := range report.Discrepancies {
			if d.Corrected {
				result.Corrections++
			} else {
				result.Uncorrectable++
			}
		}
	}
	return result, nil
}

// isSignificant implements the drift-significance rule: any non-zero gap when
// either side is zero, otherwise a gap above the percentage threshold of the
// ledger quantity.
func (s *Service) isSignificant(ledgerQty, mirrorQty int64) bool {
	diff := ledgerQty - mirrorQty
	if diff == 0 {
		return false
	}
	if ledgerQty == 0 || mirrorQty == 0 {
		return true
	}
	abs := diff
	if abs < 0 {
		abs = -abs
	}
	return float64(abs)/float64(ledgerQty) > s.cfg.PercentThreshold
}

func (s *Service) correct(ctx context.Context, m *platform.Mirror, quantity int64, now time.Time) error {
	adapter, err := s.registry.Get(m.Platform)
	if err != nil {
		return err
	}
	if err := adapter.PushQuantity(ctx, m, quantity); err != nil {
		return err
	}
	m.RecordSync(quantity, now)
	return s.scope.Execute(ctx, func(repos appledger.Repositories) error {
		return repos.Mirrors().Save(ctx, m)
	})
}

// shouldNotify avoids alert fatigue on routine drift: the owner hears about a
// reconciliation only when a discrepancy could not be corrected or its size
// exceeds the absolute alert threshold.
func (s *Service) shouldNotify(report *Report) bool {
	for _, d := range report.Discrepancies {
		if !d.Corrected {
			return true
		}
		drift := d.Drift()
		if drift < 0 {
			drift = -drift
		}
		if drift > s.cfg.AlertThreshold {
			return true
		}
	}
	return false
}

func (s *Service) notifyDrift(ctx context.Context, shopID uuid.UUID, report *Report) {
	if s.notifier == nil {
		return
	}
	uncorrected := 0
	for _, d := range report.Discrepancies {
		if !d.Corrected {
			uncorrected++
		}
	}
	severity := platform.NotificationSeverityWarning
	if uncorrected > 0 {
		severity = platform.NotificationSeverityCritical
	}
	err := s.notifier.Notify(ctx, platform.Notification{
		ShopID:   shopID,
		Title:    "Inventory drift detected",
		Message:  fmt.Sprintf("Product %s drifted on %d platform(s), %d could not be corrected", report.ProductID, len(report.Discrepancies), uncorrected),
		Category: platform.NotificationCategoryInventory,
		Severity: severity,
		Metadata: map[string]string{
			"product_id": report.ProductID.String(),
		},
	})
	if err != nil {
		s.logger.Warn("failed to emit drift notification",
			zap.String("product_id", report.ProductID.String()), zap.Error(err))
	}
}
