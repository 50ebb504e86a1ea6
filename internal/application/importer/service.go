package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appledger "github.com/crosslist/backend/internal/application/ledger"
	"github.com/crosslist/backend/internal/domain/catalog"
	"github.com/crosslist/backend/internal/domain/coordination"
	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/crosslist/backend/internal/infrastructure/csvimport"
)

// Expected CSV columns. title and quantity are required; sku and the
// per-marketplace item id columns are optional.
const (
	columnTitle       = "title"
	columnSKU         = "sku"
	columnQuantity    = "quantity"
	columnEbayItem    = "ebay_item_id"
	columnWhatnotItem = "whatnot_item_id"
)

// Result summarizes one inventory import run.
type Result struct {
	Rows    int                  `json:"rows"`
	Created int                  `json:"created"`
	Skipped int                  `json:"skipped"`
	Errors  []csvimport.RowError `json:"errors,omitempty"`
}

const (
	// defaultLockAttempts bounds how often an import waits out a
	// conflicting order sync or reconciliation before giving up.
	defaultLockAttempts = 3
	// defaultLockRetryWait is the pause between job slot attempts.
	defaultLockRetryWait = 2 * time.Second
)

// Service bulk-imports products and their marketplace links from a CSV
// upload. Every run holds the shop's inventory_import job slot for its whole
// duration, so an import can never interleave with order sync or
// reconciliation for the same shop.
type Service struct {
	scope         appledger.TransactionScope
	coordinator   coordination.Coordinator
	logger        *zap.Logger
	lockAttempts  int
	lockRetryWait time.Duration
}

// Option configures optional service behavior
type Option func(*Service)

// WithJobLockRetry overrides how long an import waits for the shop's job slot.
func WithJobLockRetry(attempts int, wait time.Duration) Option {
	return func(s *Service) {
		s.lockAttempts = attempts
		s.lockRetryWait = wait
	}
}

// NewService creates an importer service
func NewService(scope appledger.TransactionScope, coordinator coordination.Coordinator, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		scope:         scope,
		coordinator:   coordinator,
		logger:        logger,
		lockAttempts:  defaultLockAttempts,
		lockRetryWait: defaultLockRetryWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportInventory imports products for a shop from a CSV stream. A product
// row creates the product with its initial quantity and import timestamp plus
// a mirror per provided marketplace item id. Rows whose SKU already exists
// are skipped; row-level problems are collected, never aborting the run.
func (s *Service) ImportInventory(ctx context.Context, shopID uuid.UUID, r io.Reader) (*Result, error) {
	// An import arriving while an order sync winds down waits briefly for
	// the slot instead of aborting the whole upload.
	identity, err := coordination.AcquireJobLockWithRetry(ctx, s.coordinator, shopID,
		coordination.JobKindInventoryImport, s.lockAttempts, s.lockRetryWait)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.coordinator.ReleaseJobLock(ctx, identity); err != nil {
			s.logger.Warn("failed to release import job lock",
				zap.String("shop_id", shopID.String()), zap.Error(err))
		}
	}()

	parser, err := csvimport.NewParser(r)
	if err != nil {
		return nil, err
	}
	for _, required := range []string{columnTitle, columnQuantity} {
		if !parser.HasHeader(required) {
			return nil, shared.NewDomainError("INVALID_IMPORT_FILE",
				fmt.Sprintf("Missing required column %q", required))
		}
	}

	result := &Result{}
	for {
		row, err := parser.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, csvimport.RowError{Line: result.Rows + 2, Message: err.Error()})
			continue
		}
		if row.IsEmpty() {
			continue
		}
		result.Rows++
		s.importRow(ctx, shopID, row, result)
	}

	s.logger.Info("inventory import finished",
		zap.String("shop_id", shopID.String()),
		zap.Int("rows", result.Rows),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

func (s *Service) importRow(ctx context.Context, shopID uuid.UUID, row *csvimport.Row, result *Result) {
	title := row.Get(columnTitle)
	if title == "" {
		result.Errors = append(result.Errors, csvimport.RowError{Line: row.Line, Message: "title is required"})
		return
	}
	quantity, err := strconv.ParseInt(row.Get(columnQuantity), 10, 64)
	if err != nil || quantity < 0 {
		result.Errors = append(result.Errors, csvimport.RowError{Line: row.Line, Message: "quantity must be a non-negative integer"})
		return
	}

	mirrorItems := map[platform.Code]string{}
	if id := row.Get(columnEbayItem); id != "" {
		mirrorItems[platform.CodeEbay] = id
	}
	if id := row.Get(columnWhatnotItem); id != "" {
		mirrorItems[platform.CodeWhatnot] = id
	}

	err = s.scope.Execute(ctx, func(repos appledger.Repositories) error {
		sku := row.Get(columnSKU)
		if sku != "" {
			_, err := repos.Products().FindBySKU(ctx, shopID, sku)
			switch {
			case err == nil:
				result.Skipped++
				return nil
			case errors.Is(err, shared.ErrNotFound):
				// New SKU, fall through to creation.
			default:
				// A transient lookup failure must not create a duplicate SKU.
				return err
			}
		}

		p, err := catalog.NewProduct(shopID, title, quantity)
		if err != nil {
			return err
		}
		p.SKU = sku
		if err := repos.Products().Save(ctx, p); err != nil {
			return err
		}

		for _, code := range platform.AllCodes() {
			itemID, ok := mirrorItems[code]
			if !ok {
				continue
			}
			m, err := platform.NewMirror(shopID, p.ID, code, itemID, quantity)
			if err != nil {
				return err
			}
			if err := repos.Mirrors().Save(ctx, m); err != nil {
				return err
			}
		}
		result.Created++
		return nil
	})
	if err != nil {
		result.Errors = append(result.Errors, csvimport.RowError{Line: row.Line, Message: err.Error()})
	}
}
