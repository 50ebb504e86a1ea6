package persistence

import (
	"context"

	appledger "github.com/crosslist/backend/internal/application/ledger"
	"github.com/crosslist/backend/internal/domain/catalog"
	"github.com/crosslist/backend/internal/domain/ledger"
	"github.com/crosslist/backend/internal/domain/order"
	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/recovery"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appledger.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormRepositories{tx: tx}
		return fn(repos)
	})
}

// gormRepositories provides access to all repositories within a transaction.
type gormRepositories struct {
	tx *gorm.DB
}

// Products returns the product repository scoped to the current transaction.
func (r *gormRepositories) Products() catalog.ProductRepository {
	return NewGormProductRepository(r.tx)
}

// Transactions returns the ledger transaction repository scoped to the current transaction.
func (r *gormRepositories) Transactions() ledger.TransactionRepository {
	return NewGormTransactionRepository(r.tx)
}

// Mirrors returns the platform mirror repository scoped to the current transaction.
func (r *gormRepositories) Mirrors() platform.MirrorRepository {
	return NewGormMirrorRepository(r.tx)
}

// Orders returns the order repository scoped to the current transaction.
func (r *gormRepositories) Orders() order.Repository {
	return NewGormOrderRepository(r.tx)
}

// FailureRecords returns the sync failure record repository scoped to the current transaction.
func (r *gormRepositories) FailureRecords() recovery.FailureRecordRepository {
	return NewGormFailureRecordRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appledger.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormRepositories implements Repositories
var _ appledger.Repositories = (*gormRepositories)(nil)
