package ledger

import (
	"context"

	"github.com/crosslist/backend/internal/domain/catalog"
	"github.com/crosslist/backend/internal/domain/ledger"
	"github.com/crosslist/backend/internal/domain/order"
	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/recovery"
)

// TransactionScope provides transactional access to the inventory repositories.
// When a function is executed within a transaction scope, all repository
// operations are part of the same database transaction and commit or roll back
// atomically. The atomic unit is kept short and never performs network I/O;
// cross-platform pushes happen after commit via follow-up actions.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos Repositories) error) error
}

// Repositories provides access to the inventory repositories within one
// transaction. All repositories returned share the same underlying database
// transaction.
type Repositories interface {
	// Products returns the product repository scoped to the current transaction
	Products() catalog.ProductRepository
	// Transactions returns the ledger transaction repository scoped to the current transaction
	Transactions() ledger.TransactionRepository
	// Mirrors returns the platform mirror repository scoped to the current transaction
	Mirrors() platform.MirrorRepository
	// Orders returns the order repository scoped to the current transaction
	Orders() order.Repository
	// FailureRecords returns the sync failure record repository scoped to the current transaction
	FailureRecords() recovery.FailureRecordRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use
// transactions. This is useful for testing against in-memory repositories.
type NoOpTransactionScope struct {
	products       catalog.ProductRepository
	transactions   ledger.TransactionRepository
	mirrors        platform.MirrorRepository
	orders         order.Repository
	failureRecords recovery.FailureRecordRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope over the given repositories.
func NewNoOpTransactionScope(
	products catalog.ProductRepository,
	transactions ledger.TransactionRepository,
	mirrors platform.MirrorRepository,
	orders order.Repository,
	failureRecords recovery.FailureRecordRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		products:       products,
		transactions:   transactions,
		mirrors:        mirrors,
		orders:         orders,
		failureRecords: failureRecords,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos Repositories) error) error {
	return fn(s)
}

// Products returns the product repository.
func (s *NoOpTransactionScope) Products() catalog.ProductRepository { return s.products }

// Transactions returns the ledger transaction repository.
func (s *NoOpTransactionScope) Transactions() ledger.TransactionRepository { return s.transactions }

// Mirrors returns the platform mirror repository.
func (s *NoOpTransactionScope) Mirrors() platform.MirrorRepository { return s.mirrors }

// Orders returns the order repository.
func (s *NoOpTransactionScope) Orders() order.Repository { return s.orders }

// FailureRecords returns the sync failure record repository.
func (s *NoOpTransactionScope) FailureRecords() recovery.FailureRecordRepository {
	return s.failureRecords
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ Repositories = (*NoOpTransactionScope)(nil)
