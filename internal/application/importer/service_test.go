package importer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appledger "github.com/crosslist/backend/internal/application/ledger"
	"github.com/crosslist/backend/internal/domain/catalog"
	"github.com/crosslist/backend/internal/domain/coordination"
	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/crosslist/backend/tests/testutil"
)

type importerFixture struct {
	products    *testutil.MemoryProductRepository
	mirrors     *testutil.MemoryMirrorRepository
	coordinator *testutil.MemoryCoordinator
	svc         *Service
}

func newImporterFixture(t *testing.T) *importerFixture {
	t.Helper()

	f := &importerFixture{
		products:    testutil.NewMemoryProductRepository(),
		mirrors:     testutil.NewMemoryMirrorRepository(),
		coordinator: testutil.NewMemoryCoordinator(),
	}
	scope := appledger.NewNoOpTransactionScope(
		f.products,
		testutil.NewMemoryTransactionRepository(),
		f.mirrors,
		testutil.NewMemoryOrderRepository(),
		testutil.NewMemoryFailureRecordRepository(),
	)
	f.svc = NewService(scope, f.coordinator, zap.NewNop(),
		WithJobLockRetry(2, time.Millisecond))
	return f
}

func TestService_ImportInventory(t *testing.T) {
	ctx := context.Background()

	t.Run("creates products with mirrors from a valid file", func(t *testing.T) {
		f := newImporterFixture(t)
		file := strings.Join([]string{
			"title,sku,quantity,ebay_item_id,whatnot_item_id",
			"Vintage Camera,CAM-1,5,EB-100,WN-100",
			"Trading Card Lot,TCL-1,12,EB-101,",
		}, "\n")

		result, err := f.svc.ImportInventory(ctx, testutil.TestShopID(), strings.NewReader(file))
		require.NoError(t, err)

		assert.Equal(t, 2, result.Rows)
		assert.Equal(t, 2, result.Created)
		assert.Empty(t, result.Errors)

		p, err := f.products.FindBySKU(ctx, testutil.TestShopID(), "CAM-1")
		require.NoError(t, err)
		assert.Equal(t, int64(5), p.Quantity)
		assert.Equal(t, int64(5), p.InitialQuantity)
		assert.Equal(t, catalog.ProductStatusActive, p.Status)
		assert.False(t, p.ImportedAt.IsZero())

		mirrors, err := f.mirrors.FindByProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, mirrors, 2)

		second, err := f.products.FindBySKU(ctx, testutil.TestShopID(), "TCL-1")
		require.NoError(t, err)
		secondMirrors, err := f.mirrors.FindByProduct(ctx, second.ID)
		require.NoError(t, err)
		require.Len(t, secondMirrors, 1)
		assert.Equal(t, platform.CodeEbay, secondMirrors[0].Platform)
	})

	t.Run("existing SKUs are skipped, bad rows collected", func(t *testing.T) {
		f := newImporterFixture(t)
		existing, err := catalog.NewProduct(testutil.TestShopID(), "Already Here", 3)
		require.NoError(t, err)
		existing.SKU = "DUP-1"
		require.NoError(t, f.products.Save(ctx, existing))

		file := strings.Join([]string{
			"title,sku,quantity",
			"Already Here,DUP-1,9",
			",NOTITLE-1,4",
			"Bad Quantity,BQ-1,not-a-number",
			"Fine Product,OK-1,2",
		}, "\n")

		result, err := f.svc.ImportInventory(ctx, testutil.TestShopID(), strings.NewReader(file))
		require.NoError(t, err)

		assert.Equal(t, 4, result.Rows)
		assert.Equal(t, 1, result.Created)
		assert.Equal(t, 1, result.Skipped)
		assert.Len(t, result.Errors, 2)

		// The duplicate kept its original quantity.
		p, err := f.products.FindBySKU(ctx, testutil.TestShopID(), "DUP-1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), p.Quantity)
	})

	t.Run("rejects a file without required columns", func(t *testing.T) {
		f := newImporterFixture(t)
		_, err := f.svc.ImportInventory(ctx, testutil.TestShopID(), strings.NewReader("name,count\nx,1"))
		assert.Error(t, err)
	})

	t.Run("surfaces a conflict once the bounded wait is spent", func(t *testing.T) {
		f := newImporterFixture(t)
		_, err := f.coordinator.AcquireJobLock(ctx, testutil.TestShopID(), coordination.JobKindOrderSync)
		require.NoError(t, err)

		_, err = f.svc.ImportInventory(ctx, testutil.TestShopID(), strings.NewReader("title,quantity\nX,1"))
		assert.True(t, shared.IsCode(err, "JOB_CONFLICT"))
	})

	t.Run("waits out a conflicting job that releases in time", func(t *testing.T) {
		f := newImporterFixture(t)
		identity, err := f.coordinator.AcquireJobLock(ctx, testutil.TestShopID(), coordination.JobKindOrderSync)
		require.NoError(t, err)

		// The conflicting sync finishes between the import's attempts.
		go func() {
			time.Sleep(5 * time.Millisecond)
			_ = f.coordinator.ReleaseJobLock(ctx, identity)
		}()

		svc := NewService(appledger.NewNoOpTransactionScope(
			f.products,
			testutil.NewMemoryTransactionRepository(),
			f.mirrors,
			testutil.NewMemoryOrderRepository(),
			testutil.NewMemoryFailureRecordRepository(),
		), f.coordinator, zap.NewNop(), WithJobLockRetry(10, 5*time.Millisecond))

		result, err := svc.ImportInventory(ctx, testutil.TestShopID(), strings.NewReader("title,quantity\nX,1"))
		require.NoError(t, err)
		assert.Equal(t, 1, result.Created)
	})

	t.Run("releases the job slot when done", func(t *testing.T) {
		f := newImporterFixture(t)
		_, err := f.svc.ImportInventory(ctx, testutil.TestShopID(), strings.NewReader("title,quantity\nX,1"))
		require.NoError(t, err)

		// The slot is free again.
		identity, err := f.coordinator.AcquireJobLock(ctx, testutil.TestShopID(), coordination.JobKindInventoryImport)
		require.NoError(t, err)
		require.NoError(t, f.coordinator.ReleaseJobLock(ctx, identity))
	})
}

// faultySKUProducts fails SKU lookups with a transient error.
type faultySKUProducts struct {
	*testutil.MemoryProductRepository
}

func (r *faultySKUProducts) FindBySKU(context.Context, uuid.UUID, string) (*catalog.Product, error) {
	return nil, errors.New("connection reset by peer")
}

func TestService_ImportInventory_SKULookupFailure(t *testing.T) {
	ctx := context.Background()

	products := &faultySKUProducts{MemoryProductRepository: testutil.NewMemoryProductRepository()}
	scope := appledger.NewNoOpTransactionScope(
		products,
		testutil.NewMemoryTransactionRepository(),
		testutil.NewMemoryMirrorRepository(),
		testutil.NewMemoryOrderRepository(),
		testutil.NewMemoryFailureRecordRepository(),
	)
	svc := NewService(scope, testutil.NewMemoryCoordinator(), zap.NewNop())

	file := strings.Join([]string{
		"title,sku,quantity",
		"Vintage Camera,CAM-1,5",
	}, "\n")
	result, err := svc.ImportInventory(ctx, testutil.TestShopID(), strings.NewReader(file))
	require.NoError(t, err)

	// A failed lookup is a row error, never a blind create: the SKU may
	// already exist behind the error.
	require.Len(t, result.Errors, 1)
	assert.Zero(t, result.Created)

	stored, err := products.MemoryProductRepository.FindAllForShop(ctx, testutil.TestShopID(), shared.Filter{})
	require.NoError(t, err)
	assert.Empty(t, stored)
}
