package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crosslist/backend/internal/application/reconciliation"
	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/crosslist/backend/tests/testutil"
)

type fakeShopProvider struct {
	shops []uuid.UUID
	err   error
}

func (f *fakeShopProvider) GetAllActiveShopIDs(_ context.Context) ([]uuid.UUID, error) {
	return f.shops, f.err
}

type fakeRunner struct {
	mu      sync.Mutex
	swept   []uuid.UUID
	failOn  map[uuid.UUID]error
	perShop reconciliation.SweepResult
}

func (f *fakeRunner) ReconcileShop(_ context.Context, shopID uuid.UUID) (*reconciliation.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swept = append(f.swept, shopID)
	if err, ok := f.failOn[shopID]; ok {
		return nil, err
	}
	res := f.perShop
	return &res, nil
}

func (f *fakeRunner) sweptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.swept)
}

func TestReconciliationTrigger_SweepsAllShops(t *testing.T) {
	shopA := testutil.NewTestUUID("shop-a")
	shopB := testutil.NewTestUUID("shop-b")
	runner := &fakeRunner{perShop: reconciliation.SweepResult{Products: 1, Corrections: 1}}
	trigger := NewReconciliationTrigger(ReconciliationTriggerConfig{
		Interval: 10 * time.Millisecond,
	}, runner, &fakeShopProvider{shops: []uuid.UUID{shopA, shopB}}, zap.NewNop())

	require.NoError(t, trigger.Start(context.Background()))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, trigger.Stop(stopCtx))
	}()

	testutil.RequireEventually(t, func() bool {
		return runner.sweptCount() >= 2
	}, time.Second, 5*time.Millisecond, "trigger never swept both shops")

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Contains(t, runner.swept, shopA)
	assert.Contains(t, runner.swept, shopB)
}

func TestReconciliationTrigger_SkipsBusyShops(t *testing.T) {
	busy := testutil.NewTestUUID("shop-busy")
	idle := testutil.NewTestUUID("shop-idle")
	runner := &fakeRunner{
		failOn: map[uuid.UUID]error{busy: shared.ErrJobConflict},
	}
	trigger := NewReconciliationTrigger(ReconciliationTriggerConfig{
		Interval: 10 * time.Millisecond,
	}, runner, &fakeShopProvider{shops: []uuid.UUID{busy, idle}}, zap.NewNop())

	require.NoError(t, trigger.Start(context.Background()))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, trigger.Stop(stopCtx))
	}()

	// The conflict on the busy shop must not stop the sweep from reaching
	// the idle shop, nor stop subsequent sweeps.
	testutil.RequireEventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		var idleSweeps int
		for _, id := range runner.swept {
			if id == idle {
				idleSweeps++
			}
		}
		return idleSweeps >= 2
	}, time.Second, 5*time.Millisecond, "idle shop not swept past the busy one")
}

func TestReconciliationTrigger_SurvivesProviderError(t *testing.T) {
	provider := &fakeShopProvider{err: errors.New("db down")}
	runner := &fakeRunner{}
	trigger := NewReconciliationTrigger(ReconciliationTriggerConfig{
		Interval: 5 * time.Millisecond,
	}, runner, provider, zap.NewNop())

	require.NoError(t, trigger.Start(context.Background()))

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, runner.sweptCount())

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, trigger.Stop(stopCtx))
}

func TestReconciliationTrigger_ManualSweep(t *testing.T) {
	shop := testutil.TestShopID()
	runner := &fakeRunner{perShop: reconciliation.SweepResult{Products: 3, Corrections: 2}}
	trigger := NewReconciliationTrigger(DefaultReconciliationTriggerConfig(), runner, &fakeShopProvider{}, zap.NewNop())

	result, err := trigger.TriggerManualSweep(context.Background(), shop)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Corrections)
	assert.Equal(t, []uuid.UUID{shop}, runner.swept)
}
