package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslist/backend/internal/domain/shared"
)

func TestJobKind_IsValid(t *testing.T) {
	for _, k := range []JobKind{JobKindOrderSync, JobKindInventoryImport, JobKindReconciliation, JobKindSyncRetry} {
		assert.True(t, k.IsValid(), k)
	}
	assert.False(t, JobKind("backup").IsValid())
}

func TestConflictsWith(t *testing.T) {
	tests := []struct {
		kind JobKind
		want []JobKind
	}{
		{JobKindInventoryImport, []JobKind{JobKindOrderSync, JobKindReconciliation}},
		{JobKindReconciliation, []JobKind{JobKindSyncRetry, JobKindInventoryImport}},
		{JobKindOrderSync, []JobKind{JobKindInventoryImport}},
		{JobKindSyncRetry, []JobKind{JobKindReconciliation}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, ConflictsWith(tt.kind))
		})
	}
}

// The conflict relation must be symmetric: if a conflicts with b, b conflicts
// with a. Guards against someone extending the table in one direction only.
func TestConflictsWith_Symmetric(t *testing.T) {
	kinds := []JobKind{JobKindOrderSync, JobKindInventoryImport, JobKindReconciliation, JobKindSyncRetry}

	for _, a := range kinds {
		for _, b := range ConflictsWith(a) {
			assert.Contains(t, ConflictsWith(b), a,
				"%s conflicts with %s but not the reverse", a, b)
		}
	}
}

func TestJobKind_NeverConflictsWithItself(t *testing.T) {
	// Self-exclusion is handled by the slot itself, not the conflict table.
	for _, k := range []JobKind{JobKindOrderSync, JobKindInventoryImport, JobKindReconciliation, JobKindSyncRetry} {
		assert.NotContains(t, ConflictsWith(k), k)
	}
}

// yieldingCoordinator conflicts a fixed number of times before granting.
type yieldingCoordinator struct {
	conflicts int
	calls     int
}

func (c *yieldingCoordinator) AcquireJobLock(_ context.Context, shopID uuid.UUID, kind JobKind) (*JobIdentity, error) {
	c.calls++
	if c.calls <= c.conflicts {
		return nil, shared.ErrJobConflict
	}
	return &JobIdentity{JobID: uuid.New(), Kind: kind, ShopID: shopID, AcquiredAt: time.Now()}, nil
}

func (c *yieldingCoordinator) ReleaseJobLock(context.Context, *JobIdentity) error { return nil }

func TestAcquireJobLockWithRetry(t *testing.T) {
	ctx := context.Background()
	shopID := uuid.New()

	t.Run("waits out a transient conflict", func(t *testing.T) {
		c := &yieldingCoordinator{conflicts: 2}

		identity, err := AcquireJobLockWithRetry(ctx, c, shopID, JobKindInventoryImport, 3, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, JobKindInventoryImport, identity.Kind)
		assert.Equal(t, 3, c.calls)
	})

	t.Run("surfaces the conflict once attempts are spent", func(t *testing.T) {
		c := &yieldingCoordinator{conflicts: 5}

		_, err := AcquireJobLockWithRetry(ctx, c, shopID, JobKindInventoryImport, 3, time.Millisecond)
		assert.ErrorIs(t, err, shared.ErrJobConflict)
		assert.Equal(t, 3, c.calls)
	})

	t.Run("a cancelled context cuts the wait short", func(t *testing.T) {
		c := &yieldingCoordinator{conflicts: 5}
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := AcquireJobLockWithRetry(cancelled, c, shopID, JobKindInventoryImport, 3, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, c.calls)
	})
}
