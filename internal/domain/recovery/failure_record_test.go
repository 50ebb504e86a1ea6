package recovery

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/shared"
)

func bothCodes() []platform.Code {
	return []platform.Code{platform.CodeEbay, platform.CodeWhatnot}
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name                         string
		targeted, successful, failed int
		want                         FailureType
	}{
		{"nothing succeeded", 2, 0, 2, FailureTypeTotal},
		{"one of two failed", 2, 1, 1, FailureTypePartial},
		{"two of three failed", 3, 1, 2, FailureTypeMultiple},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFailure(tt.targeted, tt.successful, tt.failed))
		})
	}
}

func TestIsCriticalOutcome(t *testing.T) {
	assert.True(t, IsCriticalOutcome(2, 0, 2), "total failure")
	assert.True(t, IsCriticalOutcome(3, 1, 2), "majority failed")
	assert.False(t, IsCriticalOutcome(2, 1, 1), "half failed")
	assert.False(t, IsCriticalOutcome(3, 2, 1), "minority failed")
}

func TestNewSyncFailureRecord(t *testing.T) {
	shopID := uuid.New()
	productID := uuid.New()

	t.Run("recoverable failure starts pending on the ladder", func(t *testing.T) {
		r, err := NewSyncFailureRecord(shopID, productID,
			bothCodes(),
			[]platform.Code{platform.CodeEbay},
			map[platform.Code]string{platform.CodeWhatnot: "timeout"},
			"timeout",
		)
		require.NoError(t, err)

		assert.Equal(t, StatusPending, r.Status)
		assert.Equal(t, FailureTypePartial, r.FailureType)
		require.NotNil(t, r.NextRetryAt)
		assert.WithinDuration(t, time.Now().Add(RetryLadder[0]), *r.NextRetryAt, time.Minute)
	})

	t.Run("total failure goes critical with the accelerated retry", func(t *testing.T) {
		r, err := NewSyncFailureRecord(shopID, productID,
			[]platform.Code{platform.CodeEbay, platform.CodeWhatnot},
			nil,
			map[platform.Code]string{platform.CodeEbay: "down", platform.CodeWhatnot: "down"},
			"down",
		)
		require.NoError(t, err)

		assert.Equal(t, StatusCritical, r.Status)
		assert.Equal(t, FailureTypeTotal, r.FailureType)
		require.NotNil(t, r.NextRetryAt)
		assert.WithinDuration(t, time.Now().Add(CriticalFirstRetryDelay), *r.NextRetryAt, 5*time.Second)
	})

	t.Run("requires a failed platform", func(t *testing.T) {
		_, err := NewSyncFailureRecord(shopID, productID,
			bothCodes(), bothCodes(), nil, "")
		assert.True(t, shared.IsCode(err, "INVALID_OUTCOME"))
	})

	t.Run("requires a product", func(t *testing.T) {
		_, err := NewSyncFailureRecord(shopID, uuid.Nil,
			bothCodes(), nil, map[platform.Code]string{platform.CodeEbay: "down"}, "down")
		assert.True(t, shared.IsCode(err, "INVALID_PRODUCT"))
	})
}

func newPartialRecord(t *testing.T) *SyncFailureRecord {
	t.Helper()
	r, err := NewSyncFailureRecord(uuid.New(), uuid.New(),
		[]platform.Code{platform.CodeEbay, platform.CodeWhatnot},
		[]platform.Code{platform.CodeEbay},
		map[platform.Code]string{platform.CodeWhatnot: "timeout"},
		"timeout",
	)
	require.NoError(t, err)
	return r
}

func TestSyncFailureRecord_MergePushFailure(t *testing.T) {
	t.Run("widens the failed set and can escalate", func(t *testing.T) {
		r := newPartialRecord(t)

		err := r.MergePushFailure(map[platform.Code]string{platform.CodeEbay: "down"}, "down")
		require.NoError(t, err)

		assert.ElementsMatch(t, []platform.Code{platform.CodeEbay, platform.CodeWhatnot}, r.FailedPlatforms)
		assert.Empty(t, r.SuccessfulPlatforms)
		assert.Equal(t, FailureTypeTotal, r.FailureType)
		assert.Equal(t, StatusCritical, r.Status)
	})

	t.Run("does not duplicate an already failed platform", func(t *testing.T) {
		r := newPartialRecord(t)

		err := r.MergePushFailure(map[platform.Code]string{platform.CodeWhatnot: "still down"}, "still down")
		require.NoError(t, err)
		assert.Equal(t, []platform.Code{platform.CodeWhatnot}, r.FailedPlatforms)
	})

	t.Run("rejected on a terminal record", func(t *testing.T) {
		r := newPartialRecord(t)
		require.NoError(t, r.BeginRetry())
		require.NoError(t, r.RecordRetryOutcome([]platform.Code{platform.CodeWhatnot}, nil, ""))
		require.Equal(t, StatusResolved, r.Status)

		err := r.MergePushFailure(map[platform.Code]string{platform.CodeEbay: "down"}, "down")
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}

func TestSyncFailureRecord_RetryLifecycle(t *testing.T) {
	t.Run("full success resolves", func(t *testing.T) {
		r := newPartialRecord(t)
		require.NoError(t, r.BeginRetry())
		assert.Equal(t, StatusRetrying, r.Status)
		assert.Equal(t, 1, r.RetryCount)
		assert.Nil(t, r.NextRetryAt)

		require.NoError(t, r.RecordRetryOutcome([]platform.Code{platform.CodeWhatnot}, nil, ""))
		assert.Equal(t, StatusResolved, r.Status)
		assert.Empty(t, r.FailedPlatforms)
		assert.NotNil(t, r.ResolvedAt)
		assert.Nil(t, r.NextRetryAt)
	})

	t.Run("partial progress narrows the failed set and reschedules", func(t *testing.T) {
		r, err := NewSyncFailureRecord(uuid.New(), uuid.New(),
			bothCodes(), nil,
			map[platform.Code]string{
				platform.CodeEbay:    "down",
				platform.CodeWhatnot: "down",
			}, "down")
		require.NoError(t, err)

		require.NoError(t, r.BeginRetry())
		require.NoError(t, r.RecordRetryOutcome(
			[]platform.Code{platform.CodeEbay},
			map[platform.Code]string{platform.CodeWhatnot: "still down"},
			"still down",
		))

		assert.Equal(t, []platform.Code{platform.CodeWhatnot}, r.FailedPlatforms)
		assert.Equal(t, []platform.Code{platform.CodeEbay}, r.SuccessfulPlatforms)
		assert.Equal(t, FailureTypePartial, r.FailureType)
		assert.Equal(t, StatusPending, r.Status)
		require.NotNil(t, r.NextRetryAt)
		assert.WithinDuration(t, time.Now().Add(RetryLadder[1]), *r.NextRetryAt, time.Minute)
	})

	t.Run("exhausting the ladder abandons the record", func(t *testing.T) {
		r := newPartialRecord(t)
		still := map[platform.Code]string{platform.CodeWhatnot: "broken"}

		for i := 0; i < MaxRetries; i++ {
			require.NoError(t, r.BeginRetry())
			require.NoError(t, r.RecordRetryOutcome(nil, still, "broken"))
		}

		assert.Equal(t, StatusFailed, r.Status)
		assert.Equal(t, MaxRetries, r.RetryCount)
		assert.Nil(t, r.NextRetryAt)
		assert.ErrorIs(t, r.BeginRetry(), shared.ErrInvalidState)
	})

	t.Run("outcome outside a retry is rejected", func(t *testing.T) {
		r := newPartialRecord(t)
		err := r.RecordRetryOutcome([]platform.Code{platform.CodeWhatnot}, nil, "")
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}

func TestSyncFailureRecord_IsDue(t *testing.T) {
	r := newPartialRecord(t)
	now := time.Now()

	assert.False(t, r.IsDue(now), "first retry is scheduled in the future")

	past := now.Add(-time.Minute)
	r.NextRetryAt = &past
	assert.True(t, r.IsDue(now))

	require.NoError(t, r.BeginRetry())
	require.NoError(t, r.RecordRetryOutcome([]platform.Code{platform.CodeWhatnot}, nil, ""))
	r.NextRetryAt = &past
	assert.False(t, r.IsDue(now), "terminal records are never due")
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusResolved.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRetrying.IsTerminal())
	assert.False(t, StatusCritical.IsTerminal())
}
