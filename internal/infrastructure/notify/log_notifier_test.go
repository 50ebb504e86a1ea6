package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/infrastructure/logger"
	"github.com/crosslist/backend/tests/testutil"
)

func TestLogNotifier_SeverityMapsToLevel(t *testing.T) {
	tests := []struct {
		severity platform.NotificationSeverity
		level    zap.AtomicLevel
		want     string
	}{
		{platform.NotificationSeverityInfo, zap.NewAtomicLevelAt(zap.InfoLevel), "INFO"},
		{platform.NotificationSeverityWarning, zap.NewAtomicLevelAt(zap.InfoLevel), "WARN"},
		{platform.NotificationSeverityCritical, zap.NewAtomicLevelAt(zap.InfoLevel), "ERROR"},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			n := NewLogNotifier(zap.New(core))

			err := n.Notify(context.Background(), platform.Notification{
				ShopID:   testutil.TestShopID(),
				Title:    "Inventory drift detected",
				Message:  "mirror diverged from ledger",
				Category: platform.NotificationCategoryInventory,
				Severity: tt.severity,
				Metadata: map[string]string{"platform": "ebay"},
			})
			require.NoError(t, err)

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.want, entries[0].Level.CapitalString())
			assert.Equal(t, "Inventory drift detected", entries[0].Message)

			fields := entries[0].ContextMap()
			assert.Equal(t, testutil.TestShopID().String(), fields["shop_id"])
			assert.Equal(t, platform.NotificationCategoryInventory, fields["category"])
			assert.Equal(t, "ebay", fields["meta_platform"])
		})
	}
}

func TestLogNotifier_PrefersContextLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zap.DebugLevel)
	ctxCore, ctxLogs := observer.New(zap.DebugLevel)

	n := NewLogNotifier(zap.New(fallbackCore))
	ctx := logger.WithContext(context.Background(), zap.New(ctxCore))

	err := n.Notify(ctx, platform.Notification{
		ShopID:   testutil.TestShopID(),
		Title:    "Sync abandoned",
		Severity: platform.NotificationSeverityWarning,
	})
	require.NoError(t, err)

	assert.Zero(t, fallbackLogs.Len())
	assert.Equal(t, 1, ctxLogs.Len())
}

func TestLogNotifier_NilLoggerFallsBackToNop(t *testing.T) {
	n := NewLogNotifier(nil)
	assert.NotPanics(t, func() {
		_ = n.Notify(context.Background(), platform.Notification{
			ShopID:   testutil.TestShopID(),
			Title:    "noop",
			Severity: platform.NotificationSeverityInfo,
		})
	})
}
