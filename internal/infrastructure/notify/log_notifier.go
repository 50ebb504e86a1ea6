package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/infrastructure/logger"
)

// LogNotifier emits alerts to the structured log. It is the default delivery
// channel; real channels (email, push, in-app) are wired per deployment.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(l *zap.Logger) *LogNotifier {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogNotifier{logger: l}
}

// Notify writes the alert at a level matching its severity.
func (n *LogNotifier) Notify(ctx context.Context, alert platform.Notification) error {
	log := n.logger
	if ctxLogger, ok := ctx.Value(logger.LoggerKey).(*zap.Logger); ok {
		log = ctxLogger
	}

	fields := []zap.Field{
		zap.String("shop_id", alert.ShopID.String()),
		zap.String("category", alert.Category),
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message),
	}
	for k, v := range alert.Metadata {
		fields = append(fields, zap.String("meta_"+k, v))
	}

	switch alert.Severity {
	case platform.NotificationSeverityCritical:
		log.Error(alert.Title, fields...)
	case platform.NotificationSeverityWarning:
		log.Warn(alert.Title, fields...)
	default:
		log.Info(alert.Title, fields...)
	}
	return nil
}

var _ platform.Notifier = (*LogNotifier)(nil)
