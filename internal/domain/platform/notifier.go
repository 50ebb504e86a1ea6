package platform

import (
	"context"

	"github.com/google/uuid"
)

// NotificationSeverity grades user-facing alerts
type NotificationSeverity string

const (
	NotificationSeverityInfo     NotificationSeverity = "info"
	NotificationSeverityWarning  NotificationSeverity = "warning"
	NotificationSeverityCritical NotificationSeverity = "critical"
)

// Notification categories used by the inventory core
const (
	NotificationCategoryInventory = "inventory"
	NotificationCategorySync      = "sync"
)

// Notification is a user-facing alert addressed to a shop owner
type Notification struct {
	ShopID   uuid.UUID
	Title    string
	Message  string
	Category string
	Severity NotificationSeverity
	Metadata map[string]string
}

// Notifier is the outbound port for emitting user-facing alerts. Delivery
// channels (email, push, in-app) live outside the core.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
