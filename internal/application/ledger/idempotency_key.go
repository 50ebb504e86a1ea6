package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/google/uuid"
)

// Idempotency keys are derived from an operation's natural identity so that
// redelivered events collapse into a single effect. Changing any component of
// the identity (e.g. the quantity) produces a new key and a fresh operation.

// AllocationKey builds the idempotency key for an allocation
func AllocationKey(code platform.Code, orderID, itemID string, qty int64) string {
	return operationKey("allocation", code, orderID, itemID, qty)
}

// ReleaseKey builds the idempotency key for a release
func ReleaseKey(code platform.Code, orderID, itemID string, qty int64) string {
	return operationKey("release", code, orderID, itemID, qty)
}

// ManualAdjustmentKey namespaces a caller-supplied key for a manual adjustment
func ManualAdjustmentKey(callerKey string) string {
	return "ledger:manual_adjustment:" + hashKey(callerKey)
}

func operationKey(kind string, code platform.Code, orderID, itemID string, qty int64) string {
	return fmt.Sprintf("ledger:%s:%s", kind,
		hashKey(fmt.Sprintf("%s|%s|%s|%d", code, orderID, itemID, qty)))
}

// productLockKey is the distributed lock key serializing all ledger mutations
// of one product.
func productLockKey(productID uuid.UUID) string {
	return "lock:product:" + productID.String()
}

func hashKey(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
