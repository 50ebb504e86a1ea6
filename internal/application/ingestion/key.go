package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// OrderKey derives the pipeline's idempotency key from the order's natural
// identity: platform, platform order id, and the serialized line items.
// Changing line items changes the key, so a modified order is reprocessed.
// The cancellation timestamp is part of the identity too: a cancellation is a
// new fact about the same order and must not collapse into the cached result
// of the original placement.
func OrderKey(o *NormalizedOrder) string {
	items := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, fmt.Sprintf("%s:%d", item.PlatformItemID, item.Quantity))
	}
	sort.Strings(items)

	cancelled := ""
	if o.CancelledAt != nil {
		cancelled = fmt.Sprintf("%d", o.CancelledAt.UnixNano())
	}

	content := fmt.Sprintf("%s|%s|%s|%s", o.Platform, o.PlatformOrderID, strings.Join(items, ","), cancelled)
	sum := sha256.Sum256([]byte(content))
	return "ingestion:order:" + hex.EncodeToString(sum[:])
}
