package coordination

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/crosslist/backend/internal/domain/shared"
)

// JobKind identifies a class of background job
type JobKind string

const (
	// JobKindOrderSync ingests order events from the marketplaces
	JobKindOrderSync JobKind = "order_sync"
	// JobKindInventoryImport bulk-imports products and quantities
	JobKindInventoryImport JobKind = "inventory_import"
	// JobKindReconciliation sweeps products for drift
	JobKindReconciliation JobKind = "reconciliation"
	// JobKindSyncRetry replays failed cross-platform pushes
	JobKindSyncRetry JobKind = "sync_retry"
)

// IsValid returns true if the job kind is known
func (k JobKind) IsValid() bool {
	switch k {
	case JobKindOrderSync, JobKindInventoryImport, JobKindReconciliation, JobKindSyncRetry:
		return true
	}
	return false
}

// String returns the string representation of JobKind
func (k JobKind) String() string {
	return string(k)
}

// conflicts declares which job kinds must not run concurrently for the same
// shop. The table is symmetric by construction: declaring one direction is
// enough, ConflictsWith checks both.
var conflicts = map[JobKind][]JobKind{
	JobKindInventoryImport: {JobKindOrderSync, JobKindReconciliation},
	JobKindReconciliation:  {JobKindSyncRetry},
}

// ConflictsWith returns the kinds that structurally conflict with kind,
// including both declared directions of the symmetric table.
func ConflictsWith(kind JobKind) []JobKind {
	out := make([]JobKind, 0, 4)
	out = append(out, conflicts[kind]...)
	for other, withKinds := range conflicts {
		for _, k := range withKinds {
			if k == kind {
				out = append(out, other)
			}
		}
	}
	return out
}

// DefaultJobLockTTL bounds how long a crashed worker can hold a job slot
const DefaultJobLockTTL = 30 * time.Minute

// JobIdentity tags a job lock with who holds it and why
type JobIdentity struct {
	JobID      uuid.UUID `json:"job_id"`
	Kind       JobKind   `json:"kind"`
	ShopID     uuid.UUID `json:"shop_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Coordinator gates structurally conflicting background jobs per shop.
// AcquireJobLock fails fast on conflict; a job is never silently skipped —
// it either runs exclusively or reports the conflict.
type Coordinator interface {
	// AcquireJobLock takes the TTL-bound job slot for (shop, kind), failing
	// fast with ErrJobConflict if the kind or any conflicting kind holds it.
	AcquireJobLock(ctx context.Context, shopID uuid.UUID, kind JobKind) (*JobIdentity, error)

	// ReleaseJobLock releases a previously acquired job slot. Releasing a
	// slot that has expired or changed owner is a no-op.
	ReleaseJobLock(ctx context.Context, identity *JobIdentity) error
}

// AcquireJobLockWithRetry wraps AcquireJobLock with a bounded wait: on
// ErrJobConflict it sleeps and tries again, up to attempts tries in total.
// Jobs that should briefly wait out a conflicting run (an import arriving
// while an order sync winds down) use this instead of aborting; the last
// conflict is returned once the attempts are spent.
func AcquireJobLockWithRetry(
	ctx context.Context,
	c Coordinator,
	shopID uuid.UUID,
	kind JobKind,
	attempts int,
	delay time.Duration,
) (*JobIdentity, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		var identity *JobIdentity
		identity, err = c.AcquireJobLock(ctx, shopID, kind)
		if err == nil {
			return identity, nil
		}
		if !errors.Is(err, shared.ErrJobConflict) {
			return nil, err
		}
	}
	return nil, err
}
