package recovery

import (
	"time"

	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// FailureType classifies how broadly a cross-platform push failed
type FailureType string

const (
	// FailureTypeTotal means no targeted platform accepted the push
	FailureTypeTotal FailureType = "total_failure"
	// FailureTypePartial means exactly one targeted platform failed
	FailureTypePartial FailureType = "partial_failure"
	// FailureTypeMultiple means several platforms failed while others succeeded
	FailureTypeMultiple FailureType = "multiple_failure"
)

// Status is the lifecycle state of a sync failure record
type Status string

const (
	StatusPending  Status = "pending"
	StatusRetrying Status = "retrying"
	StatusCritical Status = "critical"
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
)

// IsTerminal returns true for states that stop all further retry scheduling
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusFailed
}

// MaxRetries is the hard bound on scheduled retries before a record is abandoned
const MaxRetries = 4

// CriticalFirstRetryDelay is the accelerated first retry for critical failures
const CriticalFirstRetryDelay = 30 * time.Second

// RetryLadder is the fixed backoff ladder for recoverable failures
var RetryLadder = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	4 * time.Hour,
}

// SyncFailureRecord tracks one product's unresolved cross-platform drift.
// It is created on the first push failure, mutated by retries, and terminal
// at resolved or failed.
type SyncFailureRecord struct {
	shared.BaseEntity
	ShopID              uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID           uuid.UUID       `gorm:"type:uuid;not null;index:idx_failure_product"`
	FailureType         FailureType     `gorm:"type:varchar(20);not null"`
	Status              Status          `gorm:"type:varchar(10);not null;index"`
	TargetedPlatforms   []platform.Code `gorm:"serializer:json;type:jsonb"`
	FailedPlatforms     []platform.Code `gorm:"serializer:json;type:jsonb"`
	SuccessfulPlatforms []platform.Code `gorm:"serializer:json;type:jsonb"`
	LastError           string          `gorm:"type:varchar(500)"`
	RetryCount          int             `gorm:"not null;default:0"`
	NextRetryAt         *time.Time      `gorm:"type:timestamptz;index"`
	ResolvedAt          *time.Time      `gorm:"type:timestamptz"`
}

// TableName returns the table name for GORM
func (SyncFailureRecord) TableName() string {
	return "sync_failure_records"
}

// ClassifyFailure derives the failure type from the attempt outcome
func ClassifyFailure(targeted, successful, failed int) FailureType {
	switch {
	case successful == 0:
		return FailureTypeTotal
	case failed > 1:
		return FailureTypeMultiple
	default:
		return FailureTypePartial
	}
}

// IsCriticalOutcome reports whether an attempt outcome is critical: zero
// targeted platforms succeeded, or failures exceed half of the targets.
func IsCriticalOutcome(targeted, successful, failed int) bool {
	return successful == 0 || failed*2 > targeted
}

// NewSyncFailureRecord creates a record for a first-time push failure and
// schedules its first retry: critical outcomes get the accelerated delay,
// recoverable ones start on the backoff ladder.
func NewSyncFailureRecord(
	shopID, productID uuid.UUID,
	targeted, successful []platform.Code,
	failed map[platform.Code]string,
	lastError string,
) (*SyncFailureRecord, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if len(failed) == 0 {
		return nil, shared.NewDomainError("INVALID_OUTCOME", "A failure record requires at least one failed platform")
	}

	failedCodes := make([]platform.Code, 0, len(failed))
	for c := range failed {
		failedCodes = append(failedCodes, c)
	}

	r := &SyncFailureRecord{
		BaseEntity:          shared.NewBaseEntity(),
		ShopID:              shopID,
		ProductID:           productID,
		FailureType:         ClassifyFailure(len(targeted), len(successful), len(failed)),
		TargetedPlatforms:   targeted,
		FailedPlatforms:     failedCodes,
		SuccessfulPlatforms: successful,
		LastError:           lastError,
	}

	now := time.Now()
	if r.IsCritical() {
		r.Status = StatusCritical
		next := now.Add(CriticalFirstRetryDelay)
		r.NextRetryAt = &next
	} else {
		r.Status = StatusPending
		next := now.Add(RetryLadder[0])
		r.NextRetryAt = &next
	}
	return r, nil
}

// IsCritical reports whether the record's current platform sets form a
// critical outcome.
func (r *SyncFailureRecord) IsCritical() bool {
	return IsCriticalOutcome(len(r.TargetedPlatforms), len(r.SuccessfulPlatforms), len(r.FailedPlatforms))
}

// MergePushFailure folds a fresh push failure into an already-open record: a
// product carries at most one open record, so a new failure while one is open
// widens its failed set instead of spawning a second record.
func (r *SyncFailureRecord) MergePushFailure(failed map[platform.Code]string, lastError string) error {
	if r.Status.IsTerminal() {
		return shared.ErrInvalidState
	}
	for c := range failed {
		r.FailedPlatforms = appendCode(r.FailedPlatforms, c)
		r.SuccessfulPlatforms = removeCode(r.SuccessfulPlatforms, c)
	}
	r.LastError = lastError
	r.FailureType = ClassifyFailure(len(r.TargetedPlatforms), len(r.SuccessfulPlatforms), len(r.FailedPlatforms))
	if r.Status == StatusPending && r.IsCritical() {
		r.Status = StatusCritical
	}
	r.UpdatedAt = time.Now()
	return nil
}

// IsDue returns true when the record should be retried now
func (r *SyncFailureRecord) IsDue(now time.Time) bool {
	return !r.Status.IsTerminal() && r.NextRetryAt != nil && !r.NextRetryAt.After(now)
}

// BeginRetry transitions the record into the retrying state and consumes one
// retry from the bound.
func (r *SyncFailureRecord) BeginRetry() error {
	if r.Status.IsTerminal() {
		return shared.ErrInvalidState
	}
	r.Status = StatusRetrying
	r.RetryCount++
	r.NextRetryAt = nil
	r.UpdatedAt = time.Now()
	return nil
}

// RecordRetryOutcome folds a retry attempt into the record. A retry that fixes
// some but not all platforms narrows the failed set without resolving; full
// success resolves; exhausting the ladder abandons the record as failed.
func (r *SyncFailureRecord) RecordRetryOutcome(nowSuccessful []platform.Code, stillFailed map[platform.Code]string, lastError string) error {
	if r.Status != StatusRetrying {
		return shared.ErrInvalidState
	}

	for _, c := range nowSuccessful {
		r.SuccessfulPlatforms = appendCode(r.SuccessfulPlatforms, c)
	}

	if len(stillFailed) == 0 {
		r.markResolved()
		return nil
	}

	r.FailedPlatforms = r.FailedPlatforms[:0]
	for c := range stillFailed {
		r.FailedPlatforms = append(r.FailedPlatforms, c)
		r.SuccessfulPlatforms = removeCode(r.SuccessfulPlatforms, c)
	}
	r.LastError = lastError
	r.FailureType = ClassifyFailure(len(r.TargetedPlatforms), len(r.SuccessfulPlatforms), len(r.FailedPlatforms))

	if r.RetryCount >= MaxRetries {
		r.markFailed()
		return nil
	}

	if r.IsCritical() {
		r.Status = StatusCritical
	} else {
		r.Status = StatusPending
	}
	idx := r.RetryCount
	if idx >= len(RetryLadder) {
		idx = len(RetryLadder) - 1
	}
	next := time.Now().Add(RetryLadder[idx])
	r.NextRetryAt = &next
	r.UpdatedAt = time.Now()
	return nil
}

func (r *SyncFailureRecord) markResolved() {
	now := time.Now()
	r.Status = StatusResolved
	r.FailedPlatforms = nil
	r.NextRetryAt = nil
	r.ResolvedAt = &now
	r.UpdatedAt = now
}

func (r *SyncFailureRecord) markFailed() {
	now := time.Now()
	r.Status = StatusFailed
	r.NextRetryAt = nil
	r.UpdatedAt = now
}

func appendCode(codes []platform.Code, c platform.Code) []platform.Code {
	for _, existing := range codes {
		if existing == c {
			return codes
		}
	}
	return append(codes, c)
}

func removeCode(codes []platform.Code, c platform.Code) []platform.Code {
	out := codes[:0]
	for _, existing := range codes {
		if existing != c {
			out = append(out, existing)
		}
	}
	return out
}
