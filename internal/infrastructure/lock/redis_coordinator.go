package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crosslist/backend/internal/domain/coordination"
	"github.com/crosslist/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseSlotScript deletes a job slot only if the stored identity still
// carries the caller's job ID.
const releaseSlotScript = `
local raw = redis.call("GET", KEYS[1])
if raw then
	local held = cjson.decode(raw)
	if held["job_id"] == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
end
return 0`

// RedisCoordinator implements coordination.Coordinator on Redis. Each
// (shop, kind) slot is a TTL-bound key holding the JobIdentity as JSON, so
// a crashed worker's slot clears itself and operators can inspect who holds
// a slot and since when.
type RedisCoordinator struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
	release *redis.Script
}

// RedisCoordinatorOption is a functional option for configuring the coordinator
type RedisCoordinatorOption func(*RedisCoordinator)

// WithJobLockTTL overrides the default job slot TTL
func WithJobLockTTL(ttl time.Duration) RedisCoordinatorOption {
	return func(c *RedisCoordinator) {
		c.ttl = ttl
	}
}

// WithCoordinatorLogger sets the logger for the coordinator
func WithCoordinatorLogger(logger *zap.Logger) RedisCoordinatorOption {
	return func(c *RedisCoordinator) {
		c.logger = logger
	}
}

// NewRedisCoordinator creates a coordinator on an existing Redis client
func NewRedisCoordinator(client *redis.Client, opts ...RedisCoordinatorOption) *RedisCoordinator {
	c := &RedisCoordinator{
		client:  client,
		ttl:     coordination.DefaultJobLockTTL,
		logger:  zap.NewNop(),
		release: redis.NewScript(releaseSlotScript),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func slotKey(shopID uuid.UUID, kind coordination.JobKind) string {
	return fmt.Sprintf("job:slot:%s:%s", shopID, kind)
}

// AcquireJobLock takes the TTL-bound job slot for (shop, kind), failing fast
// with ErrJobConflict if the kind or any conflicting kind holds its slot.
func (c *RedisCoordinator) AcquireJobLock(ctx context.Context, shopID uuid.UUID, kind coordination.JobKind) (*coordination.JobIdentity, error) {
	if !kind.IsValid() {
		return nil, shared.NewDomainError("INVALID_JOB_KIND", fmt.Sprintf("Unknown job kind %q", kind))
	}

	// Conflicting kinds are only read, never taken; the slot of the
	// requested kind itself is taken atomically below.
	for _, other := range coordination.ConflictsWith(kind) {
		held, err := c.client.Exists(ctx, slotKey(shopID, other)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check job slot: %w", err)
		}
		if held > 0 {
			c.logger.Debug("job slot conflict",
				zap.String("shop_id", shopID.String()),
				zap.String("kind", kind.String()),
				zap.String("conflicting_kind", other.String()),
			)
			return nil, shared.ErrJobConflict
		}
	}

	identity := &coordination.JobIdentity{
		JobID:      uuid.New(),
		Kind:       kind,
		ShopID:     shopID,
		AcquiredAt: time.Now().UTC(),
	}

	raw, err := json.Marshal(identity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job identity: %w", err)
	}

	ok, err := c.client.SetNX(ctx, slotKey(shopID, kind), raw, c.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to take job slot: %w", err)
	}
	if !ok {
		return nil, shared.ErrJobConflict
	}

	return identity, nil
}

// ReleaseJobLock releases a previously acquired job slot. Releasing a slot
// that has expired or changed owner is a no-op.
func (c *RedisCoordinator) ReleaseJobLock(ctx context.Context, identity *coordination.JobIdentity) error {
	if identity == nil {
		return nil
	}
	key := slotKey(identity.ShopID, identity.Kind)
	if err := c.release.Run(ctx, c.client, []string{key}, identity.JobID.String()).Err(); err != nil {
		return fmt.Errorf("failed to release job slot: %w", err)
	}
	return nil
}

// Ensure RedisCoordinator implements Coordinator
var _ coordination.Coordinator = (*RedisCoordinator)(nil)
