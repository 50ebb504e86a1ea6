package platformsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	appledger "github.com/crosslist/backend/internal/application/ledger"
	apprecovery "github.com/crosslist/backend/internal/application/recovery"
	"github.com/crosslist/backend/internal/domain/platform"
)

// ErrDispatcherNotRunning is returned when a follow-up is submitted to a
// stopped dispatcher.
var ErrDispatcherNotRunning = errors.New("platformsync: dispatcher is not running")

// ErrQueueFull is returned when the follow-up queue is saturated.
var ErrQueueFull = errors.New("platformsync: follow-up queue is full")

// FailureHandler receives push outcomes that had at least one failing
// platform.
type FailureHandler interface {
	HandlePushFailure(ctx context.Context, outcome apprecovery.PushOutcome) error
}

// Config holds tunables for the dispatcher pool.
type Config struct {
	// Workers is the number of concurrent push workers.
	Workers int
	// QueueSize bounds the pending follow-up queue.
	QueueSize int
	// PushTimeout caps one follow-up's total push time.
	PushTimeout time.Duration
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Workers:     5,
		QueueSize:   256,
		PushTimeout: 2 * time.Minute,
	}
}

// Dispatcher executes the follow-up actions the ledger returns after its
// atomic unit commits: pushing the new quantity to each target marketplace
// and ending listings for sold-out products. Pushes are slow, failure-prone
// network calls, so they run on a worker pool, deliberately decoupled from
// the ledger transaction. Failed pushes are handed to the recovery manager,
// never surfaced raw.
type Dispatcher struct {
	scope    appledger.TransactionScope
	registry platform.AdapterRegistry
	failures FailureHandler
	logger   *zap.Logger
	cfg      Config

	queue     chan appledger.FollowUp
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(
	scope appledger.TransactionScope,
	registry platform.AdapterRegistry,
	failures FailureHandler,
	logger *zap.Logger,
	cfg Config,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = DefaultConfig().PushTimeout
	}
	return &Dispatcher{
		scope:    scope,
		registry: registry,
		failures: failures,
		logger:   logger,
		cfg:      cfg,
		queue:    make(chan appledger.FollowUp, cfg.QueueSize),
	}
}

// Start starts the worker pool.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = true
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}

	d.logger.Info("platform sync dispatcher started",
		zap.Int("workers", d.cfg.Workers),
		zap.Int("queue_size", d.cfg.QueueSize))
	return nil
}

// Stop gracefully stops the pool, draining queued follow-ups until ctx expires.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	// Closing under the same lock Submit sends under: a racing Submit either
	// enqueues before the close or observes isRunning false, never both.
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("platform sync dispatcher stopped")
	case <-ctx.Done():
		d.logger.Warn("platform sync dispatcher stop timed out")
	}
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}

// Submit enqueues a follow-up for asynchronous dispatch. The send is
// non-blocking and happens under the run-state lock, so it can never race a
// concurrent Stop closing the queue.
func (d *Dispatcher) Submit(fu appledger.FollowUp) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isRunning {
		return ErrDispatcherNotRunning
	}

	select {
	case d.queue <- fu:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitAll enqueues a batch of follow-ups, stopping at the first error.
func (d *Dispatcher) SubmitAll(followUps []appledger.FollowUp) error {
	for _, fu := range followUps {
		if err := d.Submit(fu); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) worker(ctx context.Context, workerID int) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case fu, ok := <-d.queue:
			if !ok {
				return
			}
			pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.PushTimeout)
			if err := d.Dispatch(pushCtx, fu); err != nil {
				d.logger.Warn("follow-up dispatch incomplete",
					zap.Int("worker_id", workerID),
					zap.String("product_id", fu.ProductID.String()),
					zap.Error(err))
			}
			cancel()
		}
	}
}

// Dispatch executes one follow-up synchronously: push the quantity to every
// target platform, record each confirmed sync on its mirror, and on full
// success mark the product's pending ledger transactions as processed. Any
// per-platform failure is aggregated into a SyncError and handed to the
// recovery manager.
func (d *Dispatcher) Dispatch(ctx context.Context, fu appledger.FollowUp) error {
	mirrors := make(map[platform.Code]*platform.Mirror, len(fu.Targets))
	err := d.scope.Execute(ctx, func(repos appledger.Repositories) error {
		all, err := repos.Mirrors().FindByProduct(ctx, fu.ProductID)
		if err != nil {
			return err
		}
		for i := range all {
			mirrors[all[i].Platform] = &all[i]
		}
		return nil
	})
	if err != nil {
		return err
	}

	successful := make([]platform.Code, 0, len(fu.Targets))
	failed := make(map[platform.Code]string)
	now := time.Now()

	for _, code := range fu.Targets {
		if err := d.pushOne(ctx, code, mirrors[code], fu, now); err != nil {
			failed[code] = err.Error()
			continue
		}
		successful = append(successful, code)
	}

	if len(failed) == 0 {
		return d.markProcessed(ctx, fu, successful, mirrors)
	}

	syncErr := &platform.SyncError{Failed: failed, Successful: successful}
	if d.failures != nil {
		handleErr := d.failures.HandlePushFailure(ctx, apprecovery.PushOutcome{
			ShopID:     fu.ShopID,
			ProductID:  fu.ProductID,
			Targeted:   fu.Targets,
			Successful: successful,
			Failed:     failed,
		})
		if handleErr != nil {
			d.logger.Error("failed to record push failure",
				zap.String("product_id", fu.ProductID.String()),
				zap.Error(handleErr))
		}
	}
	// Persist the mirrors that did sync even though the batch failed.
	if err := d.saveMirrors(ctx, successful, mirrors); err != nil {
		d.logger.Error("failed to persist synced mirrors",
			zap.String("product_id", fu.ProductID.String()),
			zap.Error(err))
	}
	return syncErr
}

func (d *Dispatcher) pushOne(ctx context.Context, code platform.Code, mirror *platform.Mirror, fu appledger.FollowUp, now time.Time) error {
	if mirror == nil {
		return errors.New("no mirror for platform")
	}
	adapter, err := d.registry.Get(code)
	if err != nil {
		return err
	}
	if err := adapter.PushQuantity(ctx, mirror, fu.Quantity); err != nil {
		return err
	}
	if fu.EndListings {
		if err := adapter.EndListing(ctx, mirror, "sold out"); err != nil {
			return err
		}
		mirror.RecordEnded(now)
		return nil
	}
	mirror.RecordSync(fu.Quantity, now)
	return nil
}

func (d *Dispatcher) markProcessed(ctx context.Context, fu appledger.FollowUp, successful []platform.Code, mirrors map[platform.Code]*platform.Mirror) error {
	return d.scope.Execute(ctx, func(repos appledger.Repositories) error {
		for _, code := range successful {
			if err := repos.Mirrors().Save(ctx, mirrors[code]); err != nil {
				return err
			}
		}
		_, err := repos.Transactions().MarkProcessedForProduct(ctx, fu.ProductID)
		return err
	})
}

func (d *Dispatcher) saveMirrors(ctx context.Context, successful []platform.Code, mirrors map[platform.Code]*platform.Mirror) error {
	if len(successful) == 0 {
		return nil
	}
	return d.scope.Execute(ctx, func(repos appledger.Repositories) error {
		for _, code := range successful {
			if err := repos.Mirrors().Save(ctx, mirrors[code]); err != nil {
				return err
			}
		}
		return nil
	})
}
