package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RetrySweeper processes sync failure records whose retry is due.
type RetrySweeper interface {
	ProcessDueRetries(ctx context.Context, now time.Time, limit int) (int, error)
}

// RetryPollerConfig holds configuration for the retry poller.
type RetryPollerConfig struct {
	// PollInterval is how often the poller looks for due records.
	PollInterval time.Duration

	// BatchLimit caps how many records one poll attempts.
	BatchLimit int
}

// DefaultRetryPollerConfig returns default poller configuration.
func DefaultRetryPollerConfig() RetryPollerConfig {
	return RetryPollerConfig{
		PollInterval: time.Minute,
		BatchLimit:   50,
	}
}

// RetryPoller drives the sync failure retry ladder. Each tick it sweeps the
// records whose backoff has elapsed and hands them to the recovery service.
type RetryPoller struct {
	config  RetryPollerConfig
	sweeper RetrySweeper
	logger  *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewRetryPoller creates a new retry poller.
func NewRetryPoller(config RetryPollerConfig, sweeper RetrySweeper, logger *zap.Logger) *RetryPoller {
	return &RetryPoller{
		config:  config,
		sweeper: sweeper,
		logger:  logger,
	}
}

// Start starts the poller loop.
func (p *RetryPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.runLoop(ctx)

	p.logger.Info("Retry poller started",
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Int("batch_limit", p.config.BatchLimit),
	)

	return nil
}

// Stop stops the poller and waits for an in-flight sweep to finish.
func (p *RetryPoller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Retry poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *RetryPoller) runLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *RetryPoller) poll(ctx context.Context) {
	attempted, err := p.sweeper.ProcessDueRetries(ctx, time.Now(), p.config.BatchLimit)
	if err != nil {
		p.logger.Error("Retry sweep failed", zap.Error(err))
		return
	}
	if attempted > 0 {
		p.logger.Info("Retry sweep finished", zap.Int("attempted", attempted))
	}
}
