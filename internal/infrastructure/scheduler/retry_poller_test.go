package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crosslist/backend/tests/testutil"
)

type fakeSweeper struct {
	sweeps    atomic.Int64
	attempted int
	err       error
	lastLimit atomic.Int64
}

func (f *fakeSweeper) ProcessDueRetries(_ context.Context, _ time.Time, limit int) (int, error) {
	f.sweeps.Add(1)
	f.lastLimit.Store(int64(limit))
	return f.attempted, f.err
}

func TestRetryPoller_SweepsOnSchedule(t *testing.T) {
	sweeper := &fakeSweeper{attempted: 2}
	poller := NewRetryPoller(RetryPollerConfig{
		PollInterval: 10 * time.Millisecond,
		BatchLimit:   25,
	}, sweeper, zap.NewNop())

	require.NoError(t, poller.Start(context.Background()))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, poller.Stop(stopCtx))
	}()

	testutil.RequireEventually(t, func() bool {
		return sweeper.sweeps.Load() >= 2
	}, time.Second, 5*time.Millisecond, "poller never swept")

	assert.Equal(t, int64(25), sweeper.lastLimit.Load())
}

func TestRetryPoller_KeepsPollingAfterSweepError(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	poller := NewRetryPoller(RetryPollerConfig{
		PollInterval: 10 * time.Millisecond,
		BatchLimit:   10,
	}, sweeper, zap.NewNop())

	require.NoError(t, poller.Start(context.Background()))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, poller.Stop(stopCtx))
	}()

	testutil.RequireEventually(t, func() bool {
		return sweeper.sweeps.Load() >= 3
	}, time.Second, 5*time.Millisecond, "poller stopped after error")
}

func TestRetryPoller_StopIsIdempotent(t *testing.T) {
	sweeper := &fakeSweeper{}
	poller := NewRetryPoller(DefaultRetryPollerConfig(), sweeper, zap.NewNop())

	require.NoError(t, poller.Start(context.Background()))
	// Double start is a no-op.
	require.NoError(t, poller.Start(context.Background()))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, poller.Stop(stopCtx))
	require.NoError(t, poller.Stop(stopCtx))
}

func TestRetryPoller_StopHaltsSweeps(t *testing.T) {
	sweeper := &fakeSweeper{}
	poller := NewRetryPoller(RetryPollerConfig{
		PollInterval: 5 * time.Millisecond,
		BatchLimit:   10,
	}, sweeper, zap.NewNop())

	require.NoError(t, poller.Start(context.Background()))
	testutil.RequireEventually(t, func() bool {
		return sweeper.sweeps.Load() >= 1
	}, time.Second, time.Millisecond, "poller never swept")

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, poller.Stop(stopCtx))

	settled := sweeper.sweeps.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, sweeper.sweeps.Load())
}
