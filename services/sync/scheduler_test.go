package sync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedinbox/mailsync/config"
	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/enum"
	"github.com/unifiedinbox/mailsync/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

type fakeSyncService struct {
	calls atomic.Int64
	block chan struct{}
	err   error
}

func (f *fakeSyncService) SyncAccount(ctx context.Context, accountID string) (*interfaces.SyncResult, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return &interfaces.SyncResult{Status: enum.SyncFailed, Reason: f.err.Error()}, f.err
	}
	return &interfaces.SyncResult{Status: enum.SyncSuccess}, nil
}

func schedulerConfig(workers, queueSize int) *config.SyncConfig {
	return &config.SyncConfig{
		Workers:          workers,
		QueueSize:        queueSize,
		MaxRetries:       3,
		RetryBaseSeconds: 60,
	}
}

func TestScheduler_RunsEnqueuedJobs(t *testing.T) {
	svc := &fakeSyncService{}
	scheduler := NewSyncScheduler(svc, schedulerConfig(2, 16), getLogger())

	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	assert.True(t, scheduler.TriggerSync("acct_a"))
	assert.True(t, scheduler.TriggerSync("acct_b"))

	require.Eventually(t, func() bool {
		return svc.calls.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_FullQueueDropsTrigger(t *testing.T) {
	svc := &fakeSyncService{block: make(chan struct{})}
	scheduler := NewSyncScheduler(svc, schedulerConfig(1, 1), getLogger())

	require.NoError(t, scheduler.Start(context.Background()))

	// first job occupies the worker, second fills the queue
	require.True(t, scheduler.TriggerSync("acct_a"))
	require.Eventually(t, func() bool {
		return svc.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, scheduler.TriggerSync("acct_b"))

	// non-blocking: a full queue refuses instead of stalling the caller
	assert.False(t, scheduler.TriggerSync("acct_c"))

	close(svc.block)
	scheduler.Stop()
}

func TestScheduler_StopRefusesNewWork(t *testing.T) {
	svc := &fakeSyncService{}
	scheduler := NewSyncScheduler(svc, schedulerConfig(1, 16), getLogger())

	require.NoError(t, scheduler.Start(context.Background()))
	scheduler.Stop()

	assert.False(t, scheduler.TriggerSync("acct_a"))
}

type drainSyncService struct {
	started   chan struct{}
	release   chan struct{}
	cancelled atomic.Bool
	completed atomic.Bool
}

func (f *drainSyncService) SyncAccount(ctx context.Context, accountID string) (*interfaces.SyncResult, error) {
	close(f.started)
	<-f.release
	if ctx.Err() != nil {
		f.cancelled.Store(true)
	}
	f.completed.Store(true)
	return &interfaces.SyncResult{Status: enum.SyncSuccess}, nil
}

func TestScheduler_StopDrainsInFlightSync(t *testing.T) {
	svc := &drainSyncService{started: make(chan struct{}), release: make(chan struct{})}
	scheduler := NewSyncScheduler(svc, schedulerConfig(1, 16), getLogger())

	require.NoError(t, scheduler.Start(context.Background()))
	require.True(t, scheduler.TriggerSync("acct_a"))
	<-svc.started

	stopDone := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(stopDone)
	}()

	// Stop must wait for the running sync, not return under it
	select {
	case <-stopDone:
		t.Fatal("Stop returned while a sync was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(svc.release)
	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the sync finished")
	}

	assert.True(t, svc.completed.Load())
	assert.False(t, svc.cancelled.Load(), "stopping the scheduler must not cancel an in-flight sync")
}

func TestScheduler_PermanentFailureIsNotRetried(t *testing.T) {
	svc := &fakeSyncService{err: errors.New("schema violation")}
	scheduler := NewSyncScheduler(svc, schedulerConfig(1, 16), getLogger())

	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop()

	require.True(t, scheduler.TriggerSync("acct_a"))
	require.Eventually(t, func() bool {
		return svc.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// give a would-be retry a moment to show up
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), svc.calls.Load())
}
