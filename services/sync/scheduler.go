package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unifiedinbox/mailsync/config"
	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/tracing"
)

type syncJob struct {
	accountID string
	attempt   int
}

// syncScheduler fans account sync jobs out to a fixed pool of workers.
// The queue is bounded and enqueueing never blocks: when it is full the
// trigger is dropped and the next periodic tick picks the account up.
type syncScheduler struct {
	syncService interfaces.SyncService
	retry       *retryPolicy
	workers     int
	queue       chan syncJob
	stopped     atomic.Bool
	baseCtx     context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	log         logger.Logger
}

func NewSyncScheduler(syncService interfaces.SyncService, syncCfg *config.SyncConfig, log logger.Logger) interfaces.SyncScheduler {
	return &syncScheduler{
		syncService: syncService,
		retry:       newRetryPolicy(syncCfg.MaxRetries, syncCfg.RetryBaseSeconds),
		workers:     syncCfg.Workers,
		queue:       make(chan syncJob, syncCfg.QueueSize),
		log:         log,
	}
}

func (s *syncScheduler) Start(ctx context.Context) error {
	// Jobs run on the base context so stopping the scheduler only halts
	// dequeues. An in-flight sync finishes on its own timeout.
	s.baseCtx = ctx
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(loopCtx)
	}
	s.log.Infof("sync scheduler started with %d workers", s.workers)
	return nil
}

func (s *syncScheduler) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("sync scheduler stopped")
}

func (s *syncScheduler) TriggerSync(accountID string) bool {
	return s.enqueue(syncJob{accountID: accountID, attempt: 1})
}

func (s *syncScheduler) enqueue(job syncJob) bool {
	if s.stopped.Load() {
		return false
	}
	select {
	case s.queue <- job:
		return true
	default:
		s.log.Warnf("sync queue full, dropping trigger for account %s", job.accountID)
		return false
	}
}

func (s *syncScheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.run(s.baseCtx, job)
		}
	}
}

func (s *syncScheduler) run(ctx context.Context, job syncJob) {
	span, ctx := tracing.StartTracerSpan(ctx, "syncScheduler.run")
	defer span.Finish()
	tracing.TagComponentWorker(span)
	tracing.TagAccount(span, job.accountID)
	span.SetTag("attempt", job.attempt)

	_, err := s.syncService.SyncAccount(ctx, job.accountID)
	if err == nil {
		return
	}

	kind := classifyFailure(err)
	s.log.Warnf("sync attempt %d for account %s failed (%s): %v", job.attempt, job.accountID, kind, err)

	delay, retry := s.retry.NextDelay(err, job.attempt)
	if !retry {
		return
	}

	s.log.Infof("retrying account %s in %s", job.accountID, delay.Round(time.Second))
	next := syncJob{accountID: job.accountID, attempt: job.attempt + 1}
	time.AfterFunc(delay, func() {
		s.enqueue(next)
	})
}
