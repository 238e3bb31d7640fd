package cron

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/unifiedinbox/mailsync/config"
	"github.com/unifiedinbox/mailsync/interfaces"
	cron_config "github.com/unifiedinbox/mailsync/internal/cron/config"
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/tracing"
)

// CONSTANTS
const (
	// GroupSync is the group for account sync jobs
	GroupSync = "sync"
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupSync: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg       *config.Config
	log       logger.Logger
	cron      *cronv3.Cron
	stopCh    chan struct{}
	jobIDs    map[string]cronv3.EntryID
	accounts  interfaces.AccountRepository
	scheduler interfaces.SyncScheduler
}

func NewCronManager(cfg *config.Config, log logger.Logger, accounts interfaces.AccountRepository, scheduler interfaces.SyncScheduler) *CronManager {
	return &CronManager{
		cfg:       cfg,
		log:       log,
		stopCh:    make(chan struct{}),
		jobIDs:    make(map[string]cronv3.EntryID),
		accounts:  accounts,
		scheduler: scheduler,
	}
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		// Wait for jobs to finish
		<-ctx.Done()
	}
	close(cm.stopCh)
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	if cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from pod: %s", podName)
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	syncSchedule := cronConfig.CronScheduleSyncAccounts
	if syncSchedule == "" {
		syncSchedule = fmt.Sprintf("@every %dm", cm.cfg.Sync.IntervalMinutes)
	}
	id, err := c.AddFunc(syncSchedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		jobLocks.locks[GroupSync].Lock()
		defer jobLocks.locks[GroupSync].Unlock()
		cm.syncActiveAccounts()
	})
	if err != nil {
		cm.log.Fatalf("Could not add account sync cron job: %v", err)
	}
	cm.jobIDs["sync_accounts"] = id
	cm.log.Infof("Registered account sync job with schedule: %s", syncSchedule)
}

func (cm *CronManager) syncActiveAccounts() {
	ctx := context.Background()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.syncActiveAccounts")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	accounts, err := cm.accounts.ListActive(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to list active accounts: %v", err)
		return
	}

	enqueued := 0
	for _, account := range accounts {
		if cm.scheduler.TriggerSync(account.ID) {
			enqueued++
		}
	}
	span.SetTag("accounts", len(accounts))
	cm.log.Infof("Enqueued %d of %d active accounts for sync", enqueued, len(accounts))
}
