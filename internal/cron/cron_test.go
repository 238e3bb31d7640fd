package cron

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unifiedinbox/mailsync/config"
	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/enum"
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/models"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

type stubAccountRepo struct {
	interfaces.AccountRepository
	accounts []*models.Account
	err      error
}

func (s *stubAccountRepo) ListActive(ctx context.Context) ([]*models.Account, error) {
	return s.accounts, s.err
}

type stubScheduler struct {
	triggered atomic.Int64
	full      bool
}

func (s *stubScheduler) Start(ctx context.Context) error { return nil }
func (s *stubScheduler) Stop()                           {}
func (s *stubScheduler) TriggerSync(accountID string) bool {
	if s.full {
		return false
	}
	s.triggered.Add(1)
	return true
}

func testConfig() *config.Config {
	return &config.Config{
		Sync: &config.SyncConfig{IntervalMinutes: 5},
	}
}

func TestNewCronManager(t *testing.T) {
	repo := &stubAccountRepo{}
	scheduler := &stubScheduler{}

	cm := NewCronManager(testConfig(), getLogger(), repo, scheduler)

	assert.NotNil(t, cm)
	assert.NotNil(t, cm.jobIDs)
	assert.Equal(t, repo, cm.accounts)
}

func TestSyncActiveAccounts_EnqueuesEveryActiveAccount(t *testing.T) {
	repo := &stubAccountRepo{accounts: []*models.Account{
		{ID: "acct_1", Provider: enum.ProviderGmail, IsActive: true},
		{ID: "acct_2", Provider: enum.ProviderOutlook, IsActive: true},
	}}
	scheduler := &stubScheduler{}
	cm := NewCronManager(testConfig(), getLogger(), repo, scheduler)

	cm.syncActiveAccounts()

	assert.Equal(t, int64(2), scheduler.triggered.Load())
}

func TestSyncActiveAccounts_FullQueueDoesNotPanic(t *testing.T) {
	repo := &stubAccountRepo{accounts: []*models.Account{
		{ID: "acct_1", Provider: enum.ProviderGmail, IsActive: true},
	}}
	scheduler := &stubScheduler{full: true}
	cm := NewCronManager(testConfig(), getLogger(), repo, scheduler)

	cm.syncActiveAccounts()

	assert.Equal(t, int64(0), scheduler.triggered.Load())
}
