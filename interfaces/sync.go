package interfaces

import (
	"context"

	"github.com/unifiedinbox/mailsync/internal/enum"
	"github.com/unifiedinbox/mailsync/internal/models"
)

// SyncResult is the account-level outcome of one sync attempt. Per-message
// failures never surface here.
type SyncResult struct {
	Status           enum.SyncStatus
	Reason           string
	MessagesIngested int
}

// SyncService runs the per-account ingestion pipeline. SyncAccount is
// single-flighted per account: a second concurrent call for the same
// account returns a skipped result immediately.
type SyncService interface {
	SyncAccount(ctx context.Context, accountID string) (*SyncResult, error)
}

// SyncScheduler funnels periodic and on-demand triggers into SyncService
// through a bounded worker pool.
type SyncScheduler interface {
	Start(ctx context.Context) error
	Stop()
	// TriggerSync enqueues one account. Non-blocking: a full queue drops
	// the trigger, the next periodic tick picks the account up again.
	TriggerSync(accountID string) bool
}

// CredentialManager guarantees a valid access credential before any
// provider call, refreshing when the stored one is at or near expiry.
type CredentialManager interface {
	EnsureValid(ctx context.Context, account *models.Account) (string, error)
	// Refresh forces a refresh regardless of the stored expiry, used after
	// a provider rejects a token the expiry check still considered valid.
	Refresh(ctx context.Context, account *models.Account) (string, error)
}
