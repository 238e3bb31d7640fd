package sync

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/unifiedinbox/mailsync/config"
	"github.com/unifiedinbox/mailsync/dto"
	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/enum"
	syncerrors "github.com/unifiedinbox/mailsync/internal/errors"
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/models"
	"github.com/unifiedinbox/mailsync/internal/repository"
	"github.com/unifiedinbox/mailsync/internal/tracing"
	"github.com/unifiedinbox/mailsync/internal/utils"
)

type syncService struct {
	repositories *repository.Repositories
	providers    map[enum.EmailProvider]interfaces.EmailProviderService
	credentials  interfaces.CredentialManager
	publisher    interfaces.EventPublisher
	leases       *leaseRegistry
	timeout      time.Duration
	log          logger.Logger
}

func NewSyncService(
	repositories *repository.Repositories,
	providers map[enum.EmailProvider]interfaces.EmailProviderService,
	credentials interfaces.CredentialManager,
	publisher interfaces.EventPublisher,
	syncCfg *config.SyncConfig,
	log logger.Logger,
) interfaces.SyncService {
	return &syncService{
		repositories: repositories,
		providers:    providers,
		credentials:  credentials,
		publisher:    publisher,
		leases:       newLeaseRegistry(time.Duration(syncCfg.LeaseTTLSeconds) * time.Second),
		timeout:      time.Duration(syncCfg.TimeoutSeconds) * time.Second,
		log:          log,
	}
}

func (s *syncService) SyncAccount(ctx context.Context, accountID string) (*interfaces.SyncResult, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "syncService.SyncAccount")
	defer span.Finish()
	tracing.TagComponentWorker(span)
	tracing.TagAccount(span, accountID)

	if !s.leases.Acquire(accountID) {
		s.log.Debugf("sync for account %s already in progress, skipping", accountID)
		return &interfaces.SyncResult{Status: enum.SyncSkipped, Reason: "sync already in progress"}, nil
	}
	defer s.leases.Release(accountID)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.repositories.AccountRepository.GetByID(ctx, accountID)
	if errors.Is(err, syncerrors.ErrAccountNotFound) {
		s.log.Warnf("account %s not found, skipping sync", accountID)
		return &interfaces.SyncResult{Status: enum.SyncSkipped, Reason: "account not found"}, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return &interfaces.SyncResult{Status: enum.SyncFailed, Reason: err.Error()}, err
	}
	if !account.IsActive {
		return &interfaces.SyncResult{Status: enum.SyncSkipped, Reason: "account inactive"}, nil
	}

	provider, ok := s.providers[account.Provider]
	if !ok {
		err := errors.Wrapf(syncerrors.ErrProviderPermanent, "no provider registered for %s", account.Provider)
		tracing.TraceErr(span, err)
		return &interfaces.SyncResult{Status: enum.SyncFailed, Reason: err.Error()}, err
	}

	accessToken, err := s.credentials.EnsureValid(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return &interfaces.SyncResult{Status: enum.SyncFailed, Reason: err.Error()}, err
	}

	delta, err := s.fetchDelta(ctx, provider, account, accessToken)
	if err != nil {
		tracing.TraceErr(span, err)
		return &interfaces.SyncResult{Status: enum.SyncFailed, Reason: err.Error()}, err
	}

	events, ingested, err := s.ingest(ctx, provider, account, delta)
	if err != nil {
		tracing.TraceErr(span, err)
		return &interfaces.SyncResult{Status: enum.SyncFailed, Reason: err.Error()}, err
	}

	s.publishEvents(ctx, events)

	s.log.Infof("synced account %s: %d new messages (%s)", account.ID, ingested, delta.Mode)
	span.SetTag("messages-ingested", ingested)
	return &interfaces.SyncResult{Status: enum.SyncSuccess, MessagesIngested: ingested}, nil
}

// fetchDelta pulls the provider delta, retrying exactly once after a
// forced refresh when the provider rejects an access token the stored
// expiry still considered valid.
func (s *syncService) fetchDelta(ctx context.Context, provider interfaces.EmailProviderService, account *models.Account, accessToken string) (*interfaces.DeltaResult, error) {
	delta, err := provider.FetchDelta(ctx, accessToken, account.SyncCursor)
	if err == nil || !errors.Is(err, syncerrors.ErrAuthExpired) {
		return delta, err
	}

	s.log.Warnf("provider rejected access token for account %s, forcing refresh", account.ID)
	accessToken, err = s.credentials.Refresh(ctx, account)
	if err != nil {
		return nil, err
	}
	return provider.FetchDelta(ctx, accessToken, account.SyncCursor)
}

// ingest persists the delta's records, the advanced cursor and the sync
// timestamp in a single transaction. A crash mid-batch leaves the old
// cursor in place and the next run re-fetches the same window.
func (s *syncService) ingest(ctx context.Context, provider interfaces.EmailProviderService, account *models.Account, delta *interfaces.DeltaResult) ([]dto.MessageIngestedEvent, int, error) {
	var events []dto.MessageIngestedEvent
	ingested := 0

	err := s.repositories.InTransaction(ctx, func(txRepos *repository.Repositories) error {
		for _, raw := range delta.Records {
			canonical := provider.ParseRecord(raw)
			if canonical.ProviderMessageID == "" {
				s.log.Warnf("skipping record without provider message id for account %s", account.ID)
				continue
			}

			messageID, threadID, created, err := s.persistMessage(ctx, txRepos, account, canonical)
			if err != nil {
				return err
			}
			if !created {
				continue
			}

			ingested++
			events = append(events, dto.MessageIngestedEvent{
				EventID:           utils.GenerateNanoIDWithPrefix("evt", 16),
				AccountID:         account.ID,
				Provider:          account.Provider,
				ThreadID:          threadID,
				MessageID:         messageID,
				ProviderMessageID: canonical.ProviderMessageID,
				Subject:           canonical.Subject,
				IngestedAt:        utils.Now(),
			})
		}

		return txRepos.AccountRepository.SaveSyncState(ctx, account.ID, delta.NextCursor, utils.Now())
	})
	if err != nil {
		return nil, 0, err
	}

	account.SyncCursor = delta.NextCursor
	return events, ingested, nil
}

// persistMessage stores one canonical message under its thread. Returns
// created=false when the message already exists, which is the normal
// outcome for overlapping fetch windows. The existence check runs before
// any insert so a replayed message never raises a constraint error inside
// the open transaction.
func (s *syncService) persistMessage(ctx context.Context, txRepos *repository.Repositories, account *models.Account, canonical interfaces.CanonicalMessage) (messageID, threadID string, created bool, err error) {
	exists, err := txRepos.MessageRepository.ExistsByProviderMessageID(ctx, canonical.ProviderMessageID)
	if err != nil {
		return "", "", false, err
	}
	if exists {
		return "", "", false, nil
	}

	thread, err := s.resolveThread(ctx, txRepos, account, canonical)
	if err != nil {
		return "", "", false, err
	}

	message := &models.Message{
		ThreadID:          thread.ID,
		ProviderMessageID: canonical.ProviderMessageID,
		FromAddress:       canonical.From,
		ToAddresses:       canonical.To,
		CcAddresses:       canonical.Cc,
		BccAddresses:      canonical.Bcc,
		Subject:           canonical.Subject,
		Date:              utils.TimePtr(canonical.Date),
		BodyText:          canonical.BodyText,
		BodyHTML:          canonical.BodyHTML,
		HasAttachments:    canonical.HasAttachments,
	}

	// Backstop for the race between the existence check and the insert:
	// the conflict clause reports the duplicate without erroring the tx.
	messageID, err = txRepos.MessageRepository.Create(ctx, message)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "", thread.ID, false, nil
	}
	if err != nil {
		return "", "", false, err
	}

	for _, att := range canonical.Attachments {
		attachment := &models.Attachment{
			MessageID:            messageID,
			Filename:             att.Filename,
			MimeType:             att.MimeType,
			Size:                 att.Size,
			ProviderAttachmentID: att.ProviderAttachmentID,
		}
		if _, err := txRepos.AttachmentRepository.Create(ctx, attachment); err != nil {
			return "", "", false, err
		}
	}

	if err := s.advanceThread(ctx, txRepos, thread, canonical); err != nil {
		return "", "", false, err
	}
	return messageID, thread.ID, true, nil
}

func (s *syncService) resolveThread(ctx context.Context, txRepos *repository.Repositories, account *models.Account, canonical interfaces.CanonicalMessage) (*models.Thread, error) {
	thread, err := txRepos.ThreadRepository.GetByProviderThreadID(ctx, account.ID, canonical.ProviderThreadID)
	if err != nil {
		return nil, err
	}
	if thread != nil {
		return thread, nil
	}

	thread = &models.Thread{
		AccountID:        account.ID,
		ProviderThreadID: canonical.ProviderThreadID,
		Subject:          utils.NormalizeEmailSubject(canonical.Subject),
		Snippet:          canonical.Snippet,
		LastMessageAt:    utils.TimePtr(canonical.Date),
	}
	if _, err := txRepos.ThreadRepository.Create(ctx, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// advanceThread moves the thread's last-message marker forward, never
// backward. The snippet follows the marker so it always shows the latest
// message even when the batch arrives out of order.
func (s *syncService) advanceThread(ctx context.Context, txRepos *repository.Repositories, thread *models.Thread, canonical interfaces.CanonicalMessage) error {
	if thread.LastMessageAt != nil && !thread.LastMessageAt.Before(canonical.Date) {
		return nil
	}
	thread.LastMessageAt = utils.TimePtr(utils.MaxTime(thread.LastMessageAt, canonical.Date))
	thread.Snippet = canonical.Snippet
	return txRepos.ThreadRepository.Update(ctx, thread)
}

func (s *syncService) publishEvents(ctx context.Context, events []dto.MessageIngestedEvent) {
	if s.publisher == nil {
		return
	}
	for _, event := range events {
		if err := s.publisher.PublishMessageIngested(ctx, event); err != nil {
			s.log.Errorf("failed to publish ingestion event for message %s: %v", event.MessageID, err)
		}
	}
}
