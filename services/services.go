package services

import (
	"github.com/unifiedinbox/mailsync/config"
	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/crypto"
	"github.com/unifiedinbox/mailsync/internal/enum"
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/repository"
	"github.com/unifiedinbox/mailsync/services/auth"
	"github.com/unifiedinbox/mailsync/services/events"
	"github.com/unifiedinbox/mailsync/services/gmail"
	"github.com/unifiedinbox/mailsync/services/outlook"
	syncservice "github.com/unifiedinbox/mailsync/services/sync"
)

// Services wires every business-layer component behind its interface.
type Services struct {
	Providers      map[enum.EmailProvider]interfaces.EmailProviderService
	Cipher         interfaces.TokenCipher
	StateStore     *auth.StateStore
	Credentials    interfaces.CredentialManager
	EventPublisher interfaces.EventPublisher
	SyncService    interfaces.SyncService
	SyncScheduler  interfaces.SyncScheduler
}

func InitServices(cfg *config.Config, repositories *repository.Repositories, log logger.Logger) (*Services, error) {
	cipher, err := crypto.NewTokenCipher(cfg.Crypto.EncryptionKey)
	if err != nil {
		return nil, err
	}

	providers := map[enum.EmailProvider]interfaces.EmailProviderService{
		enum.ProviderGmail:   gmail.NewGmailService(cfg.GoogleOAuth, cfg.Sync, log),
		enum.ProviderOutlook: outlook.NewOutlookService(cfg.MicrosoftOAuth, cfg.Sync, log),
	}

	credentials := auth.NewCredentialManager(providers, repositories.AccountRepository, cipher, cfg.Sync, log)

	// The broker is optional in local setups. Syncing still works without
	// it, ingestion events are just not published.
	var publisher interfaces.EventPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		publisher, err = events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, nil)
		if err != nil {
			return nil, err
		}
	}

	syncSvc := syncservice.NewSyncService(repositories, providers, credentials, publisher, cfg.Sync, log)
	scheduler := syncservice.NewSyncScheduler(syncSvc, cfg.Sync, log)

	return &Services{
		Providers:      providers,
		Cipher:         cipher,
		StateStore:     auth.NewStateStore(),
		Credentials:    credentials,
		EventPublisher: publisher,
		SyncService:    syncSvc,
		SyncScheduler:  scheduler,
	}, nil
}
