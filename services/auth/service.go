package auth

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/unifiedinbox/mailsync/config"
	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/enum"
	syncerrors "github.com/unifiedinbox/mailsync/internal/errors"
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/models"
	"github.com/unifiedinbox/mailsync/internal/tracing"
	"github.com/unifiedinbox/mailsync/internal/utils"
)

type credentialManager struct {
	providers    map[enum.EmailProvider]interfaces.EmailProviderService
	accountRepo  interfaces.AccountRepository
	cipher       interfaces.TokenCipher
	safetyMargin time.Duration
	log          logger.Logger
}

func NewCredentialManager(
	providers map[enum.EmailProvider]interfaces.EmailProviderService,
	accountRepo interfaces.AccountRepository,
	cipher interfaces.TokenCipher,
	syncCfg *config.SyncConfig,
	log logger.Logger,
) interfaces.CredentialManager {
	return &credentialManager{
		providers:    providers,
		accountRepo:  accountRepo,
		cipher:       cipher,
		safetyMargin: time.Duration(syncCfg.TokenSafetyMarginSecs) * time.Second,
		log:          log,
	}
}

func (m *credentialManager) EnsureValid(ctx context.Context, account *models.Account) (string, error) {
	if account.AccessToken != "" && account.TokenExpiry != nil &&
		account.TokenExpiry.After(utils.Now().Add(m.safetyMargin)) {
		return account.AccessToken, nil
	}
	return m.Refresh(ctx, account)
}

func (m *credentialManager) Refresh(ctx context.Context, account *models.Account) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "credentialManager.Refresh")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, account.ID)

	provider, ok := m.providers[account.Provider]
	if !ok {
		err := errors.Wrapf(syncerrors.ErrProviderPermanent, "no provider registered for %s", account.Provider)
		tracing.TraceErr(span, err)
		return "", err
	}

	if account.EncryptedRefreshToken == "" {
		err := errors.Wrapf(syncerrors.ErrMissingCredential, "account %s has no refresh token", account.ID)
		tracing.TraceErr(span, err)
		m.deactivate(ctx, account, "missing refresh token")
		return "", err
	}

	refreshToken, err := m.cipher.Decrypt(account.EncryptedRefreshToken)
	if err != nil {
		tracing.TraceErr(span, err)
		m.deactivate(ctx, account, "refresh token undecryptable")
		return "", err
	}

	credential, err := provider.RefreshCredential(ctx, refreshToken)
	if err != nil {
		tracing.TraceErr(span, err)
		if errors.Is(err, syncerrors.ErrAuthExpired) {
			m.deactivate(ctx, account, "refresh token rejected")
		}
		return "", err
	}

	// Providers rotate refresh tokens at their own discretion. Only replace
	// the stored one when a new value actually came back.
	encryptedRefresh := ""
	if credential.RefreshToken != "" {
		encryptedRefresh, err = m.cipher.Encrypt(credential.RefreshToken)
		if err != nil {
			tracing.TraceErr(span, err)
			return "", err
		}
	}

	expiry := credential.ExpiresAt
	if err := m.accountRepo.UpdateTokens(ctx, account.ID, credential.AccessToken, encryptedRefresh, &expiry); err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	account.AccessToken = credential.AccessToken
	account.TokenExpiry = &expiry
	if encryptedRefresh != "" {
		account.EncryptedRefreshToken = encryptedRefresh
	}

	m.log.Infof("refreshed credentials for account %s", account.ID)
	return credential.AccessToken, nil
}

func (m *credentialManager) deactivate(ctx context.Context, account *models.Account, reason string) {
	m.log.Warnf("deactivating account %s: %s", account.ID, reason)
	if err := m.accountRepo.SetActive(ctx, account.ID, false); err != nil {
		m.log.Errorf("failed to deactivate account %s: %v", account.ID, err)
	}
	account.IsActive = false
}
