package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedinbox/mailsync/config"
	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/enum"
	syncerrors "github.com/unifiedinbox/mailsync/internal/errors"
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/models"
	"github.com/unifiedinbox/mailsync/internal/utils"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

type fakeCipher struct{}

func (fakeCipher) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (fakeCipher) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, "enc:") {
		return "", errors.Wrap(syncerrors.ErrKeyMismatch, "bad ciphertext")
	}
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

type fakeAccountRepo struct {
	interfaces.AccountRepository

	updatedAccess  string
	updatedRefresh string
	deactivated    bool
}

func (f *fakeAccountRepo) UpdateTokens(ctx context.Context, id, accessToken, encryptedRefreshToken string, expiry *time.Time) error {
	f.updatedAccess = accessToken
	f.updatedRefresh = encryptedRefreshToken
	return nil
}

func (f *fakeAccountRepo) SetActive(ctx context.Context, id string, active bool) error {
	f.deactivated = !active
	return nil
}

type fakeProvider struct {
	interfaces.EmailProviderService

	refreshResult *interfaces.Credential
	refreshErr    error
	refreshCalls  int
}

func (f *fakeProvider) Provider() enum.EmailProvider { return enum.ProviderGmail }

func (f *fakeProvider) RefreshCredential(ctx context.Context, refreshToken string) (*interfaces.Credential, error) {
	f.refreshCalls++
	return f.refreshResult, f.refreshErr
}

func newManager(provider *fakeProvider, repo *fakeAccountRepo) interfaces.CredentialManager {
	providers := map[enum.EmailProvider]interfaces.EmailProviderService{
		enum.ProviderGmail: provider,
	}
	cfg := &config.SyncConfig{TokenSafetyMarginSecs: 120}
	return NewCredentialManager(providers, repo, fakeCipher{}, cfg, getLogger())
}

func validAccount() *models.Account {
	return &models.Account{
		ID:                    "acct_test1",
		Provider:              enum.ProviderGmail,
		AccessToken:           "stored-access",
		EncryptedRefreshToken: "enc:stored-refresh",
		TokenExpiry:           utils.TimePtr(utils.Now().Add(time.Hour)),
		IsActive:              true,
	}
}

func TestEnsureValid_UsesStoredTokenBeforeExpiry(t *testing.T) {
	provider := &fakeProvider{}
	manager := newManager(provider, &fakeAccountRepo{})

	token, err := manager.EnsureValid(context.Background(), validAccount())
	require.NoError(t, err)
	assert.Equal(t, "stored-access", token)
	assert.Zero(t, provider.refreshCalls)
}

func TestEnsureValid_RefreshesNearExpiry(t *testing.T) {
	provider := &fakeProvider{
		refreshResult: &interfaces.Credential{
			AccessToken: "fresh-access",
			ExpiresAt:   utils.Now().Add(time.Hour),
		},
	}
	repo := &fakeAccountRepo{}
	manager := newManager(provider, repo)

	account := validAccount()
	account.TokenExpiry = utils.TimePtr(utils.Now().Add(30 * time.Second))

	token, err := manager.EnsureValid(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", token)
	assert.Equal(t, 1, provider.refreshCalls)
	assert.Equal(t, "fresh-access", repo.updatedAccess)
	assert.Equal(t, "fresh-access", account.AccessToken)
}

func TestRefresh_KeepsStoredRefreshTokenWithoutRotation(t *testing.T) {
	provider := &fakeProvider{
		refreshResult: &interfaces.Credential{
			AccessToken: "fresh-access",
			ExpiresAt:   utils.Now().Add(time.Hour),
		},
	}
	repo := &fakeAccountRepo{}
	manager := newManager(provider, repo)

	account := validAccount()
	_, err := manager.Refresh(context.Background(), account)
	require.NoError(t, err)

	// no new refresh token came back, so nothing to overwrite
	assert.Empty(t, repo.updatedRefresh)
	assert.Equal(t, "enc:stored-refresh", account.EncryptedRefreshToken)
}

func TestRefresh_StoresRotatedRefreshToken(t *testing.T) {
	provider := &fakeProvider{
		refreshResult: &interfaces.Credential{
			AccessToken:  "fresh-access",
			RefreshToken: "rotated-refresh",
			ExpiresAt:    utils.Now().Add(time.Hour),
		},
	}
	repo := &fakeAccountRepo{}
	manager := newManager(provider, repo)

	account := validAccount()
	_, err := manager.Refresh(context.Background(), account)
	require.NoError(t, err)

	assert.Equal(t, "enc:rotated-refresh", repo.updatedRefresh)
	assert.Equal(t, "enc:rotated-refresh", account.EncryptedRefreshToken)
}

func TestRefresh_RevokedTokenDeactivatesAccount(t *testing.T) {
	provider := &fakeProvider{
		refreshErr: errors.Wrap(syncerrors.ErrAuthExpired, "invalid_grant"),
	}
	repo := &fakeAccountRepo{}
	manager := newManager(provider, repo)

	account := validAccount()
	_, err := manager.Refresh(context.Background(), account)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncerrors.ErrAuthExpired))
	assert.True(t, repo.deactivated)
	assert.False(t, account.IsActive)
}

func TestRefresh_TransientErrorKeepsAccountActive(t *testing.T) {
	provider := &fakeProvider{
		refreshErr: errors.Wrap(syncerrors.ErrProviderTransient, "503"),
	}
	repo := &fakeAccountRepo{}
	manager := newManager(provider, repo)

	account := validAccount()
	_, err := manager.Refresh(context.Background(), account)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncerrors.ErrProviderTransient))
	assert.False(t, repo.deactivated)
	assert.True(t, account.IsActive)
}

func TestRefresh_MissingRefreshTokenDeactivates(t *testing.T) {
	provider := &fakeProvider{}
	repo := &fakeAccountRepo{}
	manager := newManager(provider, repo)

	account := validAccount()
	account.EncryptedRefreshToken = ""

	_, err := manager.Refresh(context.Background(), account)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncerrors.ErrMissingCredential))
	assert.True(t, repo.deactivated)
	assert.Zero(t, provider.refreshCalls)
}

func TestRefresh_UndecryptableTokenDeactivates(t *testing.T) {
	provider := &fakeProvider{}
	repo := &fakeAccountRepo{}
	manager := newManager(provider, repo)

	account := validAccount()
	account.EncryptedRefreshToken = "ciphertext-from-old-key"

	_, err := manager.Refresh(context.Background(), account)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syncerrors.ErrKeyMismatch))
	assert.True(t, repo.deactivated)
	assert.Zero(t, provider.refreshCalls)
}
