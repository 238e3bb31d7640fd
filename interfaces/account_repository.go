package interfaces

import (
	"context"
	"time"

	"github.com/unifiedinbox/mailsync/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) (string, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmailAddress(ctx context.Context, userID, emailAddress string) (*models.Account, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Account, error)
	ListActive(ctx context.Context) ([]*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	UpdateTokens(ctx context.Context, id, accessToken, encryptedRefreshToken string, expiry *time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	SaveSyncState(ctx context.Context, id string, cursor models.SyncCursor, syncedAt time.Time) error
	Delete(ctx context.Context, id string) error
}
