package interfaces

import (
	"context"

	"github.com/unifiedinbox/mailsync/internal/models"
)

type ThreadRepository interface {
	Create(ctx context.Context, thread *models.Thread) (string, error)
	GetByID(ctx context.Context, id string) (*models.Thread, error)
	GetByProviderThreadID(ctx context.Context, accountID, providerThreadID string) (*models.Thread, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.Thread, error)
	Update(ctx context.Context, thread *models.Thread) error
	CountByAccount(ctx context.Context, accountID string) (int64, error)
}
