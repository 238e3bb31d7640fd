package interfaces

import (
	"context"

	"github.com/unifiedinbox/mailsync/internal/models"
)

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) (string, error)
	GetByID(ctx context.Context, id string) (*models.Message, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error)
	ExistsByProviderMessageID(ctx context.Context, providerMessageID string) (bool, error)
	ListByThread(ctx context.Context, threadID string) ([]*models.Message, error)
	SetRead(ctx context.Context, id string, read bool) error
	CountByThread(ctx context.Context, threadID string) (int64, error)
}

type AttachmentRepository interface {
	Create(ctx context.Context, attachment *models.Attachment) (string, error)
	ListByMessage(ctx context.Context, messageID string) ([]*models.Attachment, error)
}
