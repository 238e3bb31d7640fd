package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/models"
	"github.com/unifiedinbox/mailsync/internal/tracing"
	"github.com/unifiedinbox/mailsync/internal/utils"
)

type attachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) interfaces.AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *models.Attachment) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachmentRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if attachment == nil {
		err := errors.New("attachment cannot be nil")
		tracing.TraceErr(span, err)
		return "", err
	}
	if attachment.MessageID == "" {
		err := errors.New("attachment requires a message ID")
		tracing.TraceErr(span, err)
		return "", err
	}

	if attachment.ID == "" {
		attachment.ID = utils.GenerateNanoIDWithPrefix("file", 12)
	}
	now := utils.Now()
	attachment.CreatedAt = now
	attachment.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(attachment).Error; err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return attachment.ID, nil
}

func (r *attachmentRepository) ListByMessage(ctx context.Context, messageID string) ([]*models.Attachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachmentRepository.ListByMessage")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("message_id", messageID)

	var attachments []*models.Attachment
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&attachments).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return attachments, nil
}
