package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/models"
	"github.com/unifiedinbox/mailsync/internal/tracing"
	"github.com/unifiedinbox/mailsync/internal/utils"
)

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) interfaces.MessageRepository {
	return &messageRepository{db: db}
}

// Create inserts a message. The insert carries ON CONFLICT DO NOTHING on
// provider_message_id so a concurrent ingestion of the same message never
// aborts the surrounding transaction; the zero-rows outcome is reported as
// gorm.ErrDuplicatedKey and callers treat it as a benign no-op.
func (r *messageRepository) Create(ctx context.Context, message *models.Message) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if message == nil {
		err := errors.New("message cannot be nil")
		tracing.TraceErr(span, err)
		return "", err
	}
	if message.ProviderMessageID == "" {
		err := errors.New("message requires a provider message ID")
		tracing.TraceErr(span, err)
		return "", err
	}

	if message.ID == "" {
		message.ID = utils.GenerateNanoIDWithPrefix("email", 24)
	}
	now := utils.Now()
	message.CreatedAt = now
	message.UpdatedAt = now

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_message_id"}},
			DoNothing: true,
		}).
		Create(message)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", gorm.ErrDuplicatedKey
	}
	return message.ID, nil
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var message models.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetByProviderMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var message models.Message
	err := r.db.WithContext(ctx).
		Where("provider_message_id = ?", providerMessageID).
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) ExistsByProviderMessageID(ctx context.Context, providerMessageID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.ExistsByProviderMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("provider_message_id = ?", providerMessageID).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	return count > 0, nil
}

func (r *messageRepository) ListByThread(ctx context.Context, threadID string) ([]*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.ListByThread")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("thread_id", threadID)

	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("date ASC").
		Find(&messages).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) SetRead(ctx context.Context, id string, read bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.SetRead")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_read":    read,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.Errorf("message with ID %s not found", id)
	}
	return nil
}

func (r *messageRepository) CountByThread(ctx context.Context, threadID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.CountByThread")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("thread_id = ?", threadID).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}
