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

type threadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) interfaces.ThreadRepository {
	return &threadRepository{db: db}
}

func (r *threadRepository) Create(ctx context.Context, thread *models.Thread) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if thread == nil {
		err := errors.New("thread cannot be nil")
		tracing.TraceErr(span, err)
		return "", err
	}
	if thread.AccountID == "" || thread.ProviderThreadID == "" {
		err := errors.New("thread requires account ID and provider thread ID")
		tracing.TraceErr(span, err)
		return "", err
	}

	if thread.ID == "" {
		thread.ID = utils.GenerateNanoIDWithPrefix("thrd", 16)
	}
	now := utils.Now()
	thread.CreatedAt = now
	thread.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(thread).Error; err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return thread.ID, nil
}

func (r *threadRepository) GetByID(ctx context.Context, id string) (*models.Thread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("thread_id", id)

	var thread models.Thread
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &thread, nil
}

func (r *threadRepository) GetByProviderThreadID(ctx context.Context, accountID, providerThreadID string) (*models.Thread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.GetByProviderThreadID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	var thread models.Thread
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND provider_thread_id = ?", accountID, providerThreadID).
		First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &thread, nil
}

func (r *threadRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.Thread, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.ListByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var threads []*models.Thread
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("last_message_at DESC NULLS LAST").
		Limit(limit).
		Offset(offset).
		Find(&threads).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return threads, nil
}

func (r *threadRepository) Update(ctx context.Context, thread *models.Thread) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if thread == nil || thread.ID == "" {
		err := errors.New("thread with ID is required")
		tracing.TraceErr(span, err)
		return err
	}

	thread.UpdatedAt = utils.Now()
	if err := r.db.WithContext(ctx).Save(thread).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *threadRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "threadRepository.CountByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Thread{}).
		Where("account_id = ?", accountID).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}
