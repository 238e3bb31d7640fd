package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/unifiedinbox/mailsync/interfaces"
	syncerrors "github.com/unifiedinbox/mailsync/internal/errors"
	"github.com/unifiedinbox/mailsync/internal/models"
	"github.com/unifiedinbox/mailsync/internal/tracing"
	"github.com/unifiedinbox/mailsync/internal/utils"
)

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) interfaces.AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if account == nil {
		err := errors.New("account cannot be nil")
		tracing.TraceErr(span, err)
		return "", err
	}
	if account.ID == "" {
		account.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}

	now := utils.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return account.ID, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, id)

	var account models.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, syncerrors.ErrAccountNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByEmailAddress(ctx context.Context, userID, emailAddress string) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.GetByEmailAddress")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var account models.Account
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND email_address = ?", userID, emailAddress).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) ListByUser(ctx context.Context, userID string) ([]*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.ListByUser")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []*models.Account
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&accounts).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) ListActive(ctx context.Context) ([]*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.ListActive")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []*models.Account
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&accounts).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepository) Update(ctx context.Context, account *models.Account) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if account == nil || account.ID == "" {
		err := errors.New("account with ID is required")
		tracing.TraceErr(span, err)
		return err
	}

	account.UpdatedAt = utils.Now()
	if err := r.db.WithContext(ctx).Save(account).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *accountRepository) UpdateTokens(ctx context.Context, id, accessToken, encryptedRefreshToken string, expiry *time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.UpdateTokens")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, id)

	updates := map[string]interface{}{
		"access_token": accessToken,
		"token_expiry": expiry,
		"updated_at":   utils.Now(),
	}
	// The refresh token rotates only when the provider issued a new one.
	if encryptedRefreshToken != "" {
		updates["encrypted_refresh_token"] = encryptedRefreshToken
	}

	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return syncerrors.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) SetActive(ctx context.Context, id string, active bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.SetActive")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, id)
	span.SetTag("active", active)

	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return syncerrors.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) SaveSyncState(ctx context.Context, id string, cursor models.SyncCursor, syncedAt time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.SaveSyncState")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, id)

	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_cursor":    cursor,
			"last_synced_at": syncedAt,
			"updated_at":     utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return syncerrors.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, id)

	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Account{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return syncerrors.ErrAccountNotFound
	}
	return nil
}
