package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/unifiedinbox/mailsync/internal/enum"
	"github.com/unifiedinbox/mailsync/internal/utils"
)

// Account is a connected external mailbox. Credential fields are mutated
// only by the credential manager; cursor, last-synced and the
// active-on-failure flag only by the ingestion pipeline.
type Account struct {
	ID           string             `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	UserID       string             `gorm:"column:user_id;type:varchar(50);index;not null" json:"userId"`
	Provider     enum.EmailProvider `gorm:"column:provider;type:varchar(50);index;not null" json:"provider"`
	EmailAddress string             `gorm:"column:email_address;type:varchar(255);index;not null" json:"emailAddress"`
	DisplayName  string             `gorm:"column:display_name;type:varchar(255)" json:"displayName"`

	// Credentials. The access token is short-lived plaintext; the refresh
	// token is stored only as ciphertext.
	AccessToken           string     `gorm:"column:access_token;type:text" json:"-"`
	EncryptedRefreshToken string     `gorm:"column:encrypted_refresh_token;type:text" json:"-"`
	TokenExpiry           *time.Time `gorm:"column:token_expiry;type:timestamp" json:"-"`

	SyncCursor   SyncCursor `gorm:"column:sync_cursor;type:jsonb" json:"-"`
	LastSyncedAt *time.Time `gorm:"column:last_synced_at;type:timestamp" json:"lastSyncedAt"`
	IsActive     bool       `gorm:"column:is_active;default:true" json:"isActive"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	a.CreatedAt = utils.Now()
	return nil
}
