package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/unifiedinbox/mailsync/internal/utils"
)

// Thread is a provider-side conversation, unique per account and provider
// thread id. LastMessageAt is monotonically non-decreasing.
type Thread struct {
	ID               string     `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID        string     `gorm:"column:account_id;type:varchar(50);uniqueIndex:idx_threads_account_provider_thread;not null" json:"accountId"`
	ProviderThreadID string     `gorm:"column:provider_thread_id;type:varchar(255);uniqueIndex:idx_threads_account_provider_thread;not null" json:"providerThreadId"`
	Subject          string     `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	Snippet          string     `gorm:"column:snippet;type:text" json:"snippet"`
	LastMessageAt    *time.Time `gorm:"column:last_message_at;type:timestamp;index" json:"lastMessageAt"`
	CreatedAt        time.Time  `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Thread) TableName() string {
	return "threads"
}

func (t *Thread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("thrd", 16)
	}
	t.CreatedAt = utils.Now()
	return nil
}
