package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/unifiedinbox/mailsync/internal/utils"
)

// Message is one mail item. ProviderMessageID is globally unique and is
// the idempotency key for the entire ingestion pipeline. Immutable after
// creation except IsRead, which only the API layer flips.
type Message struct {
	ID                string         `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	ThreadID          string         `gorm:"column:thread_id;type:varchar(50);index;not null" json:"threadId"`
	ProviderMessageID string         `gorm:"column:provider_message_id;type:varchar(255);uniqueIndex;not null" json:"providerMessageId"`
	FromAddress       string         `gorm:"column:from_address;type:varchar(255);index" json:"fromAddress"`
	ToAddresses       pq.StringArray `gorm:"column:to_addresses;type:text[]" json:"toAddresses"`
	CcAddresses       pq.StringArray `gorm:"column:cc_addresses;type:text[]" json:"ccAddresses"`
	BccAddresses      pq.StringArray `gorm:"column:bcc_addresses;type:text[]" json:"bccAddresses"`
	Subject           string         `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	Date              *time.Time     `gorm:"column:date;type:timestamp;index" json:"date"`
	BodyText          string         `gorm:"column:body_text;type:text" json:"bodyText"`
	BodyHTML          string         `gorm:"column:body_html;type:text" json:"bodyHtml"`
	HasAttachments    bool           `gorm:"column:has_attachments;default:false" json:"hasAttachments"`
	IsRead            bool           `gorm:"column:is_read;default:false" json:"isRead"`
	CreatedAt         time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("email", 24)
	}
	m.CreatedAt = utils.Now()
	return nil
}
