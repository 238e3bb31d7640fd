package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/unifiedinbox/mailsync/internal/utils"
)

// Attachment holds metadata only. Content stays with the provider and is
// fetched on demand by the API layer, never during sync.
type Attachment struct {
	ID                   string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	MessageID            string    `gorm:"column:message_id;type:varchar(50);index;not null" json:"messageId"`
	Filename             string    `gorm:"column:filename;type:varchar(500)" json:"filename"`
	MimeType             string    `gorm:"column:mime_type;type:varchar(255)" json:"mimeType"`
	Size                 int       `gorm:"column:size;default:0" json:"size"`
	ProviderAttachmentID string    `gorm:"column:provider_attachment_id;type:varchar(500);not null" json:"providerAttachmentId"`
	CreatedAt            time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt            time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Attachment) TableName() string {
	return "attachments"
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("file", 12)
	}
	a.CreatedAt = utils.Now()
	return nil
}
