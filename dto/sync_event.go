package dto

import (
	"time"

	"github.com/unifiedinbox/mailsync/internal/enum"
)

// MessageIngestedEvent is published once per newly persisted message.
type MessageIngestedEvent struct {
	EventID           string             `json:"eventId"`
	AccountID         string             `json:"accountId"`
	Provider          enum.EmailProvider `json:"provider"`
	ThreadID          string             `json:"threadId"`
	MessageID         string             `json:"messageId"`
	ProviderMessageID string             `json:"providerMessageId"`
	Subject           string             `json:"subject"`
	IngestedAt        time.Time          `json:"ingestedAt"`
}
