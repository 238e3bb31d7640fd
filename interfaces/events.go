package interfaces

import (
	"context"

	"github.com/unifiedinbox/mailsync/dto"
)

// EventPublisher pushes ingestion events to the message broker. Publishing
// is best effort: a broker outage never fails a sync.
type EventPublisher interface {
	PublishMessageIngested(ctx context.Context, event dto.MessageIngestedEvent) error
	Close() error
}
