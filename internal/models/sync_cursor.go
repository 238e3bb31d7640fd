package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/unifiedinbox/mailsync/internal/enum"
)

// SyncCursor is the provider-typed resume token stored on an account. The
// ingestion pipeline stores and hands it back without inspecting it; each
// adapter reads only its own field.
type SyncCursor struct {
	Provider         enum.EmailProvider `json:"provider"`
	GmailHistoryID   string             `json:"historyId,omitempty"`
	OutlookDeltaLink string             `json:"deltaLink,omitempty"`
}

func (c SyncCursor) IsZero() bool {
	return c.GmailHistoryID == "" && c.OutlookDeltaLink == ""
}

// Value implements driver.Valuer so the cursor persists as a jsonb column.
func (c SyncCursor) Value() (driver.Value, error) {
	if c.IsZero() {
		return nil, nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *SyncCursor) Scan(value interface{}) error {
	if value == nil {
		*c = SyncCursor{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.Errorf("unsupported sync cursor column type %T", value)
	}

	if len(raw) == 0 {
		*c = SyncCursor{}
		return nil
	}
	return json.Unmarshal(raw, c)
}
