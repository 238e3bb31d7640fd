package interfaces

import (
	"context"
	"time"

	"github.com/unifiedinbox/mailsync/internal/enum"
	"github.com/unifiedinbox/mailsync/internal/models"
)

// Credential is a short-lived provider access credential. RefreshToken is
// only present when the provider issued a new one.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// RawRecord is one unparsed provider message. Its concrete type is owned by
// the adapter that produced it.
type RawRecord interface{}

// DeltaResult is the outcome of one fetch against a provider. A stale
// cursor is handled inside the adapter: it falls back to a full fetch and
// reports Mode full, with the same shape.
type DeltaResult struct {
	Records    []RawRecord
	NextCursor models.SyncCursor
	Mode       enum.FetchMode
}

// CanonicalMessage is the provider-agnostic shape produced by ParseRecord.
type CanonicalMessage struct {
	ProviderMessageID string
	ProviderThreadID  string
	From              string
	To                []string
	Cc                []string
	Bcc               []string
	Subject           string
	Date              time.Time
	BodyText          string
	BodyHTML          string
	Snippet           string
	Attachments       []CanonicalAttachment
	HasAttachments    bool
}

type CanonicalAttachment struct {
	Filename             string
	MimeType             string
	Size                 int
	ProviderAttachmentID string
}

// EmailDraft is an outgoing message handed to SendMessage.
type EmailDraft struct {
	To         []string
	Subject    string
	BodyText   string
	BodyHTML   string
	InReplyTo  string
	References string
}

type SendResult struct {
	ProviderMessageID string
}

// Profile identifies the mailbox behind a credential.
type Profile struct {
	EmailAddress string
	DisplayName  string
}

// EmailProviderService is the polymorphic boundary to one external mail
// API. Implementations exist per provider in the closed set
// {gmail, outlook}.
type EmailProviderService interface {
	Provider() enum.EmailProvider

	// AuthorizeURL builds the OAuth authorization redirect. Pure.
	AuthorizeURL(state string) string

	// ExchangeCode trades an authorization code for tokens. A non-2xx
	// upstream response surfaces as ErrAuthExchange.
	ExchangeCode(ctx context.Context, code string) (*Credential, error)

	// RefreshCredential obtains a fresh access token. A revoked or invalid
	// refresh token surfaces as ErrAuthExpired and is terminal.
	RefreshCredential(ctx context.Context, refreshToken string) (*Credential, error)

	// GetProfile returns the mailbox identity for a credential.
	GetProfile(ctx context.Context, accessToken string) (*Profile, error)

	// FetchDelta fetches changes since cursor, or a full window when the
	// cursor is zero or no longer honored upstream.
	FetchDelta(ctx context.Context, accessToken string, cursor models.SyncCursor) (*DeltaResult, error)

	// ParseRecord normalizes one raw record. Total: missing optional
	// fields default to empty values and an unparsable date falls back to
	// the ingestion clock.
	ParseRecord(raw RawRecord) CanonicalMessage

	// SendMessage sends a draft through the provider.
	SendMessage(ctx context.Context, accessToken string, draft EmailDraft) (*SendResult, error)
}
