package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/unifiedinbox/mailsync/config"
	"github.com/unifiedinbox/mailsync/internal/enum"
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/models"
	"github.com/unifiedinbox/mailsync/internal/utils"
)

func testService() *gmailService {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	svc := NewGmailService(
		&config.GoogleOAuthConfig{ClientID: "id", ClientSecret: "secret", RedirectURI: "http://localhost/cb"},
		&config.SyncConfig{MaxMessagesPerAccount: 50},
		appLogger,
	)
	return svc.(*gmailService)
}

func b64url(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestParseRecord_FullMessage(t *testing.T) {
	svc := testService()

	message := &gmailapi.Message{
		Id:           "msg-1",
		ThreadId:     "thread-1",
		Snippet:      "Hi there",
		InternalDate: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC).UnixMilli(),
		Payload: &gmailapi.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "From", Value: "alice@example.com"},
				{Name: "To", Value: "bob@example.com, carol@example.com"},
				{Name: "Cc", Value: "dave@example.com"},
				{Name: "Subject", Value: "Lunch?"},
				{Name: "Date", Value: "Sat, 14 Mar 2026 09:26:53 +0000"},
			},
			Parts: []*gmailapi.MessagePart{
				{MimeType: "text/plain", Body: &gmailapi.MessagePartBody{Data: b64url("plain body")}},
				{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: b64url("<p>html body</p>")}},
			},
		},
	}

	canonical := svc.ParseRecord(message)

	assert.Equal(t, "msg-1", canonical.ProviderMessageID)
	assert.Equal(t, "thread-1", canonical.ProviderThreadID)
	assert.Equal(t, "alice@example.com", canonical.From)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, canonical.To)
	assert.Equal(t, []string{"dave@example.com"}, canonical.Cc)
	assert.Equal(t, "Lunch?", canonical.Subject)
	assert.Equal(t, 2026, canonical.Date.Year())
	assert.Equal(t, "plain body", canonical.BodyText)
	assert.Equal(t, "<p>html body</p>", canonical.BodyHTML)
	assert.Equal(t, "Hi there", canonical.Snippet)
	assert.False(t, canonical.HasAttachments)
}

func TestParseRecord_Attachments(t *testing.T) {
	svc := testService()

	message := &gmailapi.Message{
		Id:       "msg-2",
		ThreadId: "thread-2",
		Payload: &gmailapi.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmailapi.MessagePart{
				{MimeType: "text/plain", Body: &gmailapi.MessagePartBody{Data: b64url("see attached")}},
				{
					MimeType: "application/pdf",
					Filename: "report.pdf",
					Body:     &gmailapi.MessagePartBody{AttachmentId: "att-1", Size: 1024},
				},
			},
		},
	}

	canonical := svc.ParseRecord(message)

	require.Len(t, canonical.Attachments, 1)
	assert.Equal(t, "report.pdf", canonical.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", canonical.Attachments[0].MimeType)
	assert.Equal(t, "att-1", canonical.Attachments[0].ProviderAttachmentID)
	assert.True(t, canonical.HasAttachments)
}

func TestParseRecord_UnpaddedBase64Body(t *testing.T) {
	svc := testService()

	// Gmail frequently returns base64url without padding
	raw := base64.RawURLEncoding.EncodeToString([]byte("unpadded body"))
	message := &gmailapi.Message{
		Id:       "msg-3",
		ThreadId: "thread-3",
		Payload: &gmailapi.MessagePart{
			MimeType: "text/plain",
			Body:     &gmailapi.MessagePartBody{Data: raw},
		},
	}

	canonical := svc.ParseRecord(message)
	assert.Equal(t, "unpadded body", canonical.BodyText)
}

func TestParseRecord_TotalOnMalformedInput(t *testing.T) {
	svc := testService()
	before := utils.Now()

	// wrong type
	canonical := svc.ParseRecord("not a message")
	assert.Empty(t, canonical.ProviderMessageID)
	assert.False(t, canonical.Date.Before(before))

	// nil payload
	canonical = svc.ParseRecord(&gmailapi.Message{Id: "msg-4", ThreadId: "thread-4"})
	assert.Equal(t, "msg-4", canonical.ProviderMessageID)
	assert.Empty(t, canonical.BodyText)
	assert.False(t, canonical.Date.IsZero())

	// unparsable date falls back to internal date, then to the clock
	canonical = svc.ParseRecord(&gmailapi.Message{
		Id:           "msg-5",
		ThreadId:     "thread-5",
		InternalDate: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli(),
		Payload: &gmailapi.MessagePart{
			Headers: []*gmailapi.MessagePartHeader{{Name: "Date", Value: "garbage"}},
		},
	})
	assert.Equal(t, 2026, canonical.Date.Year())
}

// Gmail returns 404 for a start history id older than the retention
// window. The adapter must restart with a full fetch instead of failing.
func TestFetchDelta_ExpiredHistoryCursorFallsBackToFull(t *testing.T) {
	var historyCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/history", func(w http.ResponseWriter, r *http.Request) {
		historyCalls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404,"message":"Start history ID is too old"}}`)
	})
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"messages":[{"id":"m1","threadId":"t1"}]}`)
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"m1","threadId":"t1","snippet":"hello","internalDate":"1767225600000"}`)
	})
	mux.HandleFunc("/gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"emailAddress":"me@example.com","historyId":"777"}`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	svc := testService()
	svc.endpoint = server.URL

	stale := models.SyncCursor{Provider: enum.ProviderGmail, GmailHistoryID: "42"}
	delta, err := svc.FetchDelta(context.Background(), "tok", stale)
	require.NoError(t, err)

	assert.Equal(t, 1, historyCalls)
	assert.Equal(t, enum.FetchFull, delta.Mode)
	assert.Equal(t, "777", delta.NextCursor.GmailHistoryID)
	require.Len(t, delta.Records, 1)
	assert.Equal(t, "m1", svc.ParseRecord(delta.Records[0]).ProviderMessageID)
}

func TestAuthorizeURL_RequestsOfflineAccess(t *testing.T) {
	svc := testService()
	url := svc.AuthorizeURL("state-token")
	assert.Contains(t, url, "state=state-token")
	assert.Contains(t, url, "access_type=offline")
}
