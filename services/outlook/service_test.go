package outlook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedinbox/mailsync/config"
	"github.com/unifiedinbox/mailsync/internal/enum"
	syncerrors "github.com/unifiedinbox/mailsync/internal/errors"
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/models"
	"github.com/unifiedinbox/mailsync/internal/utils"
)

func testService() *outlookService {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	svc := NewOutlookService(
		&config.MicrosoftOAuthConfig{ClientID: "id", ClientSecret: "secret", Tenant: "common", RedirectURI: "http://localhost/cb"},
		&config.SyncConfig{MaxMessagesPerAccount: 50},
		appLogger,
	)
	return svc.(*outlookService)
}

func recipient(address string) graphRecipient {
	var r graphRecipient
	r.EmailAddress.Address = address
	return r
}

func TestParseRecord_FullMessage(t *testing.T) {
	svc := testService()

	from := recipient("alice@example.com")
	message := graphMessage{
		ID:               "AAMk-1",
		ConversationID:   "conv-1",
		Subject:          "Budget review",
		BodyPreview:      "Numbers attached",
		ReceivedDateTime: "2026-03-14T09:26:53Z",
		HasAttachments:   true,
		From:             &from,
		ToRecipients:     []graphRecipient{recipient("bob@example.com")},
		CcRecipients:     []graphRecipient{recipient("carol@example.com")},
		Body:             &graphItemBody{ContentType: "html", Content: "<p>see numbers</p>"},
		Attachments: []graphAttachment{
			{ID: "att-1", Name: "budget.xlsx", ContentType: "application/vnd.ms-excel", Size: 2048},
		},
	}

	canonical := svc.ParseRecord(message)

	assert.Equal(t, "AAMk-1", canonical.ProviderMessageID)
	assert.Equal(t, "conv-1", canonical.ProviderThreadID)
	assert.Equal(t, "alice@example.com", canonical.From)
	assert.Equal(t, []string{"bob@example.com"}, canonical.To)
	assert.Equal(t, []string{"carol@example.com"}, canonical.Cc)
	assert.Equal(t, "Budget review", canonical.Subject)
	assert.Equal(t, 2026, canonical.Date.Year())
	assert.Equal(t, "<p>see numbers</p>", canonical.BodyHTML)
	assert.Empty(t, canonical.BodyText)
	assert.Equal(t, "Numbers attached", canonical.Snippet)
	require.Len(t, canonical.Attachments, 1)
	assert.Equal(t, "budget.xlsx", canonical.Attachments[0].Filename)
	assert.True(t, canonical.HasAttachments)
}

func TestParseRecord_TotalOnMalformedInput(t *testing.T) {
	svc := testService()
	before := utils.Now()

	// wrong type
	canonical := svc.ParseRecord(42)
	assert.Empty(t, canonical.ProviderMessageID)
	assert.False(t, canonical.Date.Before(before))

	// empty message falls back to the ingestion clock and its own id as
	// the thread key
	canonical = svc.ParseRecord(graphMessage{ID: "AAMk-2"})
	assert.Equal(t, "AAMk-2", canonical.ProviderMessageID)
	assert.Equal(t, "AAMk-2", canonical.ProviderThreadID)
	assert.False(t, canonical.Date.IsZero())

	// bad date string
	canonical = svc.ParseRecord(graphMessage{ID: "AAMk-3", ReceivedDateTime: "yesterday-ish"})
	assert.False(t, canonical.Date.Before(before))
}

func TestCollectDelta_FollowsNextLinks(t *testing.T) {
	svc := testService()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch calls {
		case 1:
			io.WriteString(w, `{"value":[{"id":"m1","conversationId":"c1"}],"@odata.nextLink":"`+serverURL(r)+`/page2"}`)
		default:
			io.WriteString(w, `{"value":[{"id":"m2","conversationId":"c1"},{"id":"m3","@removed":{"reason":"deleted"}}],"@odata.deltaLink":"https://graph.microsoft.com/v1.0/delta?token=final"}`)
		}
	}))
	defer server.Close()

	result, err := svc.collectDelta(context.Background(), "tok", server.URL+"/page1", enum.FetchFull)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	// the tombstone for m3 is dropped
	assert.Len(t, result.Records, 2)
	assert.Equal(t, "https://graph.microsoft.com/v1.0/delta?token=final", result.NextCursor.OutlookDeltaLink)
	assert.Equal(t, enum.ProviderOutlook, result.NextCursor.Provider)
}

func TestFetchDelta_ExpiredDeltaLinkRestartsFull(t *testing.T) {
	svc := testService()

	var sawInitial bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.String(), "stale") {
			w.WriteHeader(http.StatusGone)
			return
		}
		sawInitial = true
		io.WriteString(w, `{"value":[{"id":"m1","conversationId":"c1"}],"@odata.deltaLink":"`+serverURL(r)+`/delta?token=new"}`)
	}))
	defer server.Close()

	// point the Graph base URL at the test server
	svc.baseURL = server.URL

	result, err := svc.FetchDelta(context.Background(), "tok", models.SyncCursor{
		Provider:         enum.ProviderOutlook,
		OutlookDeltaLink: server.URL + "/stale",
	})
	require.NoError(t, err)
	assert.True(t, sawInitial)
	assert.Equal(t, enum.FetchFull, result.Mode)
	assert.Len(t, result.Records, 1)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusOK, nil},
		{http.StatusUnauthorized, syncerrors.ErrAuthExpired},
		{http.StatusGone, syncerrors.ErrCursorInvalid},
		{http.StatusTooManyRequests, syncerrors.ErrProviderTransient},
		{http.StatusBadGateway, syncerrors.ErrProviderTransient},
		{http.StatusForbidden, syncerrors.ErrProviderPermanent},
	}
	for _, tt := range tests {
		resp := &http.Response{
			StatusCode: tt.code,
			Body:       io.NopCloser(strings.NewReader("details")),
		}
		err := classifyStatus(resp)
		if tt.want == nil {
			assert.NoError(t, err, "status %d", tt.code)
		} else {
			assert.True(t, errors.Is(err, tt.want), "status %d", tt.code)
		}
	}
}

func serverURL(r *http.Request) string {
	return "http://" + r.Host
}
