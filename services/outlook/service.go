package outlook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/unifiedinbox/mailsync/config"
	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/enum"
	syncerrors "github.com/unifiedinbox/mailsync/internal/errors"
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/models"
	"github.com/unifiedinbox/mailsync/internal/tracing"
	"github.com/unifiedinbox/mailsync/internal/utils"
)

const (
	graphBaseURL   = "https://graph.microsoft.com/v1.0"
	requestTimeout = 30 * time.Second
)

var scopes = []string{"Mail.Read", "Mail.Send", "offline_access"}

type outlookService struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	baseURL    string
	maxResults int
	log        logger.Logger
}

func NewOutlookService(cfg *config.MicrosoftOAuthConfig, syncCfg *config.SyncConfig, log logger.Logger) interfaces.EmailProviderService {
	return &outlookService{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint:     microsoft.AzureADEndpoint(cfg.Tenant),
		},
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    graphBaseURL,
		maxResults: syncCfg.MaxMessagesPerAccount,
		log:        log,
	}
}

func (s *outlookService) Provider() enum.EmailProvider {
	return enum.ProviderOutlook
}

func (s *outlookService) AuthorizeURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

func (s *outlookService) ExchangeCode(ctx context.Context, code string) (*interfaces.Credential, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(syncerrors.ErrAuthExchange, err.Error())
	}
	return &interfaces.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

func (s *outlookService) RefreshCredential(ctx context.Context, refreshToken string) (*interfaces.Credential, error) {
	source := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, classifyRefreshErr(err)
	}

	credential := &interfaces.Credential{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.Expiry,
	}
	// Microsoft rotates refresh tokens on every refresh.
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		credential.RefreshToken = token.RefreshToken
	}
	return credential, nil
}

func (s *outlookService) GetProfile(ctx context.Context, accessToken string) (*interfaces.Profile, error) {
	var me struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
		DisplayName       string `json:"displayName"`
	}
	if err := s.getJSON(ctx, accessToken, s.baseURL+"/me", &me); err != nil {
		return nil, err
	}

	address := me.Mail
	if address == "" {
		address = me.UserPrincipalName
	}
	return &interfaces.Profile{EmailAddress: address, DisplayName: me.DisplayName}, nil
}

// graphMessage mirrors the subset of the Graph message resource the sync
// engine consumes.
type graphMessage struct {
	ID               string            `json:"id"`
	ConversationID   string            `json:"conversationId"`
	Subject          string            `json:"subject"`
	BodyPreview      string            `json:"bodyPreview"`
	ReceivedDateTime string            `json:"receivedDateTime"`
	SentDateTime     string            `json:"sentDateTime"`
	HasAttachments   bool              `json:"hasAttachments"`
	IsRead           bool              `json:"isRead"`
	From             *graphRecipient   `json:"from"`
	ToRecipients     []graphRecipient  `json:"toRecipients"`
	CcRecipients     []graphRecipient  `json:"ccRecipients"`
	BccRecipients    []graphRecipient  `json:"bccRecipients"`
	Body             *graphItemBody    `json:"body"`
	Attachments      []graphAttachment `json:"attachments"`
	// Delta responses flag deletions with an @removed annotation.
	Removed *struct {
		Reason string `json:"reason"`
	} `json:"@removed"`
}

type graphRecipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphAttachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

type deltaPage struct {
	Value     []graphMessage `json:"value"`
	NextLink  string         `json:"@odata.nextLink"`
	DeltaLink string         `json:"@odata.deltaLink"`
}

func (s *outlookService) FetchDelta(ctx context.Context, accessToken string, cursor models.SyncCursor) (*interfaces.DeltaResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "outlookService.FetchDelta")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag(tracing.SpanTagProvider, enum.ProviderOutlook.String())

	mode := enum.FetchIncremental
	requestURL := cursor.OutlookDeltaLink
	if requestURL == "" {
		mode = enum.FetchFull
		requestURL = s.initialDeltaURL()
	}

	result, err := s.collectDelta(ctx, accessToken, requestURL, mode)
	if errors.Is(err, syncerrors.ErrCursorInvalid) {
		// Graph answers 410 Gone when the delta token aged out; restart
		// with a fresh full window, invisible to the caller.
		s.log.Warnf("outlook delta link expired, falling back to full fetch")
		result, err = s.collectDelta(ctx, accessToken, s.initialDeltaURL(), enum.FetchFull)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("mode", result.Mode.String())
	return result, nil
}

func (s *outlookService) initialDeltaURL() string {
	return fmt.Sprintf("%s/me/mailFolders/Inbox/messages/delta?%s",
		s.baseURL, url.Values{"$top": {fmt.Sprint(s.maxResults)}}.Encode())
}

func (s *outlookService) collectDelta(ctx context.Context, accessToken, requestURL string, mode enum.FetchMode) (*interfaces.DeltaResult, error) {
	var records []interfaces.RawRecord
	deltaLink := ""

	for requestURL != "" {
		var page deltaPage
		if err := s.getJSON(ctx, accessToken, requestURL, &page); err != nil {
			return nil, err
		}

		for _, message := range page.Value {
			if message.Removed != nil {
				continue
			}
			records = append(records, message)
		}

		if page.DeltaLink != "" {
			deltaLink = page.DeltaLink
			break
		}
		requestURL = page.NextLink
	}

	return &interfaces.DeltaResult{
		Records: records,
		NextCursor: models.SyncCursor{
			Provider:         enum.ProviderOutlook,
			OutlookDeltaLink: deltaLink,
		},
		Mode: mode,
	}, nil
}

// ParseRecord normalizes one Graph message. Total: missing fields default
// to empty values, a bad date falls back to the ingestion clock.
func (s *outlookService) ParseRecord(raw interfaces.RawRecord) interfaces.CanonicalMessage {
	message, ok := raw.(graphMessage)
	if !ok {
		return interfaces.CanonicalMessage{Date: utils.Now(), To: []string{}, Cc: []string{}, Bcc: []string{}}
	}

	date := utils.Now()
	dateStr := message.ReceivedDateTime
	if dateStr == "" {
		dateStr = message.SentDateTime
	}
	if dateStr != "" {
		if parsed, err := time.Parse(time.RFC3339, dateStr); err == nil {
			date = parsed.UTC()
		}
	}

	from := ""
	if message.From != nil {
		from = message.From.EmailAddress.Address
	}

	var bodyText, bodyHTML string
	if message.Body != nil {
		if message.Body.ContentType == "html" {
			bodyHTML = message.Body.Content
		} else {
			bodyText = message.Body.Content
		}
	}

	attachments := []interfaces.CanonicalAttachment{}
	for _, att := range message.Attachments {
		attachments = append(attachments, interfaces.CanonicalAttachment{
			Filename:             att.Name,
			MimeType:             att.ContentType,
			Size:                 att.Size,
			ProviderAttachmentID: att.ID,
		})
	}

	threadID := message.ConversationID
	if threadID == "" {
		threadID = message.ID
	}

	snippet := message.BodyPreview
	if snippet == "" {
		snippet = utils.SnippetFromBody(bodyText, bodyHTML)
	}

	return interfaces.CanonicalMessage{
		ProviderMessageID: message.ID,
		ProviderThreadID:  threadID,
		From:              from,
		To:                extractAddresses(message.ToRecipients),
		Cc:                extractAddresses(message.CcRecipients),
		Bcc:               extractAddresses(message.BccRecipients),
		Subject:           message.Subject,
		Date:              date,
		BodyText:          bodyText,
		BodyHTML:          bodyHTML,
		Snippet:           snippet,
		Attachments:       attachments,
		HasAttachments:    message.HasAttachments,
	}
}

func (s *outlookService) SendMessage(ctx context.Context, accessToken string, draft interfaces.EmailDraft) (*interfaces.SendResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "outlookService.SendMessage")
	defer span.Finish()
	tracing.TagComponentService(span)

	content := draft.BodyHTML
	contentType := "HTML"
	if content == "" {
		content = draft.BodyText
		contentType = "Text"
	}

	var endpoint string
	var payload interface{}
	if draft.InReplyTo != "" {
		endpoint = fmt.Sprintf("%s/me/messages/%s/reply", s.baseURL, draft.InReplyTo)
		payload = map[string]interface{}{"comment": content}
	} else {
		recipients := make([]map[string]interface{}, 0, len(draft.To))
		for _, addr := range draft.To {
			recipients = append(recipients, map[string]interface{}{
				"emailAddress": map[string]string{"address": addr},
			})
		}
		endpoint = s.baseURL + "/me/sendMail"
		payload = map[string]interface{}{
			"message": map[string]interface{}{
				"subject":      draft.Subject,
				"body":         map[string]string{"contentType": contentType, "content": content},
				"toRecipients": recipients,
			},
		}
	}

	if err := s.postJSON(ctx, accessToken, endpoint, payload); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &interfaces.SendResult{}, nil
}

func (s *outlookService) getJSON(ctx context.Context, accessToken, requestURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return errors.Wrap(err, "build graph request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(syncerrors.ErrProviderTransient, err.Error())
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *outlookService) postJSON(ctx context.Context, accessToken, requestURL string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode graph payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build graph request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(syncerrors.ErrProviderTransient, err.Error())
	}
	defer resp.Body.Close()

	return classifyStatus(resp)
}

func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.Wrapf(syncerrors.ErrAuthExpired, "graph %d: %s", resp.StatusCode, snippet)
	case resp.StatusCode == http.StatusGone:
		return errors.Wrapf(syncerrors.ErrCursorInvalid, "graph %d: %s", resp.StatusCode, snippet)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.Wrapf(syncerrors.ErrProviderTransient, "graph %d: %s", resp.StatusCode, snippet)
	default:
		return errors.Wrapf(syncerrors.ErrProviderPermanent, "graph %d: %s", resp.StatusCode, snippet)
	}
}

func classifyRefreshErr(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.ErrorCode == "invalid_grant" || rerr.Response.StatusCode == 400 || rerr.Response.StatusCode == 401 {
			return errors.Wrap(syncerrors.ErrAuthExpired, err.Error())
		}
		if rerr.Response.StatusCode == 429 || rerr.Response.StatusCode >= 500 {
			return errors.Wrap(syncerrors.ErrProviderTransient, err.Error())
		}
	}
	return errors.Wrap(syncerrors.ErrProviderTransient, err.Error())
}

func extractAddresses(recipients []graphRecipient) []string {
	addrs := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.EmailAddress.Address != "" {
			addrs = append(addrs, r.EmailAddress.Address)
		}
	}
	return addrs
}
