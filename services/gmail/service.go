package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

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
	scopeReadonly = "https://www.googleapis.com/auth/gmail.readonly"
	scopeSend     = "https://www.googleapis.com/auth/gmail.send"
)

type gmailService struct {
	oauth      *oauth2.Config
	maxResults int64
	endpoint   string // overrides the Gmail API base URL when set
	log        logger.Logger
}

func NewGmailService(cfg *config.GoogleOAuthConfig, syncCfg *config.SyncConfig, log logger.Logger) interfaces.EmailProviderService {
	return &gmailService{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{scopeReadonly, scopeSend},
			Endpoint:     google.Endpoint,
		},
		maxResults: int64(syncCfg.MaxMessagesPerAccount),
		log:        log,
	}
}

func (s *gmailService) Provider() enum.EmailProvider {
	return enum.ProviderGmail
}

func (s *gmailService) AuthorizeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *gmailService) ExchangeCode(ctx context.Context, code string) (*interfaces.Credential, error) {
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

func (s *gmailService) RefreshCredential(ctx context.Context, refreshToken string) (*interfaces.Credential, error) {
	source := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, classifyRefreshErr(err)
	}

	credential := &interfaces.Credential{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.Expiry,
	}
	// Google only rotates refresh tokens occasionally; surface one only
	// when it actually changed.
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		credential.RefreshToken = token.RefreshToken
	}
	return credential, nil
}

func (s *gmailService) GetProfile(ctx context.Context, accessToken string) (*interfaces.Profile, error) {
	svc, err := s.client(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, classifyAPIErr(err)
	}
	return &interfaces.Profile{EmailAddress: profile.EmailAddress}, nil
}

func (s *gmailService) FetchDelta(ctx context.Context, accessToken string, cursor models.SyncCursor) (*interfaces.DeltaResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gmailService.FetchDelta")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag(tracing.SpanTagProvider, enum.ProviderGmail.String())

	svc, err := s.client(ctx, accessToken)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if cursor.GmailHistoryID != "" {
		result, err := s.fetchHistory(ctx, svc, cursor.GmailHistoryID)
		if err == nil {
			span.SetTag("mode", result.Mode.String())
			return result, nil
		}
		if !errors.Is(err, syncerrors.ErrCursorInvalid) {
			tracing.TraceErr(span, err)
			return nil, err
		}
		// History window exceeded: fall through to a full fetch with a
		// fresh cursor, invisible to the caller.
		s.log.Warnf("gmail history cursor %s expired, falling back to full fetch", cursor.GmailHistoryID)
	}

	result, err := s.fetchFull(ctx, svc)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("mode", result.Mode.String())
	return result, nil
}

func (s *gmailService) fetchFull(ctx context.Context, svc *gmailapi.Service) (*interfaces.DeltaResult, error) {
	list, err := svc.Users.Messages.List("me").
		LabelIds("INBOX").
		MaxResults(s.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyAPIErr(err)
	}

	records := make([]interfaces.RawRecord, 0, len(list.Messages))
	for _, stub := range list.Messages {
		full, err := svc.Users.Messages.Get("me", stub.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, classifyAPIErr(err)
		}
		records = append(records, full)
	}

	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, classifyAPIErr(err)
	}

	return &interfaces.DeltaResult{
		Records: records,
		NextCursor: models.SyncCursor{
			Provider:       enum.ProviderGmail,
			GmailHistoryID: strconv.FormatUint(profile.HistoryId, 10),
		},
		Mode: enum.FetchFull,
	}, nil
}

func (s *gmailService) fetchHistory(ctx context.Context, svc *gmailapi.Service, historyID string) (*interfaces.DeltaResult, error) {
	startHistoryID, err := strconv.ParseUint(historyID, 10, 64)
	if err != nil {
		return nil, syncerrors.ErrCursorInvalid
	}

	latestHistoryID := startHistoryID
	seen := make(map[string]bool)
	var records []interfaces.RawRecord

	call := svc.Users.History.List("me").
		StartHistoryId(startHistoryID).
		HistoryTypes("messageAdded").
		MaxResults(s.maxResults)

	err = call.Pages(ctx, func(page *gmailapi.ListHistoryResponse) error {
		for _, history := range page.History {
			if history.Id > latestHistoryID {
				latestHistoryID = history.Id
			}
			for _, added := range history.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true

				full, err := svc.Users.Messages.Get("me", added.Message.Id).Format("full").Context(ctx).Do()
				if err != nil {
					// A message can vanish between history and get.
					var gerr *googleapi.Error
					if errors.As(err, &gerr) && gerr.Code == 404 {
						continue
					}
					return classifyAPIErr(err)
				}
				records = append(records, full)
			}
		}
		if page.HistoryId > latestHistoryID {
			latestHistoryID = page.HistoryId
		}
		return nil
	})
	if err != nil {
		// Gmail rejects a startHistoryId outside the retention window
		// with a 404.
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 404 {
			return nil, syncerrors.ErrCursorInvalid
		}
		if errors.Is(err, syncerrors.ErrProviderTransient) || errors.Is(err, syncerrors.ErrProviderPermanent) || errors.Is(err, syncerrors.ErrAuthExpired) {
			return nil, err
		}
		return nil, classifyAPIErr(err)
	}

	return &interfaces.DeltaResult{
		Records: records,
		NextCursor: models.SyncCursor{
			Provider:       enum.ProviderGmail,
			GmailHistoryID: strconv.FormatUint(latestHistoryID, 10),
		},
		Mode: enum.FetchIncremental,
	}, nil
}

// ParseRecord normalizes one Gmail API message. Total by construction:
// anything missing becomes an empty value and a bad date falls back to the
// ingestion clock.
func (s *gmailService) ParseRecord(raw interfaces.RawRecord) interfaces.CanonicalMessage {
	message, ok := raw.(*gmailapi.Message)
	if !ok || message == nil {
		return interfaces.CanonicalMessage{Date: utils.Now(), To: []string{}, Cc: []string{}, Bcc: []string{}}
	}

	headers := make(map[string]string)
	if message.Payload != nil {
		for _, h := range message.Payload.Headers {
			headers[h.Name] = h.Value
		}
	}

	bodyText, bodyHTML := extractBodies(message.Payload)
	attachments := extractAttachments(message.Payload)

	parsedDate := parseDate(headers["Date"], message.InternalDate)

	snippet := message.Snippet
	if snippet == "" {
		snippet = utils.SnippetFromBody(bodyText, bodyHTML)
	}

	return interfaces.CanonicalMessage{
		ProviderMessageID: message.Id,
		ProviderThreadID:  message.ThreadId,
		From:              headers["From"],
		To:                utils.SplitAddressList(headers["To"]),
		Cc:                utils.SplitAddressList(headers["Cc"]),
		Bcc:               utils.SplitAddressList(headers["Bcc"]),
		Subject:           headers["Subject"],
		Date:              parsedDate,
		BodyText:          bodyText,
		BodyHTML:          bodyHTML,
		Snippet:           snippet,
		Attachments:       attachments,
		HasAttachments:    len(attachments) > 0,
	}
}

func (s *gmailService) SendMessage(ctx context.Context, accessToken string, draft interfaces.EmailDraft) (*interfaces.SendResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "gmailService.SendMessage")
	defer span.Finish()
	tracing.TagComponentService(span)

	svc, err := s.client(ctx, accessToken)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	raw := base64.URLEncoding.EncodeToString([]byte(buildRFC2822(draft)))
	sent, err := svc.Users.Messages.Send("me", &gmailapi.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, classifyAPIErr(err)
	}
	return &interfaces.SendResult{ProviderMessageID: sent.Id}, nil
}

func (s *gmailService) client(ctx context.Context, accessToken string) (*gmailapi.Service, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	opts := []option.ClientOption{option.WithTokenSource(source)}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create gmail client")
	}
	return svc, nil
}

// extractBodies walks the part tree collecting the first text/plain and
// text/html bodies, matching how Gmail nests multipart/alternative inside
// multipart/mixed.
func extractBodies(payload *gmailapi.MessagePart) (string, string) {
	var bodyText, bodyHTML string

	var walk func(part *gmailapi.MessagePart)
	walk = func(part *gmailapi.MessagePart) {
		if part == nil {
			return
		}
		if part.Body != nil && part.Body.Data != "" && part.Filename == "" {
			decoded, err := decodeBase64URL(part.Body.Data)
			if err == nil {
				switch part.MimeType {
				case "text/plain":
					if bodyText == "" {
						bodyText = string(decoded)
					}
				case "text/html":
					if bodyHTML == "" {
						bodyHTML = string(decoded)
					}
				}
			}
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)

	return bodyText, bodyHTML
}

func extractAttachments(payload *gmailapi.MessagePart) []interfaces.CanonicalAttachment {
	attachments := []interfaces.CanonicalAttachment{}

	var walk func(part *gmailapi.MessagePart)
	walk = func(part *gmailapi.MessagePart) {
		if part == nil {
			return
		}
		if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
			attachments = append(attachments, interfaces.CanonicalAttachment{
				Filename:             part.Filename,
				MimeType:             part.MimeType,
				Size:                 int(part.Body.Size),
				ProviderAttachmentID: part.Body.AttachmentId,
			})
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)

	return attachments
}

// decodeBase64URL tolerates both padded and unpadded body data.
func decodeBase64URL(data string) ([]byte, error) {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}

// parseDate prefers the Date header, then Gmail's internal receive time,
// then the ingestion clock. Never fails.
func parseDate(header string, internalDateMillis int64) time.Time {
	if header != "" {
		if parsed, err := mail.ParseDate(header); err == nil {
			return parsed.UTC()
		}
	}
	if internalDateMillis > 0 {
		return time.UnixMilli(internalDateMillis).UTC()
	}
	return utils.Now()
}

func buildRFC2822(draft interfaces.EmailDraft) string {
	boundary := "mailsync-" + utils.GenerateNanoIDWithPrefix("b", 12)

	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(draft.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", draft.Subject)
	if draft.InReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", draft.InReplyTo)
	}
	if draft.References != "" {
		fmt.Fprintf(&b, "References: %s\r\n", draft.References)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	if draft.BodyText != "" {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n", boundary, draft.BodyText)
	}
	if draft.BodyHTML != "" {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n", boundary, draft.BodyHTML)
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return b.String()
}

func classifyAPIErr(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401:
			return errors.Wrap(syncerrors.ErrAuthExpired, gerr.Message)
		case gerr.Code == 429 || gerr.Code >= 500:
			return errors.Wrap(syncerrors.ErrProviderTransient, gerr.Message)
		case gerr.Code >= 400:
			return errors.Wrap(syncerrors.ErrProviderPermanent, gerr.Message)
		}
	}
	// Anything without an upstream status is a network level failure.
	return errors.Wrap(syncerrors.ErrProviderTransient, err.Error())
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
