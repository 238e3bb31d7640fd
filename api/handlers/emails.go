package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/enum"
	syncerrors "github.com/unifiedinbox/mailsync/internal/errors"
	"github.com/unifiedinbox/mailsync/internal/tracing"
)

// SendEmailRequest represents the API request for sending an email
type SendEmailRequest struct {
	AccountID   string    `json:"accountId"`
	ToAddresses []string  `json:"toAddresses"`
	Subject     string    `json:"subject"`
	Body        EmailBody `json:"body"`
}

// EmailBody contains the content of the email
type EmailBody struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

type EmailsHandler struct {
	accounts    interfaces.AccountRepository
	messages    interfaces.MessageRepository
	providers   map[enum.EmailProvider]interfaces.EmailProviderService
	credentials interfaces.CredentialManager
}

func NewEmailsHandler(
	accounts interfaces.AccountRepository,
	messages interfaces.MessageRepository,
	providers map[enum.EmailProvider]interfaces.EmailProviderService,
	credentials interfaces.CredentialManager,
) *EmailsHandler {
	return &EmailsHandler{
		accounts:    accounts,
		messages:    messages,
		providers:   providers,
		credentials: credentials,
	}
}

// Send handles the HTTP request to send a new email
func (h *EmailsHandler) Send() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "EmailsHandler.Send", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var request SendEmailRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			h.respondWithError(c, span, http.StatusBadRequest, "Invalid request format", err)
			return
		}
		if request.AccountID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing accountId"})
			return
		}
		if len(request.ToAddresses) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide at least one to address"})
			return
		}
		if request.Body.Text == "" && request.Body.HTML == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message body is empty"})
			return
		}

		draft := interfaces.EmailDraft{
			To:       request.ToAddresses,
			Subject:  request.Subject,
			BodyText: request.Body.Text,
			BodyHTML: request.Body.HTML,
		}
		result, ok := h.sendThroughProvider(ctx, c, span, request.AccountID, draft)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"providerMessageId": result.ProviderMessageID})
	}
}

// Reply sends a reply within the thread of an already synced message.
func (h *EmailsHandler) Reply() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "EmailsHandler.Reply", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var request struct {
			AccountID string    `json:"accountId"`
			Body      EmailBody `json:"body"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			h.respondWithError(c, span, http.StatusBadRequest, "Invalid request format", err)
			return
		}
		if request.Body.Text == "" && request.Body.HTML == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message body is empty"})
			return
		}

		original, err := h.messages.GetByID(ctx, c.Param("id"))
		if err != nil {
			h.respondWithError(c, span, http.StatusInternalServerError, "Failed to load message", err)
			return
		}
		if original == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
			return
		}

		draft := interfaces.EmailDraft{
			To:        []string{original.FromAddress},
			Subject:   "Re: " + original.Subject,
			BodyText:  request.Body.Text,
			BodyHTML:  request.Body.HTML,
			InReplyTo: original.ProviderMessageID,
		}
		result, ok := h.sendThroughProvider(ctx, c, span, request.AccountID, draft)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"providerMessageId": result.ProviderMessageID})
	}
}

func (h *EmailsHandler) sendThroughProvider(ctx context.Context, c *gin.Context, span opentracing.Span, accountID string, draft interfaces.EmailDraft) (*interfaces.SendResult, bool) {
	tracing.TagAccount(span, accountID)

	account, err := h.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, syncerrors.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return nil, false
		}
		h.respondWithError(c, span, http.StatusInternalServerError, "Failed to load account", err)
		return nil, false
	}
	if !account.IsActive {
		c.JSON(http.StatusConflict, gin.H{"error": "Account is inactive, reconnect it first"})
		return nil, false
	}

	provider, ok := h.providers[account.Provider]
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unknown provider"})
		return nil, false
	}

	accessToken, err := h.credentials.EnsureValid(ctx, account)
	if err != nil {
		if errors.Is(err, syncerrors.ErrAuthExpired) || errors.Is(err, syncerrors.ErrMissingCredential) {
			c.JSON(http.StatusConflict, gin.H{"error": "Account credentials expired, reconnect it first"})
			return nil, false
		}
		h.respondWithError(c, span, http.StatusBadGateway, "Failed to refresh credentials", err)
		return nil, false
	}

	result, err := provider.SendMessage(ctx, accessToken, draft)
	if err != nil {
		h.respondWithError(c, span, http.StatusBadGateway, "Failed to send email", err)
		return nil, false
	}
	return result, true
}

// Helper method to respond with an error
func (h *EmailsHandler) respondWithError(c *gin.Context, span opentracing.Span, statusCode int, message string, err error) {
	tracing.TraceErr(span, err)
	c.JSON(statusCode, gin.H{"error": message, "details": err.Error()})
}
