package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/unifiedinbox/mailsync/api/middleware"
	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/enum"
	syncerrors "github.com/unifiedinbox/mailsync/internal/errors"
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/models"
	"github.com/unifiedinbox/mailsync/internal/tracing"
	"github.com/unifiedinbox/mailsync/internal/utils"
	"github.com/unifiedinbox/mailsync/services/auth"
)

type OAuthHandler struct {
	providers map[enum.EmailProvider]interfaces.EmailProviderService
	states    *auth.StateStore
	accounts  interfaces.AccountRepository
	cipher    interfaces.TokenCipher
	scheduler interfaces.SyncScheduler
	log       logger.Logger
}

func NewOAuthHandler(
	providers map[enum.EmailProvider]interfaces.EmailProviderService,
	states *auth.StateStore,
	accounts interfaces.AccountRepository,
	cipher interfaces.TokenCipher,
	scheduler interfaces.SyncScheduler,
	log logger.Logger,
) *OAuthHandler {
	return &OAuthHandler{
		providers: providers,
		states:    states,
		accounts:  accounts,
		cipher:    cipher,
		scheduler: scheduler,
		log:       log,
	}
}

// Connect starts the OAuth flow and returns the provider consent URL.
func (h *OAuthHandler) Connect() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "OAuthHandler.Connect", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		provider, ok := h.resolveProvider(c)
		if !ok {
			return
		}

		userID := middleware.GetUserId(c)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing user id"})
			return
		}

		state := h.states.Issue(userID)
		c.JSON(http.StatusOK, gin.H{
			"authorizationUrl": provider.AuthorizeURL(state),
			"state":            state,
		})
	}
}

// Callback finishes the OAuth flow: redeems the state, exchanges the code
// and stores the connected account with its refresh token encrypted.
func (h *OAuthHandler) Callback() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "OAuthHandler.Callback", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		provider, ok := h.resolveProvider(c)
		if !ok {
			return
		}

		userID, ok := h.states.Redeem(c.Query("state"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired state"})
			return
		}

		code := c.Query("code")
		if code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
			return
		}

		credential, err := provider.ExchangeCode(ctx, code)
		if err != nil {
			tracing.TraceErr(span, err)
			if errors.Is(err, syncerrors.ErrAuthExchange) {
				c.JSON(http.StatusBadGateway, gin.H{"error": "Authorization code rejected by provider"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Code exchange failed"})
			return
		}

		profile, err := provider.GetProfile(ctx, credential.AccessToken)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load mailbox profile"})
			return
		}

		account, err := h.upsertAccount(ctx, userID, provider.Provider(), profile, credential)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store account"})
			return
		}
		tracing.TagAccount(span, account.ID)

		// kick off the first sync right away
		h.scheduler.TriggerSync(account.ID)

		c.JSON(http.StatusOK, account)
	}
}

func (h *OAuthHandler) upsertAccount(ctx context.Context, userID string, providerName enum.EmailProvider, profile *interfaces.Profile, credential *interfaces.Credential) (*models.Account, error) {
	encryptedRefresh := ""
	if credential.RefreshToken != "" {
		var err error
		encryptedRefresh, err = h.cipher.Encrypt(credential.RefreshToken)
		if err != nil {
			return nil, err
		}
	}

	account, err := h.accounts.GetByEmailAddress(ctx, userID, profile.EmailAddress)
	if err != nil {
		return nil, err
	}

	if account == nil {
		account = &models.Account{
			UserID:                userID,
			Provider:              providerName,
			EmailAddress:          profile.EmailAddress,
			DisplayName:           profile.DisplayName,
			AccessToken:           credential.AccessToken,
			EncryptedRefreshToken: encryptedRefresh,
			TokenExpiry:           utils.TimePtr(credential.ExpiresAt),
			IsActive:              true,
		}
		if _, err := h.accounts.Create(ctx, account); err != nil {
			return nil, err
		}
		h.log.Infof("connected new %s account %s", providerName, account.ID)
		return account, nil
	}

	// Reconnecting an existing account replaces its credentials and
	// reactivates it if a previous auth failure turned it off.
	if err := h.accounts.UpdateTokens(ctx, account.ID, credential.AccessToken, encryptedRefresh, utils.TimePtr(credential.ExpiresAt)); err != nil {
		return nil, err
	}
	if !account.IsActive {
		if err := h.accounts.SetActive(ctx, account.ID, true); err != nil {
			return nil, err
		}
		account.IsActive = true
	}
	account.AccessToken = credential.AccessToken
	account.TokenExpiry = utils.TimePtr(credential.ExpiresAt)
	h.log.Infof("reconnected %s account %s", providerName, account.ID)
	return account, nil
}

func (h *OAuthHandler) resolveProvider(c *gin.Context) (interfaces.EmailProviderService, bool) {
	providerName := enum.DecodeEmailProvider(c.Param("provider"))
	provider, ok := h.providers[providerName]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown provider"})
		return nil, false
	}
	return provider, true
}
