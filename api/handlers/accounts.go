package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/unifiedinbox/mailsync/api/middleware"
	"github.com/unifiedinbox/mailsync/interfaces"
	syncerrors "github.com/unifiedinbox/mailsync/internal/errors"
	"github.com/unifiedinbox/mailsync/internal/logger"
	"github.com/unifiedinbox/mailsync/internal/tracing"
)

type AccountsHandler struct {
	accounts  interfaces.AccountRepository
	threads   interfaces.ThreadRepository
	scheduler interfaces.SyncScheduler
	log       logger.Logger
}

func NewAccountsHandler(accounts interfaces.AccountRepository, threads interfaces.ThreadRepository, scheduler interfaces.SyncScheduler, log logger.Logger) *AccountsHandler {
	return &AccountsHandler{
		accounts:  accounts,
		threads:   threads,
		scheduler: scheduler,
		log:       log,
	}
}

// List returns the calling user's connected accounts.
func (h *AccountsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "AccountsHandler.List", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		userID := middleware.GetUserId(c)
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing user id"})
			return
		}

		accounts, err := h.accounts.ListByUser(ctx, userID)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list accounts"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"accounts": accounts})
	}
}

// Get returns one account by id.
func (h *AccountsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "AccountsHandler.Get", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		account, err := h.accounts.GetByID(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, syncerrors.ErrAccountNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load account"})
			return
		}

		threadCount, err := h.threads.CountByAccount(ctx, account.ID)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load account"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"account":     account,
			"threadCount": threadCount,
		})
	}
}

// Delete disconnects an account and removes its synced data.
func (h *AccountsHandler) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "AccountsHandler.Delete", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagAccount(span, c.Param("id"))

		if err := h.accounts.Delete(ctx, c.Param("id")); err != nil {
			if errors.Is(err, syncerrors.ErrAccountNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete account"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

// TriggerSync enqueues an on-demand sync for an account.
func (h *AccountsHandler) TriggerSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "AccountsHandler.TriggerSync", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagAccount(span, c.Param("id"))

		account, err := h.accounts.GetByID(ctx, c.Param("id"))
		if err != nil {
			if errors.Is(err, syncerrors.ErrAccountNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
				return
			}
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load account"})
			return
		}
		if !account.IsActive {
			c.JSON(http.StatusConflict, gin.H{"error": "Account is inactive, reconnect it first"})
			return
		}

		if !h.scheduler.TriggerSync(account.ID) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sync queue is full, try again later"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"enqueued": true})
	}
}
