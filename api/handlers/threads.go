package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/tracing"
)

type ThreadsHandler struct {
	threads  interfaces.ThreadRepository
	messages interfaces.MessageRepository
}

func NewThreadsHandler(threads interfaces.ThreadRepository, messages interfaces.MessageRepository) *ThreadsHandler {
	return &ThreadsHandler{threads: threads, messages: messages}
}

// List returns an account's threads, most recently active first.
func (h *ThreadsHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ThreadsHandler.List", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		accountID := c.Query("accountId")
		if accountID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing accountId"})
			return
		}
		tracing.TagAccount(span, accountID)

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		threads, err := h.threads.ListByAccount(ctx, accountID, limit, offset)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list threads"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"threads": threads})
	}
}

// Messages returns the messages of one thread in chronological order.
func (h *ThreadsHandler) Messages() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ThreadsHandler.Messages", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		thread, err := h.threads.GetByID(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load thread"})
			return
		}
		if thread == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Thread not found"})
			return
		}

		messages, err := h.messages.ListByThread(ctx, thread.ID)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list messages"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"thread": thread, "messages": messages})
	}
}

// MarkRead flips the read flag on one message.
func (h *ThreadsHandler) MarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "ThreadsHandler.MarkRead", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		var request struct {
			Read *bool `json:"read" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
			return
		}

		message, err := h.messages.GetByID(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load message"})
			return
		}
		if message == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
			return
		}

		if err := h.messages.SetRead(ctx, message.ID, *request.Read); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update message"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"read": *request.Read})
	}
}
