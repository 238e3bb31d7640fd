package middleware

import (
	"github.com/gin-gonic/gin"
)

// UserIdHeaders are checked in order for the calling user's identifier.
var UserIdHeaders = []string{"X-USER-ID", "X-Mailsync-User-Id"}

const ContextKeyUserId = "UserId"

func UserIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := ""
		for _, header := range UserIdHeaders {
			if value := c.GetHeader(header); value != "" {
				userId = value
				break
			}
		}

		// Store in gin context for later use
		c.Set(ContextKeyUserId, userId)
		c.Next()
	}
}

// GetUserId returns the user id set by UserIdMiddleware, empty when absent.
func GetUserId(c *gin.Context) string {
	return c.GetString(ContextKeyUserId)
}
