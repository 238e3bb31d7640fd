package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderAPIKey carries the service API key on every protected route.
const HeaderAPIKey = "X-MAILSYNC-API-KEY"

// APIKeyMiddleware rejects requests that do not present the configured key.
func APIKeyMiddleware(validKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := strings.TrimSpace(c.GetHeader(HeaderAPIKey))
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing API key"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(validKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}
		c.Next()
	}
}
