package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// APIKeyHeader carries the key for the /v1 API
	APIKeyHeader = "X-Focusguard-Key"
	// AuthenticatedKey is set in the context once a caller is authenticated
	AuthenticatedKey = "authenticated"
)

// APIKeyAuth verifies the X-Focusguard-Key header
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tokenEqual(c.GetHeader(APIKeyHeader), apiKey) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
				"code":  "UNAUTHORIZED",
			})
			return
		}
		c.Set(AuthenticatedKey, true)
		c.Next()
	}
}

// AgentAuth validates the on-device agent token from the Authorization
// Bearer header
func AgentAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
				"code":  "AUTH_REQUIRED",
			})
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization scheme. Use Bearer token.",
				"code":  "INVALID_AUTH_SCHEME",
			})
			return
		}

		provided := strings.TrimPrefix(authHeader, bearerPrefix)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Token required",
				"code":  "TOKEN_REQUIRED",
			})
			return
		}

		if !tokenEqual(provided, token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token",
				"code":  "INVALID_TOKEN",
			})
			return
		}

		c.Set(AuthenticatedKey, true)
		c.Next()
	}
}

// tokenEqual compares in constant time. An empty expected token never
// matches.
func tokenEqual(provided, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
