package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// PINHeader carries the strict-mode PIN for guarded actions
const PINHeader = "X-Focusguard-PIN"

// StrictAuthorizer decides whether a guarded action may proceed
type StrictAuthorizer interface {
	Authorize(ctx context.Context, pin string) (bool, error)
}

// StrictPIN guards destructive actions while strict mode is on. With strict
// mode off every request passes.
func StrictPIN(guard StrictAuthorizer, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if RequireStrictPIN(c, guard, logger) {
			c.Next()
		}
	}
}

// RequireStrictPIN checks the PIN header for a guarded action. When the
// action may not proceed it aborts c with the error response and returns
// false.
func RequireStrictPIN(c *gin.Context, guard StrictAuthorizer, logger *slog.Logger) bool {
	ok, err := guard.Authorize(c.Request.Context(), c.GetHeader(PINHeader))
	if err != nil {
		logger.Error("Failed to check strict mode",
			"component", "api",
			"request_id", c.GetString(RequestIDKey),
			"error", err,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to check strict mode",
			"code":  "INTERNAL_ERROR",
		})
		return false
	}
	if !ok {
		logger.Warn("Strict mode blocked action",
			"component", "api",
			"request_id", c.GetString(RequestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Strict mode is on; a valid PIN is required",
			"code":  "STRICT_MODE_PIN_REQUIRED",
		})
		return false
	}
	return true
}
