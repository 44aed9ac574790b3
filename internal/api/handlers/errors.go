package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"focusguard/internal/api/middleware"
	"focusguard/internal/core"
	"focusguard/internal/intervention"

	"github.com/gin-gonic/gin"
)

// respondError maps domain errors onto the JSON error envelope. Anything
// unrecognized is logged and reported as an internal error.
func respondError(c *gin.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"

	switch {
	case errors.Is(err, core.ErrAppLimitNotFound):
		status, code = http.StatusNotFound, "LIMIT_NOT_FOUND"
	case errors.Is(err, core.ErrProfileNotFound):
		status, code = http.StatusNotFound, "PROFILE_NOT_FOUND"
	case errors.Is(err, core.ErrPolicyNotFound):
		status, code = http.StatusNotFound, "POLICY_NOT_FOUND"
	case errors.Is(err, core.ErrUsageNotFound):
		status, code = http.StatusNotFound, "USAGE_NOT_FOUND"
	case errors.Is(err, intervention.ErrChallengeNotFound):
		status, code = http.StatusNotFound, "CHALLENGE_NOT_FOUND"
	case errors.Is(err, core.ErrInvalidPackageID),
		errors.Is(err, core.ErrInvalidLimit),
		errors.Is(err, core.ErrInvalidInterval),
		errors.Is(err, core.ErrInvalidProfileName),
		errors.Is(err, core.ErrInvalidSchedule),
		errors.Is(err, core.ErrInvalidPolicy),
		errors.Is(err, core.ErrInvalidDuration),
		errors.Is(err, core.ErrInvalidPIN),
		errors.Is(err, intervention.ErrInvalidOverride):
		status, code = http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, core.ErrStrictModeEnabled),
		errors.Is(err, core.ErrStrictModeDisabled):
		status, code = http.StatusConflict, "STRICT_MODE_CONFLICT"
	}

	if status == http.StatusInternalServerError {
		logger.Error(msg,
			append([]any{
				"component", "api",
				"request_id", c.GetString(middleware.RequestIDKey),
				"error", err,
			}, attrs...)...,
		)
		c.JSON(status, gin.H{
			"error": msg,
			"code":  code,
		})
		return
	}

	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  code,
	})
}

// badRequest reports a malformed request body
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"code":    "INVALID_REQUEST",
		"details": err.Error(),
	})
}

// parseDay parses an optional ?date=YYYY-MM-DD in loc, defaulting to now
func parseDay(c *gin.Context, now time.Time, loc *time.Location) (time.Time, bool) {
	dateStr := c.Query("date")
	if dateStr == "" {
		return now, true
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid date format. Use YYYY-MM-DD",
			"code":  "INVALID_DATE_FORMAT",
		})
		return time.Time{}, false
	}
	return day, true
}

func minutesOf(d time.Duration) int64 {
	return int64(d / time.Minute)
}
