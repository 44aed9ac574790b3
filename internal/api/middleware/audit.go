package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// maxAuditBody bounds how much of a request body is kept for the audit log
const maxAuditBody = 4096

// Audit logs every state-changing request with its sanitized JSON body, so
// changes to limits, profiles and breaks can be traced afterwards
func Audit(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		start := time.Now()

		// Capture request body
		var requestBody interface{}
		if c.Request.Body != nil && c.Request.ContentLength > 0 && c.Request.ContentLength <= maxAuditBody {
			bodyBytes, err := io.ReadAll(c.Request.Body)
			if err == nil {
				// Restore the body for handlers
				c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

				if err := json.Unmarshal(bodyBytes, &requestBody); err != nil {
					requestBody = string(bodyBytes)
				}
			}
		}

		c.Next()

		logAttrs := []slog.Attr{
			slog.String("component", "audit"),
			slog.String("request_id", c.GetString(RequestIDKey)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("duration", time.Since(start).String()),
			slog.Bool("pin_supplied", c.GetHeader(PINHeader) != ""),
		}
		if sanitized := sanitizeData(requestBody); sanitized != nil {
			logAttrs = append(logAttrs, slog.Any("request_body", sanitized))
		}

		logger.LogAttrs(c.Request.Context(), slog.LevelInfo, "State change", logAttrs...)
	}
}

// sanitizeData removes sensitive fields from logged data
func sanitizeData(data interface{}) interface{} {
	if data == nil {
		return nil
	}

	if m, ok := data.(map[string]interface{}); ok {
		sanitized := make(map[string]interface{})
		for k, v := range m {
			switch k {
			case "pin", "new_pin", "answer", "token", "secret":
				sanitized[k] = "***REDACTED***"
			default:
				sanitized[k] = v
			}
		}
		return sanitized
	}

	return data
}
