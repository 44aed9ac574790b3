package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logging logs HTTP requests with structured fields. Health probes, agent
// polling and scanner noise are logged at debug level.
func Logging(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log after request
		latency := time.Since(start)
		statusCode := c.Writer.Status()
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		level := slog.LevelInfo
		switch {
		case statusCode >= http.StatusInternalServerError:
			level = slog.LevelError
		case isQuietPath(c.Request.Method, path):
			level = slog.LevelDebug
		case statusCode == http.StatusNotFound && isScannerPath(path):
			level = slog.LevelDebug
		case statusCode >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		if raw != "" {
			path = path + "?" + raw
		}

		logger.Log(c.Request.Context(), level, "HTTP request",
			"component", "api",
			"request_id", c.GetString(RequestIDKey),
			"method", c.Request.Method,
			"path", path,
			"status", statusCode,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
			"error", errorMessage,
		)
	}
}

// isQuietPath matches the high-frequency endpoints polled every second
func isQuietPath(method, path string) bool {
	if path == "/health" {
		return true
	}
	if !strings.HasPrefix(path, "/v1/agent/") {
		return false
	}
	return method == http.MethodGet || strings.HasSuffix(path, "/foreground")
}

// isScannerPath checks if a path is commonly used by scanners
func isScannerPath(path string) bool {
	scannerPaths := []string{
		"/admin",
		"/phpmyadmin",
		"/wp-admin",
		"/wp-login",
		"/.env",
		"/.git",
		"/cgi-bin",
		"/actuator",
		"/favicon.ico",
		"/robots.txt",
	}

	lowercasePath := strings.ToLower(path)
	for _, scannerPath := range scannerPaths {
		if strings.HasPrefix(lowercasePath, scannerPath) {
			return true
		}
	}

	for _, ext := range []string{".php", ".asp", ".aspx", ".jsp", ".bak", ".sql"} {
		if strings.HasSuffix(lowercasePath, ext) {
			return true
		}
	}

	return false
}
