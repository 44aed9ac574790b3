package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"focusguard/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

// StrictModeManager switches strict mode
type StrictModeManager interface {
	Enabled(ctx context.Context) (bool, error)
	Enable(ctx context.Context, pin string) error
	Disable(ctx context.Context, pin string) (bool, error)
}

// StrictHandler handles strict mode requests
type StrictHandler struct {
	guard  StrictModeManager
	logger *slog.Logger
}

// NewStrictHandler creates a new strict mode handler
func NewStrictHandler(guard StrictModeManager, logger *slog.Logger) *StrictHandler {
	return &StrictHandler{
		guard:  guard,
		logger: logger,
	}
}

type pinRequest struct {
	PIN string `json:"pin" binding:"required"`
}

// GetStatus reports whether strict mode is on
// GET /v1/strict
func (h *StrictHandler) GetStatus(c *gin.Context) {
	enabled, err := h.guard.Enabled(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Failed to read strict mode", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

// Enable turns strict mode on with a new PIN
// POST /v1/strict/enable
func (h *StrictHandler) Enable(c *gin.Context) {
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.guard.Enable(c.Request.Context(), req.PIN); err != nil {
		respondError(c, h.logger, "Failed to enable strict mode", err)
		return
	}

	h.logger.Info("Strict mode enabled", "component", "api")
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

// Disable turns strict mode off when the PIN matches
// POST /v1/strict/disable
func (h *StrictHandler) Disable(c *gin.Context) {
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ok, err := h.guard.Disable(c.Request.Context(), req.PIN)
	if err != nil {
		respondError(c, h.logger, "Failed to disable strict mode", err)
		return
	}
	if !ok {
		h.logger.Warn("Strict mode disable refused", "component", "api")
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Wrong PIN",
			"code":  "WRONG_PIN",
		})
		return
	}

	h.logger.Info("Strict mode disabled", "component", "api")
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

// PINCheck enforces the strict-mode PIN for a change that loosens
// enforcement. It writes the error response and returns false when the
// request must stop.
type PINCheck func(c *gin.Context) bool

// NewPINCheck checks the PIN header against guard
func NewPINCheck(guard middleware.StrictAuthorizer, logger *slog.Logger) PINCheck {
	return func(c *gin.Context) bool {
		return middleware.RequireStrictPIN(c, guard, logger)
	}
}

func (f PINCheck) allow(c *gin.Context) bool {
	return f == nil || f(c)
}
