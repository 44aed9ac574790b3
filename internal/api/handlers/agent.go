package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"focusguard/internal/agent"

	"github.com/gin-gonic/gin"
)

// AgentBridge receives device agent reports and hands out overlay directives
type AgentBridge interface {
	ReportForeground(report agent.ForegroundReport) error
	ReportUsageStats(report agent.UsageStatsReport) error
	Directive() (agent.Directive, bool)
	AckDismissed(handle string) error
}

// AgentHandler handles requests from the on-device agent
type AgentHandler struct {
	bridge AgentBridge
	logger *slog.Logger
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(bridge AgentBridge, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{
		bridge: bridge,
		logger: logger.With("component", "agent-api"),
	}
}

// ReportForeground records the app currently in the foreground
// POST /v1/agent/foreground
func (h *AgentHandler) ReportForeground(c *gin.Context) {
	var report agent.ForegroundReport
	if err := c.ShouldBindJSON(&report); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.bridge.ReportForeground(report); err != nil {
		h.reportError(c, "foreground", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReportUsageStats records the system's usage statistics for a window
// POST /v1/agent/usage-stats
func (h *AgentHandler) ReportUsageStats(c *gin.Context) {
	var report agent.UsageStatsReport
	if err := c.ShouldBindJSON(&report); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.bridge.ReportUsageStats(report); err != nil {
		h.reportError(c, "usage stats", err)
		return
	}

	h.logger.Debug("usage stats received",
		"start", report.Start,
		"end", report.End,
		"apps", len(report.UsageMillis),
	)
	c.Status(http.StatusNoContent)
}

// GetDirective returns the overlay the agent should draw, or null
// GET /v1/agent/directive
func (h *AgentHandler) GetDirective(c *gin.Context) {
	directive, ok := h.bridge.Directive()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"directive": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"directive": directive})
}

// AckDismissed tells the server the user closed the overlay
// POST /v1/agent/directive/:handle/dismissed
func (h *AgentHandler) AckDismissed(c *gin.Context) {
	handle := c.Param("handle")
	if err := h.bridge.AckDismissed(handle); err != nil {
		if errors.Is(err, agent.ErrUnknownOverlay) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Overlay not found",
				"code":  "OVERLAY_NOT_FOUND",
			})
			return
		}
		h.logger.Error("failed to acknowledge dismissal", "handle", handle, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to acknowledge dismissal",
			"code":  "INTERNAL_ERROR",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AgentHandler) reportError(c *gin.Context, kind string, err error) {
	if errors.Is(err, agent.ErrInvalidReport) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid " + kind + " report",
			"code":    "INVALID_REPORT",
			"details": err.Error(),
		})
		return
	}
	h.logger.Error("failed to record agent report", "kind", kind, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Failed to record report",
		"code":  "INTERNAL_ERROR",
	})
}
