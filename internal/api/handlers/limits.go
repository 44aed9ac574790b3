package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"focusguard/internal/core"

	"github.com/gin-gonic/gin"
)

// LimitsHandler handles the flat per-app daily limits
type LimitsHandler struct {
	limits core.AppLimitStorage
	pin    PINCheck
	logger *slog.Logger
}

// NewLimitsHandler creates a new limits handler. Raising a limit goes
// through pin.
func NewLimitsHandler(limits core.AppLimitStorage, pin PINCheck, logger *slog.Logger) *LimitsHandler {
	return &LimitsHandler{
		limits: limits,
		pin:    pin,
		logger: logger,
	}
}

// ListLimits returns all app limits
// GET /v1/limits
func (h *LimitsHandler) ListLimits(c *gin.Context) {
	limits, err := h.limits.ListAppLimits(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Failed to retrieve limits", err)
		return
	}
	sort.Slice(limits, func(i, j int) bool { return limits[i].PackageID < limits[j].PackageID })

	response := make([]gin.H, 0, len(limits))
	for _, limit := range limits {
		response = append(response, formatLimitResponse(limit))
	}
	c.JSON(http.StatusOK, response)
}

// GetLimit returns the limit of one app
// GET /v1/limits/:package
func (h *LimitsHandler) GetLimit(c *gin.Context) {
	packageID := c.Param("package")
	limit, err := h.limits.GetAppLimit(c.Request.Context(), packageID)
	if err != nil {
		respondError(c, h.logger, "Failed to retrieve limit", err, "package_id", packageID)
		return
	}
	c.JSON(http.StatusOK, formatLimitResponse(limit))
}

// PutLimit creates or replaces the limit of one app
// PUT /v1/limits/:package
func (h *LimitsHandler) PutLimit(c *gin.Context) {
	var req struct {
		LimitMinutes                *int `json:"limit_minutes" binding:"required"`
		NotificationIntervalMinutes *int `json:"notification_interval_minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	limit := &core.AppLimit{
		PackageID:                   c.Param("package"),
		LimitMinutes:                *req.LimitMinutes,
		NotificationIntervalMinutes: req.NotificationIntervalMinutes,
	}
	if err := limit.Validate(); err != nil {
		respondError(c, h.logger, "Invalid limit", err)
		return
	}

	ctx := c.Request.Context()
	prev, err := h.limits.GetAppLimit(ctx, limit.PackageID)
	if err != nil && !errors.Is(err, core.ErrAppLimitNotFound) {
		respondError(c, h.logger, "Failed to retrieve limit", err, "package_id", limit.PackageID)
		return
	}
	if core.LimitLoosened(prev, limit) && !h.pin.allow(c) {
		return
	}

	if err := h.limits.SaveAppLimit(ctx, limit); err != nil {
		respondError(c, h.logger, "Failed to save limit", err, "package_id", limit.PackageID)
		return
	}

	h.logger.Info("App limit saved",
		"component", "api",
		"package_id", limit.PackageID,
		"limit_minutes", limit.LimitMinutes,
	)
	c.JSON(http.StatusOK, formatLimitResponse(limit))
}

// DeleteLimit removes the limit of one app
// DELETE /v1/limits/:package
func (h *LimitsHandler) DeleteLimit(c *gin.Context) {
	packageID := c.Param("package")
	if err := h.limits.DeleteAppLimit(c.Request.Context(), packageID); err != nil {
		respondError(c, h.logger, "Failed to delete limit", err, "package_id", packageID)
		return
	}

	h.logger.Info("App limit deleted",
		"component", "api",
		"package_id", packageID,
	)
	c.Status(http.StatusNoContent)
}

func formatLimitResponse(limit *core.AppLimit) gin.H {
	response := gin.H{
		"package_id":    limit.PackageID,
		"limit_minutes": limit.LimitMinutes,
		"created_at":    limit.CreatedAt.Format(time.RFC3339),
		"updated_at":    limit.UpdatedAt.Format(time.RFC3339),
	}
	if limit.NotificationIntervalMinutes != nil {
		response["notification_interval_minutes"] = *limit.NotificationIntervalMinutes
	}
	return response
}
