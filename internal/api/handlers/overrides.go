package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"focusguard/internal/core"
	"focusguard/internal/intervention"

	"github.com/gin-gonic/gin"
)

const defaultOverrideListLimit = 50

// OverrideGranter hands out emergency overrides and extensions
type OverrideGranter interface {
	IssueChallenge(packageID string) (*intervention.Challenge, error)
	SubmitOverride(ctx context.Context, challengeID string, answer int, reason string, minutes int) (bool, error)
	GrantExtension(ctx context.Context, packageID string) error
	AllowedUntil(packageID string) (time.Time, bool)
}

// OverridesHandler handles emergency overrides
type OverridesHandler struct {
	log       core.OverrideLogStorage
	presenter OverrideGranter
	logger    *slog.Logger
}

// NewOverridesHandler creates a new overrides handler
func NewOverridesHandler(log core.OverrideLogStorage, presenter OverrideGranter, logger *slog.Logger) *OverridesHandler {
	return &OverridesHandler{
		log:       log,
		presenter: presenter,
		logger:    logger,
	}
}

// ListOverrides returns the most recent overrides, newest first
// GET /v1/overrides?limit=
func (h *OverridesHandler) ListOverrides(c *gin.Context) {
	limit := defaultOverrideListLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be a positive integer",
				"code":  "INVALID_LIMIT",
			})
			return
		}
		limit = n
	}

	entries, err := h.log.ListOverrides(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, "Failed to retrieve overrides", err)
		return
	}

	response := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		response = append(response, gin.H{
			"id":               e.ID,
			"package_id":       e.PackageID,
			"timestamp":        e.Timestamp.Format(time.RFC3339),
			"reason":           e.Reason,
			"duration_minutes": e.DurationMinutes,
		})
	}
	c.JSON(http.StatusOK, response)
}

// IssueChallenge creates the arithmetic challenge gating an override
// POST /v1/overrides/challenge
func (h *OverridesHandler) IssueChallenge(c *gin.Context) {
	var req struct {
		PackageID string `json:"package_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	challenge, err := h.presenter.IssueChallenge(req.PackageID)
	if err != nil {
		respondError(c, h.logger, "Failed to issue challenge", err, "package_id", req.PackageID)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"challenge_id": challenge.ID,
		"package_id":   challenge.PackageID,
		"question":     challenge.Question,
		"expires_at":   challenge.ExpiresAt.Format(time.RFC3339),
	})
}

// SubmitOverride answers a challenge. A wrong answer is not an error: the
// response says granted=false and the challenge stays open.
// POST /v1/overrides/submit
func (h *OverridesHandler) SubmitOverride(c *gin.Context) {
	var req struct {
		ChallengeID string `json:"challenge_id" binding:"required"`
		Answer      *int   `json:"answer" binding:"required"`
		Reason      string `json:"reason"`
		Minutes     int    `json:"minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Minutes == 0 {
		req.Minutes = intervention.ExtensionMinutes
	}

	granted, err := h.presenter.SubmitOverride(c.Request.Context(), req.ChallengeID, *req.Answer, req.Reason, req.Minutes)
	if err != nil {
		respondError(c, h.logger, "Failed to submit override", err, "challenge_id", req.ChallengeID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"granted": granted,
	})
}

// GrantExtension gives an app five more minutes
// POST /v1/overrides/extend
func (h *OverridesHandler) GrantExtension(c *gin.Context) {
	var req struct {
		PackageID string `json:"package_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.presenter.GrantExtension(c.Request.Context(), req.PackageID); err != nil {
		respondError(c, h.logger, "Failed to grant extension", err, "package_id", req.PackageID)
		return
	}

	response := gin.H{
		"granted":    true,
		"package_id": req.PackageID,
	}
	if until, ok := h.presenter.AllowedUntil(req.PackageID); ok {
		response["allowed_until"] = until.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, response)
}
