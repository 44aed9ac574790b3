package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"focusguard/internal/core"

	"github.com/gin-gonic/gin"
)

// BreaksHandler handles the global break window
type BreaksHandler struct {
	breaks core.BreakManager
	clock  core.Clock
	pin    PINCheck
	logger *slog.Logger
}

// NewBreaksHandler creates a new breaks handler. A break that whitelists
// user apps goes through pin.
func NewBreaksHandler(breaks core.BreakManager, clock core.Clock, pin PINCheck, logger *slog.Logger) *BreaksHandler {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &BreaksHandler{
		breaks: breaks,
		clock:  clock,
		pin:    pin,
		logger: logger,
	}
}

// GetBreak returns the break state and the time left
// GET /v1/break
func (h *BreaksHandler) GetBreak(c *gin.Context) {
	c.JSON(http.StatusOK, h.formatBreak(h.breaks.Snapshot()))
}

// StartBreak starts or restarts the break. A profile_id takes the whitelist
// from the apps referenced by that profile.
// POST /v1/break/start
func (h *BreaksHandler) StartBreak(c *gin.Context) {
	var req struct {
		DurationMinutes int      `json:"duration_minutes" binding:"required,gt=0"`
		Whitelist       []string `json:"whitelist"`
		ProfileID       string   `json:"profile_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	// Whitelisted apps run past their limits during the break
	if (len(req.Whitelist) > 0 || req.ProfileID != "") && !h.pin.allow(c) {
		return
	}

	ctx := c.Request.Context()

	var (
		state *core.BreakState
		err   error
	)
	if req.ProfileID != "" {
		state, err = h.breaks.StartBreakWithProfile(ctx, req.DurationMinutes, req.ProfileID)
	} else {
		state, err = h.breaks.StartBreak(ctx, req.DurationMinutes, req.Whitelist)
	}
	if err != nil {
		respondError(c, h.logger, "Failed to start break", err,
			"duration_minutes", req.DurationMinutes,
			"profile_id", req.ProfileID,
		)
		return
	}

	c.JSON(http.StatusOK, h.formatBreak(*state))
}

// StopBreak ends the break early
// POST /v1/break/stop
func (h *BreaksHandler) StopBreak(c *gin.Context) {
	if err := h.breaks.StopBreak(c.Request.Context()); err != nil {
		respondError(c, h.logger, "Failed to stop break", err)
		return
	}
	c.JSON(http.StatusOK, h.formatBreak(h.breaks.Snapshot()))
}

func (h *BreaksHandler) formatBreak(state core.BreakState) gin.H {
	whitelist := state.Whitelist
	if whitelist == nil {
		whitelist = []string{}
	}
	response := gin.H{
		"active":            state.Active,
		"whitelist":         whitelist,
		"remaining_seconds": int64(state.Remaining(h.clock.Now()) / time.Second),
	}
	if !state.EndsAt.IsZero() {
		response["ends_at"] = state.EndsAt.Format(time.RFC3339)
	}
	return response
}
