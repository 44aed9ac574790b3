package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"focusguard/internal/core"

	"github.com/gin-gonic/gin"
)

// ProfileManager is the profile surface used by the API
type ProfileManager interface {
	CreateProfile(ctx context.Context, profile *core.FocusProfile) (*core.FocusProfile, error)
	GetProfile(ctx context.Context, id string) (*core.FocusProfile, error)
	ListProfiles(ctx context.Context) ([]*core.FocusProfile, error)
	UpdateProfile(ctx context.Context, profile *core.FocusProfile) (*core.FocusProfile, error)
	DeleteProfile(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) (*core.FocusProfile, error)
	Deactivate(ctx context.Context, id string) (*core.FocusProfile, error)
	SetPolicy(ctx context.Context, policy *core.ProfileAppPolicy) error
	RemovePolicy(ctx context.Context, profileID, packageID string) error
	Policies(ctx context.Context, profileID string) ([]*core.ProfileAppPolicy, error)
	EffectiveProfilesAt(ctx context.Context, t time.Time) ([]*core.FocusProfile, error)
}

// ProfilesHandler handles focus profile requests
type ProfilesHandler struct {
	profiles ProfileManager
	clock    core.Clock
	pin      PINCheck
	logger   *slog.Logger
}

// NewProfilesHandler creates a new profiles handler. Changes that let apps
// run longer go through pin.
func NewProfilesHandler(profiles ProfileManager, clock core.Clock, pin PINCheck, logger *slog.Logger) *ProfilesHandler {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &ProfilesHandler{
		profiles: profiles,
		clock:    clock,
		pin:      pin,
		logger:   logger,
	}
}

// profileRequest is the body of create and update calls. Nil fields are
// left untouched on update.
type profileRequest struct {
	Name            *string `json:"name"`
	ScheduleEnabled *bool   `json:"schedule_enabled"`
	ScheduleStart   *string `json:"schedule_start"` // "HH:MM"
	ScheduleEnd     *string `json:"schedule_end"`   // "HH:MM"
	DaysOfWeek      []int   `json:"days_of_week"`   // 1 = Monday ... 7 = Sunday
}

func (r *profileRequest) apply(profile *core.FocusProfile) error {
	if r.Name != nil {
		profile.Name = *r.Name
	}
	if r.ScheduleEnabled != nil {
		profile.ScheduleEnabled = *r.ScheduleEnabled
	}
	if r.ScheduleStart != nil {
		m, err := parseClock(*r.ScheduleStart)
		if err != nil {
			return err
		}
		profile.ScheduleStart = m
	}
	if r.ScheduleEnd != nil {
		m, err := parseClock(*r.ScheduleEnd)
		if err != nil {
			return err
		}
		profile.ScheduleEnd = m
	}
	if r.DaysOfWeek != nil {
		profile.DaysOfWeek = r.DaysOfWeek
	}
	return nil
}

// ListProfiles returns all profiles
// GET /v1/profiles
func (h *ProfilesHandler) ListProfiles(c *gin.Context) {
	profiles, err := h.profiles.ListProfiles(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Failed to retrieve profiles", err)
		return
	}
	c.JSON(http.StatusOK, h.formatProfiles(profiles))
}

// CreateProfile creates a new profile
// POST /v1/profiles
func (h *ProfilesHandler) CreateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	profile := &core.FocusProfile{}
	if err := req.apply(profile); err != nil {
		badRequest(c, err)
		return
	}

	created, err := h.profiles.CreateProfile(c.Request.Context(), profile)
	if err != nil {
		respondError(c, h.logger, "Failed to create profile", err)
		return
	}

	h.logger.Info("Profile created",
		"component", "api",
		"profile_id", created.ID,
		"name", created.Name,
	)
	c.JSON(http.StatusCreated, h.formatProfile(created, nil))
}

// GetProfile returns a profile with its app policies
// GET /v1/profiles/:id
func (h *ProfilesHandler) GetProfile(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	profile, err := h.profiles.GetProfile(ctx, id)
	if err != nil {
		respondError(c, h.logger, "Failed to retrieve profile", err, "profile_id", id)
		return
	}
	policies, err := h.profiles.Policies(ctx, id)
	if err != nil {
		respondError(c, h.logger, "Failed to retrieve profile policies", err, "profile_id", id)
		return
	}
	c.JSON(http.StatusOK, h.formatProfile(profile, policies))
}

// UpdateProfile changes name, schedule or days of a profile
// PATCH /v1/profiles/:id
func (h *ProfilesHandler) UpdateProfile(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	profile, err := h.profiles.GetProfile(ctx, id)
	if err != nil {
		respondError(c, h.logger, "Failed to retrieve profile", err, "profile_id", id)
		return
	}
	before := *profile
	if err := req.apply(profile); err != nil {
		badRequest(c, err)
		return
	}
	if core.ScheduleNarrowed(&before, profile) && !h.pin.allow(c) {
		return
	}

	updated, err := h.profiles.UpdateProfile(ctx, profile)
	if err != nil {
		respondError(c, h.logger, "Failed to update profile", err, "profile_id", id)
		return
	}

	h.logger.Info("Profile updated",
		"component", "api",
		"profile_id", id,
	)
	c.JSON(http.StatusOK, h.formatProfile(updated, nil))
}

// DeleteProfile deletes a profile and its policies
// DELETE /v1/profiles/:id
func (h *ProfilesHandler) DeleteProfile(c *gin.Context) {
	id := c.Param("id")
	if err := h.profiles.DeleteProfile(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "Failed to delete profile", err, "profile_id", id)
		return
	}

	h.logger.Info("Profile deleted",
		"component", "api",
		"profile_id", id,
	)
	c.Status(http.StatusNoContent)
}

// SetPolicy creates or replaces the policy of a profile for one app
// PUT /v1/profiles/:id/apps/:package
func (h *ProfilesHandler) SetPolicy(c *gin.Context) {
	var req struct {
		LimitMinutes *int64 `json:"limit_minutes" binding:"required"` // 0 blocks, -1 unlimited
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	policy := &core.ProfileAppPolicy{
		ProfileID:    c.Param("id"),
		PackageID:    c.Param("package"),
		LimitMinutes: *req.LimitMinutes,
	}
	ctx := c.Request.Context()

	prev, err := h.findPolicy(ctx, policy.ProfileID, policy.PackageID)
	if err != nil {
		respondError(c, h.logger, "Failed to retrieve profile policies", err, "profile_id", policy.ProfileID)
		return
	}
	if core.PolicyLoosened(prev, policy) && !h.pin.allow(c) {
		return
	}

	if err := h.profiles.SetPolicy(ctx, policy); err != nil {
		respondError(c, h.logger, "Failed to save policy", err,
			"profile_id", policy.ProfileID,
			"package_id", policy.PackageID,
		)
		return
	}

	c.JSON(http.StatusOK, formatPolicy(policy))
}

// RemovePolicy deletes the policy of a profile for one app
// DELETE /v1/profiles/:id/apps/:package
func (h *ProfilesHandler) RemovePolicy(c *gin.Context) {
	id, packageID := c.Param("id"), c.Param("package")
	ctx := c.Request.Context()

	prev, err := h.findPolicy(ctx, id, packageID)
	if err != nil {
		respondError(c, h.logger, "Failed to retrieve profile policies", err, "profile_id", id)
		return
	}
	if core.PolicyLoosened(prev, nil) && !h.pin.allow(c) {
		return
	}

	if err := h.profiles.RemovePolicy(ctx, id, packageID); err != nil {
		respondError(c, h.logger, "Failed to delete policy", err,
			"profile_id", id,
			"package_id", packageID,
		)
		return
	}
	c.Status(http.StatusNoContent)
}

// Activate turns manual activation on. A profile with unlimited apps goes
// through pin.
// POST /v1/profiles/:id/activate
func (h *ProfilesHandler) Activate(c *gin.Context) {
	policies, err := h.profiles.Policies(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "Failed to retrieve profile policies", err, "profile_id", c.Param("id"))
		return
	}
	if core.ActivationLoosens(policies) && !h.pin.allow(c) {
		return
	}
	h.setManual(c, h.profiles.Activate, "Profile activated")
}

// Deactivate turns manual activation off
// POST /v1/profiles/:id/deactivate
func (h *ProfilesHandler) Deactivate(c *gin.Context) {
	h.setManual(c, h.profiles.Deactivate, "Profile deactivated")
}

func (h *ProfilesHandler) setManual(c *gin.Context, fn func(context.Context, string) (*core.FocusProfile, error), msg string) {
	id := c.Param("id")
	profile, err := fn(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "Failed to change profile activation", err, "profile_id", id)
		return
	}

	h.logger.Info(msg,
		"component", "api",
		"profile_id", id,
	)
	c.JSON(http.StatusOK, h.formatProfile(profile, nil))
}

// findPolicy returns the stored policy of packageID in a profile, or nil
func (h *ProfilesHandler) findPolicy(ctx context.Context, profileID, packageID string) (*core.ProfileAppPolicy, error) {
	policies, err := h.profiles.Policies(ctx, profileID)
	if err != nil {
		return nil, err
	}
	for _, p := range policies {
		if p.PackageID == packageID {
			return p, nil
		}
	}
	return nil, nil
}

// GetEffective returns the profiles in force right now
// GET /v1/profiles/effective
func (h *ProfilesHandler) GetEffective(c *gin.Context) {
	profiles, err := h.profiles.EffectiveProfilesAt(c.Request.Context(), h.clock.Now())
	if err != nil {
		respondError(c, h.logger, "Failed to resolve effective profiles", err)
		return
	}
	c.JSON(http.StatusOK, h.formatProfiles(profiles))
}

func (h *ProfilesHandler) formatProfiles(profiles []*core.FocusProfile) []gin.H {
	response := make([]gin.H, 0, len(profiles))
	for _, profile := range profiles {
		response = append(response, h.formatProfile(profile, nil))
	}
	return response
}

func (h *ProfilesHandler) formatProfile(profile *core.FocusProfile, policies []*core.ProfileAppPolicy) gin.H {
	days := profile.DaysOfWeek
	if days == nil {
		days = []int{}
	}
	response := gin.H{
		"id":                 profile.ID,
		"name":               profile.Name,
		"is_manually_active": profile.IsManuallyActive,
		"schedule_enabled":   profile.ScheduleEnabled,
		"schedule_start":     formatClock(profile.ScheduleStart),
		"schedule_end":       formatClock(profile.ScheduleEnd),
		"days_of_week":       days,
		"created_at":         profile.CreatedAt.Format(time.RFC3339),
		"updated_at":         profile.UpdatedAt.Format(time.RFC3339),
	}
	if policies != nil {
		apps := make([]gin.H, 0, len(policies))
		for _, p := range policies {
			apps = append(apps, formatPolicy(p))
		}
		response["apps"] = apps
	}
	return response
}

func formatPolicy(p *core.ProfileAppPolicy) gin.H {
	return gin.H{
		"profile_id":    p.ProfileID,
		"package_id":    p.PackageID,
		"limit_minutes": p.LimitMinutes,
	}
}

// parseClock parses "HH:MM" into minutes since midnight
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, use HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
