package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"focusguard/internal/core"

	"github.com/gin-gonic/gin"
)

// DecisionChecker resolves the effective policy of an app
type DecisionChecker interface {
	Check(ctx context.Context, packageID string, now time.Time) (*core.Verdict, error)
}

// AllowanceReader reports temporary allowances from overrides and extensions
type AllowanceReader interface {
	AllowedUntil(packageID string) (time.Time, bool)
}

// DecisionsHandler explains what the resolver decides for an app right now
type DecisionsHandler struct {
	resolver   DecisionChecker
	allowances AllowanceReader
	clock      core.Clock
	logger     *slog.Logger
}

// NewDecisionsHandler creates a new decisions handler. allowances may be nil.
func NewDecisionsHandler(resolver DecisionChecker, allowances AllowanceReader, clock core.Clock, logger *slog.Logger) *DecisionsHandler {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &DecisionsHandler{
		resolver:   resolver,
		allowances: allowances,
		clock:      clock,
		logger:     logger,
	}
}

// GetDecision returns the verdict for an app
// GET /v1/decisions/:package
func (h *DecisionsHandler) GetDecision(c *gin.Context) {
	packageID := c.Param("package")
	now := h.clock.Now()

	verdict, err := h.resolver.Check(c.Request.Context(), packageID, now)
	if err != nil {
		respondError(c, h.logger, "Failed to resolve decision", err, "package_id", packageID)
		return
	}

	response := gin.H{
		"package_id": packageID,
		"decision":   string(verdict.Decision.Kind),
		"rule":       verdict.Decision.Rule,
		"usage_ms":   verdict.Usage.Milliseconds(),
		"exceeded":   verdict.Exceeded,
		"at":         verdict.At.Format(time.RFC3339),
	}
	if verdict.Decision.Kind == core.DecisionLimited {
		response["limit_minutes"] = verdict.Decision.LimitMinutes
	}
	if h.allowances != nil {
		if until, ok := h.allowances.AllowedUntil(packageID); ok && until.After(now) {
			response["allowed_until"] = until.Format(time.RFC3339)
		}
	}

	c.JSON(http.StatusOK, response)
}
