package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"focusguard/internal/core"

	"github.com/gin-gonic/gin"
)

// UsageReader is the read side of the usage ledger
type UsageReader interface {
	Timezone() *time.Location
	TotalFor(ctx context.Context, packageID string, day time.Time) (time.Duration, error)
	UsageForDay(ctx context.Context, day time.Time) ([]*core.UsageRecord, error)
	DailyTotals(ctx context.Context) ([]core.DailyTotal, error)
}

// UsageHandler handles usage statistics requests
type UsageHandler struct {
	ledger UsageReader
	clock  core.Clock
	logger *slog.Logger
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(ledger UsageReader, clock core.Clock, logger *slog.Logger) *UsageHandler {
	if clock == nil {
		clock = core.RealClock{}
	}
	return &UsageHandler{
		ledger: ledger,
		clock:  clock,
		logger: logger,
	}
}

// GetDay returns per-app usage for today or ?date=YYYY-MM-DD, longest first
// GET /v1/usage/today
func (h *UsageHandler) GetDay(c *gin.Context) {
	day, ok := parseDay(c, h.clock.Now(), h.ledger.Timezone())
	if !ok {
		return
	}

	records, err := h.ledger.UsageForDay(c.Request.Context(), day)
	if err != nil {
		respondError(c, h.logger, "Failed to retrieve usage", err)
		return
	}

	var total time.Duration
	apps := make([]gin.H, 0, len(records))
	for _, r := range records {
		total += r.Duration
		apps = append(apps, gin.H{
			"package_id":   r.PackageID,
			"usage_ms":     r.Duration.Milliseconds(),
			"usage_min":    minutesOf(r.Duration),
			"last_updated": r.LastUpdated.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"date":      core.NormalizeDate(day, h.ledger.Timezone()).Format("2006-01-02"),
		"total_ms":  total.Milliseconds(),
		"total_min": minutesOf(total),
		"apps":      apps,
	})
}

// GetDailyTotals returns the total usage of every recorded day
// GET /v1/usage/daily
func (h *UsageHandler) GetDailyTotals(c *gin.Context) {
	totals, err := h.ledger.DailyTotals(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Failed to retrieve daily totals", err)
		return
	}

	response := make([]gin.H, 0, len(totals))
	for _, t := range totals {
		response = append(response, gin.H{
			"date":      t.Day.Format("2006-01-02"),
			"total_ms":  t.Total.Milliseconds(),
			"total_min": minutesOf(t.Total),
		})
	}
	c.JSON(http.StatusOK, response)
}

// GetPackage returns one app's usage for today or ?date=YYYY-MM-DD
// GET /v1/usage/:package
func (h *UsageHandler) GetPackage(c *gin.Context) {
	packageID := c.Param("package")
	day, ok := parseDay(c, h.clock.Now(), h.ledger.Timezone())
	if !ok {
		return
	}

	total, err := h.ledger.TotalFor(c.Request.Context(), packageID, day)
	if err != nil {
		respondError(c, h.logger, "Failed to retrieve usage", err, "package_id", packageID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"package_id": packageID,
		"date":       core.NormalizeDate(day, h.ledger.Timezone()).Format("2006-01-02"),
		"usage_ms":   total.Milliseconds(),
		"usage_min":  minutesOf(total),
	})
}
