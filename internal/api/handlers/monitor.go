package handlers

import (
	"net/http"
	"time"

	"focusguard/internal/monitor"

	"github.com/gin-gonic/gin"
)

// MonitorReader exposes the monitor state
type MonitorReader interface {
	Snapshot() monitor.Snapshot
}

// OverlayReader reports which app the blocking overlay is shown for
type OverlayReader interface {
	Showing() (string, bool)
}

// MonitorHandler reports what the foreground monitor is doing
type MonitorHandler struct {
	monitor MonitorReader
	overlay OverlayReader
}

// NewMonitorHandler creates a new monitor handler. overlay may be nil.
func NewMonitorHandler(monitor MonitorReader, overlay OverlayReader) *MonitorHandler {
	return &MonitorHandler{
		monitor: monitor,
		overlay: overlay,
	}
}

// GetMonitor returns the monitor snapshot
// GET /v1/monitor
func (h *MonitorHandler) GetMonitor(c *gin.Context) {
	s := h.monitor.Snapshot()

	response := gin.H{
		"state":      string(s.State),
		"package_id": s.PackageID,
		"ticks":      s.Ticks,
	}
	if !s.Since.IsZero() {
		response["since"] = s.Since.Format(time.RFC3339)
	}
	if !s.LastTick.IsZero() {
		response["last_tick"] = s.LastTick.Format(time.RFC3339)
	}
	if s.LastError != "" {
		response["last_error"] = s.LastError
	}
	if h.overlay != nil {
		if pkg, ok := h.overlay.Showing(); ok {
			response["overlay_for"] = pkg
		}
	}

	c.JSON(http.StatusOK, response)
}
