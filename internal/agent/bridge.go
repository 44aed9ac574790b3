// Package agent connects the daemon to the on-device platform agent. The
// agent reports the foreground app and system usage stats over HTTP and
// polls for overlay directives; the Bridge turns those reports into the
// sources the monitor and scheduler read from.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"focusguard/internal/core"
	"focusguard/internal/idgen"
	"focusguard/internal/intervention"
	"focusguard/internal/monitor"
	"focusguard/internal/scheduler"
)

var (
	ErrNoUsageStats    = errors.New("no usage stats snapshot covers the window")
	ErrInvalidReport   = errors.New("invalid agent report")
	ErrUnknownOverlay  = errors.New("unknown overlay handle")
	ErrMissingToken    = errors.New("agent token is required")
	ErrMissingURL      = errors.New("server url is required")
	ErrInvalidInterval = errors.New("poll interval must be positive")
)

// DefaultStaleAfter is how long a foreground report stays valid
const DefaultStaleAfter = 10 * time.Second

// keep snapshots for today and yesterday only
const maxSnapshots = 2

// ForegroundReport is posted by the agent when the foreground app changes
// and periodically while it stays
type ForegroundReport struct {
	PackageID  string    `json:"package_id"`
	ObservedAt time.Time `json:"observed_at"`
}

// UsageStatsReport is the system's per-app foreground time for [Start, End)
type UsageStatsReport struct {
	Start       time.Time        `json:"start"`
	End         time.Time        `json:"end"`
	UsageMillis map[string]int64 `json:"usage_ms"`
}

// Directive tells the agent which overlay to draw
type Directive struct {
	Handle            string    `json:"handle"`
	PackageID         string    `json:"package_id"`
	Decision          string    `json:"decision"`
	Rule              string    `json:"rule"`
	UsageMillis       int64     `json:"usage_ms"`
	LimitMinutes      int64     `json:"limit_minutes"`
	NavigateHome      bool      `json:"navigate_home"`
	OverrideAvailable bool      `json:"override_available"`
	IssuedAt          time.Time `json:"issued_at"`
}

// Bridge holds the latest agent reports and the pending overlay directive
type Bridge struct {
	clock      core.Clock
	staleAfter time.Duration
	logger     *slog.Logger

	mu           sync.Mutex
	foreground   string
	foregroundAt time.Time
	snapshots    []UsageStatsReport
	directive    *Directive
	onDismissed  func(handle string) bool
}

// NewBridge creates a new bridge
func NewBridge(clock core.Clock, staleAfter time.Duration, logger *slog.Logger) *Bridge {
	if clock == nil {
		clock = core.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Bridge{
		clock:      clock,
		staleAfter: staleAfter,
		logger:     logger.With("component", "agent-bridge"),
	}
}

// OnDismissed registers fn to be told when the agent reports that the user
// closed an overlay
func (b *Bridge) OnDismissed(fn func(handle string) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDismissed = fn
}

// ReportForeground records the foreground app. Reports older than the one
// already held are ignored.
func (b *Bridge) ReportForeground(report ForegroundReport) error {
	if report.PackageID == "" {
		return ErrInvalidReport
	}
	now := b.clock.Now()
	if report.ObservedAt.IsZero() || report.ObservedAt.After(now) {
		report.ObservedAt = now
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if report.ObservedAt.Before(b.foregroundAt) {
		b.logger.Debug("ignoring out-of-order foreground report",
			"package_id", report.PackageID,
			"observed_at", report.ObservedAt)
		return nil
	}
	if report.PackageID != b.foreground {
		b.logger.Debug("foreground changed", "package_id", report.PackageID, "previous", b.foreground)
	}
	b.foreground = report.PackageID
	b.foregroundAt = report.ObservedAt
	return nil
}

// CurrentForegroundApp returns the last reported app, or ok=false when no
// fresh report exists
func (b *Bridge) CurrentForegroundApp(ctx context.Context) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.foreground == "" {
		return "", false, nil
	}
	if b.clock.Now().Sub(b.foregroundAt) > b.staleAfter {
		return "", false, nil
	}
	return b.foreground, true, nil
}

// ReportUsageStats stores a usage stats snapshot. A newer snapshot for the
// same window start replaces the older one.
func (b *Bridge) ReportUsageStats(report UsageStatsReport) error {
	if report.Start.IsZero() || !report.End.After(report.Start) {
		return ErrInvalidReport
	}
	for pkg, ms := range report.UsageMillis {
		if pkg == "" || ms < 0 {
			return ErrInvalidReport
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	replaced := false
	for i, s := range b.snapshots {
		if s.Start.Equal(report.Start) {
			if report.End.After(s.End) {
				b.snapshots[i] = report
			}
			replaced = true
			break
		}
	}
	if !replaced {
		b.snapshots = append(b.snapshots, report)
	}

	sort.Slice(b.snapshots, func(i, j int) bool {
		return b.snapshots[i].Start.After(b.snapshots[j].Start)
	})
	if len(b.snapshots) > maxSnapshots {
		b.snapshots = b.snapshots[:maxSnapshots]
	}

	b.logger.Debug("usage stats received",
		"start", report.Start,
		"end", report.End,
		"packages", len(report.UsageMillis))
	return nil
}

// QuerySystemUsage returns the snapshot for [start, end). A snapshot is
// usable when it starts at start and does not extend past end; totals only
// grow, so an earlier end is a safe lower bound.
func (b *Bridge) QuerySystemUsage(ctx context.Context, start, end time.Time) (map[string]time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.snapshots {
		if !s.Start.Equal(start) || s.End.After(end) {
			continue
		}
		out := make(map[string]time.Duration, len(s.UsageMillis))
		for pkg, ms := range s.UsageMillis {
			out[pkg] = time.Duration(ms) * time.Millisecond
		}
		return out, nil
	}
	return nil, ErrNoUsageStats
}

// Present queues an overlay directive for the agent
func (b *Bridge) Present(ctx context.Context, packageID string, oc intervention.OverlayContext) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := &Directive{
		Handle:            idgen.NewOverlay(),
		PackageID:         packageID,
		Decision:          oc.Decision,
		Rule:              oc.Rule,
		UsageMillis:       oc.Usage.Milliseconds(),
		LimitMinutes:      oc.LimitMinutes,
		NavigateHome:      oc.NavigateHome,
		OverrideAvailable: oc.OverrideAvailable,
		IssuedAt:          b.clock.Now(),
	}
	b.directive = d
	b.logger.Info("overlay directive queued", "handle", d.Handle, "package_id", packageID)
	return d.Handle, nil
}

// Dismiss withdraws the directive with handle. Unknown handles are ignored.
func (b *Bridge) Dismiss(ctx context.Context, handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.directive != nil && b.directive.Handle == handle {
		b.directive = nil
		b.logger.Info("overlay directive withdrawn", "handle", handle)
	}
	return nil
}

// Directive returns the pending overlay directive
func (b *Bridge) Directive() (Directive, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.directive == nil {
		return Directive{}, false
	}
	return *b.directive, true
}

// AckDismissed handles the agent telling us the user closed the overlay
func (b *Bridge) AckDismissed(handle string) error {
	b.mu.Lock()
	if b.directive == nil || b.directive.Handle != handle {
		b.mu.Unlock()
		return ErrUnknownOverlay
	}
	b.directive = nil
	fn := b.onDismissed
	b.mu.Unlock()

	// The presenter calls back into Present and Dismiss under its own lock
	if fn != nil {
		fn(handle)
	}
	b.logger.Info("overlay dismissed by user", "handle", handle)
	return nil
}

var (
	_ monitor.ForegroundSource    = (*Bridge)(nil)
	_ scheduler.UsageStatsSource  = (*Bridge)(nil)
	_ intervention.OverlaySurface = (*Bridge)(nil)
)
