package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"focusguard/internal/core"
	"focusguard/internal/intervention"
)

// State is the per-app monitoring state
type State string

const (
	StateIdle       State = "idle"
	StateMonitoring State = "monitoring"
	StateBlocked    State = "blocked"
)

// ForegroundSource reports the app currently in the foreground.
// ok=false means the source does not know, which is treated as no change.
type ForegroundSource interface {
	CurrentForegroundApp(ctx context.Context) (packageID string, ok bool, err error)
}

// UsageRecorder is the ledger surface used by the monitor
type UsageRecorder interface {
	AddUsage(ctx context.Context, packageID string, delta time.Duration, day time.Time) error
	TotalFor(ctx context.Context, packageID string, day time.Time) (time.Duration, error)
}

// Checker resolves the effective policy of an app against its usage
type Checker interface {
	Check(ctx context.Context, packageID string, now time.Time) (*core.Verdict, error)
}

// BreakExpirer stops a break whose end time has passed
type BreakExpirer interface {
	ExpireIfDue(ctx context.Context, now time.Time) (bool, error)
}

// Presenter shows and dismisses the blocking overlay
type Presenter interface {
	Show(ctx context.Context, packageID string, oc intervention.OverlayContext) (bool, error)
	DismissFor(ctx context.Context, packageID string) error
	Showing() (string, bool)
	Allowed(packageID string, now time.Time) bool
}

// Notifier sends milestone usage nudges
type Notifier interface {
	Check(ctx context.Context, packageID string, total, interval time.Duration, now time.Time) bool
}

// Dependencies are the collaborators of the monitor. Breaks, Notifier and
// Limits are optional.
type Dependencies struct {
	Source    ForegroundSource
	Ledger    UsageRecorder
	Resolver  Checker
	Breaks    BreakExpirer
	Presenter Presenter
	Notifier  Notifier
	Limits    core.AppLimitStorage
}

// Config holds the loop timing
type Config struct {
	PollInterval time.Duration
	// MaxTickGap is the largest delta credited for one tick; larger gaps
	// (device sleep, clock jumps) are clamped to PollInterval
	MaxTickGap time.Duration
	// SilenceGrace is how long an absent foreground keeps crediting the
	// current app. After that the app keeps its state but accrues nothing
	// until the source reports again.
	SilenceGrace time.Duration
}

// Snapshot is a read-only view of the monitor
type Snapshot struct {
	State     State
	PackageID string
	Since     time.Time
	LastTick  time.Time
	Ticks     uint64
	LastError string
}

// Monitor polls the foreground app, feeds the ledger and enforces decisions
type Monitor struct {
	deps   Dependencies
	config Config
	clock  core.Clock
	logger *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu        sync.Mutex
	state     State
	current   string
	since     time.Time
	lastTick  time.Time
	lastSeen  time.Time
	silent    bool
	ticks     uint64
	lastError string
}

// New creates a new monitor
func New(deps Dependencies, config Config, clock core.Clock, logger *slog.Logger) *Monitor {
	if clock == nil {
		clock = core.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.MaxTickGap <= 0 {
		config.MaxTickGap = 5 * config.PollInterval
	}
	if config.SilenceGrace <= 0 {
		config.SilenceGrace = config.MaxTickGap
	}
	return &Monitor{
		deps:     deps,
		config:   config,
		clock:    clock,
		logger:   logger.With("component", "monitor"),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		state:    StateIdle,
	}
}

// Start begins the monitoring loop (blocking)
func (m *Monitor) Start(ctx context.Context) {
	defer close(m.done)

	m.logger.Info("starting monitor loop",
		"poll_interval", m.config.PollInterval,
		"max_tick_gap", m.config.MaxTickGap,
	)

	ticker := m.clock.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	// Do an initial tick immediately
	m.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor loop stopped (context cancelled)")
			return
		case <-m.stopChan:
			m.logger.Info("monitor loop stopped")
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Stop signals the monitor to stop
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

// Done is closed when Start returns, after any in-flight tick
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Tick runs one monitoring iteration. Errors and panics are logged and
// never escape the tick.
func (m *Monitor) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic in monitor tick", "panic", r)
			m.mu.Lock()
			m.lastError = fmt.Sprintf("panic: %v", r)
			m.mu.Unlock()
		}
	}()

	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.ticks++
	m.lastError = ""

	if m.deps.Breaks != nil {
		expired, err := m.deps.Breaks.ExpireIfDue(ctx, now)
		if err != nil {
			m.recordError("expire break", err)
		} else if expired {
			m.logger.Info("break ended")
		}
	}

	pkg, ok, err := m.deps.Source.CurrentForegroundApp(ctx)
	if err != nil {
		m.recordError("foreground source", err)
		ok = false
	}
	absent := !ok || pkg == ""
	if absent {
		// Unknown foreground keeps the current app
		pkg = m.current
	} else {
		m.lastSeen = now
	}
	if pkg == "" {
		m.lastTick = now
		return
	}

	switch {
	case pkg != m.current:
		m.switchTo(ctx, pkg, now)
	case absent && now.Sub(m.lastSeen) > m.config.SilenceGrace:
		m.pause(pkg, now)
	default:
		if m.silent {
			m.silent = false
			m.logger.Info("foreground source back, resuming usage", "package_id", pkg)
		}
		m.credit(ctx, pkg, now)
	}

	m.enforce(ctx, pkg, now)
}

// Release returns a Blocked app to Monitoring after an override or
// extension. It is a no-op for any other app.
func (m *Monitor) Release(packageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != packageID || m.state != StateBlocked {
		return
	}
	m.state = StateMonitoring
	m.logger.Info("block released", "package_id", packageID)
}

// Snapshot returns a copy of the current state
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:     m.state,
		PackageID: m.current,
		Since:     m.since,
		LastTick:  m.lastTick,
		Ticks:     m.ticks,
		LastError: m.lastError,
	}
}

// switchTo credits the previous app, tears its state down and starts
// monitoring pkg from now
func (m *Monitor) switchTo(ctx context.Context, pkg string, now time.Time) {
	previous := m.current
	if previous != "" {
		m.credit(ctx, previous, now)
		if err := m.deps.Presenter.DismissFor(ctx, previous); err != nil {
			m.recordError("dismiss overlay", err)
		}
		m.logger.Debug("app left foreground", "package_id", previous, "state", m.state)
	}

	m.current = pkg
	m.state = StateMonitoring
	m.since = now
	m.lastTick = now
	m.silent = false

	m.logger.Debug("app entered foreground", "package_id", pkg, "previous", previous)
}

// pause advances lastTick without crediting while the source is silent
func (m *Monitor) pause(pkg string, now time.Time) {
	if !m.silent {
		m.silent = true
		m.logger.Warn("foreground source silent, pausing usage",
			"package_id", pkg,
			"last_seen", m.lastSeen,
			"grace", m.config.SilenceGrace)
	}
	m.lastTick = now
}

// credit adds the time since the last tick to pkg. lastTick advances even
// when the write fails so a delta is never applied twice.
func (m *Monitor) credit(ctx context.Context, pkg string, now time.Time) {
	delta := now.Sub(m.lastTick)
	if m.lastTick.IsZero() {
		delta = 0
	}
	if delta < 0 || delta > m.config.MaxTickGap {
		m.logger.Warn("clock skew, clamping tick delta",
			"package_id", pkg,
			"delta", delta,
			"clamped_to", m.config.PollInterval,
			"error", core.ErrClockSkew)
		delta = m.config.PollInterval
	}
	m.lastTick = now

	if delta == 0 {
		return
	}
	if err := m.deps.Ledger.AddUsage(ctx, pkg, delta, now); err != nil {
		m.recordError("add usage", err)
	}
}

// enforce resolves pkg and shows the overlay at most once per episode
func (m *Monitor) enforce(ctx context.Context, pkg string, now time.Time) {
	verdict, err := m.deps.Resolver.Check(ctx, pkg, now)
	if err != nil {
		m.recordError("resolve", err)
		return
	}

	allowed := m.deps.Presenter.Allowed(pkg, now)

	switch m.state {
	case StateMonitoring:
		if verdict.Exceeded && !allowed {
			m.block(ctx, pkg, verdict)
			return
		}
	case StateBlocked:
		// Resume the overlay if the surface closed it while the app stayed
		if showing, ok := m.deps.Presenter.Showing(); verdict.Exceeded && !allowed && (!ok || showing != pkg) {
			m.show(ctx, pkg, verdict)
		}
		return
	}

	m.notify(ctx, pkg, verdict, now)
}

func (m *Monitor) block(ctx context.Context, pkg string, verdict *core.Verdict) {
	if !m.show(ctx, pkg, verdict) {
		return
	}
	m.state = StateBlocked
	m.logger.Info("app blocked",
		"package_id", pkg,
		"decision", verdict.Decision.String(),
		"rule", verdict.Decision.Rule,
		"usage", verdict.Usage.Round(time.Second))
}

// show asks the presenter for the overlay. It reports false only on error;
// an overlay already present counts as shown.
func (m *Monitor) show(ctx context.Context, pkg string, verdict *core.Verdict) bool {
	_, err := m.deps.Presenter.Show(ctx, pkg, intervention.OverlayContext{
		Decision:     verdict.Decision.String(),
		Rule:         verdict.Decision.Rule,
		Usage:        verdict.Usage,
		LimitMinutes: verdict.Decision.LimitMinutes,
	})
	if err != nil {
		m.recordError("show overlay", err)
		return false
	}
	return true
}

func (m *Monitor) notify(ctx context.Context, pkg string, verdict *core.Verdict, now time.Time) {
	if m.deps.Notifier == nil || verdict.Decision.Kind == core.DecisionBlocked {
		return
	}

	var interval time.Duration
	if m.deps.Limits != nil {
		limit, err := m.deps.Limits.GetAppLimit(ctx, pkg)
		switch {
		case err == nil && limit.NotificationIntervalMinutes != nil:
			interval = time.Duration(*limit.NotificationIntervalMinutes) * time.Minute
		case err != nil && !errors.Is(err, core.ErrAppLimitNotFound):
			m.recordError("get app limit", err)
			return
		}
	}

	total := verdict.Usage
	if verdict.Decision.Kind != core.DecisionLimited {
		var err error
		total, err = m.deps.Ledger.TotalFor(ctx, pkg, now)
		if err != nil {
			m.recordError("read usage", err)
			return
		}
	}

	m.deps.Notifier.Check(ctx, pkg, total, interval, now)
}

// recordError must be called with mu held
func (m *Monitor) recordError(op string, err error) {
	m.lastError = fmt.Sprintf("%s: %v", op, err)
	if core.IsStorageError(err) {
		m.logger.Warn("storage error, retrying next tick", "op", op, "error", err)
		return
	}
	m.logger.Error("monitor tick error", "op", op, "error", err)
}
