package intervention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"focusguard/internal/core"
)

// Sink delivers a non-blocking usage notification
type Sink interface {
	Notify(ctx context.Context, packageID, message string) error
}

// Notifier sends periodic usage nudges with a milestone debounce: for each
// app it remembers the last interval boundary it fired at and only fires
// again once usage crosses a later boundary. Milestones reset each day.
type Notifier struct {
	sink            Sink
	storage         core.MilestoneStorage
	defaultInterval time.Duration
	timezone        *time.Location
	logger          *slog.Logger

	mu         sync.Mutex
	day        time.Time
	milestones map[string]time.Duration
	dirty      map[string]bool
}

// NewNotifier creates a notifier. storage may be nil, in which case
// milestones live in memory only.
func NewNotifier(sink Sink, storage core.MilestoneStorage, defaultInterval time.Duration, timezone *time.Location, logger *slog.Logger) *Notifier {
	if timezone == nil {
		timezone = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		sink:            sink,
		storage:         storage,
		defaultInterval: defaultInterval,
		timezone:        timezone,
		logger:          logger.With("component", "notifier"),
		milestones:      make(map[string]time.Duration),
		dirty:           make(map[string]bool),
	}
}

// Milestone returns the last interval boundary at or below total and whether
// it lies past the previously fired milestone last
func Milestone(total, interval, last time.Duration) (time.Duration, bool) {
	if interval <= 0 || total <= 0 {
		return 0, false
	}
	crossed := total / interval
	milestone := crossed * interval
	return milestone, milestone > last
}

// Check fires a notification for packageID if total usage has crossed a new
// interval boundary today. interval of zero falls back to the default.
func (n *Notifier) Check(ctx context.Context, packageID string, total, interval time.Duration, now time.Time) bool {
	if interval <= 0 {
		interval = n.defaultInterval
	}

	n.mu.Lock()
	n.rollDayLocked(now)
	milestone, fire := Milestone(total, interval, n.milestones[packageID])
	if !fire {
		n.mu.Unlock()
		return false
	}
	n.milestones[packageID] = milestone
	day := n.day
	n.mu.Unlock()

	n.persist(ctx, packageID, day, milestone)

	message := fmt.Sprintf("You have used %s for %d minutes today", packageID, int(milestone/time.Minute))
	if n.sink != nil {
		if err := n.sink.Notify(ctx, packageID, message); err != nil {
			n.logger.Warn("failed to deliver usage notification", "package_id", packageID, "error", err)
		}
	}

	n.logger.Info("usage milestone reached",
		"package_id", packageID,
		"milestone_minutes", int(milestone/time.Minute),
		"interval_minutes", int(interval/time.Minute))
	return true
}

// Load restores today's milestones from storage
func (n *Notifier) Load(ctx context.Context, now time.Time) error {
	if n.storage == nil {
		return nil
	}
	day := core.NormalizeDate(now, n.timezone)
	stored, err := n.storage.ListMilestones(ctx, day)
	if err != nil {
		return &core.StorageError{Op: "list milestones", Err: err}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.day = day
	n.milestones = make(map[string]time.Duration, len(stored))
	n.dirty = make(map[string]bool)
	for pkg, minutes := range stored {
		n.milestones[pkg] = time.Duration(minutes) * time.Minute
	}
	return nil
}

// Flush writes milestones whose write-through failed and drops older days
func (n *Notifier) Flush(ctx context.Context) error {
	if n.storage == nil {
		return nil
	}

	n.mu.Lock()
	day := n.day
	pending := make(map[string]time.Duration, len(n.dirty))
	for pkg := range n.dirty {
		pending[pkg] = n.milestones[pkg]
	}
	n.mu.Unlock()

	if day.IsZero() {
		return nil
	}

	for pkg, milestone := range pending {
		if err := n.storage.SaveMilestone(ctx, pkg, day, int(milestone/time.Minute)); err != nil {
			return &core.StorageError{Op: "save milestone", Err: err}
		}
		n.mu.Lock()
		if n.day.Equal(day) && n.milestones[pkg] == milestone {
			delete(n.dirty, pkg)
		}
		n.mu.Unlock()
	}

	if err := n.storage.DeleteMilestonesBefore(ctx, day); err != nil {
		return &core.StorageError{Op: "delete milestones", Err: err}
	}
	return nil
}

func (n *Notifier) persist(ctx context.Context, packageID string, day time.Time, milestone time.Duration) {
	if n.storage == nil {
		return
	}
	if err := n.storage.SaveMilestone(ctx, packageID, day, int(milestone/time.Minute)); err != nil {
		n.logger.Warn("failed to save milestone, will retry on flush", "package_id", packageID, "error", err)
		n.mu.Lock()
		if n.day.Equal(day) {
			n.dirty[packageID] = true
		}
		n.mu.Unlock()
	}
}

// rollDayLocked resets the milestones when now falls on a new day
func (n *Notifier) rollDayLocked(now time.Time) {
	day := core.NormalizeDate(now, n.timezone)
	if n.day.Equal(day) {
		return
	}
	if !n.day.IsZero() {
		n.logger.Debug("day changed, resetting milestones", "day", day.Format("2006-01-02"))
	}
	n.day = day
	n.milestones = make(map[string]time.Duration)
	n.dirty = make(map[string]bool)
}
