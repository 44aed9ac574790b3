package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultSystemWhitelist lists system-critical apps that stay usable during a
// break: dialer, settings, keyboards, camera, system UI.
var DefaultSystemWhitelist = []string{
	"com.android.dialer",
	"com.google.android.dialer",
	"com.samsung.android.dialer",
	"com.android.settings",
	"com.android.systemui",
	"com.google.android.inputmethod.latin",
	"com.samsung.android.honeyboard",
	"com.android.camera",
	"com.android.camera2",
	"com.google.android.GoogleCamera",
	"com.sec.android.app.camera",
}

// BreakController manages the single global break window.
//
// The controller owns the in-memory BreakState. It is loaded once at startup
// (cold start is Inactive) and written through to storage on every mutation,
// so the monitor and the API always observe the latest state.
type BreakController struct {
	storage  BreakStorage
	profiles *ProfileService
	clock    Clock
	system   map[string]bool

	mu    sync.RWMutex
	state BreakState
	// custom whitelist as a set, rebuilt on each start
	whitelist map[string]bool
}

// NewBreakController creates a new break controller. selfPackage is the
// package ID of this app; extra adds system-critical apps to the defaults.
func NewBreakController(storage BreakStorage, profiles *ProfileService, clock Clock, selfPackage string, extra []string) *BreakController {
	if clock == nil {
		clock = RealClock{}
	}
	system := make(map[string]bool, len(DefaultSystemWhitelist)+len(extra)+1)
	for _, pkg := range DefaultSystemWhitelist {
		system[pkg] = true
	}
	for _, pkg := range extra {
		system[pkg] = true
	}
	if selfPackage != "" {
		system[selfPackage] = true
	}
	return &BreakController{
		storage:   storage,
		profiles:  profiles,
		clock:     clock,
		system:    system,
		whitelist: map[string]bool{},
	}
}

// Load restores the persisted break state. A missing row means Inactive.
func (c *BreakController) Load(ctx context.Context) error {
	state, err := c.storage.GetBreakState(ctx)
	if err != nil {
		return storageErr("get break state", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if state == nil {
		c.state = BreakState{}
	} else {
		c.state = *state
	}
	c.whitelist = toSet(c.state.Whitelist)
	return nil
}

// Flush writes the current state to storage
func (c *BreakController) Flush(ctx context.Context) error {
	c.mu.RLock()
	snapshot := c.copyState()
	c.mu.RUnlock()
	return storageErr("save break state", c.storage.SaveBreakState(ctx, &snapshot))
}

// StartBreak activates a break of durationMinutes. The whitelist and end time
// are replaced together.
func (c *BreakController) StartBreak(ctx context.Context, durationMinutes int, whitelist []string) (*BreakState, error) {
	if durationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	now := c.clock.Now()
	next := BreakState{
		Active:    true,
		EndsAt:    now.Add(time.Duration(durationMinutes) * time.Minute),
		Whitelist: dedupe(whitelist),
		UpdatedAt: now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.storage.SaveBreakState(ctx, &next); err != nil {
		return nil, storageErr("save break state", err)
	}
	c.state = next
	c.whitelist = toSet(next.Whitelist)

	snapshot := c.copyState()
	return &snapshot, nil
}

// StartBreakWithProfile activates a break whose whitelist is every app the
// given profile has a policy for
func (c *BreakController) StartBreakWithProfile(ctx context.Context, durationMinutes int, profileID string) (*BreakState, error) {
	if c.profiles == nil {
		return nil, ErrProfileNotFound
	}
	packages, err := c.profiles.PackagesIn(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return c.StartBreak(ctx, durationMinutes, packages)
}

// StopBreak deactivates the break. End time and whitelist are retained.
func (c *BreakController) StopBreak(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Active {
		return nil
	}

	next := c.copyState()
	next.Active = false
	next.UpdatedAt = c.clock.Now()

	if err := c.storage.SaveBreakState(ctx, &next); err != nil {
		return storageErr("save break state", err)
	}
	c.state = next
	return nil
}

// ExpireIfDue stops an active break whose end time has passed. It reports
// whether a transition happened.
func (c *BreakController) ExpireIfDue(ctx context.Context, now time.Time) (bool, error) {
	c.mu.RLock()
	expired := c.state.Active && c.state.Remaining(now) == 0
	c.mu.RUnlock()

	if !expired {
		return false, nil
	}
	if err := c.StopBreak(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Remaining returns the time left in the break at now, zero if inactive
func (c *BreakController) Remaining(now time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Remaining(now)
}

// IsActive reports whether the break is formally active (it may have
// expired without being stopped yet)
func (c *BreakController) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Active
}

// IsWhitelisted reports whether packageID may be used during a break
func (c *BreakController) IsWhitelisted(packageID string) bool {
	if c.system[packageID] {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.whitelist[packageID]
}

// Snapshot returns a copy of the current state
func (c *BreakController) Snapshot() BreakState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.copyState()
}

// copyState must be called with mu held
func (c *BreakController) copyState() BreakState {
	s := c.state
	s.Whitelist = append([]string(nil), c.state.Whitelist...)
	return s
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

// IsStorageError reports whether err is a storage failure
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

var _ BreakManager = (*BreakController)(nil)
