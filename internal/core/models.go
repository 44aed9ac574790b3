package core

import (
	"errors"
	"fmt"
	"time"
)

// Policy values stored in ProfileAppPolicy.LimitMinutes
const (
	PolicyBlocked   int64 = 0  // app is blocked while the profile is effective
	PolicyUnlimited int64 = -1 // app is explicitly allowed
)

// MaxDailyUsage is the sanity bound for a single app's usage on one day.
// Anything above it can only come from corrupted data.
const MaxDailyUsage = 24 * time.Hour

// AppLimit is the flat per-app daily limit consulted when no focus profile
// has an opinion about the app.
type AppLimit struct {
	PackageID                   string
	LimitMinutes                int  // daily cap
	NotificationIntervalMinutes *int // optional per-app nudge interval
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

// UsageRecord is the accumulated foreground time of one app on one day
type UsageRecord struct {
	PackageID   string
	Day         time.Time // normalized to local midnight
	Duration    time.Duration
	LastUpdated time.Time
}

// DailyTotal is the usage of all apps on a single day
type DailyTotal struct {
	Day   time.Time
	Total time.Duration
}

// FocusProfile is a named bundle of per-app policies with an activation mode.
// Several profiles may be effective at the same time.
type FocusProfile struct {
	ID               string
	Name             string
	IsManuallyActive bool
	ScheduleEnabled  bool
	ScheduleStart    int   // minute of day, inclusive
	ScheduleEnd      int   // minute of day, exclusive
	DaysOfWeek       []int // ISO weekdays, 1 = Monday ... 7 = Sunday
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProfileAppPolicy is the policy a profile applies to one app.
// LimitMinutes: 0 = blocked, -1 = unlimited, >0 = minute cap.
type ProfileAppPolicy struct {
	ProfileID    string
	PackageID    string
	LimitMinutes int64
}

// BreakState is the persisted state of the global break window
type BreakState struct {
	Active    bool
	EndsAt    time.Time // meaningful only while Active
	Whitelist []string
	UpdatedAt time.Time
}

// OverrideLogEntry records an emergency unlock
type OverrideLogEntry struct {
	ID              string
	PackageID       string
	Timestamp       time.Time
	Reason          string
	DurationMinutes int
}

// StrictMode holds the strict-mode settings. PINHash is a bcrypt hash.
type StrictMode struct {
	Enabled   bool
	PINHash   string
	UpdatedAt time.Time
}

// Validation and lookup errors
var (
	ErrInvalidPackageID    = errors.New("package ID cannot be empty")
	ErrInvalidLimit        = errors.New("limit minutes must not be negative")
	ErrInvalidInterval     = errors.New("notification interval must be positive")
	ErrInvalidProfileName  = errors.New("profile name cannot be empty")
	ErrInvalidSchedule     = errors.New("invalid schedule configuration")
	ErrInvalidPolicy       = errors.New("policy limit must be -1, 0 or a positive number of minutes")
	ErrInvalidDuration     = errors.New("duration must be positive")
	ErrNegativeDelta       = errors.New("usage delta must not be negative")
	ErrInvalidPIN          = errors.New("PIN must be 4 to 8 digits")
	ErrAppLimitNotFound    = errors.New("app limit not found")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrPolicyNotFound      = errors.New("profile app policy not found")
	ErrUsageNotFound       = errors.New("usage record not found")
	ErrBreakNotActive      = errors.New("break is not active")
	ErrStrictModeEnabled   = errors.New("strict mode is already enabled")
	ErrStrictModeDisabled  = errors.New("strict mode is not enabled")
	ErrClockSkew           = errors.New("clock skew detected")
)

// StorageError wraps a failure of the persistent store.
// Callers treat it as transient and retry on the next tick.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageErr wraps err unless it is nil or one of the sentinel lookup errors
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrAppLimitNotFound),
		errors.Is(err, ErrProfileNotFound),
		errors.Is(err, ErrPolicyNotFound),
		errors.Is(err, ErrUsageNotFound):
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Validate validates an AppLimit
func (l *AppLimit) Validate() error {
	if l.PackageID == "" {
		return ErrInvalidPackageID
	}
	if l.LimitMinutes < 0 {
		return ErrInvalidLimit
	}
	if l.NotificationIntervalMinutes != nil && *l.NotificationIntervalMinutes <= 0 {
		return ErrInvalidInterval
	}
	return nil
}

// Validate validates a FocusProfile, including its schedule when enabled
func (p *FocusProfile) Validate() error {
	if p.Name == "" {
		return ErrInvalidProfileName
	}
	if p.ScheduleEnabled {
		return p.ValidateSchedule()
	}
	return nil
}

// Validate validates a ProfileAppPolicy
func (p *ProfileAppPolicy) Validate() error {
	if p.PackageID == "" {
		return ErrInvalidPackageID
	}
	if p.LimitMinutes < PolicyUnlimited {
		return ErrInvalidPolicy
	}
	return nil
}

// IsBlocked reports whether the policy blocks the app
func (p ProfileAppPolicy) IsBlocked() bool {
	return p.LimitMinutes == PolicyBlocked
}

// IsUnlimited reports whether the policy explicitly allows the app
func (p ProfileAppPolicy) IsUnlimited() bool {
	return p.LimitMinutes == PolicyUnlimited
}

// Remaining returns the time left in the break, zero when inactive or expired
func (b *BreakState) Remaining(now time.Time) time.Duration {
	if !b.Active {
		return 0
	}
	remaining := b.EndsAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
