package core

import (
	"context"
	"time"
)

// UsageStorage persists UsageRecords. Days passed in are already normalized.
type UsageStorage interface {
	GetUsageRecord(ctx context.Context, packageID string, day time.Time) (*UsageRecord, error)
	// AddUsage adds delta to the (packageID, day) record, creating it if absent
	AddUsage(ctx context.Context, packageID string, day time.Time, delta time.Duration, at time.Time) error
	// SetUsage overwrites the (packageID, day) record
	SetUsage(ctx context.Context, packageID string, day time.Time, total time.Duration, at time.Time) error
	ListUsageForDay(ctx context.Context, day time.Time) ([]*UsageRecord, error)
	ListDailyTotals(ctx context.Context) ([]DailyTotal, error)
}

// AppLimitStorage persists the flat per-app limits
type AppLimitStorage interface {
	GetAppLimit(ctx context.Context, packageID string) (*AppLimit, error)
	ListAppLimits(ctx context.Context) ([]*AppLimit, error)
	SaveAppLimit(ctx context.Context, limit *AppLimit) error
	DeleteAppLimit(ctx context.Context, packageID string) error
}

// ProfileStorage persists focus profiles and their per-app policies.
// Deleting a profile deletes its policies.
type ProfileStorage interface {
	CreateProfile(ctx context.Context, profile *FocusProfile) error
	GetProfile(ctx context.Context, id string) (*FocusProfile, error)
	ListProfiles(ctx context.Context) ([]*FocusProfile, error)
	UpdateProfile(ctx context.Context, profile *FocusProfile) error
	DeleteProfile(ctx context.Context, id string) error

	SetProfilePolicy(ctx context.Context, policy *ProfileAppPolicy) error
	DeleteProfilePolicy(ctx context.Context, profileID, packageID string) error
	ListProfilePolicies(ctx context.Context, profileID string) ([]*ProfileAppPolicy, error)
	ListPoliciesForPackage(ctx context.Context, packageID string) ([]*ProfileAppPolicy, error)
}

// BreakStorage persists the break singleton
type BreakStorage interface {
	GetBreakState(ctx context.Context) (*BreakState, error)
	SaveBreakState(ctx context.Context, state *BreakState) error
}

// OverrideLogStorage is the append-only emergency unlock log
type OverrideLogStorage interface {
	AppendOverride(ctx context.Context, entry *OverrideLogEntry) error
	ListOverrides(ctx context.Context, limit int) ([]*OverrideLogEntry, error)
}

// StrictModeStorage persists strict-mode settings
type StrictModeStorage interface {
	GetStrictMode(ctx context.Context) (*StrictMode, error)
	SaveStrictMode(ctx context.Context, mode *StrictMode) error
}

// BreakManager is the break-related surface used by the API and the monitor
type BreakManager interface {
	StartBreak(ctx context.Context, durationMinutes int, whitelist []string) (*BreakState, error)
	StartBreakWithProfile(ctx context.Context, durationMinutes int, profileID string) (*BreakState, error)
	StopBreak(ctx context.Context) error
	ExpireIfDue(ctx context.Context, now time.Time) (bool, error)
	Snapshot() BreakState
	Remaining(now time.Time) time.Duration
	IsWhitelisted(packageID string) bool
}

// MilestoneStorage persists the last usage milestone nudged per app and day
type MilestoneStorage interface {
	ListMilestones(ctx context.Context, day time.Time) (map[string]int, error)
	SaveMilestone(ctx context.Context, packageID string, day time.Time, minutes int) error
	DeleteMilestonesBefore(ctx context.Context, day time.Time) error
}
