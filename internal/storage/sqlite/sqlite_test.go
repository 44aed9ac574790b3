package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"focusguard/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	storage, err := New(dbPath, time.UTC)
	require.NoError(t, err)

	t.Cleanup(func() {
		storage.Close()
	})

	return storage
}

func TestSQLiteStorage_Usage(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	now := day.Add(10 * time.Hour)

	// Test GetUsageRecord - not found
	_, err := storage.GetUsageRecord(ctx, "com.example.app", day)
	assert.ErrorIs(t, err, core.ErrUsageNotFound)

	// Test AddUsage accumulates
	require.NoError(t, storage.AddUsage(ctx, "com.example.app", day, 90*time.Second, now))
	require.NoError(t, storage.AddUsage(ctx, "com.example.app", day, 30*time.Second, now))

	record, err := storage.GetUsageRecord(ctx, "com.example.app", day)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, record.Duration)
	assert.Equal(t, day, record.Day)

	// Any time of day maps to the same record
	record, err = storage.GetUsageRecord(ctx, "com.example.app", day.Add(23*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, record.Duration)

	// Test SetUsage overwrites
	require.NoError(t, storage.SetUsage(ctx, "com.example.app", day, 45*time.Minute, now))
	record, err = storage.GetUsageRecord(ctx, "com.example.app", day)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, record.Duration)

	// Test ListUsageForDay
	require.NoError(t, storage.AddUsage(ctx, "com.other.app", day, time.Hour, now))
	require.NoError(t, storage.AddUsage(ctx, "com.example.app", day.AddDate(0, 0, -1), time.Minute, now))

	records, err := storage.ListUsageForDay(ctx, day)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "com.other.app", records[0].PackageID)
	assert.Equal(t, "com.example.app", records[1].PackageID)

	// Test ListDailyTotals
	totals, err := storage.ListDailyTotals(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, day, totals[0].Day)
	assert.Equal(t, 105*time.Minute, totals[0].Total)
	assert.Equal(t, day.AddDate(0, 0, -1), totals[1].Day)
	assert.Equal(t, time.Minute, totals[1].Total)
}

func TestSQLiteStorage_UsageTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	storage, err := New(filepath.Join(t.TempDir(), "tz.db"), loc)
	require.NoError(t, err)
	defer storage.Close()
	ctx := context.Background()

	// 22:30 UTC Monday is already Tuesday at UTC+3
	at := time.Date(2026, 10, 12, 22, 30, 0, 0, time.UTC)
	require.NoError(t, storage.AddUsage(ctx, "com.example.app", at, time.Minute, at))

	tuesday := time.Date(2026, 10, 13, 12, 0, 0, 0, loc)
	record, err := storage.GetUsageRecord(ctx, "com.example.app", tuesday)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, record.Duration)
}

func TestSQLiteStorage_AppLimitTimestampsUseClock(t *testing.T) {
	created := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)
	clock := core.NewMockClock(created)
	storage, err := New(filepath.Join(t.TempDir(), "test.db"), time.UTC, WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	ctx := context.Background()

	require.NoError(t, storage.SaveAppLimit(ctx, &core.AppLimit{PackageID: "com.example.app", LimitMinutes: 30}))

	clock.Advance(2 * time.Hour)
	require.NoError(t, storage.SaveAppLimit(ctx, &core.AppLimit{PackageID: "com.example.app", LimitMinutes: 20}))

	retrieved, err := storage.GetAppLimit(ctx, "com.example.app")
	require.NoError(t, err)
	assert.True(t, retrieved.CreatedAt.Equal(created), "created_at %v", retrieved.CreatedAt)
	assert.True(t, retrieved.UpdatedAt.Equal(created.Add(2*time.Hour)), "updated_at %v", retrieved.UpdatedAt)
}

func TestSQLiteStorage_AppLimits(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	interval := 15
	limit := &core.AppLimit{
		PackageID:                   "com.example.app",
		LimitMinutes:                30,
		NotificationIntervalMinutes: &interval,
	}

	// Test SaveAppLimit
	require.NoError(t, storage.SaveAppLimit(ctx, limit))

	// Test GetAppLimit
	retrieved, err := storage.GetAppLimit(ctx, "com.example.app")
	require.NoError(t, err)
	assert.Equal(t, 30, retrieved.LimitMinutes)
	require.NotNil(t, retrieved.NotificationIntervalMinutes)
	assert.Equal(t, 15, *retrieved.NotificationIntervalMinutes)

	// Test GetAppLimit - not found
	_, err = storage.GetAppLimit(ctx, "nonexistent")
	assert.ErrorIs(t, err, core.ErrAppLimitNotFound)

	// Test SaveAppLimit replaces
	require.NoError(t, storage.SaveAppLimit(ctx, &core.AppLimit{PackageID: "com.example.app", LimitMinutes: 45}))
	retrieved, err = storage.GetAppLimit(ctx, "com.example.app")
	require.NoError(t, err)
	assert.Equal(t, 45, retrieved.LimitMinutes)
	assert.Nil(t, retrieved.NotificationIntervalMinutes)

	// Test SaveAppLimit - invalid
	err = storage.SaveAppLimit(ctx, &core.AppLimit{PackageID: "", LimitMinutes: 10})
	assert.ErrorIs(t, err, core.ErrInvalidPackageID)

	// Test ListAppLimits
	require.NoError(t, storage.SaveAppLimit(ctx, &core.AppLimit{PackageID: "com.another.app", LimitMinutes: 10}))
	limits, err := storage.ListAppLimits(ctx)
	require.NoError(t, err)
	require.Len(t, limits, 2)
	assert.Equal(t, "com.another.app", limits[0].PackageID)

	// Test DeleteAppLimit
	require.NoError(t, storage.DeleteAppLimit(ctx, "com.another.app"))
	assert.ErrorIs(t, storage.DeleteAppLimit(ctx, "com.another.app"), core.ErrAppLimitNotFound)
}

func TestSQLiteStorage_Profiles(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	profile := &core.FocusProfile{
		ID:              "prof_1",
		Name:            "Sleep",
		ScheduleEnabled: true,
		ScheduleStart:   1380,
		ScheduleEnd:     420,
		DaysOfWeek:      []int{1, 2, 3},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Test CreateProfile
	require.NoError(t, storage.CreateProfile(ctx, profile))

	// Test GetProfile
	retrieved, err := storage.GetProfile(ctx, "prof_1")
	require.NoError(t, err)
	assert.Equal(t, "Sleep", retrieved.Name)
	assert.True(t, retrieved.ScheduleEnabled)
	assert.Equal(t, 1380, retrieved.ScheduleStart)
	assert.Equal(t, 420, retrieved.ScheduleEnd)
	assert.Equal(t, []int{1, 2, 3}, retrieved.DaysOfWeek)
	assert.False(t, retrieved.IsManuallyActive)

	// Test GetProfile - not found
	_, err = storage.GetProfile(ctx, "nonexistent")
	assert.ErrorIs(t, err, core.ErrProfileNotFound)

	// Test UpdateProfile
	retrieved.IsManuallyActive = true
	retrieved.Name = "Night"
	require.NoError(t, storage.UpdateProfile(ctx, retrieved))

	updated, err := storage.GetProfile(ctx, "prof_1")
	require.NoError(t, err)
	assert.True(t, updated.IsManuallyActive)
	assert.Equal(t, "Night", updated.Name)

	// Test UpdateProfile - not found
	err = storage.UpdateProfile(ctx, &core.FocusProfile{ID: "nonexistent", Name: "x"})
	assert.ErrorIs(t, err, core.ErrProfileNotFound)

	// Test ListProfiles
	require.NoError(t, storage.CreateProfile(ctx, &core.FocusProfile{ID: "prof_2", Name: "Work", CreatedAt: now, UpdatedAt: now}))
	profiles, err := storage.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
}

func TestSQLiteStorage_ProfilePolicies(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, storage.CreateProfile(ctx, &core.FocusProfile{ID: "prof_1", Name: "A", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, storage.CreateProfile(ctx, &core.FocusProfile{ID: "prof_2", Name: "B", CreatedAt: now, UpdatedAt: now}))

	// Test SetProfilePolicy
	require.NoError(t, storage.SetProfilePolicy(ctx, &core.ProfileAppPolicy{ProfileID: "prof_1", PackageID: "com.game", LimitMinutes: core.PolicyBlocked}))
	require.NoError(t, storage.SetProfilePolicy(ctx, &core.ProfileAppPolicy{ProfileID: "prof_1", PackageID: "com.chat", LimitMinutes: 30}))
	require.NoError(t, storage.SetProfilePolicy(ctx, &core.ProfileAppPolicy{ProfileID: "prof_2", PackageID: "com.chat", LimitMinutes: core.PolicyUnlimited}))

	// Test SetProfilePolicy replaces
	require.NoError(t, storage.SetProfilePolicy(ctx, &core.ProfileAppPolicy{ProfileID: "prof_1", PackageID: "com.chat", LimitMinutes: 20}))

	// Test SetProfilePolicy - unknown profile violates the foreign key
	err := storage.SetProfilePolicy(ctx, &core.ProfileAppPolicy{ProfileID: "missing", PackageID: "com.chat", LimitMinutes: 5})
	assert.Error(t, err)

	// Test ListProfilePolicies
	policies, err := storage.ListProfilePolicies(ctx, "prof_1")
	require.NoError(t, err)
	require.Len(t, policies, 2)

	// Test ListPoliciesForPackage
	forChat, err := storage.ListPoliciesForPackage(ctx, "com.chat")
	require.NoError(t, err)
	require.Len(t, forChat, 2)
	assert.Equal(t, int64(20), forChat[0].LimitMinutes)
	assert.Equal(t, int64(-1), forChat[1].LimitMinutes)

	// Test DeleteProfilePolicy
	require.NoError(t, storage.DeleteProfilePolicy(ctx, "prof_2", "com.chat"))
	assert.ErrorIs(t, storage.DeleteProfilePolicy(ctx, "prof_2", "com.chat"), core.ErrPolicyNotFound)

	// Test DeleteProfile cascades to its policies
	require.NoError(t, storage.DeleteProfile(ctx, "prof_1"))
	forChat, err = storage.ListPoliciesForPackage(ctx, "com.chat")
	require.NoError(t, err)
	assert.Empty(t, forChat)
	assert.ErrorIs(t, storage.DeleteProfile(ctx, "prof_1"), core.ErrProfileNotFound)
}

func TestSQLiteStorage_BreakState(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	// Test GetBreakState - nothing stored
	state, err := storage.GetBreakState(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)

	endsAt := time.Date(2026, 10, 12, 12, 15, 0, 0, time.UTC)
	require.NoError(t, storage.SaveBreakState(ctx, &core.BreakState{
		Active:    true,
		EndsAt:    endsAt,
		Whitelist: []string{"X", "Y"},
		UpdatedAt: endsAt.Add(-15 * time.Minute),
	}))

	state, err = storage.GetBreakState(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Active)
	assert.True(t, endsAt.Equal(state.EndsAt))
	assert.Equal(t, []string{"X", "Y"}, state.Whitelist)

	// Test SaveBreakState replaces the singleton
	require.NoError(t, storage.SaveBreakState(ctx, &core.BreakState{Active: false, EndsAt: endsAt, Whitelist: nil}))
	state, err = storage.GetBreakState(ctx)
	require.NoError(t, err)
	assert.False(t, state.Active)
	assert.Empty(t, state.Whitelist)
}

func TestSQLiteStorage_StrictMode(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	mode, err := storage.GetStrictMode(ctx)
	require.NoError(t, err)
	assert.Nil(t, mode)

	require.NoError(t, storage.SaveStrictMode(ctx, &core.StrictMode{Enabled: true, PINHash: "hash", UpdatedAt: time.Now()}))
	mode, err = storage.GetStrictMode(ctx)
	require.NoError(t, err)
	assert.True(t, mode.Enabled)
	assert.Equal(t, "hash", mode.PINHash)
}

func TestSQLiteStorage_OverrideLog(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 12, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"ovr_1", "ovr_2", "ovr_3"} {
		require.NoError(t, storage.AppendOverride(ctx, &core.OverrideLogEntry{
			ID:              id,
			PackageID:       "com.example.app",
			Timestamp:       base.Add(time.Duration(i) * time.Minute),
			Reason:          "emergency",
			DurationMinutes: 5,
		}))
	}

	entries, err := storage.ListOverrides(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ovr_3", entries[0].ID)
	assert.Equal(t, "ovr_2", entries[1].ID)

	entries, err = storage.ListOverrides(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestSQLiteStorage_Milestones(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	today := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	require.NoError(t, storage.SaveMilestone(ctx, "com.example.app", yesterday, 90))
	require.NoError(t, storage.SaveMilestone(ctx, "com.example.app", today, 30))
	require.NoError(t, storage.SaveMilestone(ctx, "com.example.app", today, 60))

	milestones, err := storage.ListMilestones(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"com.example.app": 60}, milestones)

	require.NoError(t, storage.DeleteMilestonesBefore(ctx, today))
	milestones, err = storage.ListMilestones(ctx, yesterday)
	require.NoError(t, err)
	assert.Empty(t, milestones)
}
