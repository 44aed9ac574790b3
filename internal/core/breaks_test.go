package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaks() (*BreakController, *mockStorage, *MockClock) {
	storage := newMockStorage()
	clock := NewMockClock(monday(12, 0))
	profiles := NewProfileService(storage, clock, time.UTC)
	return NewBreakController(storage, profiles, clock, "com.focusguard", []string{"com.vendor.launcher"}), storage, clock
}

func TestBreakController_ColdStartInactive(t *testing.T) {
	breaks, _, clock := newTestBreaks()
	require.NoError(t, breaks.Load(context.Background()))

	assert.False(t, breaks.IsActive())
	assert.Equal(t, time.Duration(0), breaks.Remaining(clock.Now()))
}

func TestBreakController_StartBreak(t *testing.T) {
	breaks, storage, clock := newTestBreaks()
	ctx := context.Background()

	state, err := breaks.StartBreak(ctx, 15, []string{"X", "X", ""})
	require.NoError(t, err)

	assert.True(t, state.Active)
	assert.Equal(t, clock.Now().Add(15*time.Minute), state.EndsAt)
	assert.Equal(t, []string{"X"}, state.Whitelist)
	assert.Equal(t, 15*time.Minute, breaks.Remaining(clock.Now()))

	// Written through
	require.NotNil(t, storage.breakState)
	assert.True(t, storage.breakState.Active)
}

func TestBreakController_StartBreak_InvalidDuration(t *testing.T) {
	breaks, _, _ := newTestBreaks()

	for _, minutes := range []int{0, -5} {
		_, err := breaks.StartBreak(context.Background(), minutes, nil)
		assert.ErrorIs(t, err, ErrInvalidDuration)
	}
	assert.False(t, breaks.IsActive())
}

func TestBreakController_StartBreak_StorageFailureKeepsState(t *testing.T) {
	breaks, storage, _ := newTestBreaks()
	storage.failWrite = true

	_, err := breaks.StartBreak(context.Background(), 15, []string{"X"})
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
	assert.False(t, breaks.IsActive())
	assert.False(t, breaks.IsWhitelisted("X"))
}

func TestBreakController_RestartReplacesWhitelist(t *testing.T) {
	breaks, _, _ := newTestBreaks()
	ctx := context.Background()

	_, err := breaks.StartBreak(ctx, 15, []string{"X"})
	require.NoError(t, err)
	_, err = breaks.StartBreak(ctx, 30, []string{"Y"})
	require.NoError(t, err)

	assert.False(t, breaks.IsWhitelisted("X"))
	assert.True(t, breaks.IsWhitelisted("Y"))
}

func TestBreakController_StopBreak(t *testing.T) {
	breaks, storage, clock := newTestBreaks()
	ctx := context.Background()

	started, err := breaks.StartBreak(ctx, 15, []string{"X"})
	require.NoError(t, err)

	require.NoError(t, breaks.StopBreak(ctx))
	assert.False(t, breaks.IsActive())
	assert.Equal(t, time.Duration(0), breaks.Remaining(clock.Now()))

	snapshot := breaks.Snapshot()
	assert.Equal(t, started.EndsAt, snapshot.EndsAt, "end time is retained")
	assert.Equal(t, []string{"X"}, snapshot.Whitelist)
	assert.False(t, storage.breakState.Active)

	// Stopping again is a no-op
	calls := storage.writeCalls
	require.NoError(t, breaks.StopBreak(ctx))
	assert.Equal(t, calls, storage.writeCalls)
}

func TestBreakController_ExpireIfDue(t *testing.T) {
	breaks, _, clock := newTestBreaks()
	ctx := context.Background()

	_, err := breaks.StartBreak(ctx, 15, nil)
	require.NoError(t, err)

	expired, err := breaks.ExpireIfDue(ctx, clock.Now().Add(14*time.Minute))
	require.NoError(t, err)
	assert.False(t, expired)
	assert.True(t, breaks.IsActive())

	expired, err = breaks.ExpireIfDue(ctx, clock.Now().Add(15*time.Minute))
	require.NoError(t, err)
	assert.True(t, expired)
	assert.False(t, breaks.IsActive())

	expired, err = breaks.ExpireIfDue(ctx, clock.Now().Add(16*time.Minute))
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestBreakController_IsWhitelisted(t *testing.T) {
	breaks, _, _ := newTestBreaks()
	_, err := breaks.StartBreak(context.Background(), 15, []string{"X"})
	require.NoError(t, err)

	tests := []struct {
		pkg  string
		want bool
	}{
		{"X", true},
		{"Y", false},
		{"com.android.dialer", true},
		{"com.android.settings", true},
		{"com.focusguard", true},
		{"com.vendor.launcher", true},
	}
	for _, tt := range tests {
		t.Run(tt.pkg, func(t *testing.T) {
			assert.Equal(t, tt.want, breaks.IsWhitelisted(tt.pkg))
		})
	}
}

func TestBreakController_LoadRestoresState(t *testing.T) {
	breaks, storage, clock := newTestBreaks()
	storage.breakState = &BreakState{
		Active:    true,
		EndsAt:    clock.Now().Add(10 * time.Minute),
		Whitelist: []string{"X"},
	}

	require.NoError(t, breaks.Load(context.Background()))
	assert.True(t, breaks.IsActive())
	assert.True(t, breaks.IsWhitelisted("X"))
	assert.Equal(t, 10*time.Minute, breaks.Remaining(clock.Now()))
}

func TestBreakController_LoadStorageFailure(t *testing.T) {
	breaks, storage, _ := newTestBreaks()
	storage.failGet = true

	err := breaks.Load(context.Background())
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
}

func TestBreakController_StartBreakWithProfile(t *testing.T) {
	breaks, storage, _ := newTestBreaks()
	ctx := context.Background()
	storage.addProfile(&FocusProfile{ID: "p1", Name: "Work"}, map[string]int64{
		"com.slack":  PolicyUnlimited,
		"com.notion": 30,
	})

	state, err := breaks.StartBreakWithProfile(ctx, 20, "p1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"com.slack", "com.notion"}, state.Whitelist)
	assert.True(t, breaks.IsWhitelisted("com.slack"))

	_, err = breaks.StartBreakWithProfile(ctx, 20, "missing")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestBreakController_SnapshotIsCopy(t *testing.T) {
	breaks, _, _ := newTestBreaks()
	_, err := breaks.StartBreak(context.Background(), 15, []string{"X"})
	require.NoError(t, err)

	snapshot := breaks.Snapshot()
	snapshot.Whitelist[0] = "mutated"

	assert.Equal(t, []string{"X"}, breaks.Snapshot().Whitelist)
}
