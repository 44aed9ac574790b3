package logging

import (
	"context"
	"log/slog"
	"time"

	"focusguard/internal/core"
)

// BreakManagerLogger wraps a BreakManager and logs all state-changing calls
type BreakManagerLogger struct {
	manager core.BreakManager
	logger  *slog.Logger
}

// NewBreakManagerLogger creates a new logging decorator for BreakManager
func NewBreakManagerLogger(manager core.BreakManager, logger *slog.Logger) core.BreakManager {
	return &BreakManagerLogger{
		manager: manager,
		logger:  logger.With("interface", "BreakManager"),
	}
}

func (l *BreakManagerLogger) StartBreak(ctx context.Context, durationMinutes int, whitelist []string) (*core.BreakState, error) {
	start := time.Now()
	l.logger.Info("StartBreak called",
		"duration_minutes", durationMinutes,
		"whitelist", whitelist)

	state, err := l.manager.StartBreak(ctx, durationMinutes, whitelist)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("StartBreak failed",
			"duration_minutes", durationMinutes,
			"duration", duration,
			"error", err)
		return nil, err
	}

	l.logger.Info("StartBreak completed",
		"duration_minutes", durationMinutes,
		"ends_at", state.EndsAt,
		"whitelist_size", len(state.Whitelist),
		"duration", duration)

	return state, nil
}

func (l *BreakManagerLogger) StartBreakWithProfile(ctx context.Context, durationMinutes int, profileID string) (*core.BreakState, error) {
	start := time.Now()
	l.logger.Info("StartBreakWithProfile called",
		"duration_minutes", durationMinutes,
		"profile_id", profileID)

	state, err := l.manager.StartBreakWithProfile(ctx, durationMinutes, profileID)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("StartBreakWithProfile failed",
			"duration_minutes", durationMinutes,
			"profile_id", profileID,
			"duration", duration,
			"error", err)
		return nil, err
	}

	l.logger.Info("StartBreakWithProfile completed",
		"profile_id", profileID,
		"ends_at", state.EndsAt,
		"whitelist_size", len(state.Whitelist),
		"duration", duration)

	return state, nil
}

func (l *BreakManagerLogger) StopBreak(ctx context.Context) error {
	start := time.Now()
	l.logger.Info("StopBreak called")

	err := l.manager.StopBreak(ctx)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("StopBreak failed",
			"duration", duration,
			"error", err)
		return err
	}

	l.logger.Info("StopBreak completed", "duration", duration)
	return nil
}

// ExpireIfDue runs on every monitor tick, so only outcomes are logged
func (l *BreakManagerLogger) ExpireIfDue(ctx context.Context, now time.Time) (bool, error) {
	expired, err := l.manager.ExpireIfDue(ctx, now)
	if err != nil {
		l.logger.Error("ExpireIfDue failed", "error", err)
		return expired, err
	}
	if expired {
		l.logger.Info("Break expired", "at", now)
	}
	return expired, nil
}

func (l *BreakManagerLogger) Snapshot() core.BreakState {
	return l.manager.Snapshot()
}

func (l *BreakManagerLogger) Remaining(now time.Time) time.Duration {
	return l.manager.Remaining(now)
}

func (l *BreakManagerLogger) IsWhitelisted(packageID string) bool {
	return l.manager.IsWhitelisted(packageID)
}
