package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"focusguard/internal/core"
)

// GetBreakState retrieves the stored break state
// Returns nil when no break was ever started
func (s *SQLiteStorage) GetBreakState(ctx context.Context) (*core.BreakState, error) {
	var (
		state     core.BreakState
		endsAt    sql.NullTime
		whitelist string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT active, ends_at, whitelist, updated_at FROM break_state WHERE id = 1
	`).Scan(&state.Active, &endsAt, &whitelist, &state.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil // No break stored yet
	}
	if err != nil {
		return nil, err
	}

	if endsAt.Valid {
		state.EndsAt = endsAt.Time
	}
	state.Whitelist, err = unmarshalStrings(whitelist)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal whitelist: %w", err)
	}

	return &state, nil
}

// SaveBreakState saves or replaces the break state
func (s *SQLiteStorage) SaveBreakState(ctx context.Context, state *core.BreakState) error {
	whitelist, err := marshalStrings(state.Whitelist)
	if err != nil {
		return fmt.Errorf("failed to marshal whitelist: %w", err)
	}

	var endsAt sql.NullTime
	if !state.EndsAt.IsZero() {
		endsAt = sql.NullTime{Time: state.EndsAt, Valid: true}
	}
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.clock.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO break_state (id, active, ends_at, whitelist, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			active = excluded.active,
			ends_at = excluded.ends_at,
			whitelist = excluded.whitelist,
			updated_at = excluded.updated_at
	`, state.Active, endsAt, whitelist, updatedAt)

	return err
}

// GetStrictMode retrieves the strict mode settings
// Returns nil when strict mode was never configured
func (s *SQLiteStorage) GetStrictMode(ctx context.Context) (*core.StrictMode, error) {
	var mode core.StrictMode

	err := s.db.QueryRowContext(ctx, `
		SELECT enabled, pin_hash, updated_at FROM strict_mode WHERE id = 1
	`).Scan(&mode.Enabled, &mode.PINHash, &mode.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mode, nil
}

// SaveStrictMode saves or replaces the strict mode settings
func (s *SQLiteStorage) SaveStrictMode(ctx context.Context, mode *core.StrictMode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strict_mode (id, enabled, pin_hash, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled,
			pin_hash = excluded.pin_hash,
			updated_at = excluded.updated_at
	`, mode.Enabled, mode.PINHash, mode.UpdatedAt)

	return err
}

// AppendOverride records an emergency unlock
func (s *SQLiteStorage) AppendOverride(ctx context.Context, entry *core.OverrideLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO override_log (id, package_id, timestamp, reason, duration_minutes)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.PackageID, entry.Timestamp, entry.Reason, entry.DurationMinutes)

	return err
}

// ListOverrides retrieves the most recent overrides, newest first.
// A limit of zero or less returns all entries.
func (s *SQLiteStorage) ListOverrides(ctx context.Context, limit int) ([]*core.OverrideLogEntry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, package_id, timestamp, reason, duration_minutes
		FROM override_log ORDER BY timestamp DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*core.OverrideLogEntry
	for rows.Next() {
		var entry core.OverrideLogEntry
		if err := rows.Scan(&entry.ID, &entry.PackageID, &entry.Timestamp, &entry.Reason, &entry.DurationMinutes); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// ListMilestones retrieves the last notified milestone of each app on a day
func (s *SQLiteStorage) ListMilestones(ctx context.Context, day time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package_id, minutes FROM notification_milestones WHERE day = ?
	`, s.dayKey(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	milestones := make(map[string]int)
	for rows.Next() {
		var (
			packageID string
			minutes   int
		)
		if err := rows.Scan(&packageID, &minutes); err != nil {
			return nil, err
		}
		milestones[packageID] = minutes
	}

	return milestones, rows.Err()
}

// SaveMilestone records the last notified milestone of an app on a day
func (s *SQLiteStorage) SaveMilestone(ctx context.Context, packageID string, day time.Time, minutes int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_milestones (package_id, day, minutes)
		VALUES (?, ?, ?)
		ON CONFLICT(package_id, day) DO UPDATE SET
			minutes = excluded.minutes
	`, packageID, s.dayKey(day), minutes)

	return err
}

// DeleteMilestonesBefore drops milestones of days before day
func (s *SQLiteStorage) DeleteMilestonesBefore(ctx context.Context, day time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM notification_milestones WHERE day < ?
	`, s.dayKey(day))

	return err
}
