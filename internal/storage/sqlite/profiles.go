package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"focusguard/internal/core"
)

const profileColumns = `id, name, is_manually_active, schedule_enabled, schedule_start, schedule_end, days_of_week, created_at, updated_at`

// CreateProfile creates a new focus profile
func (s *SQLiteStorage) CreateProfile(ctx context.Context, profile *core.FocusProfile) error {
	days, err := marshalDays(profile.DaysOfWeek)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, profile.ID, profile.Name, profile.IsManuallyActive, profile.ScheduleEnabled,
		profile.ScheduleStart, profile.ScheduleEnd, days, profile.CreatedAt, profile.UpdatedAt)

	return err
}

// GetProfile retrieves a profile by ID
func (s *SQLiteStorage) GetProfile(ctx context.Context, id string) (*core.FocusProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)

	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrProfileNotFound
	}
	return profile, err
}

// ListProfiles retrieves all profiles
func (s *SQLiteStorage) ListProfiles(ctx context.Context) ([]*core.FocusProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*core.FocusProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}

	return profiles, rows.Err()
}

// UpdateProfile updates an existing profile
func (s *SQLiteStorage) UpdateProfile(ctx context.Context, profile *core.FocusProfile) error {
	days, err := marshalDays(profile.DaysOfWeek)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET name = ?, is_manually_active = ?, schedule_enabled = ?, schedule_start = ?,
			schedule_end = ?, days_of_week = ?, updated_at = ?
		WHERE id = ?
	`, profile.Name, profile.IsManuallyActive, profile.ScheduleEnabled, profile.ScheduleStart,
		profile.ScheduleEnd, days, profile.UpdatedAt, profile.ID)
	if err != nil {
		return err
	}

	return requireAffected(result, core.ErrProfileNotFound)
}

// DeleteProfile deletes a profile. Its policies go with it.
func (s *SQLiteStorage) DeleteProfile(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM profiles WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(result, core.ErrProfileNotFound)
}

// SetProfilePolicy creates or replaces the policy of a profile for an app
func (s *SQLiteStorage) SetProfilePolicy(ctx context.Context, policy *core.ProfileAppPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_app_policies (profile_id, package_id, limit_minutes)
		VALUES (?, ?, ?)
		ON CONFLICT(profile_id, package_id) DO UPDATE SET
			limit_minutes = excluded.limit_minutes
	`, policy.ProfileID, policy.PackageID, policy.LimitMinutes)

	return err
}

// DeleteProfilePolicy deletes the policy of a profile for an app
func (s *SQLiteStorage) DeleteProfilePolicy(ctx context.Context, profileID, packageID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM profile_app_policies WHERE profile_id = ? AND package_id = ?
	`, profileID, packageID)
	if err != nil {
		return err
	}
	return requireAffected(result, core.ErrPolicyNotFound)
}

// ListProfilePolicies retrieves all policies of a profile
func (s *SQLiteStorage) ListProfilePolicies(ctx context.Context, profileID string) ([]*core.ProfileAppPolicy, error) {
	return s.listPolicies(ctx, "profile_id = ?", profileID)
}

// ListPoliciesForPackage retrieves the policies every profile has for an app
func (s *SQLiteStorage) ListPoliciesForPackage(ctx context.Context, packageID string) ([]*core.ProfileAppPolicy, error) {
	return s.listPolicies(ctx, "package_id = ?", packageID)
}

func (s *SQLiteStorage) listPolicies(ctx context.Context, condition string, args ...interface{}) ([]*core.ProfileAppPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT profile_id, package_id, limit_minutes FROM profile_app_policies
		WHERE `+condition+` ORDER BY profile_id, package_id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*core.ProfileAppPolicy
	for rows.Next() {
		var policy core.ProfileAppPolicy
		if err := rows.Scan(&policy.ProfileID, &policy.PackageID, &policy.LimitMinutes); err != nil {
			return nil, err
		}
		policies = append(policies, &policy)
	}

	return policies, rows.Err()
}

func scanProfile(row scanner) (*core.FocusProfile, error) {
	var (
		profile core.FocusProfile
		days    string
	)
	if err := row.Scan(&profile.ID, &profile.Name, &profile.IsManuallyActive, &profile.ScheduleEnabled,
		&profile.ScheduleStart, &profile.ScheduleEnd, &days, &profile.CreatedAt, &profile.UpdatedAt); err != nil {
		return nil, err
	}
	if days != "" {
		if err := json.Unmarshal([]byte(days), &profile.DaysOfWeek); err != nil {
			return nil, fmt.Errorf("failed to unmarshal days of week: %w", err)
		}
	}
	return &profile, nil
}

func marshalDays(days []int) (string, error) {
	if days == nil {
		days = []int{}
	}
	data, err := json.Marshal(days)
	if err != nil {
		return "", fmt.Errorf("failed to marshal days of week: %w", err)
	}
	return string(data), nil
}
