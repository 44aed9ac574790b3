package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"focusguard/internal/core"
	"focusguard/internal/storage"

	_ "github.com/mattn/go-sqlite3"
)

// dayLayout is the on-disk format of calendar days
const dayLayout = "2006-01-02"

// SQLiteStorage implements storage.Storage using SQLite
type SQLiteStorage struct {
	db       *sql.DB
	timezone *time.Location
	clock    core.Clock
}

// Option configures a SQLiteStorage
type Option func(*SQLiteStorage)

// WithClock sets the clock used to stamp created_at/updated_at
func WithClock(clock core.Clock) Option {
	return func(s *SQLiteStorage) {
		if clock != nil {
			s.clock = clock
		}
	}
}

var _ storage.Storage = (*SQLiteStorage)(nil)

// New creates a new SQLite storage instance
func New(dbPath string, timezone *time.Location, opts ...Option) (*SQLiteStorage, error) {
	if timezone == nil {
		timezone = time.UTC // Fallback to UTC
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// foreign_keys is per connection
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	storage := &SQLiteStorage{
		db:       db,
		timezone: timezone,
		clock:    core.RealClock{},
	}
	for _, opt := range opts {
		opt(storage)
	}

	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return storage, nil
}

// migrate creates the database schema
func (s *SQLiteStorage) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS app_limits (
			package_id TEXT PRIMARY KEY,
			limit_minutes INTEGER NOT NULL,
			notification_interval_minutes INTEGER,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS usage_records (
			package_id TEXT NOT NULL,
			day TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			last_updated DATETIME NOT NULL,
			PRIMARY KEY (package_id, day)
		);

		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_manually_active INTEGER NOT NULL DEFAULT 0,
			schedule_enabled INTEGER NOT NULL DEFAULT 0,
			schedule_start INTEGER NOT NULL DEFAULT 0,
			schedule_end INTEGER NOT NULL DEFAULT 0,
			days_of_week TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS profile_app_policies (
			profile_id TEXT NOT NULL,
			package_id TEXT NOT NULL,
			limit_minutes INTEGER NOT NULL,
			PRIMARY KEY (profile_id, package_id),
			FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS break_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			active INTEGER NOT NULL DEFAULT 0,
			ends_at DATETIME,
			whitelist TEXT NOT NULL DEFAULT '[]',
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS override_log (
			id TEXT PRIMARY KEY,
			package_id TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			reason TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS strict_mode (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			enabled INTEGER NOT NULL DEFAULT 0,
			pin_hash TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notification_milestones (
			package_id TEXT NOT NULL,
			day TEXT NOT NULL,
			minutes INTEGER NOT NULL,
			PRIMARY KEY (package_id, day)
		);

		CREATE INDEX IF NOT EXISTS idx_usage_records_day ON usage_records(day);
		CREATE INDEX IF NOT EXISTS idx_policies_package ON profile_app_policies(package_id);
		CREATE INDEX IF NOT EXISTS idx_override_log_timestamp ON override_log(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// GetUsageRecord retrieves the usage of an app on a day
func (s *SQLiteStorage) GetUsageRecord(ctx context.Context, packageID string, day time.Time) (*core.UsageRecord, error) {
	var (
		durationMS int64
		record     core.UsageRecord
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT duration_ms, last_updated FROM usage_records
		WHERE package_id = ? AND day = ?
	`, packageID, s.dayKey(day)).Scan(&durationMS, &record.LastUpdated)

	if err == sql.ErrNoRows {
		return nil, core.ErrUsageNotFound
	}
	if err != nil {
		return nil, err
	}

	record.PackageID = packageID
	record.Day = s.normalizeDate(day)
	record.Duration = time.Duration(durationMS) * time.Millisecond
	return &record, nil
}

// AddUsage atomically adds delta to the usage of an app on a day
func (s *SQLiteStorage) AddUsage(ctx context.Context, packageID string, day time.Time, delta time.Duration, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (package_id, day, duration_ms, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(package_id, day) DO UPDATE SET
			duration_ms = duration_ms + excluded.duration_ms,
			last_updated = excluded.last_updated
	`, packageID, s.dayKey(day), delta.Milliseconds(), at)

	return err
}

// SetUsage overwrites the usage of an app on a day
func (s *SQLiteStorage) SetUsage(ctx context.Context, packageID string, day time.Time, total time.Duration, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (package_id, day, duration_ms, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(package_id, day) DO UPDATE SET
			duration_ms = excluded.duration_ms,
			last_updated = excluded.last_updated
	`, packageID, s.dayKey(day), total.Milliseconds(), at)

	return err
}

// ListUsageForDay retrieves the usage of every app on a day
func (s *SQLiteStorage) ListUsageForDay(ctx context.Context, day time.Time) ([]*core.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package_id, duration_ms, last_updated FROM usage_records
		WHERE day = ? ORDER BY duration_ms DESC, package_id
	`, s.dayKey(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	normalized := s.normalizeDate(day)
	var records []*core.UsageRecord
	for rows.Next() {
		var (
			record     core.UsageRecord
			durationMS int64
		)
		if err := rows.Scan(&record.PackageID, &durationMS, &record.LastUpdated); err != nil {
			return nil, err
		}
		record.Day = normalized
		record.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, &record)
	}

	return records, rows.Err()
}

// ListDailyTotals retrieves the total usage per day, most recent first
func (s *SQLiteStorage) ListDailyTotals(ctx context.Context) ([]core.DailyTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, SUM(duration_ms) FROM usage_records
		GROUP BY day ORDER BY day DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []core.DailyTotal
	for rows.Next() {
		var (
			day     string
			totalMS int64
		)
		if err := rows.Scan(&day, &totalMS); err != nil {
			return nil, err
		}
		parsed, err := s.parseDay(day)
		if err != nil {
			return nil, err
		}
		totals = append(totals, core.DailyTotal{
			Day:   parsed,
			Total: time.Duration(totalMS) * time.Millisecond,
		})
	}

	return totals, rows.Err()
}

// GetAppLimit retrieves the limit of an app
func (s *SQLiteStorage) GetAppLimit(ctx context.Context, packageID string) (*core.AppLimit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT package_id, limit_minutes, notification_interval_minutes, created_at, updated_at
		FROM app_limits WHERE package_id = ?
	`, packageID)

	limit, err := scanAppLimit(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrAppLimitNotFound
	}
	return limit, err
}

// ListAppLimits retrieves all app limits
func (s *SQLiteStorage) ListAppLimits(ctx context.Context) ([]*core.AppLimit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT package_id, limit_minutes, notification_interval_minutes, created_at, updated_at
		FROM app_limits ORDER BY package_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var limits []*core.AppLimit
	for rows.Next() {
		limit, err := scanAppLimit(rows)
		if err != nil {
			return nil, err
		}
		limits = append(limits, limit)
	}

	return limits, rows.Err()
}

// SaveAppLimit creates or replaces the limit of an app
func (s *SQLiteStorage) SaveAppLimit(ctx context.Context, limit *core.AppLimit) error {
	if err := limit.Validate(); err != nil {
		return err
	}

	now := s.clock.Now()
	if limit.CreatedAt.IsZero() {
		limit.CreatedAt = now
	}
	limit.UpdatedAt = now

	var interval sql.NullInt64
	if limit.NotificationIntervalMinutes != nil {
		interval = sql.NullInt64{Int64: int64(*limit.NotificationIntervalMinutes), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_limits (package_id, limit_minutes, notification_interval_minutes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(package_id) DO UPDATE SET
			limit_minutes = excluded.limit_minutes,
			notification_interval_minutes = excluded.notification_interval_minutes,
			updated_at = excluded.updated_at
	`, limit.PackageID, limit.LimitMinutes, interval, limit.CreatedAt, limit.UpdatedAt)

	return err
}

// DeleteAppLimit deletes the limit of an app
func (s *SQLiteStorage) DeleteAppLimit(ctx context.Context, packageID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM app_limits WHERE package_id = ?", packageID)
	if err != nil {
		return err
	}
	return requireAffected(result, core.ErrAppLimitNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAppLimit(row scanner) (*core.AppLimit, error) {
	var (
		limit    core.AppLimit
		interval sql.NullInt64
	)
	if err := row.Scan(&limit.PackageID, &limit.LimitMinutes, &interval, &limit.CreatedAt, &limit.UpdatedAt); err != nil {
		return nil, err
	}
	if interval.Valid {
		minutes := int(interval.Int64)
		limit.NotificationIntervalMinutes = &minutes
	}
	return &limit, nil
}

// requireAffected turns a no-op statement into notFound
func requireAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func (s *SQLiteStorage) normalizeDate(t time.Time) time.Time {
	// Convert to configured timezone and normalize to midnight
	// This ensures dates match the user's local calendar day
	return core.NormalizeDate(t, s.timezone)
}

func (s *SQLiteStorage) dayKey(t time.Time) string {
	return s.normalizeDate(t).Format(dayLayout)
}

func (s *SQLiteStorage) parseDay(day string) (time.Time, error) {
	parsed, err := time.ParseInLocation(dayLayout, day, s.timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", day, err)
	}
	return parsed, nil
}

func marshalStrings(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalStrings(data string) ([]string, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil, err
	}
	return items, nil
}
