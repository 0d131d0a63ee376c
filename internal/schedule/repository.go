package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for schedule persistence operations.
type Repository interface {
	// GetByID retrieves a schedule by its unique identifier.
	// Returns ErrNotFound if the schedule does not exist.
	GetByID(ctx context.Context, id string) (*Schedule, error)

	// List retrieves all schedules ordered by name.
	List(ctx context.Context) ([]Schedule, error)

	// ListEnabled retrieves all enabled schedules ordered by name.
	ListEnabled(ctx context.Context) ([]Schedule, error)

	// ListByTarget retrieves all schedules watering the given target.
	ListByTarget(ctx context.Context, targetType TargetType, targetID string) ([]Schedule, error)

	// Create inserts a new schedule.
	// Returns ErrExists if the ID is already taken.
	Create(ctx context.Context, s *Schedule) error

	// Update modifies an existing schedule.
	// Returns ErrNotFound if the schedule does not exist.
	Update(ctx context.Context, s *Schedule) error

	// Delete removes a schedule and its watermark.
	// Returns ErrNotFound if the schedule does not exist.
	Delete(ctx context.Context, id string) error

	// SetEnabled flips the enabled flag.
	// Returns ErrNotFound if the schedule does not exist.
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// GetWatermark returns the instant through which this schedule has
	// been evaluated. ok is false when no watermark exists yet.
	GetWatermark(ctx context.Context, scheduleID string) (through time.Time, ok bool, err error)

	// SetWatermark advances the schedule's watermark.
	SetWatermark(ctx context.Context, scheduleID string, through time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const scheduleColumns = `id, name, target_type, target_id, slots, enabled, created_at, updated_at`

// GetByID retrieves a schedule by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`

	s, err := scanSchedule(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying schedule by id: %w", err)
	}
	return s, nil
}

// List retrieves all schedules ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules ORDER BY name`
	return r.querySchedules(ctx, query)
}

// ListEnabled retrieves all enabled schedules ordered by name.
func (r *SQLiteRepository) ListEnabled(ctx context.Context) ([]Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE enabled = 1 ORDER BY name`
	return r.querySchedules(ctx, query)
}

// ListByTarget retrieves all schedules watering the given target.
func (r *SQLiteRepository) ListByTarget(ctx context.Context, targetType TargetType, targetID string) ([]Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE target_type = ? AND target_id = ? ORDER BY name`
	return r.querySchedules(ctx, query, string(targetType), targetID)
}

// Create inserts a new schedule.
func (r *SQLiteRepository) Create(ctx context.Context, s *Schedule) error {
	slotsJSON, err := json.Marshal(s.Slots)
	if err != nil {
		return fmt.Errorf("marshalling slots: %w", err)
	}

	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	query := `
		INSERT INTO schedules (id, name, target_type, target_id, slots, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		s.ID,
		s.Name,
		string(s.TargetType),
		s.TargetID,
		string(slotsJSON),
		boolToInt(s.Enabled),
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting schedule: %w", err)
	}

	return nil
}

// Update modifies an existing schedule.
func (r *SQLiteRepository) Update(ctx context.Context, s *Schedule) error {
	slotsJSON, err := json.Marshal(s.Slots)
	if err != nil {
		return fmt.Errorf("marshalling slots: %w", err)
	}

	s.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE schedules SET
			name = ?, target_type = ?, target_id = ?, slots = ?, enabled = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		s.Name,
		string(s.TargetType),
		s.TargetID,
		string(slotsJSON),
		boolToInt(s.Enabled),
		s.UpdatedAt.Format(time.RFC3339),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("updating schedule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a schedule and its watermark in one transaction.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, execErr := tx.ExecContext(ctx, "DELETE FROM schedule_watermarks WHERE schedule_id = ?", id); execErr != nil {
		return fmt.Errorf("deleting schedule watermark: %w", execErr)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// SetEnabled flips the enabled flag.
func (r *SQLiteRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	now := time.Now().UTC()
	query := `UPDATE schedules SET enabled = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, boolToInt(enabled), now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating schedule enabled: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetWatermark returns the instant through which this schedule has been evaluated.
func (r *SQLiteRepository) GetWatermark(ctx context.Context, scheduleID string) (time.Time, bool, error) {
	var raw string
	query := `SELECT evaluated_through FROM schedule_watermarks WHERE schedule_id = ?`

	err := r.db.QueryRowContext(ctx, query, scheduleID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying watermark: %w", err)
	}

	through, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing watermark: %w", err)
	}

	return through, true, nil
}

// SetWatermark advances the schedule's watermark.
// The upsert keeps one row per schedule.
func (r *SQLiteRepository) SetWatermark(ctx context.Context, scheduleID string, through time.Time) error {
	query := `
		INSERT INTO schedule_watermarks (schedule_id, evaluated_through)
		VALUES (?, ?)
		ON CONFLICT(schedule_id) DO UPDATE SET evaluated_through = excluded.evaluated_through`

	_, err := r.db.ExecContext(ctx, query, scheduleID, through.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("setting watermark: %w", err)
	}

	return nil
}

// querySchedules executes a query and returns a slice of schedules.
func (r *SQLiteRepository) querySchedules(ctx context.Context, query string, args ...any) ([]Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		schedules = append(schedules, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}

	return schedules, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSchedule scans a row or rows result into a Schedule.
func scanSchedule(scanner rowScanner) (*Schedule, error) {
	var s Schedule
	var targetType, slotsJSON string
	var enabled int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&s.ID,
		&s.Name,
		&targetType,
		&s.TargetID,
		&slotsJSON,
		&enabled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.TargetType = TargetType(targetType)
	s.Enabled = enabled != 0

	if err := json.Unmarshal([]byte(slotsJSON), &s.Slots); err != nil {
		return nil, fmt.Errorf("unmarshalling slots: %w", err)
	}

	var parseErr error
	s.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	s.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &s, nil
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
