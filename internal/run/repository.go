package run

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ListFilter narrows activation history queries. Zero values are
// ignored.
type ListFilter struct {
	SolenoidID string
	ScheduleID string
	Status     Status
	Limit      int
}

// Repository defines the interface for activation persistence.
// The log is append-only: rows are inserted at admission and updated
// only to record lifecycle transitions, never deleted.
type Repository interface {
	// Insert persists a newly admitted activation.
	Insert(ctx context.Context, a *Activation) error

	// UpdateStatus records a lifecycle transition.
	// Returns ErrNotFound if the activation does not exist.
	UpdateStatus(ctx context.Context, a *Activation) error

	// GetByID retrieves an activation by ID.
	// Returns ErrNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Activation, error)

	// List retrieves activations newest first, narrowed by filter.
	List(ctx context.Context, filter ListFilter) ([]Activation, error)

	// ListNonTerminal retrieves all pending and active activations.
	// This is the recovery source after a restart.
	ListNonTerminal(ctx context.Context) ([]Activation, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed activation repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const activationColumns = `id, solenoid_id, cause_type, schedule_id, slot_id,
	scheduled_start, scheduled_stop, actual_start, actual_stop,
	status, failure_reason, created_at`

// Insert persists a newly admitted activation.
func (r *SQLiteRepository) Insert(ctx context.Context, a *Activation) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO activations (` + activationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.SolenoidID,
		string(a.Cause.Type),
		nullableStr(a.Cause.ScheduleID),
		nullableStr(a.Cause.SlotID),
		a.ScheduledStart.UTC().Format(time.RFC3339),
		a.ScheduledStop.UTC().Format(time.RFC3339),
		nullableTime(a.ActualStart),
		nullableTime(a.ActualStop),
		string(a.Status),
		nullableStrPtr(a.FailureReason),
		a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting activation: %w", err)
	}

	return nil
}

// UpdateStatus records a lifecycle transition.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, a *Activation) error {
	query := `
		UPDATE activations SET
			status = ?, actual_start = ?, actual_stop = ?, failure_reason = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(a.Status),
		nullableTime(a.ActualStart),
		nullableTime(a.ActualStop),
		nullableStrPtr(a.FailureReason),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating activation: %w", err)
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

// GetByID retrieves an activation by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Activation, error) {
	query := `SELECT ` + activationColumns + ` FROM activations WHERE id = ?`

	a, err := scanActivation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying activation: %w", err)
	}
	return a, nil
}

// List retrieves activations newest first, narrowed by filter.
func (r *SQLiteRepository) List(ctx context.Context, filter ListFilter) ([]Activation, error) {
	query := `SELECT ` + activationColumns + ` FROM activations WHERE 1=1`
	var args []any

	if filter.SolenoidID != "" {
		query += " AND solenoid_id = ?"
		args = append(args, filter.SolenoidID)
	}
	if filter.ScheduleID != "" {
		query += " AND schedule_id = ?"
		args = append(args, filter.ScheduleID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	query += " ORDER BY scheduled_start DESC, id"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return r.queryActivations(ctx, query, args...)
}

// ListNonTerminal retrieves all pending and active activations.
func (r *SQLiteRepository) ListNonTerminal(ctx context.Context) ([]Activation, error) {
	query := `SELECT ` + activationColumns + ` FROM activations
		WHERE status IN ('pending', 'active')
		ORDER BY scheduled_start, id`

	return r.queryActivations(ctx, query)
}

func (r *SQLiteRepository) queryActivations(ctx context.Context, query string, args ...any) ([]Activation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activations: %w", err)
	}
	defer rows.Close()

	var activations []Activation
	for rows.Next() {
		a, err := scanActivation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning activation: %w", err)
		}
		activations = append(activations, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activations: %w", err)
	}

	return activations, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanActivation scans a row or rows result into an Activation.
func scanActivation(scanner rowScanner) (*Activation, error) {
	var a Activation
	var causeType, status string
	var scheduleID, slotID, failureReason sql.NullString
	var scheduledStart, scheduledStop, createdAt string
	var actualStart, actualStop sql.NullString

	err := scanner.Scan(
		&a.ID,
		&a.SolenoidID,
		&causeType,
		&scheduleID,
		&slotID,
		&scheduledStart,
		&scheduledStop,
		&actualStart,
		&actualStop,
		&status,
		&failureReason,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	a.Cause.Type = CauseType(causeType)
	a.Status = Status(status)

	if scheduleID.Valid {
		a.Cause.ScheduleID = scheduleID.String
	}
	if slotID.Valid {
		a.Cause.SlotID = slotID.String
	}
	if failureReason.Valid {
		a.FailureReason = &failureReason.String
	}

	var parseErr error
	a.ScheduledStart, parseErr = time.Parse(time.RFC3339, scheduledStart)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing scheduled_start: %w", parseErr)
	}
	a.ScheduledStop, parseErr = time.Parse(time.RFC3339, scheduledStop)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing scheduled_stop: %w", parseErr)
	}
	a.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}

	if actualStart.Valid {
		t, err := time.Parse(time.RFC3339, actualStart.String)
		if err == nil {
			a.ActualStart = &t
		}
	}
	if actualStop.Valid {
		t, err := time.Parse(time.RFC3339, actualStop.String)
		if err == nil {
			a.ActualStop = &t
		}
	}

	// Scheduled causes reconstruct their occurrence key from the
	// nominal start.
	if a.Cause.Type == CauseSchedule {
		a.Cause.OccurrenceStart = a.ScheduledStart
	}

	return &a, nil
}

func nullableStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableStrPtr(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
