package solenoid

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for solenoid persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a solenoid by its unique identifier.
	// Returns ErrNotFound if the solenoid does not exist.
	GetByID(ctx context.Context, id string) (*Solenoid, error)

	// GetBySwitchRef retrieves a solenoid by its MQTT switch reference.
	// Returns ErrNotFound if no solenoid uses that ref.
	GetBySwitchRef(ctx context.Context, ref string) (*Solenoid, error)

	// List retrieves all solenoids ordered by name.
	List(ctx context.Context) ([]Solenoid, error)

	// Create inserts a new solenoid.
	// Returns ErrExists if the ID or switch_ref is already taken.
	Create(ctx context.Context, s *Solenoid) error

	// Update modifies an existing solenoid.
	// Returns ErrNotFound if the solenoid does not exist.
	Update(ctx context.Context, s *Solenoid) error

	// Delete removes a solenoid by ID.
	// Returns ErrInUse if a group or schedule still references it,
	// ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// DeleteCascade removes a solenoid along with its references:
	// schedules targeting it are disabled and its group memberships
	// removed, all in one transaction.
	DeleteCascade(ctx context.Context, id string) error

	// UpdateObservedState records the latest valve state reported by
	// the switch bridge. Optimised for frequent updates.
	UpdateObservedState(ctx context.Context, id string, state ValveState) error

	// TouchLastCommand records the time of the last command sent to
	// this valve.
	TouchLastCommand(ctx context.Context, id string, at time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const solenoidColumns = `id, name, switch_ref, observed_state, last_command_at, created_at, updated_at`

// GetByID retrieves a solenoid by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Solenoid, error) {
	query := `SELECT ` + solenoidColumns + ` FROM solenoids WHERE id = ?`

	s, err := scanSolenoid(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying solenoid by id: %w", err)
	}
	return s, nil
}

// GetBySwitchRef retrieves a solenoid by its MQTT switch reference.
func (r *SQLiteRepository) GetBySwitchRef(ctx context.Context, ref string) (*Solenoid, error) {
	query := `SELECT ` + solenoidColumns + ` FROM solenoids WHERE switch_ref = ?`

	s, err := scanSolenoid(r.db.QueryRowContext(ctx, query, ref))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying solenoid by switch_ref: %w", err)
	}
	return s, nil
}

// List retrieves all solenoids ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Solenoid, error) {
	query := `SELECT ` + solenoidColumns + ` FROM solenoids ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying solenoids: %w", err)
	}
	defer rows.Close()

	var solenoids []Solenoid
	for rows.Next() {
		s, err := scanSolenoid(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning solenoid: %w", err)
		}
		solenoids = append(solenoids, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating solenoids: %w", err)
	}

	return solenoids, nil
}

// Create inserts a new solenoid.
func (r *SQLiteRepository) Create(ctx context.Context, s *Solenoid) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	if s.ObservedState == "" {
		s.ObservedState = ValveStateUnknown
	}

	query := `
		INSERT INTO solenoids (id, name, switch_ref, observed_state, last_command_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.Name,
		s.SwitchRef,
		string(s.ObservedState),
		nullableTime(s.LastCommandAt),
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting solenoid: %w", err)
	}

	return nil
}

// Update modifies an existing solenoid.
func (r *SQLiteRepository) Update(ctx context.Context, s *Solenoid) error {
	s.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE solenoids SET
			name = ?, switch_ref = ?, observed_state = ?, last_command_at = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		s.Name,
		s.SwitchRef,
		string(s.ObservedState),
		nullableTime(s.LastCommandAt),
		s.UpdatedAt.Format(time.RFC3339),
		s.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("updating solenoid: %w", err)
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

// Delete removes a solenoid by ID.
// Deletion is refused while any group membership or schedule still
// references the solenoid: orphaned targets would make enabled
// schedules silently dead.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	var refs int
	query := `
		SELECT
			(SELECT COUNT(*) FROM group_members WHERE solenoid_id = ?) +
			(SELECT COUNT(*) FROM schedules WHERE target_type = 'solenoid' AND target_id = ?)`
	if err := r.db.QueryRowContext(ctx, query, id, id).Scan(&refs); err != nil {
		return fmt.Errorf("checking solenoid references: %w", err)
	}
	if refs > 0 {
		return ErrInUse
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM solenoids WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting solenoid: %w", err)
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

// DeleteCascade removes a solenoid together with its references.
func (r *SQLiteRepository) DeleteCascade(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		`UPDATE schedules SET enabled = 0 WHERE target_type = 'solenoid' AND target_id = ?`, id); err != nil {
		return fmt.Errorf("disabling schedules: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM group_members WHERE solenoid_id = ?`, id); err != nil {
		return fmt.Errorf("removing group memberships: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM solenoids WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting solenoid: %w", err)
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

// UpdateObservedState records the latest valve state reported by the bridge.
func (r *SQLiteRepository) UpdateObservedState(ctx context.Context, id string, state ValveState) error {
	now := time.Now().UTC()
	query := `UPDATE solenoids SET observed_state = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, string(state), now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating observed state: %w", err)
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

// TouchLastCommand records the time of the last command sent to this valve.
func (r *SQLiteRepository) TouchLastCommand(ctx context.Context, id string, at time.Time) error {
	now := time.Now().UTC()
	query := `UPDATE solenoids SET last_command_at = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		at.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating last command time: %w", err)
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

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSolenoid scans a row or rows result into a Solenoid.
func scanSolenoid(scanner rowScanner) (*Solenoid, error) {
	var s Solenoid
	var observedState string
	var lastCommandAt sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&s.ID,
		&s.Name,
		&s.SwitchRef,
		&observedState,
		&lastCommandAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.ObservedState = ValveState(observedState)

	if lastCommandAt.Valid {
		t, err := time.Parse(time.RFC3339, lastCommandAt.String)
		if err == nil {
			s.LastCommandAt = &t
		}
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

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
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
