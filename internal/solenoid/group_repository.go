package solenoid

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GroupRepository defines persistence operations for solenoid groups.
type GroupRepository interface {
	// Create inserts a new group with its members.
	// Returns ErrGroupExists on ID or name conflict,
	// ErrMemberNotFound if a member solenoid does not exist.
	Create(ctx context.Context, group *Group) error

	// GetByID retrieves a group with its ordered members.
	// Returns ErrGroupNotFound if missing.
	GetByID(ctx context.Context, id string) (*Group, error)

	// List retrieves all groups with their ordered members.
	List(ctx context.Context) ([]Group, error)

	// Update modifies a group and replaces its member list.
	// Returns ErrGroupNotFound if missing.
	Update(ctx context.Context, group *Group) error

	// Delete removes a group and its memberships.
	// Returns ErrGroupInUse if a schedule still targets it,
	// ErrGroupNotFound if missing.
	Delete(ctx context.Context, id string) error

	// ListContainingSolenoid retrieves all groups that include the
	// given solenoid as a member.
	ListContainingSolenoid(ctx context.Context, solenoidID string) ([]Group, error)
}

// SQLiteGroupRepository implements GroupRepository using SQLite.
type SQLiteGroupRepository struct {
	db *sql.DB
}

// NewSQLiteGroupRepository creates a new SQLite-backed group repository.
func NewSQLiteGroupRepository(db *sql.DB) *SQLiteGroupRepository {
	return &SQLiteGroupRepository{db: db}
}

// Create inserts a new group with its members.
// Group row and memberships commit in one transaction so a group is
// never observable without its member list.
func (r *SQLiteGroupRepository) Create(ctx context.Context, group *Group) error {
	if group == nil {
		return fmt.Errorf("group is required")
	}

	if group.ID == "" {
		group.ID = GenerateID()
	}
	if group.Mode == "" {
		group.Mode = RunModeConcurrent
	}

	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	query := `
		INSERT INTO solenoid_groups (id, name, run_mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, query,
		group.ID,
		group.Name,
		string(group.Mode),
		group.CreatedAt.Format(time.RFC3339),
		group.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrGroupExists
		}
		return fmt.Errorf("inserting solenoid group: %w", err)
	}

	if err := insertMembers(ctx, tx, group.ID, group.Members); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a group with its ordered members.
func (r *SQLiteGroupRepository) GetByID(ctx context.Context, id string) (*Group, error) {
	query := `SELECT id, name, run_mode, created_at, updated_at FROM solenoid_groups WHERE id = ?`

	group, err := scanGroup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("querying solenoid group: %w", err)
	}

	group.Members, err = r.members(ctx, group.ID)
	if err != nil {
		return nil, err
	}

	return group, nil
}

// List retrieves all groups with their ordered members.
func (r *SQLiteGroupRepository) List(ctx context.Context) ([]Group, error) {
	query := `SELECT id, name, run_mode, created_at, updated_at FROM solenoid_groups ORDER BY name`

	groups, err := r.queryGroups(ctx, query)
	if err != nil {
		return nil, err
	}

	for i := range groups {
		groups[i].Members, err = r.members(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return groups, nil
}

// Update modifies a group and replaces its member list.
func (r *SQLiteGroupRepository) Update(ctx context.Context, group *Group) error {
	if group == nil {
		return fmt.Errorf("group is required")
	}

	group.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	query := `UPDATE solenoid_groups SET name = ?, run_mode = ?, updated_at = ? WHERE id = ?`

	result, err := tx.ExecContext(ctx, query,
		group.Name,
		string(group.Mode),
		group.UpdatedAt.Format(time.RFC3339),
		group.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrGroupExists
		}
		return fmt.Errorf("updating solenoid group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrGroupNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM group_members WHERE group_id = ?", group.ID); err != nil {
		return fmt.Errorf("clearing group members: %w", err)
	}

	if err := insertMembers(ctx, tx, group.ID, group.Members); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Delete removes a group and its memberships.
func (r *SQLiteGroupRepository) Delete(ctx context.Context, id string) error {
	var refs int
	refQuery := `SELECT COUNT(*) FROM schedules WHERE target_type = 'group' AND target_id = ?`
	if err := r.db.QueryRowContext(ctx, refQuery, id).Scan(&refs); err != nil {
		return fmt.Errorf("checking group references: %w", err)
	}
	if refs > 0 {
		return ErrGroupInUse
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, execErr := tx.ExecContext(ctx, "DELETE FROM group_members WHERE group_id = ?", id); execErr != nil {
		return fmt.Errorf("deleting group members: %w", execErr)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM solenoid_groups WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting solenoid group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrGroupNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// ListContainingSolenoid retrieves all groups that include the given solenoid.
func (r *SQLiteGroupRepository) ListContainingSolenoid(ctx context.Context, solenoidID string) ([]Group, error) {
	query := `
		SELECT g.id, g.name, g.run_mode, g.created_at, g.updated_at
		FROM solenoid_groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.solenoid_id = ?
		ORDER BY g.name`

	groups, err := r.queryGroups(ctx, query, solenoidID)
	if err != nil {
		return nil, err
	}

	for i := range groups {
		groups[i].Members, err = r.members(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return groups, nil
}

// queryGroups executes a query and returns a slice of groups without members.
func (r *SQLiteGroupRepository) queryGroups(ctx context.Context, query string, args ...any) ([]Group, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying solenoid groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning solenoid group: %w", err)
		}
		groups = append(groups, *group)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating solenoid groups: %w", err)
	}

	return groups, nil
}

// members retrieves a group's members ordered by position.
func (r *SQLiteGroupRepository) members(ctx context.Context, groupID string) ([]Member, error) {
	query := `
		SELECT solenoid_id, position
		FROM group_members
		WHERE group_id = ?
		ORDER BY position`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("querying group members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.SolenoidID, &m.Position); err != nil {
			return nil, fmt.Errorf("scanning group member: %w", err)
		}
		members = append(members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group members: %w", err)
	}

	return members, nil
}

// insertMembers inserts a group's member rows inside an open transaction.
func insertMembers(ctx context.Context, tx *sql.Tx, groupID string, members []Member) error {
	if len(members) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO group_members (group_id, solenoid_id, position) VALUES (?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("preparing member insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range members {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM solenoids WHERE id = ?", m.SolenoidID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking member solenoid: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", ErrMemberNotFound, m.SolenoidID)
		}

		// Position follows list order; caller-supplied values are
		// normalised so gaps never appear.
		if _, err := stmt.ExecContext(ctx, groupID, m.SolenoidID, i); err != nil {
			return fmt.Errorf("inserting group member: %w", err)
		}
	}

	return nil
}

// scanGroup scans a row or rows result into a Group without members.
func scanGroup(scanner rowScanner) (*Group, error) {
	var g Group
	var mode string
	var createdAt, updatedAt string

	err := scanner.Scan(&g.ID, &g.Name, &mode, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	g.Mode = RunMode(mode)

	var parseErr error
	g.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	g.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &g, nil
}
