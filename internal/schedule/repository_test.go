package schedule

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the schedule tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE schedules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL,
			slots TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);
		CREATE TABLE schedule_watermarks (
			schedule_id TEXT PRIMARY KEY,
			evaluated_through TEXT NOT NULL
		);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func testSchedule(id, name string) *Schedule {
	return &Schedule{
		ID:         id,
		Name:       name,
		TargetType: TargetSolenoid,
		TargetID:   "sol-1",
		Enabled:    true,
		Slots: []TimeSlot{
			{ID: "slot-1", Start: "06:00", DurationMinutes: 15, Days: []Weekday{Monday, Friday}},
		},
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	s := testSchedule("sch-001", "Morning Drip")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "sch-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Morning Drip" {
		t.Errorf("Name = %q, want Morning Drip", got.Name)
	}
	if got.TargetType != TargetSolenoid || got.TargetID != "sol-1" {
		t.Errorf("target = %s/%s, want solenoid/sol-1", got.TargetType, got.TargetID)
	}
	if len(got.Slots) != 1 {
		t.Fatalf("slots round trip: got %d, want 1", len(got.Slots))
	}
	slot := got.Slots[0]
	if slot.Start != "06:00" || slot.DurationMinutes != 15 {
		t.Errorf("slot = %+v", slot)
	}
	if len(slot.Days) != 2 || slot.Days[0] != Monday || slot.Days[1] != Friday {
		t.Errorf("days = %v, want [MON FRI]", slot.Days)
	}

	if err := repo.Create(ctx, testSchedule("sch-001", "Duplicate")); !errors.Is(err, ErrExists) {
		t.Errorf("Create() duplicate error = %v, want ErrExists", err)
	}

	if _, err := repo.GetByID(ctx, "sch-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_ListEnabled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	enabled := testSchedule("sch-on", "Enabled")
	disabled := testSchedule("sch-off", "Disabled")
	disabled.Enabled = false

	for _, s := range []*Schedule{enabled, disabled} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := repo.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("ListEnabled() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "sch-on" {
		t.Errorf("ListEnabled() = %v, want only sch-on", got)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List() returned %d schedules, want 2", len(all))
	}
}

func TestSQLiteRepository_ListByTarget(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	solSchedule := testSchedule("sch-sol", "For Solenoid")
	grpSchedule := testSchedule("sch-grp", "For Group")
	grpSchedule.TargetType = TargetGroup
	grpSchedule.TargetID = "grp-1"

	for _, s := range []*Schedule{solSchedule, grpSchedule} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := repo.ListByTarget(ctx, TargetGroup, "grp-1")
	if err != nil {
		t.Fatalf("ListByTarget() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "sch-grp" {
		t.Errorf("ListByTarget() = %v, want only sch-grp", got)
	}
}

func TestSQLiteRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	s := testSchedule("sch-001", "Morning Drip")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	s.Name = "Evening Drip"
	s.Slots = append(s.Slots, TimeSlot{
		ID: "slot-2", Start: "18:00", DurationMinutes: 20, Days: []Weekday{Sunday},
	})
	if err := repo.Update(ctx, s); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "sch-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Evening Drip" || len(got.Slots) != 2 {
		t.Errorf("update not persisted: %+v", got)
	}

	missing := testSchedule("sch-missing", "Ghost")
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	s := testSchedule("sch-001", "Morning Drip")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.SetWatermark(ctx, "sch-001", time.Now()); err != nil {
		t.Fatalf("SetWatermark() error = %v", err)
	}

	if err := repo.Delete(ctx, "sch-001"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := repo.GetByID(ctx, "sch-001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}

	// The watermark must not survive its schedule.
	if _, ok, err := repo.GetWatermark(ctx, "sch-001"); err != nil || ok {
		t.Errorf("GetWatermark() after delete = ok=%v err=%v, want gone", ok, err)
	}

	if err := repo.Delete(ctx, "sch-nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_SetEnabled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	s := testSchedule("sch-001", "Morning Drip")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.SetEnabled(ctx, "sch-001", false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "sch-001")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Enabled {
		t.Error("Enabled = true, want false")
	}

	if err := repo.SetEnabled(ctx, "sch-missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetEnabled() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_Watermark(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// Unknown schedule has no watermark, not an error.
	_, ok, err := repo.GetWatermark(ctx, "sch-001")
	if err != nil {
		t.Fatalf("GetWatermark() error = %v", err)
	}
	if ok {
		t.Error("GetWatermark() ok = true for unset watermark")
	}

	first := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
	if err := repo.SetWatermark(ctx, "sch-001", first); err != nil {
		t.Fatalf("SetWatermark() error = %v", err)
	}

	got, ok, err := repo.GetWatermark(ctx, "sch-001")
	if err != nil || !ok {
		t.Fatalf("GetWatermark() = ok=%v err=%v", ok, err)
	}
	if !got.Equal(first) {
		t.Errorf("watermark = %v, want %v", got, first)
	}

	// Upsert replaces, never duplicates.
	second := first.Add(time.Hour)
	if err := repo.SetWatermark(ctx, "sch-001", second); err != nil {
		t.Fatalf("second SetWatermark() error = %v", err)
	}

	got, ok, err = repo.GetWatermark(ctx, "sch-001")
	if err != nil || !ok {
		t.Fatalf("GetWatermark() = ok=%v err=%v", ok, err)
	}
	if !got.Equal(second) {
		t.Errorf("watermark = %v, want %v", got, second)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schedule_watermarks").Scan(&count); err != nil {
		t.Fatalf("counting watermarks: %v", err)
	}
	if count != 1 {
		t.Errorf("watermark rows = %d, want 1", count)
	}
}
