package run

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Tracker.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Tracker is the conflict arbiter for watering runs.
//
// Admission and every lifecycle transition happen under one mutex, so
// the two safety properties hold by construction: a solenoid is held
// by at most one non-terminal activation, and a scheduled occurrence
// is admitted at most once. Persistence happens inside the critical
// section; an activation is never registered in memory without its
// database row.
type Tracker struct {
	repo   Repository
	logger Logger

	mu         sync.Mutex
	bySolenoid map[string]*Activation // non-terminal holder per solenoid
	byCause    map[string]string      // solenoid + cause key -> activation ID
	byID       map[string]*Activation
}

// causeKey scopes the occurrence key to one solenoid. A group firing
// admits the same occurrence once per member, so the dedup unit is the
// (solenoid, occurrence) pair.
func causeKey(a *Activation) string {
	key := a.Cause.Key()
	if key == "" {
		return ""
	}
	return a.SolenoidID + "|" + key
}

// NewTracker creates a tracker backed by the given repository.
func NewTracker(repo Repository) *Tracker {
	return &Tracker{
		repo:       repo,
		logger:     noopLogger{},
		bySolenoid: make(map[string]*Activation),
		byCause:    make(map[string]string),
		byID:       make(map[string]*Activation),
	}
}

// SetLogger sets the logger for the tracker.
func (t *Tracker) SetLogger(logger Logger) {
	t.logger = logger
}

// Restore re-registers all non-terminal activations from the log.
// Called once on startup, before the scheduler loop begins; the loop
// then re-issues stop processing for anything past its scheduled stop.
func (t *Tracker) Restore(ctx context.Context) error {
	activations, err := t.repo.ListNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("loading non-terminal activations: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range activations {
		a := activations[i].DeepCopy()
		t.register(a)
	}

	t.logger.Info("activation tracker restored", "count", len(activations))
	return nil
}

// Admit atomically checks and registers a new activation.
//
// Returns ErrAlreadyActive when the solenoid is already held by a
// non-terminal activation, or when a scheduled cause with the same
// occurrence key has already been admitted. The second check makes
// admission idempotent across crashes: a restart that re-evaluates an
// already-admitted occurrence is a no-op.
func (t *Tracker) Admit(ctx context.Context, a *Activation) error {
	if a == nil || a.ID == "" || a.SolenoidID == "" {
		return fmt.Errorf("%w: id and solenoid_id are required", ErrInvalid)
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	if a.Status != StatusPending {
		return fmt.Errorf("%w: admission requires pending status", ErrInvalid)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if key := causeKey(a); key != "" {
		if holder, dup := t.byCause[key]; dup {
			t.logger.Debug("duplicate cause admission", "cause", key, "holder", holder)
			return ErrAlreadyActive
		}
	}

	if holder, busy := t.bySolenoid[a.SolenoidID]; busy {
		t.logger.Debug("solenoid busy", "solenoid_id", a.SolenoidID, "holder", holder.ID)
		return ErrAlreadyActive
	}

	if err := t.repo.Insert(ctx, a); err != nil {
		return err
	}

	t.register(a.DeepCopy())

	t.logger.Info("activation admitted",
		"id", a.ID,
		"solenoid_id", a.SolenoidID,
		"cause", string(a.Cause.Type),
		"scheduled_start", a.ScheduledStart,
		"scheduled_stop", a.ScheduledStop)
	return nil
}

// MarkActive transitions a pending activation to active.
func (t *Tracker) MarkActive(ctx context.Context, id string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.byID[id]
	if !ok {
		return ErrNotTracked
	}
	if a.Status.Terminal() {
		return ErrTerminal
	}

	at = at.UTC()
	a.Status = StatusActive
	a.ActualStart = &at

	if err := t.repo.UpdateStatus(ctx, a); err != nil {
		return err
	}

	t.logger.Info("activation started", "id", id, "solenoid_id", a.SolenoidID)
	return nil
}

// Complete finishes an activation after its full duration.
func (t *Tracker) Complete(ctx context.Context, id string, at time.Time) error {
	return t.finish(ctx, id, StatusCompleted, at, nil)
}

// Cancel stops an activation before completion.
func (t *Tracker) Cancel(ctx context.Context, id string, at time.Time) error {
	return t.finish(ctx, id, StatusCancelled, at, nil)
}

// Fail terminates an activation whose valve command could not be
// delivered.
func (t *Tracker) Fail(ctx context.Context, id string, at time.Time, reason string) error {
	return t.finish(ctx, id, StatusFailed, at, &reason)
}

// finish applies a terminal transition and releases the reservation.
func (t *Tracker) finish(ctx context.Context, id string, status Status, at time.Time, reason *string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.byID[id]
	if !ok {
		return ErrNotTracked
	}
	if a.Status.Terminal() {
		return ErrTerminal
	}

	atUTC := at.UTC()
	a.Status = status
	a.ActualStop = &atUTC
	a.FailureReason = reason

	if err := t.repo.UpdateStatus(ctx, a); err != nil {
		return err
	}

	t.unregister(a)

	t.logger.Info("activation finished",
		"id", id,
		"solenoid_id", a.SolenoidID,
		"status", string(status))
	return nil
}

// Get returns a deep copy of a tracked activation.
func (t *Tracker) Get(id string) (*Activation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return a.DeepCopy(), true
}

// ActiveOn returns the non-terminal activation holding a solenoid.
func (t *Tracker) ActiveOn(solenoidID string) (*Activation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.bySolenoid[solenoidID]
	if !ok {
		return nil, false
	}
	return a.DeepCopy(), true
}

// ListTracked returns deep copies of all non-terminal activations,
// ordered by scheduled start, ties by schedule then slot then ID so
// promotion order is stable across restarts.
func (t *Tracker) ListTracked() []Activation {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Activation, 0, len(t.byID))
	for _, a := range t.byID {
		out = append(out, *a.DeepCopy())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledStart.Equal(out[j].ScheduledStart) {
			return out[i].ScheduledStart.Before(out[j].ScheduledStart)
		}
		if out[i].Cause.ScheduleID != out[j].Cause.ScheduleID {
			return out[i].Cause.ScheduleID < out[j].Cause.ScheduleID
		}
		if out[i].Cause.SlotID != out[j].Cause.SlotID {
			return out[i].Cause.SlotID < out[j].Cause.SlotID
		}
		return out[i].ID < out[j].ID
	})

	return out
}

// Count returns the number of non-terminal activations.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// register indexes an activation. Caller holds the mutex.
func (t *Tracker) register(a *Activation) {
	t.byID[a.ID] = a
	t.bySolenoid[a.SolenoidID] = a
	if key := causeKey(a); key != "" {
		t.byCause[key] = a.ID
	}
}

// unregister drops every index entry. Caller holds the mutex.
// The cause key stays released only in memory; replay protection
// after this point comes from the watermark, not the tracker.
func (t *Tracker) unregister(a *Activation) {
	delete(t.byID, a.ID)
	delete(t.bySolenoid, a.SolenoidID)
	if key := causeKey(a); key != "" {
		delete(t.byCause, key)
	}
}
