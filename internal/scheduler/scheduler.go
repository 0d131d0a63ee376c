// Package scheduler drives watering from schedules.
//
// A single goroutine ticks at a fixed cadence. Each tick does three
// passes in order: stop activations whose window has ended, evaluate
// every enabled schedule against its persisted watermark, and start
// pending activations that have become due. Watermarks make evaluation
// idempotent: a restart resumes exactly where the last tick left off,
// and occurrences older than the grace window are logged and dropped
// rather than watered late.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/verdancy/verdant-core/internal/gateway"
	"github.com/verdancy/verdant-core/internal/run"
	"github.com/verdancy/verdant-core/internal/schedule"
	"github.com/verdancy/verdant-core/internal/solenoid"
)

// ScheduleStore is the schedule persistence surface the loop needs.
type ScheduleStore interface {
	GetByID(ctx context.Context, id string) (*schedule.Schedule, error)
	ListEnabled(ctx context.Context) ([]schedule.Schedule, error)
	GetWatermark(ctx context.Context, scheduleID string) (time.Time, bool, error)
	SetWatermark(ctx context.Context, scheduleID string, through time.Time) error
}

// SolenoidStore resolves solenoids to their switch refs.
type SolenoidStore interface {
	Get(ctx context.Context, id string) (*solenoid.Solenoid, error)
	TouchLastCommand(ctx context.Context, id string, at time.Time) error
}

// GroupStore resolves groups for firing and sequential arbitration.
type GroupStore interface {
	GetByID(ctx context.Context, id string) (*solenoid.Group, error)
	ListContainingSolenoid(ctx context.Context, solenoidID string) ([]solenoid.Group, error)
}

// Metrics receives watering telemetry. All methods are best-effort.
type Metrics interface {
	WriteActivationMetric(solenoidID, cause, status string, seconds float64)
	WriteSchedulerTick(fired, skipped int)
}

type noopMetrics struct{}

func (noopMetrics) WriteActivationMetric(string, string, string, float64) {}
func (noopMetrics) WriteSchedulerTick(int, int)                           {}

// Logger defines the logging interface used by the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Options tunes the scheduler loop.
type Options struct {
	// TickInterval is the driver cadence.
	TickInterval time.Duration

	// GracePeriod is how far past its nominal start a missed fire is
	// still honored. Older fires are skipped.
	GracePeriod time.Duration

	// Workers bounds concurrent valve commands.
	Workers int

	// ManualRunDuration is the safety cutoff for manual turn-on
	// commands issued without an explicit duration.
	ManualRunDuration time.Duration

	// Location is the site timezone slot times are resolved in.
	Location *time.Location
}

// DefaultOptions returns the loop settings used when none are
// configured.
func DefaultOptions() Options {
	return Options{
		TickInterval:      30 * time.Second,
		GracePeriod:       30 * time.Second,
		Workers:           4,
		ManualRunDuration: 30 * time.Minute,
		Location:          time.UTC,
	}
}

// Scheduler owns the driver loop and all watering decisions.
type Scheduler struct {
	schedules ScheduleStore
	solenoids SolenoidStore
	groups    GroupStore
	tracker   *run.Tracker
	switcher  gateway.Switcher
	clock     Clock
	opts      Options
	metrics   Metrics
	logger    Logger

	mu       sync.Mutex
	running  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	inflight map[string]struct{} // activation IDs with a command in the pool

	sem chan struct{}
	wg  sync.WaitGroup
}

// New creates a scheduler. Start must be called before it does
// anything.
func New(schedules ScheduleStore, solenoids SolenoidStore, groups GroupStore,
	tracker *run.Tracker, switcher gateway.Switcher, opts Options) *Scheduler {

	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultOptions().TickInterval
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = opts.TickInterval
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ManualRunDuration <= 0 {
		opts.ManualRunDuration = DefaultOptions().ManualRunDuration
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	return &Scheduler{
		schedules: schedules,
		solenoids: solenoids,
		groups:    groups,
		tracker:   tracker,
		switcher:  switcher,
		clock:     realClock{},
		opts:      opts,
		metrics:   noopMetrics{},
		logger:    noopLogger{},
		inflight:  make(map[string]struct{}),
		sem:       make(chan struct{}, opts.Workers),
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// SetMetrics sets the telemetry sink.
func (s *Scheduler) SetMetrics(m Metrics) {
	s.metrics = m
}

// SetClock overrides the time source. Must be called before Start.
func (s *Scheduler) SetClock(c Clock) {
	s.clock = c
}

// Start recovers tracked activations and begins ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.running = true
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	if err := s.tracker.Restore(ctx); err != nil {
		s.mu.Lock()
		s.running = false
		s.cancel()
		s.mu.Unlock()
		return fmt.Errorf("recovering activations: %w", err)
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("scheduler started",
		"tick_interval", s.opts.TickInterval,
		"grace_period", s.opts.GracePeriod,
		"workers", s.opts.Workers,
		"timezone", s.opts.Location.String())
	return nil
}

// Stop halts the loop and waits for in-flight commands to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	// First tick immediately so recovery stops do not wait a full
	// interval.
	s.tick(s.runCtx)

	for {
		select {
		case <-s.runCtx.Done():
			return
		case <-ticker.C:
			s.tick(s.runCtx)
		}
	}
}

// tick runs one scheduling pass: due stops, evaluation, due starts.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now()

	s.processStops(ctx, now)
	fired, skipped := s.evaluate(ctx, now)
	s.processStarts(ctx, now)

	s.metrics.WriteSchedulerTick(fired, skipped)

	if fired > 0 || skipped > 0 {
		s.logger.Debug("tick", "fired", fired, "skipped", skipped)
	}
}

// processStops ends activations whose window has closed. Turn-off is
// never gated on admission or sequencing: once the stop time passes,
// the off command goes out.
func (s *Scheduler) processStops(ctx context.Context, now time.Time) {
	for _, a := range s.tracker.ListTracked() {
		if now.Before(a.ScheduledStop) {
			continue
		}

		switch a.Status {
		case run.StatusActive:
			a := a
			s.dispatch(a.ID, func(ctx context.Context) {
				s.stopActivation(ctx, &a, run.StatusCompleted)
			})
		case run.StatusPending:
			// The window passed before the start was dispatched,
			// usually because a sequential predecessor overran.
			if err := s.tracker.Cancel(ctx, a.ID, now); err != nil {
				s.logger.Error("failed to cancel missed activation", "id", a.ID, "error", err)
				continue
			}
			s.logger.Warn("activation window missed",
				"id", a.ID, "solenoid_id", a.SolenoidID)
			s.recordOutcome(&a, run.StatusCancelled)
		}
	}
}

// processStarts dispatches turn-on for pending activations that are
// due and not blocked by a sequential group member.
func (s *Scheduler) processStarts(ctx context.Context, now time.Time) {
	for _, a := range s.tracker.ListTracked() {
		if a.Status != run.StatusPending {
			continue
		}
		if now.Before(a.ScheduledStart) || !now.Before(a.ScheduledStop) {
			continue
		}
		if s.sequentialBusy(ctx, a.SolenoidID) {
			s.logger.Debug("start deferred, sequential member active",
				"id", a.ID, "solenoid_id", a.SolenoidID)
			continue
		}

		a := a
		s.dispatch(a.ID, func(ctx context.Context) {
			s.startActivation(ctx, &a)
		})
	}
}

// evaluate advances every enabled schedule's watermark to now, firing
// occurrences inside the grace window and skipping older ones.
func (s *Scheduler) evaluate(ctx context.Context, now time.Time) (fired, skipped int) {
	scheds, err := s.schedules.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("failed to list schedules", "error", err)
		return 0, 0
	}

	for i := range scheds {
		sched := &scheds[i]

		mark, ok, err := s.schedules.GetWatermark(ctx, sched.ID)
		if err != nil {
			s.logger.Error("failed to read watermark", "schedule_id", sched.ID, "error", err)
			continue
		}
		if !ok {
			// New schedule: start evaluating from now, never from
			// the past.
			if err := s.schedules.SetWatermark(ctx, sched.ID, now); err != nil {
				s.logger.Error("failed to initialise watermark", "schedule_id", sched.ID, "error", err)
			}
			continue
		}

		for _, occ := range schedule.ScheduleOccurrences(sched, mark, now, s.opts.Location) {
			if now.Sub(occ.Start) > s.opts.GracePeriod {
				s.logger.Warn("missed fire skipped",
					"schedule_id", sched.ID,
					"slot_id", occ.SlotID,
					"nominal_start", occ.Start,
					"late_by", now.Sub(occ.Start))
				skipped++
				continue
			}
			fired += s.fire(ctx, sched, occ)
		}

		if err := s.schedules.SetWatermark(ctx, sched.ID, now); err != nil {
			s.logger.Error("failed to advance watermark", "schedule_id", sched.ID, "error", err)
		}
	}

	return fired, skipped
}

// fire admits one activation per target solenoid for an occurrence.
// Returns the number of admissions.
func (s *Scheduler) fire(ctx context.Context, sched *schedule.Schedule, occ schedule.Occurrence) int {
	cause := run.Cause{
		Type:            run.CauseSchedule,
		ScheduleID:      sched.ID,
		SlotID:          occ.SlotID,
		OccurrenceStart: occ.Start,
	}

	windows, err := s.targetWindows(ctx, string(sched.TargetType), sched.TargetID, occ.Start, occ.Stop.Sub(occ.Start))
	if err != nil {
		s.logger.Error("failed to resolve schedule target",
			"schedule_id", sched.ID,
			"target_type", string(sched.TargetType),
			"target_id", sched.TargetID,
			"error", err)
		return 0
	}

	admitted := 0
	for _, w := range windows {
		a := &run.Activation{
			ID:             run.GenerateID(),
			SolenoidID:     w.solenoidID,
			Cause:          cause,
			ScheduledStart: w.start,
			ScheduledStop:  w.stop,
		}
		if err := s.tracker.Admit(ctx, a); err != nil {
			if errors.Is(err, run.ErrAlreadyActive) {
				s.logger.Debug("fire already admitted",
					"schedule_id", sched.ID, "solenoid_id", w.solenoidID)
				continue
			}
			s.logger.Error("failed to admit activation",
				"schedule_id", sched.ID, "solenoid_id", w.solenoidID, "error", err)
			continue
		}
		admitted++
	}

	return admitted
}

// memberWindow is one solenoid's share of an occurrence.
type memberWindow struct {
	solenoidID string
	start      time.Time
	stop       time.Time
}

// targetWindows expands a schedule target into per-solenoid watering
// windows. Sequential groups stagger members back to back, each for
// the full slot duration; concurrent groups share the slot window.
func (s *Scheduler) targetWindows(ctx context.Context, targetType, targetID string,
	start time.Time, duration time.Duration) ([]memberWindow, error) {

	if targetType == string(schedule.TargetSolenoid) {
		return []memberWindow{{solenoidID: targetID, start: start, stop: start.Add(duration)}}, nil
	}

	group, err := s.groups.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	windows := make([]memberWindow, 0, len(group.Members))
	for i, id := range group.MemberIDs() {
		w := memberWindow{solenoidID: id, start: start, stop: start.Add(duration)}
		if group.Mode == solenoid.RunModeSequential {
			w.start = start.Add(time.Duration(i) * duration)
			w.stop = w.start.Add(duration)
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// sequentialBusy reports whether another member of any sequential
// group containing this solenoid is currently watering.
func (s *Scheduler) sequentialBusy(ctx context.Context, solenoidID string) bool {
	groups, err := s.groups.ListContainingSolenoid(ctx, solenoidID)
	if err != nil {
		s.logger.Error("failed to resolve groups", "solenoid_id", solenoidID, "error", err)
		return false
	}

	for i := range groups {
		if groups[i].Mode != solenoid.RunModeSequential {
			continue
		}
		for _, member := range groups[i].MemberIDs() {
			if member == solenoidID {
				continue
			}
			if holder, ok := s.tracker.ActiveOn(member); ok && holder.Status == run.StatusActive {
				return true
			}
		}
	}
	return false
}

// startActivation turns the valve on and marks the activation active.
func (s *Scheduler) startActivation(ctx context.Context, a *run.Activation) {
	now := s.clock.Now()

	sol, err := s.solenoids.Get(ctx, a.SolenoidID)
	if err != nil {
		s.failActivation(ctx, a, now, fmt.Sprintf("resolving solenoid: %v", err))
		return
	}

	if err := s.switcher.TurnOn(ctx, sol.SwitchRef); err != nil {
		s.failActivation(ctx, a, s.clock.Now(), err.Error())
		return
	}

	startedAt := s.clock.Now()
	if err := s.tracker.MarkActive(ctx, a.ID, startedAt); err != nil {
		// Cancelled while the command was in flight; close the valve
		// again rather than leave it running untracked.
		s.logger.Warn("activation gone after turn-on, closing valve",
			"id", a.ID, "error", err)
		if offErr := s.switcher.TurnOff(ctx, sol.SwitchRef); offErr != nil {
			s.logger.Error("failed to close untracked valve",
				"switch_ref", sol.SwitchRef, "error", offErr)
		}
		return
	}

	if err := s.solenoids.TouchLastCommand(ctx, a.SolenoidID, startedAt); err != nil {
		s.logger.Warn("failed to record last command", "solenoid_id", a.SolenoidID, "error", err)
	}

	s.logger.Info("watering started",
		"id", a.ID,
		"solenoid_id", a.SolenoidID,
		"cause", string(a.Cause.Type),
		"stop_at", a.ScheduledStop)
}

// stopActivation turns the valve off and applies the terminal status.
func (s *Scheduler) stopActivation(ctx context.Context, a *run.Activation, status run.Status) {
	now := s.clock.Now()

	sol, err := s.solenoids.Get(ctx, a.SolenoidID)
	if err != nil {
		s.failActivation(ctx, a, now, fmt.Sprintf("resolving solenoid: %v", err))
		return
	}

	if err := s.switcher.TurnOff(ctx, sol.SwitchRef); err != nil {
		// The gateway has already raised a critical alert; record the
		// run as failed so the history shows it.
		s.failActivation(ctx, a, s.clock.Now(), err.Error())
		return
	}

	stoppedAt := s.clock.Now()

	var terr error
	switch status {
	case run.StatusCancelled:
		terr = s.tracker.Cancel(ctx, a.ID, stoppedAt)
	default:
		terr = s.tracker.Complete(ctx, a.ID, stoppedAt)
	}
	if terr != nil {
		s.logger.Error("failed to finish activation", "id", a.ID, "error", terr)
		return
	}

	if err := s.solenoids.TouchLastCommand(ctx, a.SolenoidID, stoppedAt); err != nil {
		s.logger.Warn("failed to record last command", "solenoid_id", a.SolenoidID, "error", err)
	}

	s.logger.Info("watering finished",
		"id", a.ID,
		"solenoid_id", a.SolenoidID,
		"status", string(status))
	s.recordOutcome(a, status)
}

func (s *Scheduler) failActivation(ctx context.Context, a *run.Activation, at time.Time, reason string) {
	if err := s.tracker.Fail(ctx, a.ID, at, reason); err != nil {
		s.logger.Error("failed to mark activation failed", "id", a.ID, "error", err)
		return
	}
	s.logger.Error("watering failed",
		"id", a.ID,
		"solenoid_id", a.SolenoidID,
		"reason", reason)
	s.recordOutcome(a, run.StatusFailed)
}

// recordOutcome emits the terminal telemetry point for an activation.
func (s *Scheduler) recordOutcome(a *run.Activation, status run.Status) {
	seconds := a.ScheduledStop.Sub(a.ScheduledStart).Seconds()
	if a.ActualStart != nil {
		seconds = s.clock.Now().Sub(*a.ActualStart).Seconds()
	}
	s.metrics.WriteActivationMetric(a.SolenoidID, string(a.Cause.Type), string(status), seconds)
}

// dispatch runs fn in the bounded worker pool, at most once per
// activation at a time.
func (s *Scheduler) dispatch(activationID string, fn func(ctx context.Context)) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	if _, busy := s.inflight[activationID]; busy {
		s.mu.Unlock()
		return
	}
	s.inflight[activationID] = struct{}{}
	ctx := s.runCtx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, activationID)
			s.mu.Unlock()
		}()

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-s.sem }()

		fn(ctx)
	}()
}
