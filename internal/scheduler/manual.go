package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/verdancy/verdant-core/internal/run"
	"github.com/verdancy/verdant-core/internal/schedule"
)

// Manual operations run synchronously on the caller's goroutine so the
// API can report the real outcome, and they preempt tick processing by
// going through the same tracker the loop uses.

// StartSolenoid waters one valve now, with a safety stop after the
// given duration (the configured manual-run cutoff when zero).
// Returns run.ErrAlreadyActive when the valve is already held.
func (s *Scheduler) StartSolenoid(ctx context.Context, solenoidID string, duration time.Duration) (*run.Activation, error) {
	if duration <= 0 {
		duration = s.opts.ManualRunDuration
	}

	sol, err := s.solenoids.Get(ctx, solenoidID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	a := &run.Activation{
		ID:             run.GenerateID(),
		SolenoidID:     solenoidID,
		Cause:          run.Cause{Type: run.CauseManual},
		ScheduledStart: now,
		ScheduledStop:  now.Add(duration),
	}

	if err := s.tracker.Admit(ctx, a); err != nil {
		return nil, err
	}

	if err := s.switcher.TurnOn(ctx, sol.SwitchRef); err != nil {
		s.failActivation(ctx, a, s.clock.Now(), err.Error())
		return nil, err
	}

	startedAt := s.clock.Now()
	if err := s.tracker.MarkActive(ctx, a.ID, startedAt); err != nil {
		return nil, err
	}
	if err := s.solenoids.TouchLastCommand(ctx, solenoidID, startedAt); err != nil {
		s.logger.Warn("failed to record last command", "solenoid_id", solenoidID, "error", err)
	}

	s.logger.Info("manual watering started",
		"solenoid_id", solenoidID,
		"duration", duration,
		"activation_id", a.ID)

	started, _ := s.tracker.Get(a.ID)
	return started, nil
}

// StopSolenoid cancels whatever is watering a valve, commanding it off
// if it is open. Returns ErrNothingRunning when the valve is idle.
func (s *Scheduler) StopSolenoid(ctx context.Context, solenoidID string) (*run.Activation, error) {
	holder, ok := s.tracker.ActiveOn(solenoidID)
	if !ok {
		return nil, ErrNothingRunning
	}
	if err := s.cancelOne(ctx, holder); err != nil {
		return nil, err
	}
	return holder, nil
}

// CancelSchedule cancels every tracked activation caused by a
// schedule. Called synchronously when a schedule is disabled or
// deleted. Returns the number of cancelled activations.
func (s *Scheduler) CancelSchedule(ctx context.Context, scheduleID string) (int, error) {
	cancelled := 0
	var firstErr error

	for _, a := range s.tracker.ListTracked() {
		if a.Cause.ScheduleID != scheduleID {
			continue
		}
		a := a
		if err := s.cancelOne(ctx, &a); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		cancelled++
	}

	return cancelled, firstErr
}

// CancelGroup cancels watering on every member of a group.
func (s *Scheduler) CancelGroup(ctx context.Context, groupID string) (int, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	var firstErr error

	for _, id := range group.MemberIDs() {
		_, err := s.StopSolenoid(ctx, id)
		if errors.Is(err, ErrNothingRunning) {
			continue
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		cancelled++
	}

	return cancelled, firstErr
}

// CancelSolenoid cancels watering on one valve, treating an idle valve
// as success.
func (s *Scheduler) CancelSolenoid(ctx context.Context, solenoidID string) error {
	_, err := s.StopSolenoid(ctx, solenoidID)
	if errors.Is(err, ErrNothingRunning) {
		return nil
	}
	return err
}

// RunScheduleNow waters a schedule's target immediately with cause
// manual, bypassing the watermark. The run uses the named slot's
// duration, or the first slot's when slotID is empty. Works on
// disabled schedules.
func (s *Scheduler) RunScheduleNow(ctx context.Context, scheduleID, slotID string) ([]run.Activation, error) {
	sched, err := s.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if len(sched.Slots) == 0 {
		return nil, fmt.Errorf("%w: schedule has no slots", schedule.ErrInvalidSlot)
	}

	slot := &sched.Slots[0]
	if slotID != "" {
		if slot = sched.Slot(slotID); slot == nil {
			return nil, fmt.Errorf("%w: %s", schedule.ErrInvalidSlot, slotID)
		}
	}

	now := s.clock.Now()
	windows, err := s.targetWindows(ctx, string(sched.TargetType), sched.TargetID, now, slot.Duration())
	if err != nil {
		return nil, err
	}

	var started []run.Activation
	for _, w := range windows {
		// Manual cause, but the provenance is kept so cancelling or
		// disabling the schedule sweeps these up too.
		a := &run.Activation{
			ID:         run.GenerateID(),
			SolenoidID: w.solenoidID,
			Cause: run.Cause{
				Type:       run.CauseManual,
				ScheduleID: scheduleID,
				SlotID:     slot.ID,
			},
			ScheduledStart: w.start,
			ScheduledStop:  w.stop,
		}
		if err := s.tracker.Admit(ctx, a); err != nil {
			if errors.Is(err, run.ErrAlreadyActive) {
				s.logger.Debug("manual run skipped busy member",
					"schedule_id", scheduleID, "solenoid_id", w.solenoidID)
				continue
			}
			return started, err
		}

		// Members due now start immediately; staggered sequential
		// members wait for the loop.
		if !now.Before(a.ScheduledStart) {
			a := a
			s.dispatch(a.ID, func(ctx context.Context) {
				s.startActivation(ctx, a)
			})
		}

		started = append(started, *a.DeepCopy())
	}

	if len(started) == 0 {
		return nil, run.ErrAlreadyActive
	}

	s.logger.Info("manual schedule run",
		"schedule_id", scheduleID,
		"slot_id", slot.ID,
		"activations", len(started))
	return started, nil
}

// cancelOne cancels a single activation, closing the valve first when
// it is open.
func (s *Scheduler) cancelOne(ctx context.Context, a *run.Activation) error {
	now := s.clock.Now()

	if a.Status == run.StatusActive {
		sol, err := s.solenoids.Get(ctx, a.SolenoidID)
		if err != nil {
			return err
		}
		if err := s.switcher.TurnOff(ctx, sol.SwitchRef); err != nil {
			s.failActivation(ctx, a, s.clock.Now(), err.Error())
			return err
		}
	}

	if err := s.tracker.Cancel(ctx, a.ID, now); err != nil {
		if errors.Is(err, run.ErrNotTracked) || errors.Is(err, run.ErrTerminal) {
			return nil
		}
		return err
	}

	s.logger.Info("activation cancelled", "id", a.ID, "solenoid_id", a.SolenoidID)
	s.recordOutcome(a, run.StatusCancelled)
	return nil
}
