package run

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateID creates a new UUID for an activation.
func GenerateID() string {
	return uuid.New().String()
}

// Status is the lifecycle state of an activation.
type Status string

// Status constants.
const (
	// StatusPending means admitted but not yet watering. Sequential
	// group members wait here for their turn.
	StatusPending Status = "pending"
	// StatusActive means the valve has been commanded on.
	StatusActive Status = "active"
	// StatusCompleted means the valve closed after its full duration.
	StatusCompleted Status = "completed"
	// StatusFailed means the valve command could not be delivered.
	StatusFailed Status = "failed"
	// StatusCancelled means the run was stopped before completion.
	StatusCancelled Status = "cancelled"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusActive, StatusCompleted, StatusFailed, StatusCancelled}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CauseType identifies what started an activation.
type CauseType string

const (
	// CauseSchedule marks runs fired by the scheduler loop.
	CauseSchedule CauseType = "schedule"
	// CauseManual marks runs started through the API.
	CauseManual CauseType = "manual"
)

// Cause records what started an activation. For scheduled runs the
// triple (schedule, slot, occurrence start) identifies the occurrence;
// admitting the same occurrence twice is a duplicate, not a conflict.
type Cause struct {
	Type       CauseType `json:"type"`
	ScheduleID string    `json:"schedule_id,omitempty"`
	SlotID     string    `json:"slot_id,omitempty"`

	// OccurrenceStart is the nominal fire time for scheduled runs.
	OccurrenceStart time.Time `json:"occurrence_start,omitempty"`
}

// Key returns the dedup key for this cause. Scheduled causes key on
// the occurrence; manual causes have no key and are never deduped.
func (c Cause) Key() string {
	if c.Type != CauseSchedule {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s", c.ScheduleID, c.SlotID, c.OccurrenceStart.UTC().Format(time.RFC3339))
}

// Activation is one commanded watering of one solenoid.
// This matches the activations table in the initial schema migration.
type Activation struct {
	ID         string `json:"id"`
	SolenoidID string `json:"solenoid_id"`
	Cause      Cause  `json:"cause"`

	// ScheduledStart and ScheduledStop are the intended window.
	// Manual runs use admission time plus the safety-stop duration.
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledStop  time.Time `json:"scheduled_stop"`

	// ActualStart and ActualStop record what the valve really did.
	ActualStart *time.Time `json:"actual_start,omitempty"`
	ActualStop  *time.Time `json:"actual_stop,omitempty"`

	Status        Status  `json:"status"`
	FailureReason *string `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DeepCopy creates a complete independent copy of the Activation.
func (a *Activation) DeepCopy() *Activation {
	if a == nil {
		return nil
	}

	cpy := *a

	if a.ActualStart != nil {
		t := *a.ActualStart
		cpy.ActualStart = &t
	}
	if a.ActualStop != nil {
		t := *a.ActualStop
		cpy.ActualStop = &t
	}
	if a.FailureReason != nil {
		s := *a.FailureReason
		cpy.FailureReason = &s
	}

	return &cpy
}
