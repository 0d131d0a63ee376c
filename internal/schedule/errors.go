package schedule

import "errors"

// Domain errors for the schedule package.
var (
	// ErrNotFound is returned when a schedule ID does not exist.
	ErrNotFound = errors.New("schedule: not found")

	// ErrExists is returned when creating a schedule with an ID that
	// already exists.
	ErrExists = errors.New("schedule: already exists")

	// ErrInvalid is returned when schedule validation fails.
	ErrInvalid = errors.New("schedule: invalid")

	// ErrInvalidName is returned when a schedule name is empty or too long.
	ErrInvalidName = errors.New("schedule: invalid name")

	// ErrInvalidTarget is returned when the target type or ID is invalid.
	ErrInvalidTarget = errors.New("schedule: invalid target")

	// ErrInvalidSlot is returned when a time slot fails validation.
	ErrInvalidSlot = errors.New("schedule: invalid time slot")

	// ErrSlotOverlap is returned when two slots of the same schedule
	// overlap on a shared day.
	ErrSlotOverlap = errors.New("schedule: overlapping time slots")

	// ErrTargetNotFound is returned when the referenced solenoid or
	// group does not exist.
	ErrTargetNotFound = errors.New("schedule: target not found")
)
