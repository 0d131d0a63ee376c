package solenoid

import "errors"

// Domain errors for the solenoid package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, solenoid.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a solenoid ID does not exist.
	ErrNotFound = errors.New("solenoid: not found")

	// ErrExists is returned when creating a solenoid with an ID or
	// switch_ref that already exists.
	ErrExists = errors.New("solenoid: already exists")

	// ErrInvalid is returned when solenoid validation fails.
	ErrInvalid = errors.New("solenoid: invalid")

	// ErrInvalidName is returned when a solenoid name is empty or too long.
	ErrInvalidName = errors.New("solenoid: invalid name")

	// ErrInvalidSwitchRef is returned when a switch_ref format is invalid.
	ErrInvalidSwitchRef = errors.New("solenoid: invalid switch_ref")

	// ErrInUse is returned when deleting a solenoid that is still
	// referenced by a group or a schedule.
	ErrInUse = errors.New("solenoid: in use")

	// ErrSequentialConflict is returned when a group change would put
	// a solenoid into a second sequential group.
	ErrSequentialConflict = errors.New("solenoid: already in a sequential group")

	// ErrGroupNotFound is returned when a group ID does not exist.
	ErrGroupNotFound = errors.New("solenoid: group not found")

	// ErrGroupExists is returned when creating a group with an ID or
	// name that already exists.
	ErrGroupExists = errors.New("solenoid: group already exists")

	// ErrInvalidGroup is returned when group validation fails.
	ErrInvalidGroup = errors.New("solenoid: invalid group")

	// ErrGroupInUse is returned when deleting a group that a schedule
	// still targets.
	ErrGroupInUse = errors.New("solenoid: group in use")

	// ErrMemberNotFound is returned when a group references a solenoid
	// that does not exist.
	ErrMemberNotFound = errors.New("solenoid: group member not found")
)
