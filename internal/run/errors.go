package run

import "errors"

// Domain errors for the run package.
var (
	// ErrAlreadyActive is returned when admission finds the solenoid
	// reserved or the cause already admitted. It is benign: the caller
	// logs and moves on.
	ErrAlreadyActive = errors.New("run: already active")

	// ErrNotFound is returned when an activation ID does not exist.
	ErrNotFound = errors.New("run: activation not found")

	// ErrNotTracked is returned when a lifecycle transition names an
	// activation the tracker does not hold.
	ErrNotTracked = errors.New("run: activation not tracked")

	// ErrTerminal is returned when transitioning an activation that
	// already reached a terminal status.
	ErrTerminal = errors.New("run: activation already terminal")

	// ErrInvalid is returned when activation validation fails.
	ErrInvalid = errors.New("run: invalid activation")
)
