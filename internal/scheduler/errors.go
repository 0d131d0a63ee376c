package scheduler

import "errors"

var (
	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("scheduler: already started")

	// ErrNothingRunning indicates a stop request found no watering to
	// stop. Callers usually treat this as success.
	ErrNothingRunning = errors.New("scheduler: nothing running")
)
