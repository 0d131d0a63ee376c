// Package run tracks watering activations and arbitrates valve access.
//
// An Activation is one commanded watering of one solenoid, from the
// moment it is admitted until it reaches a terminal status. The
// Tracker is the single authority on what may water: admission
// atomically checks the solenoid reservation and the cause key under
// one mutex, so the same occurrence can never water twice and two
// activations can never hold the same valve.
//
// Activations are persisted append-only through Repository; the log
// doubles as watering history and as the recovery source after a
// restart.
package run
