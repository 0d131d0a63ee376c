// Package schedule defines watering schedules and their recurrence.
//
// A Schedule names a target (one solenoid or one group) and carries a
// set of weekly time slots. Each slot is a local wall-clock start time,
// a duration and a set of weekdays; slot times are interpreted in the
// site's configured timezone.
//
// Recurrence is pure computation: Occurrences expands a slot over a
// half-open window (from, to] without touching the database. The
// scheduler loop combines it with the per-schedule watermark stored
// here to decide what fires, exactly once, across restarts.
package schedule
