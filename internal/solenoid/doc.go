// Package solenoid manages the irrigation valves Verdant controls and
// the groups that water them together.
//
// A Solenoid is the unit of control: one valve, addressed on the MQTT
// bus by its switch_ref. A Group is a named collection of solenoids
// watered as one target, either all at once (concurrent) or one after
// another in member order (sequential).
//
// Persistence is SQLite via Repository / GroupRepository. The Registry
// wraps the solenoid repository with an in-memory cache; all reads
// return deep copies so callers can never mutate cached entries.
package solenoid
