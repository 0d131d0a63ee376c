package solenoid

import "time"

// Solenoid represents a single irrigation valve.
// This matches the database schema in migrations/20260815_090000_initial_schema.up.sql.
type Solenoid struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// SwitchRef addresses the valve relay on the MQTT bus.
	// Commands go to verdant/command/switch/{switch_ref} and state
	// reports arrive on verdant/state/switch/{switch_ref}.
	SwitchRef string `json:"switch_ref"`

	// ObservedState is the last valve state reported by the switch
	// bridge. It is advisory: scheduling decisions never depend on it.
	ObservedState ValveState `json:"observed_state"`

	// LastCommandAt records when the core last commanded this valve.
	LastCommandAt *time.Time `json:"last_command_at,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Solenoid.
// This is essential for cache isolation.
func (s *Solenoid) DeepCopy() *Solenoid {
	if s == nil {
		return nil
	}

	cpy := *s

	if s.LastCommandAt != nil {
		t := *s.LastCommandAt
		cpy.LastCommandAt = &t
	}

	return &cpy
}

// ValveState represents the last reported position of a valve.
type ValveState string

// ValveState constants.
const (
	ValveStateOn      ValveState = "on"
	ValveStateOff     ValveState = "off"
	ValveStateUnknown ValveState = "unknown"
)

// AllValveStates returns all valid valve state values.
func AllValveStates() []ValveState {
	return []ValveState{ValveStateOn, ValveStateOff, ValveStateUnknown}
}

// RunMode defines how a group waters its members.
type RunMode string

const (
	// RunModeConcurrent opens every member valve at the same time.
	RunModeConcurrent RunMode = "concurrent"
	// RunModeSequential waters members one at a time, in member order.
	RunModeSequential RunMode = "sequential"
)

// AllRunModes returns all valid run mode values.
func AllRunModes() []RunMode {
	return []RunMode{RunModeConcurrent, RunModeSequential}
}

// Member represents one solenoid's place within a group.
// Position is the watering order for sequential groups.
type Member struct {
	SolenoidID string `json:"solenoid_id"`
	Position   int    `json:"position"`
}

// Group is a named collection of solenoids watered as a single target.
type Group struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Mode    RunMode  `json:"mode"`
	Members []Member `json:"members"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Group.
func (g *Group) DeepCopy() *Group {
	if g == nil {
		return nil
	}

	cpy := *g

	if g.Members != nil {
		cpy.Members = make([]Member, len(g.Members))
		copy(cpy.Members, g.Members)
	}

	return &cpy
}

// MemberIDs returns the group's solenoid IDs in member order.
func (g *Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.SolenoidID
	}
	return ids
}
