package schedule

import "time"

// TargetType identifies what kind of entity a schedule waters.
type TargetType string

const (
	// TargetSolenoid waters a single valve.
	TargetSolenoid TargetType = "solenoid"
	// TargetGroup waters every member of a group.
	TargetGroup TargetType = "group"
)

// AllTargetTypes returns all valid target type values.
func AllTargetTypes() []TargetType {
	return []TargetType{TargetSolenoid, TargetGroup}
}

// Weekday is a three-letter uppercase day code, MON through SUN.
type Weekday string

// Weekday constants.
const (
	Monday    Weekday = "MON"
	Tuesday   Weekday = "TUE"
	Wednesday Weekday = "WED"
	Thursday  Weekday = "THU"
	Friday    Weekday = "FRI"
	Saturday  Weekday = "SAT"
	Sunday    Weekday = "SUN"
)

// AllWeekdays returns all valid weekday values in MON..SUN order.
func AllWeekdays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

// timeWeekday maps Weekday codes onto time.Weekday values.
var timeWeekday = map[Weekday]time.Weekday{
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
	Sunday:    time.Sunday,
}

// Std returns the time.Weekday for this code.
// The second return is false for unknown codes.
func (w Weekday) Std() (time.Weekday, bool) {
	std, ok := timeWeekday[w]
	return std, ok
}

// TimeSlot is one weekly recurrence rule within a schedule.
type TimeSlot struct {
	ID string `json:"id"`

	// Start is the local wall-clock start, "HH:MM" 24-hour format.
	Start string `json:"start"`

	// DurationMinutes is the watering duration, 1 to 360 minutes.
	// A slot never crosses midnight: start + duration must stay
	// within the day.
	DurationMinutes int `json:"duration_minutes"`

	// Days are the weekdays this slot fires on.
	Days []Weekday `json:"days"`
}

// Duration returns the slot duration as a time.Duration.
func (s *TimeSlot) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Schedule maps weekly time slots onto a watering target.
// This matches the database schema in migrations/20260815_090000_initial_schema.up.sql;
// slots are stored as a JSON column.
type Schedule struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	TargetType TargetType `json:"target_type"`
	TargetID   string     `json:"target_id"`

	Slots []TimeSlot `json:"slots"`

	// Enabled gates evaluation. A disabled schedule advances no
	// watermark and fires nothing.
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Schedule.
func (s *Schedule) DeepCopy() *Schedule {
	if s == nil {
		return nil
	}

	cpy := *s

	if s.Slots != nil {
		cpy.Slots = make([]TimeSlot, len(s.Slots))
		for i, slot := range s.Slots {
			slotCpy := slot
			if slot.Days != nil {
				slotCpy.Days = make([]Weekday, len(slot.Days))
				copy(slotCpy.Days, slot.Days)
			}
			cpy.Slots[i] = slotCpy
		}
	}

	return &cpy
}

// Slot returns the slot with the given ID, or nil.
func (s *Schedule) Slot(slotID string) *TimeSlot {
	for i := range s.Slots {
		if s.Slots[i].ID == slotID {
			return &s.Slots[i]
		}
	}
	return nil
}
