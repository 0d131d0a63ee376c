package schedule

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxSlots      = 32

	// MinDurationMinutes and MaxDurationMinutes bound slot durations.
	MinDurationMinutes = 1
	MaxDurationMinutes = 360

	minutesPerDay = 24 * 60

	startPattern = `^([01][0-9]|2[0-3]):[0-5][0-9]$`
)

var startRegex = regexp.MustCompile(startPattern)

// Validate performs comprehensive validation on a schedule.
// Returns an error describing the first validation failure found.
func Validate(s *Schedule) error {
	if s == nil {
		return ErrInvalid
	}

	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(s.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}

	if !validTargetType(s.TargetType) {
		return fmt.Errorf("%w: unknown target type %q", ErrInvalidTarget, s.TargetType)
	}
	if s.TargetID == "" {
		return fmt.Errorf("%w: target_id is required", ErrInvalidTarget)
	}

	if len(s.Slots) == 0 {
		return fmt.Errorf("%w: at least one time slot is required", ErrInvalidSlot)
	}
	if len(s.Slots) > maxSlots {
		return fmt.Errorf("%w: exceeds %d slots", ErrInvalidSlot, maxSlots)
	}

	for i := range s.Slots {
		if err := ValidateSlot(&s.Slots[i]); err != nil {
			return err
		}
	}

	return validateNoOverlap(s.Slots)
}

// ValidateSlot checks a single time slot.
func ValidateSlot(slot *TimeSlot) error {
	if slot == nil {
		return ErrInvalidSlot
	}

	if !startRegex.MatchString(slot.Start) {
		return fmt.Errorf("%w: start %q is not HH:MM", ErrInvalidSlot, slot.Start)
	}

	if slot.DurationMinutes < MinDurationMinutes || slot.DurationMinutes > MaxDurationMinutes {
		return fmt.Errorf("%w: duration %d outside [%d, %d] minutes",
			ErrInvalidSlot, slot.DurationMinutes, MinDurationMinutes, MaxDurationMinutes)
	}

	// Watering never crosses midnight. A window that would spill into
	// the next day makes day-based recurrence ambiguous.
	start, _ := startMinutes(slot.Start)
	if start+slot.DurationMinutes > minutesPerDay {
		return fmt.Errorf("%w: %s + %dm crosses midnight", ErrInvalidSlot, slot.Start, slot.DurationMinutes)
	}

	if len(slot.Days) == 0 {
		return fmt.Errorf("%w: at least one day is required", ErrInvalidSlot)
	}

	seen := make(map[Weekday]struct{}, len(slot.Days))
	for _, d := range slot.Days {
		if _, ok := d.Std(); !ok {
			return fmt.Errorf("%w: unknown day %q", ErrInvalidSlot, d)
		}
		if _, dup := seen[d]; dup {
			return fmt.Errorf("%w: duplicate day %q", ErrInvalidSlot, d)
		}
		seen[d] = struct{}{}
	}

	return nil
}

// validateNoOverlap rejects slot pairs whose watering windows overlap
// on a shared day. Overlap within one schedule is always a mistake;
// overlap across schedules is left to the runtime arbiter.
func validateNoOverlap(slots []TimeSlot) error {
	for i := range slots {
		for j := i + 1; j < len(slots); j++ {
			if !shareDay(slots[i].Days, slots[j].Days) {
				continue
			}
			aStart, _ := startMinutes(slots[i].Start)
			bStart, _ := startMinutes(slots[j].Start)
			aEnd := aStart + slots[i].DurationMinutes
			bEnd := bStart + slots[j].DurationMinutes
			if aStart < bEnd && bStart < aEnd {
				return fmt.Errorf("%w: %s+%dm and %s+%dm share a day",
					ErrSlotOverlap,
					slots[i].Start, slots[i].DurationMinutes,
					slots[j].Start, slots[j].DurationMinutes)
			}
		}
	}
	return nil
}

func shareDay(a, b []Weekday) bool {
	for _, da := range a {
		for _, db := range b {
			if da == db {
				return true
			}
		}
	}
	return false
}

// startMinutes parses "HH:MM" into minutes since midnight.
// Callers must have validated the format first.
func startMinutes(start string) (int, bool) {
	if len(start) != 5 || start[2] != ':' {
		return 0, false
	}
	h := int(start[0]-'0')*10 + int(start[1]-'0')
	m := int(start[3]-'0')*10 + int(start[4]-'0')
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func validTargetType(t TargetType) bool {
	for _, v := range AllTargetTypes() {
		if t == v {
			return true
		}
	}
	return false
}

// GenerateID creates a new UUID for a schedule or slot.
func GenerateID() string {
	return uuid.New().String()
}
