package schedule

import "time"

// Occurrence is one concrete firing of a time slot.
type Occurrence struct {
	SlotID string
	Start  time.Time
	Stop   time.Time
}

// Occurrences expands a slot over the half-open window (from, to] in
// the given location. Results are ordered by start time.
//
// The window is half-open at the left edge so consecutive calls with
// abutting windows enumerate every occurrence exactly once: the
// scheduler passes its watermark as from and the current tick as to.
//
// Slot times are wall-clock local times. Around DST transitions
// time.Date normalises: a start inside the spring-forward gap resolves
// to the shifted instant, and during fall-back the first occurrence of
// the repeated hour is used.
func (s *TimeSlot) Occurrences(from, to time.Time, loc *time.Location) []Occurrence {
	if !to.After(from) {
		return nil
	}

	start, ok := startMinutes(s.Start)
	if !ok {
		return nil
	}

	days := make(map[time.Weekday]struct{}, len(s.Days))
	for _, d := range s.Days {
		if std, ok := d.Std(); ok {
			days[std] = struct{}{}
		}
	}
	if len(days) == 0 {
		return nil
	}

	var occurrences []Occurrence

	// Walk day by day from the calendar day containing from. The first
	// candidate can precede from; the half-open check below drops it.
	fromLocal := from.In(loc)
	day := time.Date(fromLocal.Year(), fromLocal.Month(), fromLocal.Day(), 0, 0, 0, 0, loc)

	for !day.After(to.In(loc)) {
		if _, ok := days[day.Weekday()]; ok {
			fire := time.Date(day.Year(), day.Month(), day.Day(), start/60, start%60, 0, 0, loc)
			if fire.After(from) && !fire.After(to) {
				occurrences = append(occurrences, Occurrence{
					SlotID: s.ID,
					Start:  fire,
					Stop:   fire.Add(s.Duration()),
				})
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	return occurrences
}

// ScheduleOccurrences expands every slot of a schedule over (from, to]
// and returns the merged list ordered by start time, ties broken by
// slot ID. Disabled schedules yield nothing.
func ScheduleOccurrences(s *Schedule, from, to time.Time, loc *time.Location) []Occurrence {
	if s == nil || !s.Enabled {
		return nil
	}

	var all []Occurrence
	for i := range s.Slots {
		all = append(all, s.Slots[i].Occurrences(from, to, loc)...)
	}

	// Insertion sort: slot counts are tiny.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0; j-- {
			if all[j].Start.Before(all[j-1].Start) ||
				(all[j].Start.Equal(all[j-1].Start) && all[j].SlotID < all[j-1].SlotID) {
				all[j], all[j-1] = all[j-1], all[j]
			} else {
				break
			}
		}
	}

	return all
}
