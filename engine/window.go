/*
window.go - Scheduling window validation

PURPOSE:
  Pure checks of a session's time window against its assignment's allowed
  days and time ranges. No state, no side effects. The approval path uses
  this indirectly through assignment checks owned by the tutoring CRUD
  subsystem; reconciliation reporting calls it directly.

RULES:
  1. End must be strictly after start
  2. The session date must fall within [StartDate, EndDate] (open-ended
     when EndDate is nil)
  3. When weekdays are restricted, the session's weekday (Monday=0) must
     be in the allowed set
  4. When time ranges are restricted, [start, end] must lie entirely
     within at least one range - partial overlap is not accepted
*/
package engine

import "time"

// TimeRange is an allowed [Start, End] interval within a day.
type TimeRange struct {
	Start Clock
	End   Clock
}

// Covers reports whether [start, end] lies entirely within the range.
func (r TimeRange) Covers(start, end Clock) bool {
	return start >= r.Start && end <= r.End
}

// AssignmentWindow describes when sessions under an assignment may occur.
// Empty Weekdays or Ranges means unrestricted.
type AssignmentWindow struct {
	StartDate time.Time
	EndDate   *time.Time // nil = open-ended
	Weekdays  []int      // Monday=0 .. Sunday=6
	Ranges    []TimeRange
}

// WithinAssignmentWindow reports whether a session at (date, start, end)
// is allowed by the window.
func WithinAssignmentWindow(date time.Time, start, end Clock, w AssignmentWindow) bool {
	if end <= start {
		return false
	}

	d := Day(date)
	if d.Before(Day(w.StartDate)) {
		return false
	}
	if w.EndDate != nil && d.After(Day(*w.EndDate)) {
		return false
	}

	if len(w.Weekdays) > 0 {
		allowed := false
		for _, wd := range w.Weekdays {
			if wd == WeekdayIndex(d) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(w.Ranges) > 0 {
		for _, r := range w.Ranges {
			if r.Covers(start, end) {
				return true
			}
		}
		return false
	}

	return true
}
