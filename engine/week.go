package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// PAY WEEK - The canonical Monday-start, Sunday-end accounting window
// =============================================================================

// Week is a 7-day pay period window identified by its Monday start date.
// Every caller that needs "the week containing date X" derives it here;
// the Monday anchor is never recomputed ad hoc.
type Week struct {
	Start time.Time // always a Monday, UTC midnight
}

// WeekOf returns the pay week containing the given date.
func WeekOf(date time.Time) Week {
	d := Day(date)
	return Week{Start: d.AddDate(0, 0, -WeekdayIndex(d))}
}

// ParseWeekStart parses a YYYY-MM-DD string and snaps it to its Monday.
func ParseWeekStart(s string) (Week, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Week{}, fmt.Errorf("invalid week start %q: %w", s, err)
	}
	return WeekOf(d), nil
}

// End returns the Sunday closing the week.
func (w Week) End() time.Time { return w.Start.AddDate(0, 0, 6) }

// Contains reports whether the day falls inside [Start, End].
func (w Week) Contains(date time.Time) bool {
	d := Day(date)
	return !d.Before(w.Start) && !d.After(w.End())
}

func (w Week) String() string { return w.Start.Format("2006-01-02") }

// Day truncates a time to its UTC calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekdayIndex maps a date to the Monday=0 .. Sunday=6 convention used by
// assignment windows and pay week derivation.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// =============================================================================
// CLOCK - Minutes since midnight
// =============================================================================

// Clock is a time of day in minutes since midnight. Session start/end times
// and assignment time ranges use it so interval math stays integral.
type Clock int

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60) }
