package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// PAY WEEK DERIVATION
// =============================================================================

func TestWeekOf_EveryWeekdayMapsToSameMonday(t *testing.T) {
	// GIVEN: The week of Monday 2025-03-10
	// WHEN: Deriving the pay week from each of its seven days
	// THEN: All seven resolve to the same Monday start

	monday := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		day := monday.AddDate(0, 0, i)
		w := engine.WeekOf(day)
		assert.Equal(t, monday, w.Start, "day %s should map to Monday %s", day.Format("2006-01-02"), monday.Format("2006-01-02"))
	}
}

func TestWeekOf_SundayBelongsToPrecedingMonday(t *testing.T) {
	// GIVEN: Sunday 2025-03-16
	// WHEN: Deriving its pay week
	// THEN: It belongs to the week starting Monday 2025-03-10, not the next one

	sunday := time.Date(2025, time.March, 16, 0, 0, 0, 0, time.UTC)
	w := engine.WeekOf(sunday)
	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), w.Start)
}

func TestWeekOf_YearBoundary(t *testing.T) {
	// GIVEN: Thursday 2026-01-01
	// WHEN: Deriving its pay week
	// THEN: The week starts on Monday 2025-12-29, in the previous year

	newYear := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	w := engine.WeekOf(newYear)
	assert.Equal(t, time.Date(2025, time.December, 29, 0, 0, 0, 0, time.UTC), w.Start)
}

func TestWeekOf_IgnoresTimeOfDay(t *testing.T) {
	late := time.Date(2025, time.March, 12, 23, 59, 0, 0, time.UTC)
	w := engine.WeekOf(late)
	assert.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), w.Start)
}

func TestParseWeekStart_SnapsToMonday(t *testing.T) {
	// GIVEN: A mid-week date string
	// WHEN: Parsing it as a week start
	// THEN: It snaps back to the containing Monday

	w, err := engine.ParseWeekStart("2025-03-13")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", w.String())

	w, err = engine.ParseWeekStart("2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", w.String())
}

func TestParseWeekStart_RejectsGarbage(t *testing.T) {
	_, err := engine.ParseWeekStart("not-a-date")
	assert.Error(t, err)
}

func TestWeek_Contains(t *testing.T) {
	w := engine.WeekOf(time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC))

	assert.True(t, w.Contains(time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)), "Monday is inside")
	assert.True(t, w.Contains(time.Date(2025, time.March, 16, 0, 0, 0, 0, time.UTC)), "Sunday is inside")
	assert.False(t, w.Contains(time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC)), "previous Sunday is outside")
	assert.False(t, w.Contains(time.Date(2025, time.March, 17, 0, 0, 0, 0, time.UTC)), "next Monday is outside")
}

// =============================================================================
// CLOCK TIMES
// =============================================================================

func TestParseClock(t *testing.T) {
	c, err := engine.ParseClock("14:30")
	require.NoError(t, err)
	assert.Equal(t, engine.Clock(14*60+30), c)
	assert.Equal(t, "14:30", c.String())

	c, err = engine.ParseClock("09:05")
	require.NoError(t, err)
	assert.Equal(t, "09:05", c.String())

	_, err = engine.ParseClock("24:00")
	assert.Error(t, err, "hour out of range")

	_, err = engine.ParseClock("noonish")
	assert.Error(t, err)
}
