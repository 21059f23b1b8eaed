package schedule

import (
	"fmt"
	"time"
)

// OccursOn reports whether a time-off range applies to the given
// calendar date. Recurrence is a weekly pattern: the date's weekday
// must be in RecurringDays and the date must fall inside
// [StartDate, RecurringEndDate]. Non-recurring ranges simply span
// [StartDate, EndDate].
func OccursOn(r TimeOffRange, date time.Time) bool {
	day := truncateToDay(date)
	start := truncateToDay(r.StartDate)
	if day.Before(start) {
		return false
	}
	if r.IsRecurring {
		if day.After(truncateToDay(r.RecurringEndDate)) {
			return false
		}
		wd := ISOWeekday(day)
		for _, d := range r.RecurringDays {
			if d == wd {
				return true
			}
		}
		return false
	}
	return !day.After(truncateToDay(r.EndDate))
}

// DayConflicts collects the conflict entries the given ranges produce
// on a date. Overlapping ranges are reported separately, never merged.
// fullDayBlocked is true when at least one applicable range has no
// explicit times; such a day can never yield available slots.
func DayConflicts(date time.Time, ranges []TimeOffRange) (conflicts []Conflict, fullDayBlocked bool) {
	for _, r := range ranges {
		if !OccursOn(r, date) {
			continue
		}
		if r.FullDay() {
			fullDayBlocked = true
			conflicts = append(conflicts, Conflict{
				Kind:         ConflictTimeRange,
				StartMinutes: fullDayStartMinutes,
				EndMinutes:   fullDayEndMinutes,
				Description:  fmt.Sprintf("%s (full day)", r.Type),
			})
			continue
		}
		conflicts = append(conflicts, Conflict{
			Kind:         ConflictTimeRange,
			StartMinutes: *r.StartMinutes,
			EndMinutes:   *r.EndMinutes,
			Description:  string(r.Type),
		})
	}
	return conflicts, fullDayBlocked
}

// RangeBlocksWindow reports whether the range blocks any part of the
// candidate window [startMin,endMin) on the given date.
func RangeBlocksWindow(r TimeOffRange, date time.Time, startMin, endMin int) bool {
	if !OccursOn(r, date) {
		return false
	}
	if r.FullDay() {
		return true
	}
	return Overlaps(startMin, endMin, *r.StartMinutes, *r.EndMinutes)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
