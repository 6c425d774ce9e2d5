// Package schedule computes billing-period boundaries and due dates from
// recurring date patterns.
//
// This file implements the Strategy Pattern for occurrence rules. Each
// pattern (fixed day, third Friday, last business day, manual) has its
// own rule that encapsulates the logic for finding the occurrence in a
// reference month.
package schedule

import (
	"fmt"
	"time"
)

// Pattern identifies a recurring date rule.
type Pattern string

const (
	FixedDay        Pattern = "FIXED_DAY"
	ThirdFriday     Pattern = "THIRD_FRIDAY"
	LastBusinessDay Pattern = "LAST_BUSINESS_DAY"
	Manual          Pattern = "MANUAL"
)

// OccurrenceRule is the strategy interface for recurring date patterns.
type OccurrenceRule interface {
	// Occurrence returns the pattern's date in the reference month, or
	// ok=false when the pattern generates no date (manual scheduling).
	Occurrence(reference time.Time) (date time.Time, ok bool)
}

// FixedDayRule places the occurrence on a given day of the month,
// clamped to the last valid day when the month is shorter.
type FixedDayRule struct {
	Day int
}

func (r FixedDayRule) Occurrence(reference time.Time) (time.Time, bool) {
	return ClampedDate(reference.Year(), reference.Month(), r.Day), true
}

// ThirdFridayRule places the occurrence on the third Friday counting
// from the first of the reference month.
type ThirdFridayRule struct{}

func (ThirdFridayRule) Occurrence(reference time.Time) (time.Time, bool) {
	first := time.Date(reference.Year(), reference.Month(), 1, 0, 0, 0, 0, time.UTC)
	offset := (int(time.Friday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+14), true
}

// LastBusinessDayRule places the occurrence on the last weekday
// (Mon-Fri) of the reference month. No holiday calendar is consulted.
type LastBusinessDayRule struct{}

func (LastBusinessDayRule) Occurrence(reference time.Time) (time.Time, bool) {
	day := time.Date(reference.Year(), reference.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, -1)
	}
	return day, true
}

// ManualRule generates no date; automation skips accounts scheduled
// manually.
type ManualRule struct{}

func (ManualRule) Occurrence(time.Time) (time.Time, bool) {
	return time.Time{}, false
}

// RuleFor returns the occurrence rule for a pattern. The day argument is
// only consulted for FIXED_DAY.
func RuleFor(pattern Pattern, day int) (OccurrenceRule, error) {
	switch pattern {
	case FixedDay:
		if day < 1 || day > 31 {
			return nil, fmt.Errorf("fixed day %d out of range 1-31", day)
		}
		return FixedDayRule{Day: day}, nil
	case ThirdFriday:
		return ThirdFridayRule{}, nil
	case LastBusinessDay:
		return LastBusinessDayRule{}, nil
	case Manual:
		return ManualRule{}, nil
	}
	return nil, fmt.Errorf("unknown recurrence pattern: %s", pattern)
}

// ClampedDate returns the date for year/month/day with the day clamped
// to the last valid day of that month (day 31 in February becomes the
// last day of February).
func ClampedDate(year int, month time.Month, day int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
