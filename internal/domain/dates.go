package domain

import (
	"math"
	"time"
)

// DaysBetween returns the number of calendar days from a to b, ignoring
// time-of-day. Positive when b is after a, negative when before, zero for
// the same calendar day. Antisymmetric: DaysBetween(a,b) == -DaysBetween(b,a).
func DaysBetween(a, b time.Time) int {
	a0 := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, a.Location())
	b0 := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, a.Location())
	// Round absorbs DST days that are 23 or 25 hours long.
	return int(math.Round(b0.Sub(a0).Hours() / 24))
}

// IsOverdue reports whether a checkout due at due is overdue at now.
// Day-granularity: a checkout due today is not overdue until tomorrow.
func IsOverdue(due, now time.Time) bool {
	return DaysBetween(due, now) > 0
}

// IsDueSoon reports whether due falls within thresholdDays calendar days of
// now (inclusive of today). Mutually exclusive with IsOverdue for any
// threshold >= 0.
func IsDueSoon(due, now time.Time, thresholdDays int) bool {
	d := DaysBetween(now, due)
	return d >= 0 && d <= thresholdDays
}

// DaysOverdue returns how many whole days past due the checkout is at now,
// never negative.
func DaysOverdue(due, now time.Time) int {
	d := DaysBetween(due, now)
	if d < 0 {
		return 0
	}
	return d
}

// LateFeeCents computes the accrued late fee at now. Computed on demand for
// display; never persisted as a running balance.
func LateFeeCents(due, now time.Time, p Policy) int {
	return DaysOverdue(due, now) * p.LateFeeCentsPerDay
}
