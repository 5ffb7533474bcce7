package schedule

import (
	"time"

	"github.com/calroth/questboard/internal/model"
)

// DateOf truncates t to its calendar date at midnight UTC. All date
// arithmetic in this package works on values produced by DateOf.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// Fires reports whether a schedule with the given recurrence has an occurrence
// on target. anchorWeekday pins weekly and fortnightly schedules; anchor (the
// rule's creation date) supplies fortnightly week parity. A zero anchor
// degrades fortnightly to weekly behavior.
//
// Fires is a pure predicate: callers are responsible for not re-evaluating a
// once rule whose single occurrence already exists.
func Fires(rec model.Recurrence, target time.Time, anchorWeekday time.Weekday, customDays []time.Weekday, anchor time.Time) bool {
	switch rec {
	case model.RecurrenceOnce, model.RecurrenceDaily:
		return true
	case model.RecurrenceWeekly:
		return target.Weekday() == anchorWeekday
	case model.RecurrenceFortnightly:
		if target.Weekday() != anchorWeekday {
			return false
		}
		if anchor.IsZero() {
			return true
		}
		weeks := floorDiv(DaysBetween(anchor, target), 7)
		return weeks%2 == 0
	case model.RecurrenceCustom:
		for _, d := range customDays {
			if target.Weekday() == d {
				return true
			}
		}
		return false
	}
	return false
}

// floorDiv divides rounding toward negative infinity, so week parity stays
// anchored for targets before the anchor date.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
