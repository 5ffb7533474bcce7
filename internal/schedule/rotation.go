package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/calroth/questboard/internal/model"
)

// ErrEmptyRotation is returned when a rotation has no members.
var ErrEmptyRotation = errors.New("rotation has no members")

var cadenceThresholds = map[model.Cadence]int{
	model.CadenceDaily:       1,
	model.CadenceWeekly:      7,
	model.CadenceFortnightly: 14,
	model.CadenceMonthly:     30,
}

// Tracker wraps a rotation's persisted state with the round-robin rules.
// Project never mutates state; Advance is called at most once per commit
// cycle by the daily materialization pass.
type Tracker struct {
	rotation *model.Rotation
}

// NewTracker validates the rotation and returns a tracker over it. The
// tracker mutates the passed rotation in place on Advance so the caller can
// persist it afterwards.
func NewTracker(rotation *model.Rotation) (*Tracker, error) {
	if len(rotation.MemberIDs) == 0 {
		return nil, ErrEmptyRotation
	}
	if rotation.CurrentIndex < 0 || rotation.CurrentIndex >= len(rotation.MemberIDs) {
		return nil, fmt.Errorf("rotation %d: index %d out of range for %d members",
			rotation.ID, rotation.CurrentIndex, len(rotation.MemberIDs))
	}
	return &Tracker{rotation: rotation}, nil
}

// Current returns the member holding the rotation right now.
func (t *Tracker) Current() int64 {
	return t.rotation.MemberIDs[t.rotation.CurrentIndex]
}

// ShouldAdvance reports whether the cadence period has elapsed since the last
// advancement. A rotation that has never advanced always advances.
func (t *Tracker) ShouldAdvance(now time.Time) bool {
	if t.rotation.LastAdvanced == nil {
		return true
	}
	threshold, ok := cadenceThresholds[t.rotation.Cadence]
	if !ok {
		threshold = 7
	}
	return int(now.Sub(*t.rotation.LastAdvanced).Hours()/24) >= threshold
}

// Advance hands the rotation to the next member and records the timestamp.
func (t *Tracker) Advance(now time.Time) {
	t.rotation.CurrentIndex = (t.rotation.CurrentIndex + 1) % len(t.rotation.MemberIDs)
	t.rotation.LastAdvanced = &now
}

// Project returns the member that holds the rotation on target, given that
// the persisted state is current as of reference. It never mutates the
// rotation — this is the invariant separating calendar previews from the
// nightly commit.
//
// For daily cadence the holder changes every occurrence: when activeWeekdays
// is non-empty only those weekdays count as occurrences, otherwise every
// calendar day counts. All other cadences keep one holder for the whole
// period.
func (t *Tracker) Project(target, reference time.Time, activeWeekdays []time.Weekday) int64 {
	n := len(t.rotation.MemberIDs)
	idx := t.rotation.CurrentIndex

	if t.rotation.Cadence == model.CadenceDaily {
		var offset int
		if len(activeWeekdays) > 0 {
			offset = countOccurrences(reference, target, activeWeekdays)
		} else {
			offset = DaysBetween(reference, target)
		}
		idx = ((idx+offset)%n + n) % n
	}

	return t.rotation.MemberIDs[idx]
}

// countOccurrences counts the weekday occurrences in the closed range
// [start, end], negative when end precedes start and zero for equal dates.
// The starting day counts as an occurrence when its weekday matches, so a
// Mon/Wed/Fri rotation referenced on a Monday puts Wednesday two occurrences
// ahead.
func countOccurrences(start, end time.Time, weekdays []time.Weekday) int {
	start, end = DateOf(start), DateOf(end)
	if start.Equal(end) || len(weekdays) == 0 {
		return 0
	}

	set := make(map[time.Weekday]bool, len(weekdays))
	for _, d := range weekdays {
		set[d] = true
	}

	forward := !end.Before(start)
	a, b := start, end
	if !forward {
		a, b = end, start
	}

	days := DaysBetween(a, b) + 1
	fullWeeks, remaining := days/7, days%7

	count := fullWeeks * len(set)
	for i := 0; i < remaining; i++ {
		if set[a.AddDate(0, 0, i).Weekday()] {
			count++
		}
	}

	if !forward {
		return -count
	}
	return count
}
