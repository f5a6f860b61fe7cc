// Package calendar holds the pure date arithmetic used by scheduling.
// Everything is evaluated in UTC; display zones are applied by the HTTP layer.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidWeekday = errors.New("weekday must be between 0 (Sunday) and 6 (Saturday)")

// Clock supplies "now". Services take one instead of calling time.Now.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// System is the wall clock, in UTC.
var System Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// Fixed returns a clock frozen at t.
func Fixed(t time.Time) Clock {
	t = t.UTC()
	return ClockFunc(func() time.Time { return t })
}

// ParseWeekdays converts 0..6 integers into weekdays, dropping duplicates
// and keeping the caller's order.
func ParseWeekdays(days []int) ([]time.Weekday, error) {
	seen := make(map[int]bool, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidWeekday, d)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, time.Weekday(d))
	}
	return out, nil
}

// ValidWeekdays fails on the first value outside Sunday..Saturday.
func ValidWeekdays(days []time.Weekday) error {
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: got %d", ErrInvalidWeekday, d)
		}
	}
	return nil
}

func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay is the last representable instant of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// IsTodayOrFuture reports whether date falls on now's calendar day or later.
func IsTodayOrFuture(date, now time.Time) bool {
	return SameDay(date, now) || date.After(now)
}

// NextQualifyingDates returns count instants. The first one is always start.
// With no weekdays, or count == 1, that is the whole result. Otherwise the
// following days are scanned one at a time and every day whose weekday is in
// the set and which is not before now's day is taken, keeping start's time
// of day.
func NextQualifyingDates(start time.Time, count int, weekdays []time.Weekday, now time.Time) []time.Time {
	if count <= 0 {
		return nil
	}
	start = start.UTC()
	out := make([]time.Time, 1, count)
	out[0] = start
	if count == 1 || len(weekdays) == 0 {
		return out
	}

	set := weekdaySet(weekdays)
	if len(set) == 0 {
		return out
	}
	for d := start.AddDate(0, 0, 1); len(out) < count; d = d.AddDate(0, 0, 1) {
		if set[d.Weekday()] && IsTodayOrFuture(d, now) {
			out = append(out, d)
		}
	}
	return out
}

// FirstOnOrAfter returns the first instant at or after from, on a day not
// before now's day, whose weekday is in the set. The time of day of from is
// kept. An empty set returns from unchanged.
func FirstOnOrAfter(from time.Time, weekdays []time.Weekday, now time.Time) time.Time {
	from = from.UTC()
	if len(weekdays) == 0 {
		return from
	}
	if from.Before(StartOfDay(now)) {
		h, m, s := from.Clock()
		n := StartOfDay(now)
		from = time.Date(n.Year(), n.Month(), n.Day(), h, m, s, from.Nanosecond(), time.UTC)
	}
	set := weekdaySet(weekdays)
	if len(set) == 0 {
		return from
	}
	for !set[from.Weekday()] {
		from = from.AddDate(0, 0, 1)
	}
	return from
}

// AtTimeOf returns day's date combined with the wall clock of clock.
func AtTimeOf(day, clock time.Time) time.Time {
	day, clock = day.UTC(), clock.UTC()
	h, m, s := clock.Clock()
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, clock.Nanosecond(), time.UTC)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// weekdaySet skips values outside Sunday..Saturday; they never match a date.
func weekdaySet(days []time.Weekday) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			set[d] = true
		}
	}
	return set
}
