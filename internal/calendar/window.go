package calendar

import (
	"errors"
	"time"
)

var ErrUnknownFilter = errors.New("filter must be one of today, tomorrow, week, month")

// Window resolves a named agenda filter into a half-open [from, to) range
// relative to now.
func Window(filter string, now time.Time) (from, to time.Time, err error) {
	day := StartOfDay(now)
	switch filter {
	case "today":
		return day, day.AddDate(0, 0, 1), nil
	case "tomorrow":
		return day.AddDate(0, 0, 1), day.AddDate(0, 0, 2), nil
	case "week":
		return day, day.AddDate(0, 0, 7), nil
	case "month":
		return day, day.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, ErrUnknownFilter
	}
}
