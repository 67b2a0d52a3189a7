package library

import "time"

// Clock supplies the current time. Stores truncate to microseconds in UTC.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

func nowUTC(c Clock) time.Time {
	return c.Now().UTC().Truncate(time.Microsecond)
}

// dateOnly drops the time of day, keeping the calendar date of t.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
