package billing

import "time"

// CivilDate returns the calendar day of t as seen in loc, as UTC midnight.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateOnly drops the clock part of a value that already denotes a calendar
// day, such as a DATE column.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from one date to another.
func DaysBetween(from, to time.Time) int {
	return int(DateOnly(to).Sub(DateOnly(from)).Hours() / 24)
}

// DaysDelinquent is max(0, today - due) in days.
func DaysDelinquent(due, today time.Time) int {
	return max(0, DaysBetween(due, today))
}
