// Package timeutil provides calendar-day helpers for the progress engine.
// Nothing here reads the wall clock: every function takes the instant and the
// location it should be interpreted in, so "today" is always an explicit input.
package timeutil

import (
	"time"
)

// FormatDate is the calendar-day key format (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// Day is a calendar date without a time-of-day component.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar day t falls on in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(orUTC(loc)).Date()
	return Day{Year: y, Month: m, Day: d}
}

// AddDays shifts a day by n calendar days.
func (d Day) AddDays(n int) Day {
	t := time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC)
	y, m, dd := t.Date()
	return Day{Year: y, Month: m, Day: dd}
}

// Before reports whether d is strictly earlier than other.
func (d Day) Before(other Day) bool {
	return d.midnightUTC().Before(other.midnightUTC())
}

// Weekday returns the day of the week.
func (d Day) Weekday() time.Weekday {
	return d.midnightUTC().Weekday()
}

// String formats the day as YYYY-MM-DD.
func (d Day) String() string {
	return d.midnightUTC().Format(FormatDate)
}

func (d Day) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD key.
func ParseDay(value string) (Day, error) {
	t, err := time.ParseInLocation(FormatDate, value, time.UTC)
	if err != nil {
		return Day{}, err
	}
	return DayOf(t, time.UTC), nil
}

// DateKey returns the YYYY-MM-DD key of t in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return DayOf(t, loc).String()
}

// IsSameDay checks if two instants fall on the same calendar day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	return DayOf(t1, loc) == DayOf(t2, loc)
}

// IsConsecutiveDay checks if t2 falls on the day after t1 in loc.
func IsConsecutiveDay(t1, t2 time.Time, loc *time.Location) bool {
	return DayOf(t1, loc).AddDays(1) == DayOf(t2, loc)
}

// DaysBetween returns the absolute number of calendar days between two instants.
func DaysBetween(t1, t2 time.Time, loc *time.Location) int {
	a := DayOf(t1, loc).midnightUTC()
	b := DayOf(t2, loc).midnightUTC()
	days := int(b.Sub(a).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// IsWeekend checks if t falls on Saturday or Sunday in loc.
func IsWeekend(t time.Time, loc *time.Location) bool {
	wd := t.In(orUTC(loc)).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// HourIn returns the clock hour of t in loc.
func HourIn(t time.Time, loc *time.Location) int {
	return t.In(orUTC(loc)).Hour()
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
