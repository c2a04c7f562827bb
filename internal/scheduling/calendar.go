// Package scheduling holds the pure parts of the production scheduler: the
// work calendar, labor capacity, mold compatibility, priority ranking and
// the greedy allocator. Nothing here performs I/O.
package scheduling

import "time"

// IsWorkDay reports whether t falls on a production day (Monday to Thursday).
func IsWorkDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Monday, time.Tuesday, time.Wednesday, time.Thursday:
		return true
	}
	return false
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextWorkDay returns the first work day on or after the date of t.
func NextWorkDay(t time.Time) time.Time {
	day := DateOf(t)
	for !IsWorkDay(day) {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// WorkDays returns n consecutive work days starting at the first work day on
// or after start. Friday, Saturday and Sunday are never produced.
func WorkDays(start time.Time, n int) []time.Time {
	if n <= 0 {
		return []time.Time{}
	}
	days := make([]time.Time, 0, n)
	day := NextWorkDay(start)
	for len(days) < n {
		if IsWorkDay(day) {
			days = append(days, day)
		}
		day = day.AddDate(0, 0, 1)
	}
	return days
}
