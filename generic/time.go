package generic

import (
	"time"
)

// =============================================================================
// DATE HELPERS - Calendar arithmetic on time.Time
// =============================================================================
// Rules compare instants, not days: a request ending at 18:00 on the last
// day of a window is inside it only if the window ends at or after 18:00.
// All constructors work in UTC.

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable second of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

// AddDays moves t by n calendar days, keeping the clock time.
func AddDays(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) }

// AddYears moves t by n calendar years. Feb 29 normalizes to Mar 1 on
// non-leap targets.
func AddYears(t time.Time, n int) time.Time { return t.AddDate(n, 0, 0) }

// Today returns midnight UTC of the current day.
func Today() time.Time {
	now := time.Now().UTC()
	return Date(now.Year(), now.Month(), now.Day())
}
