package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - A closed window of time
// =============================================================================

// Period is the closed interval [Start, End].
//
// Examples:
//   - A renewal of paid leave: May 1 2025 - Apr 30 2026
//   - A rule window around that renewal: Apr 1 2025 - May 30 2026
//   - A request: Mar 10 2026 09:00 - Mar 14 2026 18:00
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t is within [Start, End], bounds included.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// Encloses returns true if other lies entirely inside p, bounds included.
func (p Period) Encloses(other Period) bool {
	return !other.Start.Before(p.Start) && !other.End.After(p.End)
}

// Validate rejects periods whose end precedes their start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return fmt.Errorf("%s: %w", p, ErrInvalidPeriod)
	}
	return nil
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.Format(time.RFC3339) + ", " + p.End.Format(time.RFC3339) + "]"
}

// =============================================================================
// ANNUAL CYCLE - Yearly windows starting on a fixed month/day
// =============================================================================

// AnnualCycle describes periods that restart every year on Month/Day,
// like a fiscal year that begins on May 1.
type AnnualCycle struct {
	Month time.Month
	Day   int
}

// PeriodFor returns the yearly period that contains date. The period runs
// from the cycle start to the end of the day before the next start.
func (c AnnualCycle) PeriodFor(date time.Time) Period {
	date = date.UTC()
	start := Date(date.Year(), c.Month, c.Day)

	// If date is before this year's start, we're in the previous cycle
	if date.Before(start) {
		start = Date(date.Year()-1, c.Month, c.Day)
	}

	return Period{Start: start, End: EndOfDay(AddDays(AddYears(start, 1), -1))}
}

// Next returns the period following p for this cycle.
func (c AnnualCycle) Next(p Period) Period {
	return c.PeriodFor(AddDays(StartOfDay(p.End), 1))
}
