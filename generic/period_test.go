package generic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/absence-engine/generic"
)

// =============================================================================
// PERIOD TESTS
// =============================================================================

func TestPeriod_Contains_BoundsInclusive(t *testing.T) {
	p := generic.Period{
		Start: generic.Date(2025, time.May, 1),
		End:   generic.Date(2026, time.April, 30),
	}

	if !p.Contains(p.Start) {
		t.Error("start bound should be contained")
	}
	if !p.Contains(p.End) {
		t.Error("end bound should be contained")
	}
	if p.Contains(p.Start.Add(-time.Second)) {
		t.Error("one second before start should not be contained")
	}
	if p.Contains(p.End.Add(time.Second)) {
		t.Error("one second after end should not be contained")
	}
}

func TestPeriod_Encloses(t *testing.T) {
	outer := generic.Period{
		Start: generic.Date(2025, time.May, 1),
		End:   generic.Date(2026, time.April, 30),
	}

	tests := []struct {
		name  string
		inner generic.Period
		want  bool
	}{
		{"same period", outer, true},
		{"strictly inside", generic.Period{Start: generic.Date(2025, time.June, 1), End: generic.Date(2025, time.June, 5)}, true},
		{"starts before", generic.Period{Start: generic.Date(2025, time.April, 30), End: generic.Date(2025, time.June, 5)}, false},
		{"ends after", generic.Period{Start: generic.Date(2026, time.April, 1), End: generic.Date(2026, time.May, 1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outer.Encloses(tt.inner); got != tt.want {
				t.Errorf("Encloses(%s) = %v, want %v", tt.inner, got, tt.want)
			}
		})
	}
}

func TestPeriod_Validate_EndBeforeStart(t *testing.T) {
	p := generic.Period{Start: generic.Date(2025, time.May, 2), End: generic.Date(2025, time.May, 1)}

	err := p.Validate()
	if !errors.Is(err, generic.ErrInvalidPeriod) {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

// =============================================================================
// ANNUAL CYCLE TESTS
// =============================================================================

func TestAnnualCycle_May(t *testing.T) {
	cycle := generic.AnnualCycle{Month: time.May, Day: 1}

	// July 15, 2025 is in the cycle May 1 2025 - Apr 30 2026
	period := cycle.PeriodFor(generic.Date(2025, time.July, 15))

	if !period.Start.Equal(generic.Date(2025, time.May, 1)) {
		t.Errorf("expected May 1 2025, got %s", period.Start)
	}
	if !period.End.Equal(time.Date(2026, time.April, 30, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("expected end of Apr 30 2026, got %s", period.End)
	}

	// Feb 15, 2025 is in the cycle May 1 2024 - Apr 30 2025
	period2 := cycle.PeriodFor(generic.Date(2025, time.February, 15))

	if !period2.Start.Equal(generic.Date(2024, time.May, 1)) {
		t.Errorf("expected May 1 2024, got %s", period2.Start)
	}
}

func TestAnnualCycle_StartDayBelongsToNewCycle(t *testing.T) {
	cycle := generic.AnnualCycle{Month: time.May, Day: 1}

	period := cycle.PeriodFor(generic.Date(2025, time.May, 1))

	if !period.Start.Equal(generic.Date(2025, time.May, 1)) {
		t.Errorf("expected May 1 2025, got %s", period.Start)
	}
}

func TestAnnualCycle_Next(t *testing.T) {
	cycle := generic.AnnualCycle{Month: time.May, Day: 1}
	current := cycle.PeriodFor(generic.Date(2025, time.July, 15))

	next := cycle.Next(current)

	if !next.Start.Equal(generic.Date(2026, time.May, 1)) {
		t.Errorf("expected May 1 2026, got %s", next.Start)
	}
}
