package absence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/generic"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// renewal2025 is the May 1 2025 - Apr 30 2026 renewal of an annual right.
func renewal2025() generic.Period {
	return generic.AnnualCycle{Month: time.May, Day: 1}.PeriodFor(generic.Date(2025, time.June, 1))
}

func at(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func intPtr(n int) *int { return &n }

func rule(kind absence.Kind, min, max int) absence.Rule {
	return absence.Rule{Title: kind.String() + " rule", Kind: kind, Interval: absence.NewInterval(min, max)}
}

func accountUser(birth, seniority *time.Time) *absence.User {
	return &absence.User{
		ID:      "u-1",
		Account: &absence.Account{BirthDate: birth, Seniority: seniority},
	}
}

// =============================================================================
// RENEWAL INTERVAL
// =============================================================================

func TestRenewalInterval_WidensByDays(t *testing.T) {
	// GIVEN: Renewal May 1 2025 - Apr 30 2026, 30 days tolerance each side
	// WHEN: Computing the rule window
	// THEN: Window is Apr 1 2025 - May 30 2026

	window := absence.RenewalInterval(renewal2025(), absence.NewInterval(30, 30))

	assert.Equal(t, generic.Date(2025, time.April, 1), window.Start)
	assert.Equal(t, time.Date(2026, time.May, 30, 23, 59, 59, 0, time.UTC), window.End)
}

func TestRenewalInterval_NonNegativeOffsetsContainRenewal(t *testing.T) {
	renewal := renewal2025()

	for _, in := range []absence.Interval{
		absence.NewInterval(0, 0),
		absence.NewInterval(1, 0),
		absence.NewInterval(0, 365),
		absence.NewInterval(90, 45),
		{Max: intPtr(10)},
	} {
		window := absence.RenewalInterval(renewal, in)

		assert.False(t, window.Start.After(renewal.Start), "window start must not be after renewal start")
		assert.False(t, renewal.End.After(window.End), "renewal end must not be after window end")
		assert.Equal(t, window, absence.RenewalInterval(renewal, in), "computation is deterministic")
	}
}

// =============================================================================
// ENTRY DATE
// =============================================================================

func TestEntryDate_CreationInsideWindow(t *testing.T) {
	r := rule(absence.EntryDate, 30, 30)
	renewal := renewal2025()

	tests := []struct {
		name    string
		created time.Time
		want    bool
	}{
		{"inside renewal", at(2025, time.September, 1, 10), true},
		{"first instant of tolerance", generic.Date(2025, time.April, 1), true},
		{"just before tolerance", generic.Date(2025, time.April, 1).Add(-time.Second), false},
		{"last instant of tolerance", time.Date(2026, time.May, 30, 23, 59, 59, 0, time.UTC), true},
		{"after tolerance", generic.Date(2026, time.May, 31), false},
		{"no creation date", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := r.Validate(renewal, nil, time.Time{}, time.Time{}, tt.created)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

// =============================================================================
// REQUEST PERIOD
// =============================================================================

func TestRequestPeriod_BoundsInclusive(t *testing.T) {
	r := rule(absence.RequestPeriod, 0, 0)
	renewal := renewal2025()

	tests := []struct {
		name         string
		start, end   time.Time
		want         bool
	}{
		{"fully inside", at(2025, time.July, 7, 9), at(2025, time.July, 11, 18), true},
		{"starts on renewal start", renewal.Start, at(2025, time.May, 2, 18), true},
		{"ends on renewal end", at(2026, time.April, 27, 9), renewal.End, true},
		{"starts one second early", renewal.Start.Add(-time.Second), at(2025, time.May, 2, 18), false},
		{"ends one second late", at(2026, time.April, 27, 9), renewal.End.Add(time.Second), false},
		{"missing end", at(2025, time.July, 7, 9), time.Time{}, false},
		{"missing start", time.Time{}, at(2025, time.July, 11, 18), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := r.Validate(renewal, nil, tt.start, tt.end, at(2025, time.June, 1, 9))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestRequestPeriod_ToleranceMovesBounds(t *testing.T) {
	// GIVEN: 7 days allowed before the renewal start
	r := rule(absence.RequestPeriod, 7, 0)

	// WHEN: Request starts 5 days before the renewal
	ok, err := r.Validate(renewal2025(), nil, generic.Date(2025, time.April, 26), generic.Date(2025, time.April, 28), time.Time{})

	// THEN: Request is accepted
	require.NoError(t, err)
	assert.True(t, ok)
}

// =============================================================================
// SENIORITY
// =============================================================================

func TestSeniority_WindowBeforeRetirement(t *testing.T) {
	// GIVEN: Retirement on Jun 1 2040, rule between 10 and 0 years before it
	// THEN: Requests between Jun 1 2030 and Jun 1 2040 qualify
	r := rule(absence.Seniority, 10, 0)
	user := accountUser(nil, ptr(generic.Date(2040, time.June, 1)))

	ok, err := r.Validate(renewal2025(), user, generic.Date(2035, time.January, 5), generic.Date(2035, time.January, 9), time.Time{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Validate(renewal2025(), user, generic.Date(2030, time.June, 1), generic.Date(2030, time.June, 2), time.Time{})
	require.NoError(t, err)
	assert.True(t, ok, "window start is inclusive")

	ok, err = r.Validate(renewal2025(), user, generic.Date(2029, time.December, 1), generic.Date(2029, time.December, 3), time.Time{})
	require.NoError(t, err)
	assert.False(t, ok, "too early before retirement")
}

func TestSeniority_MissingEndChecksOnlyLowerBound(t *testing.T) {
	// GIVEN: Retirement on Jun 1 2040, rule between 5 and 0 years before it
	r := rule(absence.Seniority, 5, 0)
	user := accountUser(nil, ptr(generic.Date(2040, time.June, 1)))

	// WHEN: The request has a start after the retirement date and no end
	ok, err := r.Validate(renewal2025(), user, generic.Date(2041, time.March, 2), time.Time{}, time.Time{})

	// THEN: The upper bound is not applied
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Validate(renewal2025(), user, generic.Date(2035, time.May, 31), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.False(t, ok, "start before the window is still refused")
}

func TestSeniority_MissingDataIsNotAnError(t *testing.T) {
	r := rule(absence.Seniority, 10, 0)

	ok, err := r.Validate(renewal2025(), accountUser(nil, nil), generic.Date(2035, time.January, 5), generic.Date(2035, time.January, 9), time.Time{})
	require.NoError(t, err)
	assert.False(t, ok, "no seniority date")

	ok, err = r.Validate(renewal2025(), accountUser(nil, ptr(generic.Date(2040, time.June, 1))), time.Time{}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.False(t, ok, "no request start")
}

func TestSeniority_AccountNotLoaded(t *testing.T) {
	// GIVEN: A user loaded without its account profile
	r := rule(absence.Seniority, 10, 0)
	user := &absence.User{ID: "u-bare"}

	// WHEN: Evaluating a seniority rule
	_, err := r.Validate(renewal2025(), user, generic.Date(2035, time.January, 5), generic.Date(2035, time.January, 9), time.Time{})

	// THEN: A prerequisite error, distinct from "rule does not apply"
	require.ErrorIs(t, err, generic.ErrPrerequisiteNotLoaded)
	var preErr *generic.PrerequisiteError
	require.ErrorAs(t, err, &preErr)
	assert.Equal(t, generic.UserID("u-bare"), preErr.UserID)
}

// =============================================================================
// AGE
// =============================================================================

func TestAge_WindowAfterBirth(t *testing.T) {
	// GIVEN: Born Mar 15 1990, rule between 18 and 65 years old
	r := rule(absence.Age, 18, 65)
	user := accountUser(ptr(generic.Date(1990, time.March, 15)), nil)

	ok, err := r.Validate(renewal2025(), user, generic.Date(2025, time.July, 7), generic.Date(2025, time.July, 11), time.Time{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Validate(renewal2025(), user, generic.Date(2008, time.March, 14), generic.Date(2008, time.March, 20), time.Time{})
	require.NoError(t, err)
	assert.False(t, ok, "starts the day before the 18th birthday")

	ok, err = r.Validate(renewal2025(), user, generic.Date(2055, time.March, 10), generic.Date(2055, time.March, 16), time.Time{})
	require.NoError(t, err)
	assert.False(t, ok, "ends after the 65th birthday")
}

func TestAge_MissingEndChecksOnlyLowerBound(t *testing.T) {
	r := rule(absence.Age, 18, 26)
	user := accountUser(ptr(generic.Date(1990, time.March, 15)), nil)

	ok, err := r.Validate(renewal2025(), user, generic.Date(2025, time.July, 7), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.True(t, ok, "36 years old but no end to compare with the upper bound")

	ok, err = r.Validate(renewal2025(), user, generic.Date(2008, time.March, 14), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAge_MissingBirthDate(t *testing.T) {
	r := rule(absence.Age, 18, 65)

	ok, err := r.Validate(renewal2025(), accountUser(nil, nil), generic.Date(2025, time.July, 7), generic.Date(2025, time.July, 11), time.Time{})

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAge_AccountNotLoaded(t *testing.T) {
	_, err := rule(absence.Age, 18, 65).Validate(renewal2025(), nil, generic.Date(2025, time.July, 7), generic.Date(2025, time.July, 11), time.Time{})

	assert.ErrorIs(t, err, generic.ErrPrerequisiteNotLoaded)
}

// =============================================================================
// SAVE-TIME INVARIANT
// =============================================================================

func TestRuleCheck_OrderingByKind(t *testing.T) {
	tests := []struct {
		name    string
		kind    absence.Kind
		min     int
		max     int
		wantErr bool
	}{
		{"seniority min greater than max", absence.Seniority, 10, 5, false},
		{"seniority min equals max", absence.Seniority, 5, 5, false},
		{"seniority min lower than max", absence.Seniority, 5, 10, true},
		{"age min lower than max", absence.Age, 18, 65, false},
		{"age min equals max", absence.Age, 30, 30, false},
		{"age min greater than max", absence.Age, 65, 18, true},
		{"entry date any order", absence.EntryDate, 30, 0, false},
		{"request period any order", absence.RequestPeriod, 0, 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rule(tt.kind, tt.min, tt.max).Check()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, generic.ErrInvalidRule)
			var ruleErr *generic.RuleValidationError
			require.ErrorAs(t, err, &ruleErr)
			assert.Equal(t, tt.kind.String(), ruleErr.Kind)
			assert.Equal(t, "Interval values must be set in a correct order", ruleErr.Reason)
		})
	}
}

func TestRuleCheck_IntervalRequired(t *testing.T) {
	err := absence.Rule{Title: "no interval", Kind: absence.EntryDate}.Check()

	var ruleErr *generic.RuleValidationError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "At least one value must be set in interval to save the rule", ruleErr.Reason)
}

func TestRuleCheck_SingleBoundCountsOtherAsZero(t *testing.T) {
	// Age with only a max: 0 <= 40
	assert.NoError(t, absence.Rule{Title: "under 40", Kind: absence.Age, Interval: absence.Interval{Max: intPtr(40)}}.Check())

	// Seniority with only a max: 0 < 5 is the wrong order
	assert.ErrorIs(t,
		absence.Rule{Title: "late", Kind: absence.Seniority, Interval: absence.Interval{Max: intPtr(5)}}.Check(),
		generic.ErrInvalidRule)
}

func TestRuleCheck_TitleAndKindRequired(t *testing.T) {
	assert.ErrorIs(t, absence.Rule{Kind: absence.Age, Interval: absence.NewInterval(1, 2)}.Check(), generic.ErrInvalidRule)
	assert.ErrorIs(t, absence.Rule{Title: "kindless", Interval: absence.NewInterval(1, 2)}.Check(), generic.ErrInvalidRule)
}

func TestParseKind(t *testing.T) {
	for _, k := range absence.Kinds() {
		parsed, err := absence.ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := absence.ParseKind("weekday")
	assert.ErrorIs(t, err, generic.ErrInvalidRule)
}

func TestNonNumericError_ReasonKeyedByKind(t *testing.T) {
	var ruleErr *generic.RuleValidationError

	require.ErrorAs(t, absence.NonNumericError(absence.Seniority), &ruleErr)
	assert.Equal(t, "Interval values must be numbers of years", ruleErr.Reason)

	require.ErrorAs(t, absence.NonNumericError(absence.EntryDate), &ruleErr)
	assert.Equal(t, "Interval values must be numbers of days", ruleErr.Reason)
}

func TestSeniorityEstimate(t *testing.T) {
	now := generic.Date(2026, time.October, 19)

	window := absence.SeniorityEstimate(absence.NewInterval(10, 2), now)

	assert.Equal(t, generic.Date(2016, time.October, 19), window.Start)
	assert.Equal(t, generic.Date(2024, time.October, 19), window.End)
}
