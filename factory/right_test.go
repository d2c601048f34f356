package factory_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/factory"
	"github.com/warp/absence-engine/generic"
)

func TestParseRight_Full(t *testing.T) {
	f := factory.NewRightFactory()

	right, err := f.ParseRight(`{
		"id": "rtt",
		"name": "RTT",
		"quantity": "9.5",
		"renewal": {"start": {"month": 5, "day": 1}},
		"renewals": [{"start": "2025-05-01", "end": "2026-04-30"}],
		"rules": [
			{"type": "seniority", "title": "late career", "interval": {"min": 10, "max": 2}},
			{"type": "age", "title": "under 60", "interval": {"max": 60}}
		]
	}`)

	require.NoError(t, err)
	assert.Equal(t, "9.5", right.Quantity.Value.String())
	assert.Equal(t, generic.UnitDays, right.Quantity.Unit)
	assert.Equal(t, &generic.AnnualCycle{Month: time.May, Day: 1}, right.Cycle)
	require.Len(t, right.Renewals, 1)
	assert.Equal(t, time.Date(2026, time.April, 30, 23, 59, 59, 0, time.UTC), right.Renewals[0].End)
	require.Len(t, right.Rules, 2)
	assert.Equal(t, absence.Seniority, right.Rules[0].Kind)
	assert.Nil(t, right.Rules[1].Interval.Min)
	assert.Equal(t, 60, *right.Rules[1].Interval.Max)
}

func TestParseRule_Refusals(t *testing.T) {
	tests := []struct {
		name   string
		json   string
		reason string
	}{
		{"no interval", `{"type": "age", "title": "t", "interval": {}}`, "At least one value must be set in interval to save the rule"},
		{"null interval values", `{"type": "age", "title": "t", "interval": {"min": null, "max": null}}`, "At least one value must be set in interval to save the rule"},
		{"text years", `{"type": "seniority", "title": "t", "interval": {"min": "ten", "max": 2}}`, "Interval values must be numbers of years"},
		{"fractional years", `{"type": "age", "title": "t", "interval": {"min": 18.5, "max": 60}}`, "Interval values must be numbers of years"},
		{"text days", `{"type": "entry_date", "title": "t", "interval": {"min": true}}`, "Interval values must be numbers of days"},
		{"seniority order", `{"type": "seniority", "title": "t", "interval": {"min": 2, "max": 10}}`, "Interval values must be set in a correct order"},
		{"age order", `{"type": "age", "title": "t", "interval": {"min": 60, "max": 18}}`, "Interval values must be set in a correct order"},
		{"unknown type", `{"type": "weekday", "title": "t", "interval": {"min": 1}}`, "Unknown rule type"},
	}

	f := factory.NewRightFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseRule(tt.json)

			require.ErrorIs(t, err, generic.ErrInvalidRule)
			var ruleErr *generic.RuleValidationError
			require.ErrorAs(t, err, &ruleErr)
			assert.Equal(t, tt.reason, ruleErr.Reason)
		})
	}
}

func TestParseRight_InvalidRuleRefusesRight(t *testing.T) {
	_, err := factory.NewRightFactory().ParseRight(`{
		"id": "bad",
		"quantity": 1,
		"rules": [{"type": "age", "title": "t", "interval": {"min": 60, "max": 18}}]
	}`)

	assert.ErrorIs(t, err, generic.ErrInvalidRule)
}

func TestParseRight_Refusals(t *testing.T) {
	f := factory.NewRightFactory()

	_, err := f.ParseRight(`{"name": "no id", "quantity": 1}`)
	assert.Error(t, err)

	_, err = f.ParseRight(`{"id": "neg", "quantity": -1}`)
	assert.Error(t, err)

	_, err = f.ParseRight(`{"id": "leap", "quantity": 1, "renewal": {"start": {"month": 2, "day": 29}}}`)
	assert.Error(t, err)

	_, err = f.ParseRight(`{"id": "backwards", "quantity": 1, "renewals": [{"start": "2025-05-01", "end": "2025-04-01"}]}`)
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := factory.NewRightFactory()
	original, err := f.ParseRight(factory.PaidLeaveJSON())
	require.NoError(t, err)
	require.NoError(t, original.AddRenewal(original.Cycle.PeriodFor(generic.Date(2025, time.June, 1))))

	encoded, err := json.Marshal(f.ToJSON(original))
	require.NoError(t, err)
	decoded, err := f.ParseRight(string(encoded))
	require.NoError(t, err)

	assert.Equal(t, original.Rules, decoded.Rules)
	assert.Equal(t, original.Renewals, decoded.Renewals)
	assert.True(t, original.Quantity.Value.Equal(decoded.Quantity.Value))
}

func TestDefaultRights(t *testing.T) {
	today := generic.Date(2025, time.September, 10)

	rights, err := factory.NewRightFactory().DefaultRights(today)
	require.NoError(t, err)
	require.Len(t, rights, 3)

	byID := map[generic.RightID]*absence.Right{}
	for _, r := range rights {
		byID[r.ID] = r
	}

	leave := byID["paid-leave"]
	require.NotNil(t, leave)
	assert.Equal(t, "25", leave.Quantity.Value.String())
	assert.Len(t, leave.Rules, 2)
	require.Len(t, leave.Renewals, 1)
	assert.Equal(t, generic.Date(2025, time.May, 1), leave.Renewals[0].Start)

	assert.Equal(t, "9", byID["rtt"].Quantity.Value.String())

	maternity := byID["maternity"]
	require.NotNil(t, maternity)
	assert.True(t, maternity.HiddenFromAccounts)
	assert.Equal(t, "80", maternity.Quantity.Value.String())
	assert.Nil(t, maternity.Cycle)
	assert.Empty(t, maternity.Renewals)

	// Within 30 days of May 1 the next renewal is already open
	ahead, err := factory.NewRightFactory().DefaultRights(generic.Date(2026, time.April, 15))
	require.NoError(t, err)
	assert.Len(t, ahead[0].Renewals, 2)

	// The seed works with the evaluator as ordinary data
	ok, err := leave.IsApplicable(&absence.User{ID: "u", Account: &absence.Account{}},
		generic.Date(2025, time.October, 6), generic.EndOfDay(generic.Date(2025, time.October, 10)), today)
	require.NoError(t, err)
	assert.True(t, ok)
}
