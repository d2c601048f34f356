/*
Package factory provides JSON to Go right conversion.

PURPOSE:
  Converts JSON right definitions into absence.Right values, running the
  rule save-time checks on the way. Rights can then be configured by the
  admin UI or seed files without code changes.

JSON SCHEMA:
  {
    "id": "paid-leave",
    "name": "Paid annual leave",
    "quantity": 25,
    "unit": "days",
    "hidden_from_accounts": false,
    "renewal": {"start": {"month": 5, "day": 1}},
    "renewals": [{"start": "2025-05-01", "end": "2026-04-30"}],
    "rules": [
      {"type": "entry_date", "title": "...", "interval": {"min": 30, "max": 30}},
      {"type": "request_period", "title": "...", "interval": {"min": 0, "max": 0}}
    ]
  }

INTERVAL VALUES:
  min and max may be omitted or null (unset), but must be whole numbers
  when present. Anything else is refused with the reason shown to the
  rule author, e.g. "Interval values must be numbers of years".

RENEWAL DATES:
  "start" and "end" accept a date ("2025-05-01") or an RFC3339 instant.
  A date-only end is read as the end of that day.

USAGE:
  f := NewRightFactory()
  right, err := f.ParseRight(jsonString)
  rule, err := f.ParseRule(ruleJSON)

SEE ALSO:
  - absence/rule.go: Rule kinds and the save-time invariant
  - defaults.go: Seed rights
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RightJSON is the JSON representation of a right.
type RightJSON struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Quantity           decimal.Decimal `json:"quantity"`
	Unit               string          `json:"unit,omitempty"` // days (default) or hours
	HiddenFromAccounts bool            `json:"hidden_from_accounts,omitempty"`
	Renewal            *RenewalJSON    `json:"renewal,omitempty"`
	Renewals           []PeriodJSON    `json:"renewals,omitempty"`
	Rules              []RuleJSON      `json:"rules,omitempty"`
}

// RenewalJSON is the yearly renewal template of a right.
type RenewalJSON struct {
	Start struct {
		Month int `json:"month"`
		Day   int `json:"day"`
	} `json:"start"`
}

// PeriodJSON is one renewal period.
type PeriodJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RuleJSON is the JSON representation of a rule.
type RuleJSON struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Interval IntervalJSON `json:"interval"`
}

// IntervalJSON keeps the raw values so non-numeric input can be reported
// instead of failing the whole document.
type IntervalJSON struct {
	Min json.RawMessage `json:"min,omitempty"`
	Max json.RawMessage `json:"max,omitempty"`
}

// =============================================================================
// RIGHT FACTORY
// =============================================================================

// RightFactory converts JSON rights to Go structs.
type RightFactory struct{}

// NewRightFactory creates a new right factory.
func NewRightFactory() *RightFactory {
	return &RightFactory{}
}

// ParseRight parses a JSON string into a Right.
func (f *RightFactory) ParseRight(jsonStr string) (*absence.Right, error) {
	var rj RightJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return nil, fmt.Errorf("failed to parse right JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON converts RightJSON to an absence.Right. Every rule must pass
// Rule.Check and every renewal must be a valid period.
func (f *RightFactory) FromJSON(rj RightJSON) (*absence.Right, error) {
	if rj.ID == "" {
		return nil, fmt.Errorf("right id is required")
	}
	if rj.Quantity.IsNegative() {
		return nil, fmt.Errorf("right %s: quantity must not be negative", rj.ID)
	}

	right := &absence.Right{
		ID:                 generic.RightID(rj.ID),
		Name:               rj.Name,
		Quantity:           generic.Amount{Value: rj.Quantity, Unit: parseUnit(rj.Unit)},
		HiddenFromAccounts: rj.HiddenFromAccounts,
	}

	if rj.Renewal != nil {
		cycle, err := parseCycle(*rj.Renewal)
		if err != nil {
			return nil, fmt.Errorf("right %s: %w", rj.ID, err)
		}
		right.Cycle = &cycle
	}

	for _, pj := range rj.Renewals {
		period, err := f.ParsePeriod(pj)
		if err != nil {
			return nil, fmt.Errorf("right %s: %w", rj.ID, err)
		}
		if err := right.AddRenewal(period); err != nil {
			return nil, fmt.Errorf("right %s: %w", rj.ID, err)
		}
	}

	for _, ruleJSON := range rj.Rules {
		rule, err := f.FromRuleJSON(ruleJSON)
		if err != nil {
			return nil, fmt.Errorf("right %s: %w", rj.ID, err)
		}
		if err := right.AddRule(rule); err != nil {
			return nil, fmt.Errorf("right %s: %w", rj.ID, err)
		}
	}

	return right, nil
}

// ParseRule parses and checks a single rule.
func (f *RightFactory) ParseRule(jsonStr string) (absence.Rule, error) {
	var rj RuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return absence.Rule{}, fmt.Errorf("failed to parse rule JSON: %w", err)
	}
	rule, err := f.FromRuleJSON(rj)
	if err != nil {
		return absence.Rule{}, err
	}
	return rule, rule.Check()
}

// FromRuleJSON converts RuleJSON to a Rule. It reports unknown kinds and
// non-numeric bounds; ordering is left to Rule.Check.
func (f *RightFactory) FromRuleJSON(rj RuleJSON) (absence.Rule, error) {
	kind, err := absence.ParseKind(rj.Type)
	if err != nil {
		return absence.Rule{}, err
	}

	lo, err := parseBound(rj.Interval.Min, kind)
	if err != nil {
		return absence.Rule{}, err
	}
	hi, err := parseBound(rj.Interval.Max, kind)
	if err != nil {
		return absence.Rule{}, err
	}

	return absence.Rule{
		Title:    rj.Title,
		Kind:     kind,
		Interval: absence.Interval{Min: lo, Max: hi},
	}, nil
}

// ToJSON converts a Right to RightJSON.
func (f *RightFactory) ToJSON(right *absence.Right) RightJSON {
	rj := RightJSON{
		ID:                 string(right.ID),
		Name:               right.Name,
		Quantity:           right.Quantity.Value,
		Unit:               string(right.Quantity.Unit),
		HiddenFromAccounts: right.HiddenFromAccounts,
	}

	if right.Cycle != nil {
		rj.Renewal = &RenewalJSON{}
		rj.Renewal.Start.Month = int(right.Cycle.Month)
		rj.Renewal.Start.Day = right.Cycle.Day
	}

	for _, p := range right.Renewals {
		rj.Renewals = append(rj.Renewals, PeriodJSON{
			Start: p.Start.Format(time.RFC3339),
			End:   p.End.Format(time.RFC3339),
		})
	}

	for _, rule := range right.Rules {
		rj.Rules = append(rj.Rules, RuleJSON{
			Type:     rule.Kind.String(),
			Title:    rule.Title,
			Interval: IntervalJSON{Min: boundJSON(rule.Interval.Min), Max: boundJSON(rule.Interval.Max)},
		})
	}
	return rj
}

// ParsePeriod reads a renewal period.
func (f *RightFactory) ParsePeriod(pj PeriodJSON) (generic.Period, error) {
	start, err := ParseInstant(pj.Start, false)
	if err != nil {
		return generic.Period{}, err
	}
	end, err := ParseInstant(pj.End, true)
	if err != nil {
		return generic.Period{}, err
	}
	p := generic.Period{Start: start, End: end}
	return p, p.Validate()
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseUnit(s string) generic.Unit {
	switch s {
	case "hours":
		return generic.UnitHours
	default:
		return generic.UnitDays
	}
}

func parseCycle(r RenewalJSON) (generic.AnnualCycle, error) {
	month, day := r.Start.Month, r.Start.Day
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return generic.AnnualCycle{}, fmt.Errorf("invalid renewal start %d/%d", day, month)
	}
	// Feb 29 and friends would drift on non-leap years.
	if generic.Date(2001, time.Month(month), day).Day() != day {
		return generic.AnnualCycle{}, fmt.Errorf("renewal start %d/%d does not exist every year", day, month)
	}
	return generic.AnnualCycle{Month: time.Month(month), Day: day}, nil
}

// parseBound returns nil for a missing or null bound and refuses anything
// that is not a whole number.
func parseBound(raw json.RawMessage, kind absence.Kind) (*int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, absence.NonNumericError(kind)
	}
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return nil, absence.NonNumericError(kind)
	}
	n := int(v)
	return &n, nil
}

func boundJSON(v *int) json.RawMessage {
	if v == nil {
		return nil
	}
	return json.RawMessage(fmt.Sprintf("%d", *v))
}

// ParseInstant reads an RFC3339 instant or a plain date. With endOfDay, a
// plain date means the last second of that day.
func ParseInstant(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	if endOfDay {
		return generic.EndOfDay(t), nil
	}
	return t, nil
}
