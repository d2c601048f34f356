/*
Package absence implements leave rights and their eligibility rules.

PURPOSE:
  A right (paid annual leave, RTT, maternity...) is a named quota of days
  attached to renewal periods. Each right carries rules; the right is
  applicable to a request only when every rule validates.

RULE KINDS:
  entry_date      The request must be created within the renewal period,
                  widened by Min days before its start and Max days after
                  its end.
  request_period  The requested dates must lie within the renewal period,
                  widened the same way.
  seniority       The requested dates must lie between Min and Max years
                  before the account's seniority date (the anticipated
                  retirement date). Min >= Max.
  age             The requested dates must lie between Min and Max years
                  after the account's birth date. Min <= Max.

KINDS ARE SEALED:
  Kind is an interface with unexported methods, implemented only by the
  four values EntryDate, RequestPeriod, Seniority and Age. Adding a kind
  means implementing every method, so no dispatch site can forget it.

SEE ALSO:
  - right.go: Right, renewal lookup, AND aggregation of rules
  - user.go: The requester profile read by seniority and age rules
*/
package absence

import (
	"fmt"
	"time"

	"github.com/warp/absence-engine/generic"
)

// =============================================================================
// KIND - Sealed set of rule kinds
// =============================================================================

// Kind selects how a rule's interval is computed and compared.
type Kind interface {
	// String returns the stored name of the kind (e.g. "entry_date").
	String() string

	// Unit is the unit of the interval values: "days" or "years".
	Unit() string

	// check enforces the kind-specific ordering of a complete interval.
	check(in Interval) error

	// validate decides whether the rule holds for the given subject.
	validate(r Rule, s Subject) (bool, error)
}

type entryDateKind struct{}
type requestPeriodKind struct{}
type seniorityKind struct{}
type ageKind struct{}

var (
	EntryDate     Kind = entryDateKind{}
	RequestPeriod Kind = requestPeriodKind{}
	Seniority     Kind = seniorityKind{}
	Age           Kind = ageKind{}
)

// Kinds lists every rule kind, in authoring order.
func Kinds() []Kind {
	return []Kind{EntryDate, RequestPeriod, Seniority, Age}
}

// ParseKind returns the kind stored under name.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if k.String() == name {
			return k, nil
		}
	}
	return nil, &generic.RuleValidationError{Kind: name, Reason: "Unknown rule type"}
}

// =============================================================================
// INTERVAL
// =============================================================================

// Interval holds the two offsets of a rule. A nil bound was not set by the
// author and counts as zero when the rule is evaluated.
type Interval struct {
	Min *int
	Max *int
}

// NewInterval returns an interval with both bounds set.
func NewInterval(min, max int) Interval {
	return Interval{Min: &min, Max: &max}
}

func (in Interval) min() int {
	if in.Min == nil {
		return 0
	}
	return *in.Min
}

func (in Interval) max() int {
	if in.Max == nil {
		return 0
	}
	return *in.Max
}

// RenewalInterval widens a renewal period by the rule's day offsets:
// Min days before the renewal start and Max days after the renewal end.
func RenewalInterval(renewal generic.Period, in Interval) generic.Period {
	return generic.Period{
		Start: generic.AddDays(renewal.Start, -in.min()),
		End:   generic.AddDays(renewal.End, in.max()),
	}
}

// SeniorityEstimate returns the window a seniority interval covers for
// someone retiring at now, as shown to rule authors.
func SeniorityEstimate(in Interval, now time.Time) generic.Period {
	return generic.Period{
		Start: generic.AddYears(now, -in.min()),
		End:   generic.AddYears(now, -in.max()),
	}
}

// =============================================================================
// RULE
// =============================================================================

// Rule is one eligibility condition embedded in a right.
type Rule struct {
	Title    string
	Kind     Kind
	Interval Interval
}

// Subject is everything a rule can look at. Zero times mean "absent".
type Subject struct {
	Renewal     generic.Period
	User        *User
	DTStart     time.Time
	DTEnd       time.Time
	TimeCreated time.Time
}

// Check enforces the save-time invariant. A rule failing Check must not
// be persisted; the returned *generic.RuleValidationError carries the
// reason to show to the author.
func (r Rule) Check() error {
	if r.Kind == nil {
		return &generic.RuleValidationError{Reason: "A rule type is required"}
	}
	if r.Title == "" {
		return &generic.RuleValidationError{Kind: r.Kind.String(), Reason: "A title is required"}
	}
	if r.Interval.Min == nil && r.Interval.Max == nil {
		return &generic.RuleValidationError{
			Kind:   r.Kind.String(),
			Reason: "At least one value must be set in interval to save the rule",
		}
	}
	return r.Kind.check(r.Interval)
}

// Validate evaluates the rule. It returns false, not an error, when the
// rule does not hold or cannot apply (missing dates, missing birth date).
// An error is returned only for integration faults such as an account
// profile that was not loaded.
func (r Rule) Validate(renewal generic.Period, user *User, dtstart, dtend, timeCreated time.Time) (bool, error) {
	return r.Kind.validate(r, Subject{
		Renewal:     renewal,
		User:        user,
		DTStart:     dtstart,
		DTEnd:       dtend,
		TimeCreated: timeCreated,
	})
}

// NonNumericError is the refusal for interval values that are not numbers.
func NonNumericError(k Kind) error {
	return &generic.RuleValidationError{
		Kind:   k.String(),
		Reason: fmt.Sprintf("Interval values must be numbers of %s", k.Unit()),
	}
}

func orderError(k Kind) error {
	return &generic.RuleValidationError{
		Kind:   k.String(),
		Reason: "Interval values must be set in a correct order",
	}
}

// =============================================================================
// KIND IMPLEMENTATIONS
// =============================================================================

func (entryDateKind) String() string       { return "entry_date" }
func (entryDateKind) Unit() string         { return "days" }
func (entryDateKind) check(Interval) error { return nil }

func (entryDateKind) validate(r Rule, s Subject) (bool, error) {
	if s.TimeCreated.IsZero() {
		return false, nil
	}
	return RenewalInterval(s.Renewal, r.Interval).Contains(s.TimeCreated), nil
}

func (requestPeriodKind) String() string       { return "request_period" }
func (requestPeriodKind) Unit() string         { return "days" }
func (requestPeriodKind) check(Interval) error { return nil }

func (requestPeriodKind) validate(r Rule, s Subject) (bool, error) {
	if s.DTStart.IsZero() || s.DTEnd.IsZero() {
		return false, nil
	}
	window := RenewalInterval(s.Renewal, r.Interval)
	return window.Encloses(generic.Period{Start: s.DTStart, End: s.DTEnd}), nil
}

func (seniorityKind) String() string { return "seniority" }
func (seniorityKind) Unit() string   { return "years" }

// Min is the larger back-offset from the seniority date.
func (k seniorityKind) check(in Interval) error {
	if in.min() < in.max() {
		return orderError(k)
	}
	return nil
}

func (seniorityKind) validate(r Rule, s Subject) (bool, error) {
	account, err := s.User.loadedAccount()
	if err != nil {
		return false, err
	}
	if s.DTStart.IsZero() || account.Seniority == nil {
		return false, nil
	}
	window := generic.Period{
		Start: generic.AddYears(*account.Seniority, -r.Interval.min()),
		End:   generic.AddYears(*account.Seniority, -r.Interval.max()),
	}
	return withinPersonalWindow(window, s), nil
}

func (ageKind) String() string { return "age" }
func (ageKind) Unit() string   { return "years" }

func (k ageKind) check(in Interval) error {
	if in.min() > in.max() {
		return orderError(k)
	}
	return nil
}

func (ageKind) validate(r Rule, s Subject) (bool, error) {
	account, err := s.User.loadedAccount()
	if err != nil {
		return false, err
	}
	if s.DTStart.IsZero() || account.BirthDate == nil {
		return false, nil
	}
	window := generic.Period{
		Start: generic.AddYears(*account.BirthDate, r.Interval.min()),
		End:   generic.AddYears(*account.BirthDate, r.Interval.max()),
	}
	return withinPersonalWindow(window, s), nil
}

// withinPersonalWindow requires dtstart >= window start and dtend <= window
// end. Without a dtend only the lower bound is checked.
func withinPersonalWindow(window generic.Period, s Subject) bool {
	if s.DTStart.Before(window.Start) {
		return false
	}
	return s.DTEnd.IsZero() || !s.DTEnd.After(window.End)
}
