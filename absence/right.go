package absence

import (
	"fmt"
	"sort"
	"time"

	"github.com/warp/absence-engine/generic"
)

// =============================================================================
// RIGHT - A named leave quota with rules and renewals
// =============================================================================

// Right is an entitlement: Quantity days for each renewal period, offered
// only when every rule validates.
type Right struct {
	ID       generic.RightID
	Name     string
	Quantity generic.Amount
	Rules    []Rule

	// Renewals are kept sorted by start date.
	Renewals []generic.Period

	// Cycle, when set, lets the scheduler create the next renewal.
	Cycle *generic.AnnualCycle

	// HiddenFromAccounts keeps the right out of account requests; it is
	// granted through other channels (maternity, for instance).
	HiddenFromAccounts bool
}

// AddRule appends a rule after checking the save-time invariant.
// A refused rule leaves the right unchanged.
func (r *Right) AddRule(rule Rule) error {
	if err := rule.Check(); err != nil {
		return err
	}
	r.Rules = append(r.Rules, rule)
	return nil
}

// AddRenewal inserts a renewal period, keeping renewals ordered.
func (r *Right) AddRenewal(p generic.Period) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if r.hasRenewalStarting(p.Start) {
		return fmt.Errorf("renewal starting %s already exists: %w", p.Start.Format("2006-01-02"), generic.ErrInvalidPeriod)
	}
	r.Renewals = append(r.Renewals, p)
	sort.Slice(r.Renewals, func(i, j int) bool {
		return r.Renewals[i].Start.Before(r.Renewals[j].Start)
	})
	return nil
}

// RenewalFor returns the most recent renewal that started on or before
// date, or nil when every renewal starts later.
func (r *Right) RenewalFor(date time.Time) *generic.Period {
	var found *generic.Period
	for i := range r.Renewals {
		if r.Renewals[i].Start.After(date) {
			break
		}
		found = &r.Renewals[i]
	}
	return found
}

// LeadDays is the largest entry_date Min of the right: how many days
// before a renewal starts a request for it may already be created.
func (r *Right) LeadDays() int {
	lead := 0
	for _, rule := range r.Rules {
		if rule.Kind == EntryDate && rule.Interval.min() > lead {
			lead = rule.Interval.min()
		}
	}
	return lead
}

// OpenDueRenewals adds the cycle periods a request made today can need:
// the one covering today, and the next one once today is within LeadDays
// of its start. Periods already present are left alone. It returns the
// periods added, none for a right without a cycle.
func (r *Right) OpenDueRenewals(today time.Time) ([]generic.Period, error) {
	if r.Cycle == nil {
		return nil, nil
	}
	current := r.Cycle.PeriodFor(today)
	due := []generic.Period{current}
	if next := r.Cycle.Next(current); !today.Before(generic.AddDays(next.Start, -r.LeadDays())) {
		due = append(due, next)
	}

	var added []generic.Period
	for _, p := range due {
		if r.hasRenewalStarting(p.Start) {
			continue
		}
		if err := r.AddRenewal(p); err != nil {
			return added, err
		}
		added = append(added, p)
	}
	return added, nil
}

func (r *Right) hasRenewalStarting(start time.Time) bool {
	for _, existing := range r.Renewals {
		if existing.Start.Equal(start) {
			return true
		}
	}
	return false
}

// =============================================================================
// EVALUATION - AND of all rules against one renewal
// =============================================================================

// Evaluation explains the applicability of a right to one request.
type Evaluation struct {
	Right      generic.RightID
	Renewal    *generic.Period
	Applicable bool

	// Failed lists the rules that did not validate.
	Failed []Rule

	// Reason is set when the right was refused before any rule ran.
	Reason string
}

// Evaluate checks every rule of the right against the renewal relevant to
// the request. The renewal is looked up by dtstart, or by timeCreated when
// the request has no start date yet. Rules do not mutate the right, so
// repeated calls with the same inputs give the same result.
func (r *Right) Evaluate(user *User, dtstart, dtend, timeCreated time.Time) (Evaluation, error) {
	ev := Evaluation{Right: r.ID}

	if r.HiddenFromAccounts && user != nil && user.Account != nil {
		ev.Reason = "right is not active for accounts"
		return ev, nil
	}

	ref := dtstart
	if ref.IsZero() {
		ref = timeCreated
	}
	renewal := r.RenewalFor(ref)
	if renewal == nil {
		ev.Reason = "no renewal period covers the request"
		return ev, nil
	}
	window := *renewal
	ev.Renewal = &window

	for _, rule := range r.Rules {
		ok, err := rule.Validate(window, user, dtstart, dtend, timeCreated)
		if err != nil {
			return Evaluation{Right: r.ID}, fmt.Errorf("rule %q of right %s: %w", rule.Title, r.ID, err)
		}
		if !ok {
			ev.Failed = append(ev.Failed, rule)
		}
	}

	ev.Applicable = len(ev.Failed) == 0
	return ev, nil
}

// IsApplicable reports whether every rule of the right validates.
func (r *Right) IsApplicable(user *User, dtstart, dtend, timeCreated time.Time) (bool, error) {
	ev, err := r.Evaluate(user, dtstart, dtend, timeCreated)
	if err != nil {
		return false, err
	}
	return ev.Applicable, nil
}

// ApplicableRights evaluates the rights offered by the collection and
// returns the evaluations of those the request may use.
func ApplicableRights(collection Collection, rights []*Right, user *User, dtstart, dtend, timeCreated time.Time) ([]Evaluation, error) {
	var result []Evaluation
	for _, right := range rights {
		if !collection.Includes(right.ID) {
			continue
		}
		ev, err := right.Evaluate(user, dtstart, dtend, timeCreated)
		if err != nil {
			return nil, err
		}
		if ev.Applicable {
			result = append(result, ev)
		}
	}
	return result, nil
}

// Clone returns a copy that shares no slices or pointers with r.
func (r *Right) Clone() *Right {
	c := *r
	c.Rules = append([]Rule(nil), r.Rules...)
	c.Renewals = append([]generic.Period(nil), r.Renewals...)
	if r.Cycle != nil {
		cycle := *r.Cycle
		c.Cycle = &cycle
	}
	return &c
}
