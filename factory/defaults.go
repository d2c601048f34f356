package factory

import (
	"fmt"
	"time"

	"github.com/warp/absence-engine/absence"
)

// =============================================================================
// DEFAULT RIGHTS - Seed data for a French company
// =============================================================================

// Both renewable rights may be requested from 30 days before their renewal
// starts until 30 days after it ends, for dates inside the renewal.
const renewableRulesJSON = `[
	{"type": "entry_date", "title": "Request created around the renewal", "interval": {"min": 30, "max": 30}},
	{"type": "request_period", "title": "Dates inside the renewal", "interval": {"min": 0, "max": 0}}
]`

// PaidLeaveJSON is the statutory paid annual leave, renewed every May 1.
func PaidLeaveJSON() string {
	return fmt.Sprintf(`{
		"id": "paid-leave",
		"name": "Paid annual leave",
		"quantity": 25,
		"unit": "days",
		"renewal": {"start": {"month": 5, "day": 1}},
		"rules": %s
	}`, renewableRulesJSON)
}

// RTTJSON is the working-time reduction quota, renewed with paid leave.
func RTTJSON() string {
	return fmt.Sprintf(`{
		"id": "rtt",
		"name": "RTT",
		"quantity": 9,
		"unit": "days",
		"renewal": {"start": {"month": 5, "day": 1}},
		"rules": %s
	}`, renewableRulesJSON)
}

// MaternityJSON is granted by HR, never requested from an account. It
// has no renewal cycle, so the scheduler leaves it alone.
func MaternityJSON() string {
	return `{
		"id": "maternity",
		"name": "Maternity",
		"quantity": 80,
		"unit": "days",
		"hidden_from_accounts": true
	}`
}

// DefaultRights parses the seed rights and opens, for each cyclic one,
// the renewal periods a request made today can need.
func (f *RightFactory) DefaultRights(today time.Time) ([]*absence.Right, error) {
	var rights []*absence.Right
	for _, js := range []string{PaidLeaveJSON(), RTTJSON(), MaternityJSON()} {
		right, err := f.ParseRight(js)
		if err != nil {
			return nil, err
		}
		if _, err := right.OpenDueRenewals(today); err != nil {
			return nil, err
		}
		rights = append(rights, right)
	}
	return rights, nil
}
