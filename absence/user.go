package absence

import (
	"time"

	"github.com/warp/absence-engine/generic"
)

// =============================================================================
// USER & ACCOUNT - The requester
// =============================================================================

// User is a person of the organization. Account is nil when the account
// profile was not loaded with the user (or the user has no account role).
type User struct {
	ID         generic.UserID
	Name       string
	Email      string
	Department generic.DepartmentID
	Account    *Account
}

// Account is the profile a user needs to request absences.
type Account struct {
	// BirthDate is read by age rules.
	BirthDate *time.Time

	// Seniority is the anticipated retirement date, read by seniority rules.
	Seniority *time.Time

	// Collection lists the rights this account may request.
	Collection generic.CollectionID
}

// Collection groups the rights offered to a population of accounts.
type Collection struct {
	ID     generic.CollectionID
	Name   string
	Rights []generic.RightID
}

// Includes reports whether the collection offers the right.
func (c Collection) Includes(id generic.RightID) bool {
	for _, r := range c.Rights {
		if r == id {
			return true
		}
	}
	return false
}

func (u *User) loadedAccount() (*Account, error) {
	if u == nil || u.Account == nil {
		var id generic.UserID
		if u != nil {
			id = u.ID
		}
		return nil, &generic.PrerequisiteError{UserID: id, Field: "account"}
	}
	return u.Account, nil
}

// Clone returns a copy that shares no pointers with u.
func (u *User) Clone() *User {
	c := *u
	if u.Account != nil {
		a := *u.Account
		if a.BirthDate != nil {
			d := *a.BirthDate
			a.BirthDate = &d
		}
		if a.Seniority != nil {
			d := *a.Seniority
			a.Seniority = &d
		}
		c.Account = &a
	}
	return &c
}
