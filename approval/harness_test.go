package approval_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/approval"
	"github.com/warp/absence-engine/generic"
	"github.com/warp/absence-engine/org"
	"github.com/warp/absence-engine/store/memory"
)

// =============================================================================
// TEST HARNESS - Approval tree fixture, built fresh for every test
// =============================================================================
//
//	d0 (1 manager)                 d1 (no managers, no users)
//	└── d5 (no managers)           └── d2 (1 manager)
//	    └── d4 (2 managers)
//	        ├── d3 (1 manager)
//	        ├── d6 (2 managers)
//	        └── d7 (no managers)
//
// Every department except d1 has one requesting user "u<n>".

type harness struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Memory
	service *approval.Service
	now     time.Time

	// requests created by createAll, keyed by department
	requests map[generic.DepartmentID]*approval.Request
}

func fixtureDepartments() []org.Department {
	return []org.Department{
		{ID: "d0", Name: "Company", Managers: []generic.UserID{"m0"}},
		{ID: "d5", Name: "Operations", Parent: "d0"},
		{ID: "d4", Name: "Engineering", Parent: "d5", Managers: []generic.UserID{"m4a", "m4b"}},
		{ID: "d3", Name: "Backend", Parent: "d4", Managers: []generic.UserID{"m3"}},
		{ID: "d6", Name: "Frontend", Parent: "d4", Managers: []generic.UserID{"m6a", "m6b"}},
		{ID: "d7", Name: "Interns", Parent: "d4"},
		{ID: "d1", Name: "Subsidiary"},
		{ID: "d2", Name: "Sales", Parent: "d1", Managers: []generic.UserID{"m2"}},
	}
}

func fixtureTree(t *testing.T) *org.Tree {
	t.Helper()
	tree, err := org.NewTree(fixtureDepartments())
	require.NoError(t, err)
	return tree
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("step-%d", n)
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		ctx:      context.Background(),
		store:    memory.New(),
		now:      time.Date(2025, time.June, 20, 10, 0, 0, 0, time.UTC),
		requests: make(map[generic.DepartmentID]*approval.Request),
	}
	h.service = approval.NewService(h.store,
		approval.WithClock(func() time.Time { return h.now }),
		approval.WithBuilder(&approval.Builder{NewID: sequentialIDs()}))

	for _, d := range fixtureDepartments() {
		require.NoError(t, h.store.SaveDepartment(h.ctx, d))
	}

	leave := &absence.Right{ID: "paid-leave", Name: "Paid annual leave", Quantity: generic.NewAmountFromInt(25, generic.UnitDays)}
	require.NoError(t, leave.AddRule(absence.Rule{Title: "entry", Kind: absence.EntryDate, Interval: absence.NewInterval(30, 30)}))
	require.NoError(t, leave.AddRule(absence.Rule{Title: "dates", Kind: absence.RequestPeriod, Interval: absence.NewInterval(0, 0)}))
	require.NoError(t, leave.AddRenewal(generic.AnnualCycle{Month: time.May, Day: 1}.PeriodFor(h.now)))
	require.NoError(t, h.store.SaveRight(h.ctx, leave))

	for _, d := range fixtureDepartments() {
		if d.ID == "d1" {
			continue
		}
		h.addUser(userOf(d.ID), d.ID)
	}
	return h
}

func userOf(dept generic.DepartmentID) generic.UserID {
	return generic.UserID("u" + string(dept)[1:])
}

func (h *harness) addUser(id generic.UserID, dept generic.DepartmentID) {
	h.t.Helper()
	require.NoError(h.t, h.store.SaveUser(h.ctx, &absence.User{
		ID:         id,
		Name:       string(id),
		Department: dept,
		Account:    &absence.Account{},
	}))
}

// create submits a July 2025 paid leave request for the user.
func (h *harness) create(user generic.UserID) (*approval.Request, error) {
	return h.service.CreateRequest(h.ctx, approval.NewRequest{
		User:    user,
		Right:   "paid-leave",
		DTStart: time.Date(2025, time.July, 7, 9, 0, 0, 0, time.UTC),
		DTEnd:   time.Date(2025, time.July, 11, 18, 0, 0, 0, time.UTC),
	})
}

// createAll submits one request per user of the fixture.
func (h *harness) createAll() {
	h.t.Helper()
	users, err := h.store.ListUsers(h.ctx)
	require.NoError(h.t, err)
	for _, u := range users {
		req, err := h.create(u.ID)
		require.NoError(h.t, err)
		h.requests[u.Department] = req
		h.now = h.now.Add(time.Minute)
	}
}

func (h *harness) waiting(manager generic.UserID) []generic.DepartmentID {
	h.t.Helper()
	reqs, err := h.service.WaitingRequestsFor(h.ctx, manager)
	require.NoError(h.t, err)
	var out []generic.DepartmentID
	for _, r := range reqs {
		out = append(out, r.Department)
	}
	return out
}

func (h *harness) reload(id generic.RequestID) *approval.Request {
	h.t.Helper()
	req, err := h.store.GetRequest(h.ctx, id)
	require.NoError(h.t, err)
	return req
}

func approverCounts(steps []approval.Step) []int {
	counts := make([]int, len(steps))
	for i, s := range steps {
		counts[i] = len(s.Approvers)
	}
	return counts
}
