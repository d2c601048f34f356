/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with an
	organization, rights and requests that demonstrate specific features.

AVAILABLE SCENARIOS:

	approval-tree:  Eight departments, one pending request per employee
	eligibility:    Age and seniority rules evaluated for three profiles

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create rights via factory
 3. Create departments, collections and users
 4. Submit requests through the approval service

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "approval-tree"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to the loaders map

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handlers the scenarios feed
  - factory/defaults.go: Default right definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/approval"
	"github.com/warp/absence-engine/generic"
	"github.com/warp/absence-engine/org"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "approval-tree",
		Name:        "Approval Tree",
		Description: "Eight departments over two roots; every employee has a pending paid leave request",
	},
	{
		ID:          "eligibility",
		Name:        "Eligibility Rules",
		Description: "End-of-career and young-worker rights evaluated for three account profiles",
	},
}

func (h *Handler) loaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"approval-tree": h.loadApprovalTreeScenario,
		"eligibility":   h.loadEligibilityScenario,
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	load, ok := h.loaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	if err := load(ctx); err != nil {
		h.logger.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	h.logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// ResetDatabase empties every table.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// APPROVAL TREE
// =============================================================================

// approvalTreeDepartments is a two-root organization. Levels without
// managers (operations, support, foundation) are skipped by the workflow.
func approvalTreeDepartments() []org.Department {
	return []org.Department{
		{ID: "direction", Name: "Direction", Managers: []generic.UserID{"ceo"}},
		{ID: "operations", Name: "Operations", Parent: "direction"},
		{ID: "engineering", Name: "Engineering", Parent: "operations", Managers: []generic.UserID{"cto", "vp-eng"}},
		{ID: "platform", Name: "Platform", Parent: "engineering", Managers: []generic.UserID{"platform-lead"}},
		{ID: "product", Name: "Product", Parent: "engineering", Managers: []generic.UserID{"product-lead", "design-lead"}},
		{ID: "support", Name: "Support", Parent: "engineering"},
		{ID: "foundation", Name: "Foundation"},
		{ID: "outreach", Name: "Outreach", Parent: "foundation", Managers: []generic.UserID{"outreach-lead"}},
	}
}

func (h *Handler) loadApprovalTreeScenario(ctx context.Context) error {
	rights, err := h.seedDefaultRights(ctx)
	if err != nil {
		return err
	}

	staff := &absence.Collection{ID: "staff", Name: "Staff", Rights: []generic.RightID{"paid-leave", "rtt"}}
	if err := h.Store.SaveCollection(ctx, staff); err != nil {
		return err
	}

	for _, d := range approvalTreeDepartments() {
		if err := h.Store.SaveDepartment(ctx, d); err != nil {
			return err
		}
		if d.ID == "foundation" {
			continue
		}
		employee := &absence.User{
			ID:         generic.UserID(string(d.ID) + "-employee"),
			Name:       d.Name + " employee",
			Department: d.ID,
			Account:    &absence.Account{Collection: staff.ID},
		}
		if err := h.Store.SaveUser(ctx, employee); err != nil {
			return err
		}
	}

	paidLeave := rights["paid-leave"]
	dtstart, dtend, err := h.sampleDates(paidLeave)
	if err != nil {
		return err
	}
	for _, d := range approvalTreeDepartments() {
		if d.ID == "foundation" {
			continue
		}
		if _, err := h.Service.CreateRequest(ctx, approval.NewRequest{
			User:    generic.UserID(string(d.ID) + "-employee"),
			Right:   paidLeave.ID,
			DTStart: dtstart,
			DTEnd:   dtend,
		}); err != nil {
			return fmt.Errorf("request for %s: %w", d.ID, err)
		}
	}
	return nil
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

const endOfCareerJSON = `{
	"id": "end-of-career",
	"name": "End of career leave",
	"quantity": 10,
	"unit": "days",
	"renewal": {"start": {"month": 1, "day": 1}},
	"rules": [
		{"type": "seniority", "title": "Within five years of retirement", "interval": {"min": 5, "max": 0}}
	]
}`

const youngWorkerJSON = `{
	"id": "young-worker",
	"name": "Young worker training leave",
	"quantity": 6,
	"unit": "days",
	"renewal": {"start": {"month": 1, "day": 1}},
	"rules": [
		{"type": "age", "title": "Aged 18 to 26", "interval": {"min": 18, "max": 26}}
	]
}`

func (h *Handler) loadEligibilityScenario(ctx context.Context) error {
	if _, err := h.seedDefaultRights(ctx); err != nil {
		return err
	}

	all := &absence.Collection{ID: "everyone", Name: "Everyone", Rights: []generic.RightID{"paid-leave", "rtt"}}
	for _, js := range []string{endOfCareerJSON, youngWorkerJSON} {
		right, err := h.RightFactory.ParseRight(js)
		if err != nil {
			return err
		}
		if _, err := right.OpenDueRenewals(h.now()); err != nil {
			return err
		}
		if err := h.Store.SaveRight(ctx, right); err != nil {
			return err
		}
		all.Rights = append(all.Rights, right.ID)
	}
	if err := h.Store.SaveCollection(ctx, all); err != nil {
		return err
	}

	if err := h.Store.SaveDepartment(ctx, org.Department{ID: "hq", Name: "Headquarters", Managers: []generic.UserID{"hr-lead"}}); err != nil {
		return err
	}

	today := generic.StartOfDay(h.now())
	retiring := generic.AddYears(today, 3)
	veteranBirth := generic.AddYears(today, -60)
	juniorBirth := generic.AddYears(today, -22)
	midBirth := generic.AddYears(today, -40)
	midRetirement := generic.AddYears(today, 24)

	users := []*absence.User{
		{ID: "veteran", Name: "Veteran", Department: "hq", Account: &absence.Account{BirthDate: &veteranBirth, Seniority: &retiring, Collection: all.ID}},
		{ID: "junior", Name: "Junior", Department: "hq", Account: &absence.Account{BirthDate: &juniorBirth, Collection: all.ID}},
		{ID: "mid-career", Name: "Mid-career", Department: "hq", Account: &absence.Account{BirthDate: &midBirth, Seniority: &midRetirement, Collection: all.ID}},
	}
	for _, u := range users {
		if err := h.Store.SaveUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// seedDefaultRights saves the default rights with their due renewals and
// returns them by id.
func (h *Handler) seedDefaultRights(ctx context.Context) (map[generic.RightID]*absence.Right, error) {
	rights, err := h.RightFactory.DefaultRights(h.now())
	if err != nil {
		return nil, err
	}
	byID := make(map[generic.RightID]*absence.Right, len(rights))
	for _, right := range rights {
		if err := h.Store.SaveRight(ctx, right); err != nil {
			return nil, err
		}
		byID[right.ID] = right
	}
	return byID, nil
}

// sampleDates returns a five-day window well inside the renewal covering
// today, so the request_period rule holds whatever the current date.
func (h *Handler) sampleDates(right *absence.Right) (dtstart, dtend time.Time, err error) {
	renewal := right.RenewalFor(h.now())
	if renewal == nil {
		return dtstart, dtend, fmt.Errorf("right %s has no renewal covering today", right.ID)
	}
	dtstart = generic.AddDays(generic.StartOfDay(renewal.Start), 90)
	dtend = generic.EndOfDay(generic.AddDays(dtstart, 4))
	return dtstart, dtend, nil
}
