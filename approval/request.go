/*
Package approval builds and drives the manager sign-off of absence requests.

WORKFLOW:
  A request carries an ordered list of steps, one per department level
  that has managers, from the requester's own department up to the root.
  Steps are decided strictly in order: only the earliest waiting step can
  be accepted or rejected, and only by one of its approvers.

DERIVED STATE:
  The request status and its cursor (the current step) are recomputed
  from the steps on every call and never stored separately:

    pending   some step is waiting and none is rejected
    rejected  some step is rejected; the steps after it stay waiting
    granted   every step is accepted (or there are no steps)

CONCURRENCY:
  Request values are plain data. Stores serialize transitions with a
  compare-and-set on the step status so two managers acting on the same
  step cannot both win.

SEE ALSO:
  - builder.go: Step sequence from the department tree
  - service.go: Create, accept, reject and waiting lists over a Store
*/
package approval

import (
	"fmt"
	"time"

	"github.com/warp/absence-engine/generic"
)

// =============================================================================
// STATUSES
// =============================================================================

// StepStatus is the state of one approval step.
type StepStatus string

const (
	StepWaiting  StepStatus = "waiting"
	StepAccepted StepStatus = "accepted"
	StepRejected StepStatus = "rejected"
)

// IsTerminal reports whether the step was decided.
func (s StepStatus) IsTerminal() bool {
	return s == StepAccepted || s == StepRejected
}

// Status is the derived state of a request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusGranted  Status = "granted"
	StatusRejected Status = "rejected"
)

// =============================================================================
// STEP & REQUEST
// =============================================================================

// Step is one stage of sign-off, tied to one department level.
type Step struct {
	ID         generic.StepID
	Department generic.DepartmentID
	Approvers  []generic.UserID
	Status     StepStatus

	// Set when the step leaves the waiting state.
	DecidedBy generic.UserID
	DecidedAt time.Time
}

// HasApprover reports whether manager belongs to the step's approver set.
func (s Step) HasApprover(manager generic.UserID) bool {
	for _, a := range s.Approvers {
		if a == manager {
			return true
		}
	}
	return false
}

// Request is an absence request together with its workflow.
type Request struct {
	ID          generic.RequestID
	User        generic.UserID
	Right       generic.RightID
	Department  generic.DepartmentID
	DTStart     time.Time
	DTEnd       time.Time
	TimeCreated time.Time
	Steps       []Step
}

// Clone returns a deep copy, so stores never share step slices with callers.
func (r *Request) Clone() *Request {
	c := *r
	c.Steps = make([]Step, len(r.Steps))
	for i, s := range r.Steps {
		s.Approvers = append([]generic.UserID(nil), s.Approvers...)
		c.Steps[i] = s
	}
	return &c
}

// Status derives the request state from its steps.
func (r *Request) Status() Status {
	waiting := false
	for _, s := range r.Steps {
		switch s.Status {
		case StepRejected:
			return StatusRejected
		case StepWaiting:
			waiting = true
		}
	}
	if waiting {
		return StatusPending
	}
	return StatusGranted
}

// Cursor returns the index of the earliest waiting step, or -1 when the
// request is no longer pending.
func (r *Request) Cursor() int {
	if r.Status() != StatusPending {
		return -1
	}
	for i, s := range r.Steps {
		if s.Status == StepWaiting {
			return i
		}
	}
	return -1
}

// Current returns the step at the cursor.
func (r *Request) Current() (Step, bool) {
	i := r.Cursor()
	if i < 0 {
		return Step{}, false
	}
	return r.Steps[i], true
}

// WaitingFor reports whether the request sits in the manager's waiting
// list: it is pending and its current step lists the manager.
func (r *Request) WaitingFor(manager generic.UserID) bool {
	step, ok := r.Current()
	return ok && step.HasApprover(manager)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// CheckTransition verifies that actor may decide stepID now. It does not
// modify the request.
func (r *Request) CheckTransition(stepID generic.StepID, actor generic.UserID) error {
	refuse := func(reason string) error {
		return &generic.TransitionError{RequestID: r.ID, StepID: stepID, Actor: actor, Reason: reason}
	}

	idx := -1
	for i, s := range r.Steps {
		if s.ID == stepID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return refuse("unknown step")
	}

	step := r.Steps[idx]
	if step.Status.IsTerminal() {
		return refuse(fmt.Sprintf("step already %s", step.Status))
	}
	if status := r.Status(); status != StatusPending {
		return refuse(fmt.Sprintf("request is %s", status))
	}
	if idx != r.Cursor() {
		return refuse("an earlier step is still waiting")
	}
	if !step.HasApprover(actor) {
		return refuse("not an approver of this step")
	}
	return nil
}

// Transition moves stepID from waiting to the terminal status to. On
// error the request is left unchanged.
func (r *Request) Transition(stepID generic.StepID, actor generic.UserID, to StepStatus, at time.Time) error {
	if !to.IsTerminal() {
		return &generic.TransitionError{RequestID: r.ID, StepID: stepID, Actor: actor, Reason: fmt.Sprintf("cannot move a step to %q", to)}
	}
	if err := r.CheckTransition(stepID, actor); err != nil {
		return err
	}

	i := r.Cursor()
	r.Steps[i].Status = to
	r.Steps[i].DecidedBy = actor
	r.Steps[i].DecidedAt = at
	return nil
}
