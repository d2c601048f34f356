package approval_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/absence-engine/approval"
	"github.com/warp/absence-engine/generic"
)

var decidedAt = time.Date(2025, time.June, 21, 9, 0, 0, 0, time.UTC)

// threeSteps mirrors the d3 workflow: m3, then m4a/m4b, then m0.
func threeSteps() *approval.Request {
	return &approval.Request{
		ID: "r-1",
		Steps: []approval.Step{
			{ID: "s1", Department: "d3", Approvers: []generic.UserID{"m3"}, Status: approval.StepWaiting},
			{ID: "s2", Department: "d4", Approvers: []generic.UserID{"m4a", "m4b"}, Status: approval.StepWaiting},
			{ID: "s3", Department: "d0", Approvers: []generic.UserID{"m0"}, Status: approval.StepWaiting},
		},
	}
}

func TestStatus_Derived(t *testing.T) {
	tests := []struct {
		name     string
		statuses []approval.StepStatus
		want     approval.Status
		cursor   int
	}{
		{"no steps", nil, approval.StatusGranted, -1},
		{"all waiting", []approval.StepStatus{approval.StepWaiting, approval.StepWaiting}, approval.StatusPending, 0},
		{"first accepted", []approval.StepStatus{approval.StepAccepted, approval.StepWaiting}, approval.StatusPending, 1},
		{"all accepted", []approval.StepStatus{approval.StepAccepted, approval.StepAccepted}, approval.StatusGranted, -1},
		{"rejected first", []approval.StepStatus{approval.StepRejected, approval.StepWaiting}, approval.StatusRejected, -1},
		{"rejected later", []approval.StepStatus{approval.StepAccepted, approval.StepRejected, approval.StepWaiting}, approval.StatusRejected, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &approval.Request{}
			for i, s := range tt.statuses {
				req.Steps = append(req.Steps, approval.Step{ID: generic.StepID(strconv.Itoa(i)), Status: s})
			}
			assert.Equal(t, tt.want, req.Status())
			assert.Equal(t, tt.cursor, req.Cursor())
		})
	}
}

func TestTransition_InOrder(t *testing.T) {
	req := threeSteps()

	require.NoError(t, req.Transition("s1", "m3", approval.StepAccepted, decidedAt))
	assert.Equal(t, 1, req.Cursor())
	assert.Equal(t, generic.UserID("m3"), req.Steps[0].DecidedBy)
	assert.Equal(t, decidedAt, req.Steps[0].DecidedAt)

	require.NoError(t, req.Transition("s2", "m4b", approval.StepAccepted, decidedAt))
	require.NoError(t, req.Transition("s3", "m0", approval.StepAccepted, decidedAt))

	assert.Equal(t, approval.StatusGranted, req.Status())
	assert.Equal(t, -1, req.Cursor())
}

func TestTransition_Refusals(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *approval.Request)
		step  generic.StepID
		actor generic.UserID
		to    approval.StepStatus
	}{
		{"later step first", nil, "s2", "m4a", approval.StepAccepted},
		{"not an approver", nil, "s1", "m4a", approval.StepAccepted},
		{"unknown step", nil, "nope", "m3", approval.StepAccepted},
		{"back to waiting", nil, "s1", "m3", approval.StepWaiting},
		{
			name:  "already accepted",
			setup: func(r *approval.Request) { r.Steps[0].Status = approval.StepAccepted },
			step:  "s1", actor: "m3", to: approval.StepRejected,
		},
		{
			name:  "request rejected",
			setup: func(r *approval.Request) { r.Steps[0].Status = approval.StepRejected },
			step:  "s2", actor: "m4a", to: approval.StepAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := threeSteps()
			if tt.setup != nil {
				tt.setup(req)
			}
			before := req.Clone()

			err := req.Transition(tt.step, tt.actor, tt.to, decidedAt)

			require.ErrorIs(t, err, generic.ErrInvalidTransition)
			var terr *generic.TransitionError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, generic.RequestID("r-1"), terr.RequestID)
			assert.Equal(t, before, req, "state unchanged")
		})
	}
}

func TestTransition_RejectShortCircuits(t *testing.T) {
	req := threeSteps()

	require.NoError(t, req.Transition("s1", "m3", approval.StepRejected, decidedAt))

	assert.Equal(t, approval.StatusRejected, req.Status())
	assert.Equal(t, approval.StepWaiting, req.Steps[1].Status, "later steps are never evaluated")
	assert.False(t, req.WaitingFor("m4a"))
}

func TestWaitingFor_OnlyCurrentApprovers(t *testing.T) {
	req := threeSteps()

	assert.True(t, req.WaitingFor("m3"))
	assert.False(t, req.WaitingFor("m4a"))
	assert.False(t, req.WaitingFor("m0"))

	require.NoError(t, req.Transition("s1", "m3", approval.StepAccepted, decidedAt))

	assert.False(t, req.WaitingFor("m3"))
	assert.True(t, req.WaitingFor("m4a"))
	assert.True(t, req.WaitingFor("m4b"))
}

func TestClone_Independent(t *testing.T) {
	req := threeSteps()
	cp := req.Clone()

	cp.Steps[0].Status = approval.StepAccepted
	cp.Steps[1].Approvers[0] = "intruder"

	assert.Equal(t, approval.StepWaiting, req.Steps[0].Status)
	assert.Equal(t, generic.UserID("m4a"), req.Steps[1].Approvers[0])
}
