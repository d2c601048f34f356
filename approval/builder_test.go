package approval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/absence-engine/approval"
	"github.com/warp/absence-engine/generic"
	"github.com/warp/absence-engine/org"
)

func TestBuild_ApproverCountsPerDepartment(t *testing.T) {
	tree := fixtureTree(t)
	builder := &approval.Builder{NewID: sequentialIDs()}

	tests := []struct {
		dept generic.DepartmentID
		want []int
	}{
		{"d0", []int{1}},
		{"d1", []int{}},
		{"d2", []int{1}},
		{"d3", []int{1, 2, 1}},
		{"d4", []int{2, 1}},
		{"d5", []int{1}},
		{"d6", []int{2, 2, 1}},
		{"d7", []int{2, 1}},
	}

	for _, tt := range tests {
		t.Run(string(tt.dept), func(t *testing.T) {
			steps, err := builder.Build(tree, tt.dept)
			require.NoError(t, err)
			assert.Equal(t, tt.want, approverCounts(steps))
		})
	}
}

func TestBuild_LeafToRootSkippingEmptyLevels(t *testing.T) {
	// GIVEN: d3 under d4, under d5 (no managers), under d0
	tree := fixtureTree(t)

	// WHEN: Building the steps for d3
	steps, err := approval.NewBuilder().Build(tree, "d3")

	// THEN: d3 first, then d4, then d0; d5 leaves no placeholder
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, generic.DepartmentID("d3"), steps[0].Department)
	assert.Equal(t, generic.DepartmentID("d4"), steps[1].Department)
	assert.Equal(t, generic.DepartmentID("d0"), steps[2].Department)
	assert.Equal(t, []generic.UserID{"m4a", "m4b"}, steps[1].Approvers)

	seen := map[generic.StepID]bool{}
	for _, s := range steps {
		assert.Equal(t, approval.StepWaiting, s.Status)
		assert.NotEmpty(t, s.ID)
		assert.False(t, seen[s.ID], "step ids are unique")
		seen[s.ID] = true
	}
}

func TestBuild_NeverEmptyWhenAnAncestorHasManagers(t *testing.T) {
	tree := fixtureTree(t)
	builder := approval.NewBuilder()

	for _, d := range tree.Departments() {
		chain, err := tree.Ancestors(d.ID)
		require.NoError(t, err)

		managed := false
		for _, level := range chain {
			if len(level.Managers) > 0 {
				managed = true
			}
		}

		steps, err := builder.Build(tree, d.ID)
		require.NoError(t, err)
		assert.Equal(t, managed, len(steps) > 0, "department %s", d.ID)
	}
}

func TestBuild_DeduplicatesApprovers(t *testing.T) {
	tree, err := org.NewTree([]org.Department{
		{ID: "team", Managers: []generic.UserID{"m2", "m1", "m2"}},
	})
	require.NoError(t, err)

	steps, err := approval.NewBuilder().Build(tree, "team")

	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, []generic.UserID{"m1", "m2"}, steps[0].Approvers)
}

func TestBuild_UnknownDepartment(t *testing.T) {
	_, err := approval.NewBuilder().Build(fixtureTree(t), "d99")

	assert.ErrorIs(t, err, generic.ErrDepartmentNotFound)
}
