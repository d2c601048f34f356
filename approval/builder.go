package approval

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/warp/absence-engine/generic"
	"github.com/warp/absence-engine/org"
)

// =============================================================================
// BUILDER - Steps from the department tree
// =============================================================================

// Builder turns a requester's department into an ordered step sequence.
type Builder struct {
	// NewID generates step ids. Defaults to random UUIDs.
	NewID func() string
}

// NewBuilder returns a builder that generates UUID step ids.
func NewBuilder() *Builder {
	return &Builder{NewID: uuid.NewString}
}

// Build walks from departmentID up to the root and emits one waiting step
// per level that has managers. Levels without managers are skipped, and a
// department appears at most once. An empty result means the request
// needs no approval.
func (b *Builder) Build(tree *org.Tree, departmentID generic.DepartmentID) ([]Step, error) {
	chain, err := tree.Ancestors(departmentID)
	if err != nil {
		return nil, fmt.Errorf("build approval steps: %w", err)
	}

	newID := b.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	seen := make(map[generic.DepartmentID]bool, len(chain))
	var steps []Step
	for _, level := range chain {
		if seen[level.ID] {
			continue
		}
		seen[level.ID] = true

		managers := uniqueSorted(tree.ManagersAt(level.ID))
		if len(managers) == 0 {
			continue
		}
		steps = append(steps, Step{
			ID:         generic.StepID(newID()),
			Department: level.ID,
			Approvers:  managers,
			Status:     StepWaiting,
		})
	}
	return steps, nil
}

func uniqueSorted(ids []generic.UserID) []generic.UserID {
	if len(ids) == 0 {
		return nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
