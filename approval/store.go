package approval

import (
	"context"
	"time"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/generic"
	"github.com/warp/absence-engine/org"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is what the service needs from persistence. Implementations live
// in store/memory and store/sqlite.
type Store interface {
	GetUser(ctx context.Context, id generic.UserID) (*absence.User, error)
	GetRight(ctx context.Context, id generic.RightID) (*absence.Right, error)
	GetCollection(ctx context.Context, id generic.CollectionID) (*absence.Collection, error)
	ListDepartments(ctx context.Context) ([]org.Department, error)

	// SaveRequest inserts a new request with all its steps. Steps are never
	// added or removed afterwards.
	SaveRequest(ctx context.Context, req *Request) error
	GetRequest(ctx context.Context, id generic.RequestID) (*Request, error)

	// ListPendingRequests returns the requests whose derived status is
	// pending.
	ListPendingRequests(ctx context.Context) ([]*Request, error)

	// TransitionStep validates the action with Request.CheckTransition and
	// applies it as an atomic compare-and-set: the step must still be
	// waiting and still be the cursor when the write happens. A lost race
	// returns a *generic.TransitionError and changes nothing. The updated
	// request is returned.
	TransitionStep(ctx context.Context, requestID generic.RequestID, stepID generic.StepID, actor generic.UserID, to StepStatus, at time.Time) (*Request, error)
}
