/*
Package memory provides an in-memory store for tests and local runs.

It implements approval.Store plus the catalogue operations used by the
HTTP API. Every value is copied on the way in and on the way out, so
callers can never mutate stored state behind the store's lock.

RIGHT EDITS:
  UpdateRight runs a read-modify-write on one right under the write lock,
  so a rule added by an author and a renewal opened by the scheduler
  cannot overwrite each other.

TRANSITIONS:
  TransitionStep re-reads the request, checks the action and writes the
  new step status under the write lock. Two managers racing on the same
  step are serialized: the second sees a decided step and gets a
  TransitionError.
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/approval"
	"github.com/warp/absence-engine/generic"
	"github.com/warp/absence-engine/org"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	users       map[generic.UserID]*absence.User
	rights      map[generic.RightID]*absence.Right
	collections map[generic.CollectionID]*absence.Collection
	departments map[generic.DepartmentID]org.Department
	requests    map[generic.RequestID]*approval.Request
}

var _ approval.Store = (*Memory)(nil)

func New() *Memory {
	m := &Memory{}
	m.resetLocked()
	return m
}

func (m *Memory) resetLocked() {
	m.users = make(map[generic.UserID]*absence.User)
	m.rights = make(map[generic.RightID]*absence.Right)
	m.collections = make(map[generic.CollectionID]*absence.Collection)
	m.departments = make(map[generic.DepartmentID]org.Department)
	m.requests = make(map[generic.RequestID]*approval.Request)
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

// =============================================================================
// USERS & COLLECTIONS
// =============================================================================

func (m *Memory) SaveUser(_ context.Context, u *absence.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u.Clone()
	return nil
}

func (m *Memory) GetUser(_ context.Context, id generic.UserID) (*absence.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, generic.ErrUserNotFound)
	}
	return u.Clone(), nil
}

func (m *Memory) ListUsers(_ context.Context) ([]*absence.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*absence.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveCollection(_ context.Context, c *absence.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.Rights = append([]generic.RightID(nil), c.Rights...)
	m.collections[c.ID] = &cp
	return nil
}

func (m *Memory) GetCollection(_ context.Context, id generic.CollectionID) (*absence.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[id]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", id, generic.ErrCollectionNotFound)
	}
	cp := *c
	cp.Rights = append([]generic.RightID(nil), c.Rights...)
	return &cp, nil
}

// =============================================================================
// RIGHTS
// =============================================================================

func (m *Memory) SaveRight(_ context.Context, r *absence.Right) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rights[r.ID] = r.Clone()
	return nil
}

// UpdateRight applies fn to a copy of the stored right under the write
// lock. The copy replaces the stored right only when fn returns nil.
func (m *Memory) UpdateRight(_ context.Context, id generic.RightID, fn func(*absence.Right) error) (*absence.Right, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rights[id]
	if !ok {
		return nil, fmt.Errorf("right %s: %w", id, generic.ErrRightNotFound)
	}
	next := r.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	m.rights[id] = next
	return next.Clone(), nil
}

func (m *Memory) GetRight(_ context.Context, id generic.RightID) (*absence.Right, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rights[id]
	if !ok {
		return nil, fmt.Errorf("right %s: %w", id, generic.ErrRightNotFound)
	}
	return r.Clone(), nil
}

func (m *Memory) ListRights(_ context.Context) ([]*absence.Right, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*absence.Right, 0, len(m.rights))
	for _, r := range m.rights {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// DEPARTMENTS
// =============================================================================

func (m *Memory) SaveDepartment(_ context.Context, d org.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.Managers = append([]generic.UserID(nil), d.Managers...)
	m.departments[d.ID] = d
	return nil
}

func (m *Memory) ListDepartments(_ context.Context) ([]org.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]org.Department, 0, len(m.departments))
	for _, d := range m.departments {
		d.Managers = append([]generic.UserID(nil), d.Managers...)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Memory) SaveRequest(_ context.Context, req *approval.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.requests[req.ID]; exists {
		return fmt.Errorf("request %s already exists", req.ID)
	}
	m.requests[req.ID] = req.Clone()
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id generic.RequestID) (*approval.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, generic.ErrRequestNotFound)
	}
	return req.Clone(), nil
}

// ListRequestsByUser returns the user's requests, oldest first.
func (m *Memory) ListRequestsByUser(_ context.Context, user generic.UserID) ([]*approval.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*approval.Request
	for _, req := range m.requests {
		if req.User == user {
			out = append(out, req.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (m *Memory) ListPendingRequests(_ context.Context) ([]*approval.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*approval.Request
	for _, req := range m.requests {
		if req.Status() == approval.StatusPending {
			out = append(out, req.Clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (m *Memory) TransitionStep(_ context.Context, requestID generic.RequestID, stepID generic.StepID, actor generic.UserID, to approval.StepStatus, at time.Time) (*approval.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", requestID, generic.ErrRequestNotFound)
	}

	// Work on a copy so a refused transition leaves the stored value intact.
	next := req.Clone()
	if err := next.Transition(stepID, actor, to, at); err != nil {
		return nil, err
	}
	m.requests[requestID] = next
	return next.Clone(), nil
}

func sortByCreation(reqs []*approval.Request) {
	sort.Slice(reqs, func(i, j int) bool {
		if !reqs[i].TimeCreated.Equal(reqs[j].TimeCreated) {
			return reqs[i].TimeCreated.Before(reqs[j].TimeCreated)
		}
		return reqs[i].ID < reqs[j].ID
	})
}
