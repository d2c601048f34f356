/*
handlers.go - HTTP API handlers for the absence engine

PURPOSE:
  Exposes rights, the organization and the approval workflow via REST.
  Handles HTTP request/response, JSON serialization, and delegates to
  the absence, org and approval packages.

ENDPOINTS:
  Rights:
    GET    /api/rights                     List all rights
    POST   /api/rights                     Create right from JSON
    GET    /api/rights/{id}                Get right details
    POST   /api/rights/{id}/rules          Attach a rule (400 with reason if refused)
    POST   /api/rights/{id}/renewals       Add a renewal period

  Organization:
    GET    /api/departments                List departments
    POST   /api/departments                Create or replace a department
    GET    /api/departments/{id}/ancestors Department then its parents up to the root
    GET    /api/collections/{id}           Get a collection
    POST   /api/collections                Create or replace a collection

  Users:
    GET    /api/users                      List users
    POST   /api/users                      Create or replace a user
    GET    /api/users/{id}                 Get user details
    GET    /api/users/{id}/rights          Rights applicable to ?dtstart=&dtend=
    GET    /api/users/{id}/requests        Requests created by the user
    POST   /api/users/{id}/requests        Submit an absence request

  Workflow:
    GET    /api/requests/{id}                               Request with its steps
    GET    /api/managers/{id}/waitingrequests               Requests waiting for the manager
    PUT    /api/managers/{id}/waitingrequests/{requestID}   Accept or reject the current step

  Scenarios:
    GET    /api/scenarios                  List demo scenarios
    POST   /api/scenarios/load             Load a demo scenario
    POST   /api/scenarios/reset            Empty every table

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input, refused rule, right not applicable
  - 404: Unknown user, right, department, collection or request
  - 409: Refused workflow action
  - 500: Internal errors

SECURITY NOTE:
  There is no authentication. The acting manager is read from the URL.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/approval"
	"github.com/warp/absence-engine/factory"
	"github.com/warp/absence-engine/generic"
	"github.com/warp/absence-engine/metrics"
	"github.com/warp/absence-engine/org"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the API needs on top of the workflow store.
// Both store/memory and store/sqlite satisfy it.
type Store interface {
	approval.Store
	SaveUser(ctx context.Context, u *absence.User) error
	ListUsers(ctx context.Context) ([]*absence.User, error)
	SaveRight(ctx context.Context, r *absence.Right) error
	UpdateRight(ctx context.Context, id generic.RightID, fn func(*absence.Right) error) (*absence.Right, error)
	ListRights(ctx context.Context) ([]*absence.Right, error)
	SaveCollection(ctx context.Context, c *absence.Collection) error
	SaveDepartment(ctx context.Context, d org.Department) error
	ListRequestsByUser(ctx context.Context, user generic.UserID) ([]*approval.Request, error)
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        Store
	Service      *approval.Service
	RightFactory *factory.RightFactory

	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(l *zap.Logger) Option        { return func(h *Handler) { h.logger = l } }
func WithMetrics(m *metrics.Recorder) Option { return func(h *Handler) { h.metrics = m } }

// WithClock overrides the time used for new requests and scenario seeding.
func WithClock(now func() time.Time) Option { return func(h *Handler) { h.now = now } }

// NewHandler creates a handler and the approval service over store.
func NewHandler(store Store, opts ...Option) *Handler {
	h := &Handler{
		Store:        store,
		RightFactory: factory.NewRightFactory(),
		logger:       zap.NewNop(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	h.Service = approval.NewService(store,
		approval.WithLogger(h.logger),
		approval.WithMetrics(h.metrics),
		approval.WithClock(h.now),
	)
	return h
}

// =============================================================================
// RIGHT HANDLERS
// =============================================================================

// ListRights returns all rights.
func (h *Handler) ListRights(w http.ResponseWriter, r *http.Request) {
	rights, err := h.Store.ListRights(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rights", err)
		return
	}

	dtos := make([]factory.RightJSON, len(rights))
	for i, right := range rights {
		dtos[i] = h.RightFactory.ToJSON(right)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRight returns a single right.
func (h *Handler) GetRight(w http.ResponseWriter, r *http.Request) {
	right, err := h.Store.GetRight(r.Context(), generic.RightID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get right", err)
		return
	}
	writeJSON(w, http.StatusOK, h.RightFactory.ToJSON(right))
}

// CreateRight creates a right from its JSON definition. A right with a
// yearly cycle and no explicit renewal gets the periods a request made
// today can need.
func (h *Handler) CreateRight(w http.ResponseWriter, r *http.Request) {
	var req factory.RightJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	right, err := h.RightFactory.FromJSON(req)
	if err != nil {
		writeRuleError(w, "Invalid right", err)
		return
	}
	if len(right.Renewals) == 0 {
		if _, err := right.OpenDueRenewals(h.now()); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to open renewal", err)
			return
		}
	}

	if err := h.Store.SaveRight(r.Context(), right); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save right", err)
		return
	}

	h.logger.Info("right saved", zap.String("right", string(right.ID)), zap.Int("rules", len(right.Rules)))
	writeJSON(w, http.StatusCreated, h.RightFactory.ToJSON(right))
}

// AddRule attaches a rule to a right. A refused rule leaves the stored
// right unchanged and its reason is returned to the author.
func (h *Handler) AddRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req factory.RuleJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rule, err := h.RightFactory.FromRuleJSON(req)
	if err != nil {
		writeRuleError(w, "Rule refused", err)
		return
	}

	right, err := h.Store.UpdateRight(ctx, generic.RightID(chi.URLParam(r, "id")), func(right *absence.Right) error {
		return right.AddRule(rule)
	})
	switch {
	case errors.Is(err, generic.ErrInvalidRule):
		writeRuleError(w, "Rule refused", err)
		return
	case err != nil:
		writeDomainError(w, "Failed to update right", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.RightFactory.ToJSON(right))
}

// AddRenewal adds a renewal period to a right.
func (h *Handler) AddRenewal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req factory.PeriodJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := h.RightFactory.ParsePeriod(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid renewal period", err)
		return
	}

	right, err := h.Store.UpdateRight(ctx, generic.RightID(chi.URLParam(r, "id")), func(right *absence.Right) error {
		return right.AddRenewal(period)
	})
	if err != nil {
		writeDomainError(w, "Renewal refused", err)
		return
	}

	h.metrics.RenewalCreated(string(right.ID))
	writeJSON(w, http.StatusCreated, h.RightFactory.ToJSON(right))
}

// =============================================================================
// ORGANIZATION HANDLERS
// =============================================================================

// ListDepartments returns all departments.
func (h *Handler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	tree, err := h.tree(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to load departments", err)
		return
	}

	depts := tree.Departments()
	dtos := make([]DepartmentDTO, len(depts))
	for i, d := range depts {
		dtos[i] = toDepartmentDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateDepartment creates or replaces a department. The resulting
// hierarchy must still resolve every parent and contain no loop.
func (h *Handler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req DepartmentDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	dept := org.Department{
		ID:       generic.DepartmentID(req.ID),
		Name:     req.Name,
		Parent:   generic.DepartmentID(req.ParentID),
		Managers: userIDs(req.Managers),
	}

	existing, err := h.Store.ListDepartments(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load departments", err)
		return
	}
	candidate := []org.Department{dept}
	for _, d := range existing {
		if d.ID != dept.ID {
			candidate = append(candidate, d)
		}
	}
	if _, err := org.NewTree(candidate); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid department hierarchy", err)
		return
	}

	if err := h.Store.SaveDepartment(ctx, dept); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save department", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDepartmentDTO(dept))
}

// GetAncestors returns the department followed by its parents up to the
// root.
func (h *Handler) GetAncestors(w http.ResponseWriter, r *http.Request) {
	tree, err := h.tree(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to load departments", err)
		return
	}

	chain, err := tree.Ancestors(generic.DepartmentID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to walk hierarchy", err)
		return
	}

	dtos := make([]DepartmentDTO, len(chain))
	for i, d := range chain {
		dtos[i] = toDepartmentDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCollection returns one collection.
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetCollection(r.Context(), generic.CollectionID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get collection", err)
		return
	}
	writeJSON(w, http.StatusOK, toCollectionDTO(c))
}

// CreateCollection creates or replaces a collection. Every listed right
// must exist.
func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CollectionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	c := &absence.Collection{ID: generic.CollectionID(req.ID), Name: req.Name}
	for _, id := range req.Rights {
		if _, err := h.Store.GetRight(ctx, generic.RightID(id)); err != nil {
			writeDomainError(w, "Unknown right in collection", err)
			return
		}
		c.Rights = append(c.Rights, generic.RightID(id))
	}

	if err := h.Store.SaveCollection(ctx, c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save collection", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCollectionDTO(c))
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUser returns a single user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), generic.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// CreateUser creates or replaces a user and its account profile.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	user := &absence.User{
		ID:         generic.UserID(req.ID),
		Name:       req.Name,
		Email:      req.Email,
		Department: generic.DepartmentID(req.DepartmentID),
	}
	if req.Account != nil {
		account, err := parseAccount(*req.Account)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid account (dates use YYYY-MM-DD)", err)
			return
		}
		user.Account = account
	}

	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// GetUserRights returns the rights the user may request for the given
// dates, with the renewal each one was evaluated against.
func (h *Handler) GetUserRights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.Store.GetUser(ctx, generic.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get user", err)
		return
	}

	dtstart, dtend, err := parseDates(r.URL.Query().Get("dtstart"), r.URL.Query().Get("dtend"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid dates", err)
		return
	}

	rights, err := h.Store.ListRights(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rights", err)
		return
	}

	// Without a collection every right is offered.
	offered := absence.Collection{}
	if user.Account != nil && user.Account.Collection != "" {
		c, err := h.Store.GetCollection(ctx, user.Account.Collection)
		if err != nil {
			writeDomainError(w, "Failed to get collection", err)
			return
		}
		offered = *c
	} else {
		for _, right := range rights {
			offered.Rights = append(offered.Rights, right.ID)
		}
	}

	evaluations, err := absence.ApplicableRights(offered, rights, user, dtstart, dtend, h.now())
	if err != nil {
		writeDomainError(w, "Failed to evaluate rights", err)
		return
	}

	byID := make(map[generic.RightID]*absence.Right, len(rights))
	for _, right := range rights {
		byID[right.ID] = right
	}
	dtos := make([]EvaluationDTO, 0, len(evaluations))
	for _, ev := range evaluations {
		dtos = append(dtos, toEvaluationDTO(byID[ev.Right], ev))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListUserRequests returns the requests created by a user.
func (h *Handler) ListUserRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.UserID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetUser(ctx, id); err != nil {
		writeDomainError(w, "Failed to get user", err)
		return
	}
	reqs, err := h.Store.ListRequestsByUser(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(reqs))
}

// =============================================================================
// WORKFLOW HANDLERS
// =============================================================================

// SubmitRequest creates an absence request and its approval steps.
// POST /api/users/{id}/requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RightID == "" {
		writeError(w, http.StatusBadRequest, "right_id is required", nil)
		return
	}

	dtstart, dtend, err := parseDates(req.DTStart, req.DTEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid dates", err)
		return
	}

	created, err := h.Service.CreateRequest(r.Context(), approval.NewRequest{
		User:    generic.UserID(chi.URLParam(r, "id")),
		Right:   generic.RightID(req.RightID),
		DTStart: dtstart,
		DTEnd:   dtend,
	})
	if err != nil {
		writeDomainError(w, "Request refused", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

// GetRequest returns a request with its approval steps.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Store.GetRequest(r.Context(), generic.RequestID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// WaitingRequests lists the requests whose current step the manager may
// decide.
// GET /api/managers/{id}/waitingrequests
func (h *Handler) WaitingRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Service.WaitingRequestsFor(r.Context(), generic.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list waiting requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(reqs))
}

// DecideRequest accepts or rejects the current step of a request.
// PUT /api/managers/{id}/waitingrequests/{requestID}
func (h *Handler) DecideRequest(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ApprovalStep == "" {
		writeError(w, http.StatusBadRequest, "approval_step is required", nil)
		return
	}

	manager := generic.UserID(chi.URLParam(r, "id"))
	requestID := generic.RequestID(chi.URLParam(r, "requestID"))
	stepID := generic.StepID(req.ApprovalStep)

	var (
		updated *approval.Request
		err     error
	)
	switch req.Action {
	case ActionAccept:
		updated, err = h.Service.Accept(r.Context(), requestID, stepID, manager)
	case ActionReject:
		updated, err = h.Service.Reject(r.Context(), requestID, stepID, manager)
	default:
		writeError(w, http.StatusBadRequest, "action must be wf_accept or wf_reject", nil)
		return
	}
	if err != nil {
		writeDomainError(w, "Decision refused", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(updated))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) tree(ctx context.Context) (*org.Tree, error) {
	depts, err := h.Store.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	return org.NewTree(depts)
}

// parseDates reads the request window. An end given as a plain date means
// the end of that day; a missing end is left zero.
func parseDates(start, end string) (time.Time, time.Time, error) {
	var dtstart, dtend time.Time
	var err error
	if start != "" {
		if dtstart, err = factory.ParseInstant(start, false); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if end != "" {
		if dtend, err = factory.ParseInstant(end, true); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return dtstart, dtend, nil
}

func parseAccount(dto AccountDTO) (*absence.Account, error) {
	account := &absence.Account{Collection: generic.CollectionID(dto.CollectionID)}
	for _, f := range []struct {
		raw string
		dst **time.Time
	}{
		{dto.BirthDate, &account.BirthDate},
		{dto.Seniority, &account.Seniority},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.Parse("2006-01-02", f.raw)
		if err != nil {
			return nil, err
		}
		*f.dst = &d
	}
	return account, nil
}

func toCollectionDTO(c *absence.Collection) CollectionDTO {
	rights := make([]string, len(c.Rights))
	for i, id := range c.Rights {
		rights[i] = string(id)
	}
	sort.Strings(rights)
	return CollectionDTO{ID: string(c.ID), Name: c.Name, Rights: rights}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error category.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case generic.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case generic.IsClientError(err),
		errors.Is(err, generic.ErrPrerequisiteNotLoaded),
		errors.Is(err, generic.ErrHierarchyCycle):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// writeRuleError returns the author-facing reason of a refused rule as
// the error message.
func writeRuleError(w http.ResponseWriter, message string, err error) {
	var rve *generic.RuleValidationError
	if errors.As(err, &rve) {
		writeError(w, http.StatusBadRequest, rve.Reason, err)
		return
	}
	writeError(w, http.StatusBadRequest, message, err)
}
