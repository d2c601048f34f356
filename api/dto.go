/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Rights:       factory.RightJSON (shared with seed files)
  Users:        UserDTO, AccountDTO
  Departments:  DepartmentDTO, CollectionDTO
  Requests:     SubmitRequest, RequestDTO, StepDTO, DecisionRequest
  Eligibility:  EvaluationDTO
  Scenarios:    ScenarioDTO, LoadScenarioRequest

DATES:
  Dates are "2006-01-02" or RFC3339. Responses always use RFC3339 in UTC.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/right.go: RightJSON type
*/
package api

import (
	"time"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/approval"
	"github.com/warp/absence-engine/generic"
	"github.com/warp/absence-engine/org"
)

// =============================================================================
// USERS & ORGANIZATION
// =============================================================================

// UserDTO represents a user in requests and responses.
type UserDTO struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email,omitempty"`
	DepartmentID string      `json:"department_id,omitempty"`
	Account      *AccountDTO `json:"account,omitempty"`
}

// AccountDTO is the requester profile of a user.
type AccountDTO struct {
	BirthDate    string `json:"birth_date,omitempty"`
	Seniority    string `json:"seniority,omitempty"`
	CollectionID string `json:"collection_id,omitempty"`
}

// DepartmentDTO represents a department.
type DepartmentDTO struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ParentID string   `json:"parent_id,omitempty"`
	Managers []string `json:"managers"`
}

// CollectionDTO represents a collection of rights.
type CollectionDTO struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Rights []string `json:"rights"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// SubmitRequest is the body of POST /api/users/{id}/requests.
type SubmitRequest struct {
	RightID string `json:"right_id"`
	DTStart string `json:"dtstart"`
	DTEnd   string `json:"dtend"`
}

// RequestDTO represents an absence request and its workflow.
type RequestDTO struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	RightID      string    `json:"right_id"`
	DepartmentID string    `json:"department_id"`
	DTStart      string    `json:"dtstart,omitempty"`
	DTEnd        string    `json:"dtend,omitempty"`
	TimeCreated  string    `json:"time_created"`
	Status       string    `json:"status"`
	Cursor       int       `json:"cursor"`
	Steps        []StepDTO `json:"approval_steps"`
}

// StepDTO represents one approval step.
type StepDTO struct {
	ID           string   `json:"id"`
	DepartmentID string   `json:"department_id"`
	Approvers    []string `json:"approvers"`
	Status       string   `json:"status"`
	DecidedBy    string   `json:"decided_by,omitempty"`
	DecidedAt    string   `json:"decided_at,omitempty"`
}

// Decision actions accepted by the waiting-requests endpoint.
const (
	ActionAccept = "wf_accept"
	ActionReject = "wf_reject"
)

// DecisionRequest is the body of PUT /api/managers/{id}/waitingrequests/{requestID}.
type DecisionRequest struct {
	ApprovalStep string `json:"approval_step"`
	Action       string `json:"action"`
}

// EvaluationDTO explains whether a right applies to a request.
type EvaluationDTO struct {
	RightID     string     `json:"right_id"`
	RightName   string     `json:"right_name"`
	Quantity    string     `json:"quantity"`
	Unit        string     `json:"unit"`
	Renewal     *PeriodDTO `json:"renewal,omitempty"`
	Applicable  bool       `json:"applicable"`
	FailedRules []string   `json:"failed_rules,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// PeriodDTO is a closed date window.
type PeriodDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is returned with every 4xx/5xx status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func toUserDTO(u *absence.User) UserDTO {
	dto := UserDTO{
		ID:           string(u.ID),
		Name:         u.Name,
		Email:        u.Email,
		DepartmentID: string(u.Department),
	}
	if u.Account != nil {
		dto.Account = &AccountDTO{
			BirthDate:    formatDate(u.Account.BirthDate),
			Seniority:    formatDate(u.Account.Seniority),
			CollectionID: string(u.Account.Collection),
		}
	}
	return dto
}

func toDepartmentDTO(d org.Department) DepartmentDTO {
	managers := make([]string, len(d.Managers))
	for i, m := range d.Managers {
		managers[i] = string(m)
	}
	return DepartmentDTO{ID: string(d.ID), Name: d.Name, ParentID: string(d.Parent), Managers: managers}
}

func toRequestDTO(r *approval.Request) RequestDTO {
	dto := RequestDTO{
		ID:           string(r.ID),
		UserID:       string(r.User),
		RightID:      string(r.Right),
		DepartmentID: string(r.Department),
		DTStart:      formatTime(r.DTStart),
		DTEnd:        formatTime(r.DTEnd),
		TimeCreated:  formatTime(r.TimeCreated),
		Status:       string(r.Status()),
		Cursor:       r.Cursor(),
		Steps:        make([]StepDTO, len(r.Steps)),
	}
	for i, s := range r.Steps {
		approvers := make([]string, len(s.Approvers))
		for j, a := range s.Approvers {
			approvers[j] = string(a)
		}
		dto.Steps[i] = StepDTO{
			ID:           string(s.ID),
			DepartmentID: string(s.Department),
			Approvers:    approvers,
			Status:       string(s.Status),
			DecidedBy:    string(s.DecidedBy),
			DecidedAt:    formatTime(s.DecidedAt),
		}
	}
	return dto
}

func toRequestDTOs(reqs []*approval.Request) []RequestDTO {
	out := make([]RequestDTO, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, toRequestDTO(r))
	}
	return out
}

func toEvaluationDTO(right *absence.Right, ev absence.Evaluation) EvaluationDTO {
	dto := EvaluationDTO{
		RightID:    string(right.ID),
		RightName:  right.Name,
		Quantity:   right.Quantity.Value.String(),
		Unit:       string(right.Quantity.Unit),
		Applicable: ev.Applicable,
		Reason:     ev.Reason,
	}
	if ev.Renewal != nil {
		dto.Renewal = &PeriodDTO{Start: formatTime(ev.Renewal.Start), End: formatTime(ev.Renewal.End)}
	}
	for _, rule := range ev.Failed {
		dto.FailedRules = append(dto.FailedRules, rule.Title)
	}
	return dto
}

func userIDs(ids []string) []generic.UserID {
	out := make([]generic.UserID, len(ids))
	for i, id := range ids {
		out[i] = generic.UserID(id)
	}
	return out
}
