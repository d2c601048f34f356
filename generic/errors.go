/*
errors.go - Centralized error types for the absence engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these errors (or wrap them with context) so
  callers can classify failures with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Rule errors - A rule violates the save-time interval invariant
  2. Evaluation errors - A rule needs data that was not loaded
  3. Workflow errors - An approval action is out of order or unauthorized
  4. Lookup errors - A referenced record does not exist

NOT ERRORS:
  A rule that does not match, a right that is not applicable, or a
  department without managers are normal outcomes (false / empty slice).

USAGE:
  if errors.Is(err, generic.ErrInvalidTransition) {
      // 409 Conflict
  }

SEE ALSO:
  - absence/rule.go: Returns RuleValidationError and PrerequisiteError
  - approval/request.go: Returns TransitionError
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRule is returned when a rule cannot be saved because its
	// interval is missing, non-numeric, or in the wrong order.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrPrerequisiteNotLoaded is returned when a seniority or age rule is
	// evaluated for a user whose account profile was not loaded.
	ErrPrerequisiteNotLoaded = errors.New("prerequisite not loaded")

	// ErrInvalidTransition is returned when an approval action targets a
	// step that is not the current one, is already decided, or is not
	// assigned to the acting manager.
	ErrInvalidTransition = errors.New("invalid approval transition")

	// ErrRightNotApplicable is returned when a request is created for a
	// right whose rules do not all validate.
	ErrRightNotApplicable = errors.New("right not applicable to request")

	ErrRightNotFound      = errors.New("right not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrDepartmentNotFound = errors.New("department not found")
	ErrRequestNotFound    = errors.New("request not found")
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrHierarchyCycle is returned when parent references form a loop.
	ErrHierarchyCycle = errors.New("department hierarchy contains a cycle")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RuleValidationError explains why a rule was refused at save time.
// Reason is the message shown to the rule author.
type RuleValidationError struct {
	Kind   string
	Reason string
}

func (e *RuleValidationError) Error() string {
	if e.Kind == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s rule: %s", e.Kind, e.Reason)
}

func (e *RuleValidationError) Unwrap() error {
	return ErrInvalidRule
}

// PrerequisiteError reports the user field that had to be loaded.
type PrerequisiteError struct {
	UserID UserID
	Field  string
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("the %s field of user %s needs to be loaded", e.Field, e.UserID)
}

func (e *PrerequisiteError) Unwrap() error {
	return ErrPrerequisiteNotLoaded
}

// TransitionError describes a refused accept/reject action.
// No state was changed when this error is returned.
type TransitionError struct {
	RequestID RequestID
	StepID    StepID
	Actor     UserID
	Reason    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("request %s, step %s, by %s: %s", e.RequestID, e.StepID, e.Actor, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRightNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrDepartmentNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrCollectionNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrRightNotApplicable) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsConflict returns true if the error is a refused workflow action.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
