// Package services is the engine facade: it turns request text into policy-checked
// plans, gates them behind owner approval, runs them and keeps the audit trail.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/warden/pkg/models"
)

// Failure taxonomy. Parse, policy, authorization and resolution failures are detected
// before anything is mutated; execution failures happen mid-run and trigger rollback.
var (
	ErrParseFailure    = errors.New("no supported actions recognized")
	ErrPolicyViolation = errors.New("policy violation")
	ErrAuthorization   = errors.New("authorization failure")
	ErrResolution      = errors.New("resolution failure")
	ErrExecution       = errors.New("execution failure")
)

// Lifecycle errors.
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidWorkflowName = errors.New("invalid workflow name")
	ErrInvalidPolicy       = errors.New("invalid policy")

	// Ownership (403 Forbidden).
	ErrNotPlanOwner = errors.New("only the plan owner can do this")

	// Missing entities (404 Not Found).
	ErrPlanNotFound     = errors.New("plan not found or expired")
	ErrAuditNotFound    = errors.New("audit entry not found")
	ErrWorkflowNotFound = errors.New("workflow not found")

	// Business Logic Conflicts (409 Conflict).
	ErrAlreadyRolledBack = errors.New("run was already rolled back")
	ErrNothingToRollback = errors.New("run has nothing to roll back")
)

// EngineError carries a human-readable summary and structured details for one failed
// engine operation. Err is one of the sentinels above.
type EngineError struct {
	Op      string
	Message string
	Details map[string]any
	Err     error
}

func (e *EngineError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op string, kind error, message string, details map[string]any) *EngineError {
	return &EngineError{Op: op, Message: message, Details: details, Err: kind}
}

// IsValidationError checks if an error should be reported as a bad request.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidWorkflowName) ||
		errors.Is(err, ErrInvalidPolicy) ||
		errors.Is(err, ErrParseFailure) ||
		errors.Is(err, ErrPolicyViolation) ||
		errors.Is(err, ErrResolution)
}

// IsAuthorizationError checks if an error should be reported as forbidden.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrAuthorization) ||
		errors.Is(err, ErrNotPlanOwner)
}

// IsNotFoundError checks if an error should be reported as not found.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrAuditNotFound) ||
		errors.Is(err, ErrWorkflowNotFound)
}

// IsConflictError checks if an error is a business logic conflict.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyRolledBack) ||
		errors.Is(err, ErrNothingToRollback)
}

var failureKinds = map[models.FailureKind]error{
	models.FailureInvalidArguments: ErrParseFailure,
	models.FailureResolution:       ErrResolution,
	models.FailureAuthorization:    ErrAuthorization,
	models.FailureExecution:        ErrExecution,
}

// RunError describes the step that stopped a run, or returns nil for successful runs.
func RunError(result models.RunResult) error {
	if result.OK {
		return nil
	}

	for i, step := range result.Results {
		if step.Success {
			continue
		}

		kind, ok := failureKinds[step.Failure]
		if !ok {
			kind = ErrExecution
		}

		return newError("RunPlan", kind, step.Message, map[string]any{
			"step":        i + 1,
			"action_type": step.Type,
			"rolled_back": result.RolledBack,
		})
	}

	return newError("RunPlan", ErrParseFailure, "plan has no actions", nil)
}
