// Package provision contains the per-project pipeline that sequences
// channel, membership, plan, folder and upload creation against the remote
// platform, together with its reconciliation and identity-resolution
// building blocks.
package provision

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/envforge/envforge/pkg/graph"
)

// ErrorClass classifies a provisioning failure for recovery logic.
type ErrorClass string

const (
	// ErrorClassThrottled indicates the retry budget for a call was
	// exhausted by rate limiting.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates the target resource already exists.
	// Handled by reconciliation, never surfaced to the operator as an error.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassCapability indicates the parent container lacks a required
	// capability. Fatal for the whole project.
	ErrorClassCapability ErrorClass = "capability"

	// ErrorClassValidation indicates malformed required input, detected
	// before any remote call.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassIdentity indicates an identity reference could not be
	// resolved. Dependent steps proceed in degraded mode.
	ErrorClassIdentity ErrorClass = "identity"

	// ErrorClassUnknown is any unclassified remote failure. Aborts the
	// current project's remaining stages.
	ErrorClassUnknown ErrorClass = "unknown"
)

// StepError is a classified provisioning failure with project and stage
// context.
type StepError struct {
	Class   ErrorClass
	Message string
	Project string
	Stage   Stage

	// Remediation tells the operator how to unblock a capability failure.
	Remediation string

	Err error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Project != "" {
		msg += fmt.Sprintf(" (project=%s, stage=%s)", e.Project, e.Stage)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error { return e.Err }

// WithProject adds project and stage context.
func (e *StepError) WithProject(project string, stage Stage) *StepError {
	e.Project = project
	e.Stage = stage
	return e
}

func newStepError(class ErrorClass, message string, err error) *StepError {
	return &StepError{Class: class, Message: message, Err: err}
}

// Classify wraps a remote error into a StepError based on its shape:
// retry exhaustion is throttled, a conflict status is a conflict, everything
// else is unknown. conflictCodes defaults to 409 when empty.
func Classify(err error, message string, conflictCodes ...int) *StepError {
	if len(conflictCodes) == 0 {
		conflictCodes = []int{http.StatusConflict}
	}
	switch {
	case errors.Is(err, graph.ErrRetryExhausted):
		return newStepError(ErrorClassThrottled, message, err)
	case graph.IsStatus(err, conflictCodes...):
		return newStepError(ErrorClassConflict, message, err)
	default:
		return newStepError(ErrorClassUnknown, message, err)
	}
}

// classOf extracts the class of a StepError, or unknown for anything else.
func classOf(err error) ErrorClass {
	var se *StepError
	if errors.As(err, &se) {
		return se.Class
	}
	return ErrorClassUnknown
}

// IsCapability reports whether err is a missing-capability failure.
func IsCapability(err error) bool { return classOf(err) == ErrorClassCapability }

// IsConflict reports whether err is an already-exists conflict.
func IsConflict(err error) bool { return classOf(err) == ErrorClassConflict }
