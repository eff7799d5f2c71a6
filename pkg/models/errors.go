// Package models defines the public domain models for the workflow engine.
package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for lookups against in-memory collections.
var (
	ErrServiceNotFound = errors.New("service not found")
	ErrEdgeNotFound    = errors.New("edge not found")
	ErrInvalidWorkflow = errors.New("invalid workflow")
	ErrStartNotFound   = errors.New("Start service not found in workflow")
	ErrEndNotFound     = errors.New("End service not found in workflow")
)

// ErrorKind classifies the failure taxonomy the Runner and Workflow Engine
// report through. It does not name a Go type — callers switch on an Error's
// Kind field, not on concrete types, so that wrapping and unwrapping stays
// cheap.
type ErrorKind string

const (
	// ErrTransientDevice is raised per device attempt and retried up to the
	// service's retry cap.
	ErrTransientDevice ErrorKind = "transient_device"
	// ErrPermanentDevice marks a device as failed with no further retries;
	// the run continues with other devices/services.
	ErrPermanentDevice ErrorKind = "permanent_device"
	// ErrValidationKind is raised after a service executes, translating to
	// per-device success=false.
	ErrValidationKind ErrorKind = "validation"
	// ErrUserCode is raised from a preprocessing/postprocessing/expression
	// evaluation failure; treated as ErrPermanentDevice for that device.
	ErrUserCode ErrorKind = "user_code_error"
	// ErrStateStoreUnreachable is logged non-fatally; callers fall back to
	// local state semantics.
	ErrStateStoreUnreachable ErrorKind = "state_store_unreachable"
	// ErrSchedulerUnreachable is returned verbatim to the caller, never
	// raised as a panic or propagated as a run failure.
	ErrSchedulerUnreachable ErrorKind = "scheduler_unreachable"
	// ErrCancelled is raised at any checkpoint after Run.Stop() is observed.
	ErrCancelled ErrorKind = "cancelled"
	// ErrInvariantViolation fails the entire run with a diagnostic; it is
	// never silently swallowed (missing Start/End, etc.). A maximum_runs
	// <= 0 is not one: Service.Validate coerces it to 1.
	ErrInvariantViolation ErrorKind = "invariant_violation"
)

// Error is the single error type the engine raises. Every error kind in the
// table above is represented by this struct with a different Kind, rather
// than a dedicated Go type per kind, so that callers can branch on the Kind
// field without a type switch.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, &Error{Kind: X}) match on Kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a kinded engine error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// ValidationError represents a struct-field validation failure raised while
// constructing or mutating a Service/Workflow/Edge.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors represents multiple validation errors collected together.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Error()
}
