// Package services implements the task operations shared by the HTTP API and the workers.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/formflow/pkg/persistence"
	"github.com/dukex/formflow/pkg/registry"
	"github.com/dukex/formflow/pkg/workflow"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnknownRecipe  = errors.New("unknown recipe")

	// ErrDispatchFailed indicates the task was stored but could not be handed to a worker.
	// The recovery sweeper dispatches it again later.
	ErrDispatchFailed = errors.New("task dispatch failed")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrUnknownRecipe) ||
		errors.Is(err, workflow.ErrInvalidResumeState) ||
		errors.Is(err, persistence.ErrInvalidTaskID)
}

// IsNotFound checks if an error refers to a task that does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, persistence.ErrTaskNotFound)
}

// IsConflictError checks if an error is a state conflict that should return HTTP 409:
// the task is terminal or was changed concurrently.
func IsConflictError(err error) bool {
	if IsNotFound(err) {
		return false
	}

	return errors.Is(err, workflow.ErrInvalidTaskState) ||
		errors.Is(err, persistence.ErrVersionConflict)
}

// notFound reports a missing task as an invalid task state.
func notFound(err error) error {
	return fmt.Errorf("%w: %w", workflow.ErrInvalidTaskState, err)
}

func unknownRecipe(err error) error {
	if errors.Is(err, registry.ErrRecipeNotRegistered) {
		return fmt.Errorf("%w: %w", ErrUnknownRecipe, err)
	}

	return err
}
