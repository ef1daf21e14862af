package persistence

import (
	"errors"
	"fmt"
	"strings"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTaskNotFound indicates a task was not found by the given identifier.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskAlreadyExists indicates a task with the same identifier already exists.
	ErrTaskAlreadyExists = errors.New("task already exists")

	// ErrVersionConflict indicates the stored task advanced past the version the caller read.
	ErrVersionConflict = errors.New("task version conflict")

	// ErrInvalidTaskID indicates an identifier that cannot be used as a storage key.
	ErrInvalidTaskID = errors.New("invalid task id")
)

// TaskError wraps task-related errors with additional context.
type TaskError struct {
	Op     string // Operation being performed (e.g., "Get", "Save")
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s operation failed for task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for task errors.
func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTaskError creates a new task error with context.
func NewTaskError(op, taskID string, err error) *TaskError {
	return &TaskError{
		Op:     op,
		TaskID: taskID,
		Err:    err,
	}
}

// ValidateID rejects ids that are empty, too long or could escape a storage namespace.
func ValidateID(id string) error {
	if id == "" || len(id) > 128 {
		return ErrInvalidTaskID
	}

	if strings.ContainsAny(id, `/\:*?"<>| `) || strings.Contains(id, "..") {
		return ErrInvalidTaskID
	}

	return nil
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsTaskAlreadyExists checks if an error indicates a duplicate task.
func IsTaskAlreadyExists(err error) bool {
	return errors.Is(err, ErrTaskAlreadyExists)
}

// IsVersionConflict checks if an error indicates a lost compare-and-swap.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
