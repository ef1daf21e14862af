package workflow

import (
	"errors"
	"fmt"

	"github.com/dukex/formflow/pkg/models"
)

var (
	// ErrInvalidResumeState indicates a run or resume on a state that does not carry a valid
	// answer for its pending question.
	ErrInvalidResumeState = errors.New("invalid resume state")

	// ErrInvalidTaskState indicates an operation on a task that is missing or already terminal.
	ErrInvalidTaskState = errors.New("invalid task state")

	// ErrArtifactNotReady indicates the final artifact has not been rendered yet.
	ErrArtifactNotReady = errors.New("artifact not ready")

	// ErrInvalidGraph indicates a graph that cannot be executed.
	ErrInvalidGraph = errors.New("invalid workflow graph")

	// ErrNoRoute indicates that none of a step's outgoing edge conditions held.
	ErrNoRoute = errors.New("no outgoing edge condition satisfied")

	// ErrStepLimitExceeded indicates a run that executed more steps than allowed.
	ErrStepLimitExceeded = errors.New("step limit exceeded")
)

// StepExecutionError reports a step failure. State is the last state produced by a
// successfully completed step, never the partial mutation of the failing one.
type StepExecutionError struct {
	Step  string
	State *models.WorkflowState
	Err   error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// AsStepExecutionError extracts a StepExecutionError from the chain.
func AsStepExecutionError(err error) (*StepExecutionError, bool) {
	var stepErr *StepExecutionError
	if errors.As(err, &stepErr) {
		return stepErr, true
	}

	return nil, false
}

// IsInvalidResumeState checks if an error indicates an invalid resume.
func IsInvalidResumeState(err error) bool {
	return errors.Is(err, ErrInvalidResumeState)
}

// IsInvalidTaskState checks if an error indicates a missing or terminal task.
func IsInvalidTaskState(err error) bool {
	return errors.Is(err, ErrInvalidTaskState)
}

// IsArtifactNotReady checks if an error indicates the artifact is not rendered yet.
func IsArtifactNotReady(err error) bool {
	return errors.Is(err, ErrArtifactNotReady)
}
