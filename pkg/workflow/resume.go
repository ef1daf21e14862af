package workflow

import (
	"fmt"
	"strings"

	"github.com/dukex/formflow/pkg/models"
	"github.com/dukex/formflow/pkg/schema"
)

// ApplyAnswer merges a human answer into a paused state and returns the state to run next.
// The input state is never modified.
//
// The answer is merged into the consolidated record and the cumulative human response,
// the pending question is cleared and both missing-field sets are recomputed from the
// merged record. skipOptional is sticky: once set it stays set for the task.
func ApplyAnswer(state *models.WorkflowState, fields *schema.Schema, answer map[string]string, skipOptional bool) (*models.WorkflowState, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: no stored state", ErrInvalidTaskState)
	}

	if state.HasArtifact() || state.HasError() {
		return nil, fmt.Errorf("%w: task is %s", ErrInvalidTaskState, models.DeriveStatus(state))
	}

	if !state.HasQuestion() {
		return nil, fmt.Errorf("%w: no pending question", ErrInvalidResumeState)
	}

	if len(answer) == 0 {
		return nil, fmt.Errorf("%w: answer payload is empty", ErrInvalidResumeState)
	}

	err := fields.ValidateAnswer(answer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResumeState, err)
	}

	next := state.Clone()
	if next.Record == nil {
		next.Record = make(map[string]string, len(answer))
	}

	if next.HumanResponse == nil {
		next.HumanResponse = make(map[string]string, len(answer))
	}

	for name, value := range answer {
		value = strings.TrimSpace(value)
		next.Record[name] = value
		next.HumanResponse[name] = value
	}

	next.ClearQuestion()
	next.SkipOptional = next.SkipOptional || skipOptional

	gaps := fields.Classify(next.Record)
	next.MissingCritical = gaps.Critical
	next.MissingOptional = gaps.Optional

	return next, nil
}
