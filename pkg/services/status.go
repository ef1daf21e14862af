package services

import (
	"slices"
	"time"

	"github.com/dukex/formflow/pkg/models"
)

// TaskStatus is the client view of a task.
type TaskStatus struct {
	TaskID          string
	Recipe          string
	Status          models.TaskStatus
	Version         int64
	Question        *string
	MissingCritical []string
	MissingOptional []string
	Error           *string
	FailedStep      string
	HasArtifact     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewTaskStatus builds the view of record. The status is derived from the state, so it is
// correct even for a record written before status was stored.
func NewTaskStatus(record *models.TaskRecord) *TaskStatus {
	state := record.State
	if state == nil {
		state = &models.WorkflowState{}
	}

	status := &TaskStatus{
		TaskID:          record.ID,
		Recipe:          record.Recipe,
		Status:          models.DeriveStatus(state),
		Version:         record.Version,
		MissingCritical: slices.Clone(state.MissingCritical),
		MissingOptional: slices.Clone(state.MissingOptional),
		FailedStep:      state.FailedStep,
		HasArtifact:     state.HasArtifact(),
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}

	if state.Question != nil {
		q := *state.Question
		status.Question = &q
	}

	if state.Error != nil {
		e := *state.Error
		status.Error = &e
	}

	return status
}
