package models

import "time"

// TaskStatus is the client-visible status of a task.
type TaskStatus string

const (
	TaskStatusProcessing      TaskStatus = "PROCESSING"
	TaskStatusWaitingForInput TaskStatus = "WAITING_FOR_INPUT"
	TaskStatusCompleted       TaskStatus = "COMPLETED"
	TaskStatusFailed          TaskStatus = "FAILED"
)

// IsTerminal reports whether the status accepts no further execution or resume.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// DeriveStatus computes the status purely from the state contents, by priority:
// error, pending question, artifact, otherwise processing.
func DeriveStatus(state *WorkflowState) TaskStatus {
	switch {
	case state == nil:
		return TaskStatusProcessing
	case state.HasError():
		return TaskStatusFailed
	case state.HasQuestion():
		return TaskStatusWaitingForInput
	case state.HasArtifact():
		return TaskStatusCompleted
	default:
		return TaskStatusProcessing
	}
}

// TaskRecord is what the task store persists for one task. Status is always written together
// with State and always equals DeriveStatus(State).
type TaskRecord struct {
	ID        string         `json:"id"`
	Recipe    string         `json:"recipe"`
	Version   int64          `json:"version"`
	Status    TaskStatus     `json:"status"`
	State     *WorkflowState `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *TaskRecord) Clone() *TaskRecord {
	if r == nil {
		return nil
	}

	clone := *r
	clone.State = r.State.Clone()

	return &clone
}
