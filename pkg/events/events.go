// Package events defines the messages exchanged between the API and the workers.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every task event.
const Topic = "formflow.tasks"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// TaskDispatchedEvent asks a worker to run a task from its last persisted state.
	TaskDispatchedEvent EventType = "task.dispatched"

	// Task lifecycle events, published by the worker after persisting a run.
	TaskPausedEvent    EventType = "task.paused"
	TaskCompletedEvent EventType = "task.completed"
	TaskFailedEvent    EventType = "task.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TaskID    string         `json:"task_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, taskID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TaskID:    taskID,
		Metadata:  make(map[string]any),
	}
}

// TaskDispatched references the task to run. The state itself stays in the task store;
// Version is the version the dispatcher saw and is informational only.
type TaskDispatched struct {
	BaseEvent

	Recipe  string `json:"recipe"`
	Version int64  `json:"version"`
}

func (e TaskDispatched) GetType() EventType {
	return TaskDispatchedEvent
}

type TaskPaused struct {
	BaseEvent

	Version         int64    `json:"version"`
	Question        string   `json:"question"`
	MissingCritical []string `json:"missing_critical"`
}

func (e TaskPaused) GetType() EventType {
	return TaskPausedEvent
}

type TaskCompleted struct {
	BaseEvent

	Version         int64         `json:"version"`
	MissingOptional []string      `json:"missing_optional,omitempty"`
	Duration        time.Duration `json:"duration"`
}

func (e TaskCompleted) GetType() EventType {
	return TaskCompletedEvent
}

type TaskFailed struct {
	BaseEvent

	Version    int64  `json:"version"`
	FailedStep string `json:"failed_step,omitempty"`
	Error      string `json:"error"`
}

func (e TaskFailed) GetType() EventType {
	return TaskFailedEvent
}
