// Package worker consumes dispatched tasks and runs them.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/formflow/pkg/eventbus"
	"github.com/dukex/formflow/pkg/events"
	"github.com/dukex/formflow/pkg/models"
)

// TaskExecutor runs one task from its persisted state. services.Task implements it.
type TaskExecutor interface {
	Execute(ctx context.Context, id string) (*models.TaskRecord, error)
}

type Manager struct {
	id       string
	logger   *slog.Logger
	executor TaskExecutor
	eventBus eventbus.EventBus
}

func NewManager(id string, executor TaskExecutor, eventBus eventbus.EventBus, logger *slog.Logger) *Manager {
	return &Manager{
		id:       id,
		logger:   logger.With("module", "worker", "worker_id", id),
		executor: executor,
		eventBus: eventBus,
	}
}

// Start subscribes to dispatched tasks and blocks until ctx is done.
func (w *Manager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.TaskDispatchedEvent, w.handleTaskDispatched)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	<-ctx.Done()

	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *Manager) handleTaskDispatched(ctx context.Context, event any) error {
	dispatched, ok := event.(*events.TaskDispatched)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for TaskDispatched")

		return nil
	}

	logger := w.logger.With(
		"task_id", dispatched.TaskID,
		"event_id", dispatched.ID,
		"dispatched_version", dispatched.Version,
	)
	logger.DebugContext(ctx, "Processing task dispatched event")

	started := time.Now()

	record, err := w.executor.Execute(ctx, dispatched.TaskID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to execute task", "error", err)

		return err
	}

	if record == nil {
		return nil
	}

	settled := Settled(record, w.id, time.Since(started))
	if settled == nil {
		return nil
	}

	// the task is already persisted; a lost notification must not redeliver the dispatch
	publishErr := w.eventBus.Publish(ctx, record.ID, settled)
	if publishErr != nil {
		logger.ErrorContext(ctx, "Failed to publish task event", "error", publishErr, "event_type", settled.GetType())
	}

	return nil
}

// Settled returns the lifecycle event announcing the persisted outcome of a run, or nil
// while the task is still processing.
func Settled(record *models.TaskRecord, workerID string, duration time.Duration) eventbus.Event {
	state := record.State

	switch record.Status {
	case models.TaskStatusWaitingForInput:
		event := events.TaskPaused{
			BaseEvent:       events.NewBaseEvent(events.TaskPausedEvent, record.ID),
			Version:         record.Version,
			MissingCritical: state.MissingCritical,
		}
		event.WorkerID = workerID

		if state.Question != nil {
			event.Question = *state.Question
		}

		return event
	case models.TaskStatusCompleted:
		event := events.TaskCompleted{
			BaseEvent:       events.NewBaseEvent(events.TaskCompletedEvent, record.ID),
			Version:         record.Version,
			MissingOptional: state.MissingOptional,
			Duration:        duration,
		}
		event.WorkerID = workerID

		return event
	case models.TaskStatusFailed:
		event := events.TaskFailed{
			BaseEvent:  events.NewBaseEvent(events.TaskFailedEvent, record.ID),
			Version:    record.Version,
			FailedStep: state.FailedStep,
		}
		event.WorkerID = workerID

		if state.Error != nil {
			event.Error = *state.Error
		}

		return event
	default:
		return nil
	}
}
