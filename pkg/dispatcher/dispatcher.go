// Package dispatcher hands tasks over to the workers.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/formflow/pkg/eventbus"
	"github.com/dukex/formflow/pkg/events"
	"github.com/dukex/formflow/pkg/models"
)

// Dispatcher schedules a task for background execution. It is fire and forget: a nil error
// means the request was accepted, not that the task ran. Delivery is at least once, so
// the receiving side must tolerate duplicates.
type Dispatcher interface {
	Dispatch(ctx context.Context, record *models.TaskRecord) error
}

// EventBusDispatcher publishes a TaskDispatched event keyed by task id. The event carries
// only the reference; the worker reads the state from the task store.
type EventBusDispatcher struct {
	bus    eventbus.EventPublisher
	logger *slog.Logger
}

func NewEventBusDispatcher(bus eventbus.EventPublisher, logger *slog.Logger) *EventBusDispatcher {
	return &EventBusDispatcher{
		bus:    bus,
		logger: logger.With("module", "dispatcher"),
	}
}

func (d *EventBusDispatcher) Dispatch(ctx context.Context, record *models.TaskRecord) error {
	event := events.TaskDispatched{
		BaseEvent: events.NewBaseEvent(events.TaskDispatchedEvent, record.ID),
		Recipe:    record.Recipe,
		Version:   record.Version,
	}

	err := d.bus.Publish(ctx, record.ID, event)
	if err != nil {
		return fmt.Errorf("failed to dispatch task %s: %w", record.ID, err)
	}

	d.logger.DebugContext(ctx, "Task dispatched", "task_id", record.ID, "version", record.Version)

	return nil
}

var _ Dispatcher = (*EventBusDispatcher)(nil)
