// Package eventbus carries task events between the API and the workers.
package eventbus

import (
	"context"

	"github.com/dukex/formflow/pkg/events"
)

// Event is a task command or lifecycle notification.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes task events. key is the task id; events sharing a key keep
// their order on brokers that partition.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes delivered events to the handler registered for their type. A
// handler error nacks the message so it is delivered again.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives the decoded event, e.g. an events.TaskDispatched value.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
