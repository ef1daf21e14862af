package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/formflow/pkg/channels/gochannel"
	"github.com/dukex/formflow/pkg/channels/kafka"
	"github.com/dukex/formflow/pkg/eventbus"
	"go.opentelemetry.io/otel/trace"
)

// NewEventBus creates the event bus for provider. gochannel only connects components of
// the same process.
func NewEventBus(provider, brokers, serviceName string, logger *slog.Logger, tracer trace.Tracer) (eventbus.EventBus, error) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger, tracer), nil
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger, tracer), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %q", provider)
	}
}

// IsInProcessBus reports whether provider only connects components of the same process.
func IsInProcessBus(provider string) bool {
	return provider == "gochannel" || provider == ""
}

// WarnInProcessBus logs a warning when a binary that runs only one side of the dispatch
// path uses the in-memory bus. Its dispatches then reach a worker only when the sweeper of
// another process picks the task up as stale.
func WarnInProcessBus(ctx context.Context, logger *slog.Logger, provider, serviceName string) bool {
	if !IsInProcessBus(provider) {
		return false
	}

	logger.WarnContext(ctx, "In-memory event bus does not reach other processes; use --event-bus kafka or the standalone formflow binary",
		"event_bus", "gochannel",
		"service", serviceName,
	)

	return true
}
