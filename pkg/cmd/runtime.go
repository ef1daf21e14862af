package cmd

import (
	"context"
	"log/slog"
	"slices"

	"github.com/dukex/formflow/pkg/dispatcher"
	"github.com/dukex/formflow/pkg/eventbus"
	"github.com/dukex/formflow/pkg/log"
	"github.com/dukex/formflow/pkg/otelhelper"
	"github.com/dukex/formflow/pkg/persistence"
	"github.com/dukex/formflow/pkg/registry"
	"github.com/dukex/formflow/pkg/services"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// Runtime holds the components every binary builds from CommonFlags.
type Runtime struct {
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Store    persistence.TaskStore
	EventBus eventbus.EventBus
	Registry *registry.Registry
	Tasks    *services.Task

	closers []func(context.Context) error
}

// NewRuntime configures logging and opens the task store, the event bus and the recipe
// registry. On error everything opened so far is closed again.
func NewRuntime(ctx context.Context, command *cli.Command, serviceName string) (*Runtime, error) {
	log.Setup(command.String("log-level"), command.String("log-format"))

	r := &Runtime{Logger: log.WithModule(serviceName)}

	err := r.open(ctx, command, serviceName)
	if err != nil {
		r.Close(ctx)

		return nil, err
	}

	return r, nil
}

func (r *Runtime) open(ctx context.Context, command *cli.Command, serviceName string) error {
	tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName, command.Bool("tracing"))
	if err != nil {
		return err
	}

	r.Tracer = tracer
	r.closers = append(r.closers, shutdown)

	r.Store, err = NewTaskStore(ctx, r.Logger, command.String("database-url"))
	if err != nil {
		return err
	}

	r.closers = append(r.closers, r.Store.Close)

	r.EventBus, err = NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, r.Logger, r.Tracer)
	if err != nil {
		return err
	}

	r.closers = append(r.closers, func(context.Context) error { return r.EventBus.Close() })

	deps, closeDeps, err := NewDependencies(r.Logger, DependenciesConfig{
		ExtractionURL:     command.String("extraction-url"),
		ExtractionTimeout: command.Duration("extraction-timeout"),
		SchemaFile:        command.String("schema-file"),
	})
	if err != nil {
		return err
	}

	r.closers = append(r.closers, closeDeps)

	r.Registry, err = NewRegistry(r.Logger, command.String("plugins-path"), deps)
	if err != nil {
		return err
	}

	r.Tasks = services.NewTask(
		r.Store,
		dispatcher.NewEventBusDispatcher(r.EventBus, r.Logger),
		r.Registry,
		r.Logger,
		services.WithTracer(r.Tracer),
		services.WithMaxSteps(command.Int("max-steps")),
	)

	return nil
}

// Close releases the components in reverse opening order.
func (r *Runtime) Close(ctx context.Context) {
	for _, closer := range slices.Backward(r.closers) {
		err := closer(ctx)
		if err != nil {
			r.Logger.ErrorContext(ctx, "Failed to close component", "error", err)
		}
	}

	r.closers = nil
}
