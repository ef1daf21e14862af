package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/formflow/pkg/models"
	"github.com/dukex/formflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxSteps bounds a single run so a cyclic graph cannot loop forever.
const DefaultMaxSteps = 64

// StepObserver is called with the state produced by every completed step. Returning an
// error aborts the run without marking the state failed.
type StepObserver func(ctx context.Context, step string, state *models.WorkflowState) error

// Option configures an Executor.
type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithMaxSteps overrides DefaultMaxSteps. Non-positive values are ignored.
func WithMaxSteps(limit int) Option {
	return func(e *Executor) {
		if limit > 0 {
			e.maxSteps = limit
		}
	}
}

func WithStepObserver(observer StepObserver) Option {
	return func(e *Executor) {
		e.observer = observer
	}
}

// Executor runs a Graph until it pauses, completes, or fails.
type Executor struct {
	graph    *Graph
	logger   *slog.Logger
	tracer   trace.Tracer
	maxSteps int
	observer StepObserver
}

// NewExecutor validates graph and returns an executor for it.
func NewExecutor(graph *Graph, opts ...Option) (*Executor, error) {
	err := graph.Validate()
	if err != nil {
		return nil, err
	}

	e := &Executor{
		graph:    graph,
		logger:   slog.Default(),
		tracer:   otelhelper.Noop(),
		maxSteps: DefaultMaxSteps,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("module", "workflow_executor")

	return e, nil
}

// WithObserver returns a copy of the executor that reports every completed step to observer.
func (e *Executor) WithObserver(observer StepObserver) *Executor {
	clone := *e
	clone.observer = observer

	return &clone
}

// Run executes the graph from its entry step. The input state must not carry a pending
// question, an artifact, or an error; resumed states reach Run only after ApplyAnswer.
//
// Run returns when a pause edge sets a question or when the completion step has run. A
// failing step yields a *StepExecutionError holding the last good state.
func (e *Executor) Run(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: state is nil", ErrInvalidTaskState)
	}

	if state.HasQuestion() {
		return nil, fmt.Errorf("%w: state has an unanswered question", ErrInvalidResumeState)
	}

	if state.HasArtifact() || state.HasError() {
		return nil, fmt.Errorf("%w: state is already terminal", ErrInvalidTaskState)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
		attribute.String(otelhelper.StepNameKey, e.graph.entry),
	)
	defer span.End()

	current := state.Clone()
	stepName := e.graph.entry

	for executed := 0; ; executed++ {
		if executed >= e.maxSteps {
			err := fmt.Errorf("%w: %d steps", ErrStepLimitExceeded, e.maxSteps)
			otelhelper.SetError(span, err)

			return nil, &StepExecutionError{Step: stepName, State: current, Err: err}
		}

		err := ctx.Err()
		if err != nil {
			return nil, err
		}

		next, err := e.runStep(ctx, e.graph.steps[stepName], current)
		if err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.StepNameKey, stepName))

			return nil, err
		}

		current = next

		edge, ok := e.graph.route(stepName, current)
		if !ok {
			err = fmt.Errorf("%w: step %s", ErrNoRoute, stepName)
			otelhelper.SetError(span, err)

			return nil, &StepExecutionError{Step: stepName, State: current, Err: err}
		}

		e.logger.DebugContext(ctx, "Routing", "step", stepName, "edge", edge.Kind.String(), "target", edge.Target)

		switch edge.Kind {
		case EdgeNext:
			stepName = edge.Target
		case EdgePause:
			current.SetQuestion(edge.Question(current))
			span.SetAttributes(attribute.String(otelhelper.EdgeKindKey, edge.Kind.String()))
			e.logger.InfoContext(ctx, "Workflow paused for human input",
				"step", stepName,
				"missing_critical", current.MissingCritical,
			)

			return current, nil
		case EdgeTerminal:
			final, err := e.runStep(ctx, e.graph.completion, current)
			if err != nil {
				otelhelper.SetError(span, err, attribute.String(otelhelper.StepNameKey, e.graph.completion.Name()))

				return nil, err
			}

			span.SetAttributes(attribute.String(otelhelper.EdgeKindKey, edge.Kind.String()))
			e.logger.InfoContext(ctx, "Workflow completed", "steps", len(final.History))

			return final, nil
		}
	}
}

// runStep runs one step on a clone of state so a failure never leaks a partial mutation.
func (e *Executor) runStep(ctx context.Context, step Step, state *models.WorkflowState) (result *models.WorkflowState, err error) {
	name := step.Name()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.step",
		attribute.String(otelhelper.StepNameKey, name),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &StepExecutionError{Step: name, State: state, Err: fmt.Errorf("panic: %v", r)}
			otelhelper.SetError(span, err)
		}
	}()

	e.logger.DebugContext(ctx, "Executing step", "step", name)

	next, err := step.Run(ctx, state.Clone())
	if err != nil {
		e.logger.ErrorContext(ctx, "Step failed", "step", name, "error", err)
		otelhelper.SetError(span, err)

		return nil, &StepExecutionError{Step: name, State: state, Err: err}
	}

	if next == nil {
		err = fmt.Errorf("step %s returned a nil state", name)
		otelhelper.SetError(span, err)

		return nil, &StepExecutionError{Step: name, State: state, Err: err}
	}

	next.History = append(next.History, name)

	if e.observer != nil {
		err = e.observer(ctx, name, next)
		if err != nil {
			return nil, fmt.Errorf("observer rejected step %s: %w", name, err)
		}
	}

	return next, nil
}
