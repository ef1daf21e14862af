package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/dukex/formflow/pkg/dispatcher"
	"github.com/dukex/formflow/pkg/models"
	"github.com/dukex/formflow/pkg/otelhelper"
	"github.com/dukex/formflow/pkg/persistence"
	"github.com/dukex/formflow/pkg/protocol"
	"github.com/dukex/formflow/pkg/workflow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Recipes resolves the recipe a task runs.
type Recipes interface {
	Recipe(id string) (protocol.Recipe, error)
}

// Option configures a Task service.
type Option func(*Task)

func WithTracer(tracer trace.Tracer) Option {
	return func(t *Task) {
		t.tracer = tracer
	}
}

// WithMaxSteps bounds every executor run.
func WithMaxSteps(limit int) Option {
	return func(t *Task) {
		t.maxSteps = limit
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Task) {
		t.now = now
	}
}

type Task struct {
	store      persistence.TaskStore
	dispatcher dispatcher.Dispatcher
	recipes    Recipes
	logger     *slog.Logger
	tracer     trace.Tracer
	maxSteps   int
	now        func() time.Time
}

// NewTask creates the task service.
func NewTask(store persistence.TaskStore, d dispatcher.Dispatcher, recipes Recipes, logger *slog.Logger, opts ...Option) *Task {
	t := &Task{
		store:      store,
		dispatcher: d,
		recipes:    recipes,
		logger:     logger.With("module", "task_service"),
		tracer:     otelhelper.Noop(),
		maxSteps:   workflow.DefaultMaxSteps,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// HealthCheck checks the health of the task store.
func (t *Task) HealthCheck(ctx context.Context) (string, bool) {
	if t.store == nil {
		return "Task store not initialized", false
	}

	err := t.store.HealthCheck(ctx)
	if err != nil {
		return "Task store is unhealthy: " + err.Error(), false
	}

	return "Task store is healthy", true
}

// CreateRequest describes a new task.
type CreateRequest struct {
	Recipe string
	Inputs []models.InputDocument

	// Record seeds values the client already knows.
	Record map[string]string
}

// Create stores a fresh task and dispatches it. When only the dispatch fails the stored
// record is returned together with an error wrapping ErrDispatchFailed.
func (t *Task) Create(ctx context.Context, req CreateRequest) (*models.TaskRecord, error) {
	recipe, err := t.recipes.Recipe(req.Recipe)
	if err != nil {
		return nil, unknownRecipe(err)
	}

	if len(req.Inputs) == 0 && !hasValues(req.Record) {
		return nil, NewValidationError("Create", "empty_task", "a task needs input documents or record values", ErrInvalidRequest)
	}

	for name := range req.Record {
		if _, ok := recipe.Schema().Field(name); !ok {
			return nil, NewValidationError("Create", "unknown_field", fmt.Sprintf("unknown field %q", name), ErrInvalidRequest)
		}
	}

	record := &models.TaskRecord{
		ID:        uuid.NewString(),
		Recipe:    recipe.ID(),
		State:     models.NewWorkflowState(req.Inputs, req.Record),
		CreatedAt: t.now().UTC(),
	}

	err = t.store.Create(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	t.logger.InfoContext(ctx, "Task created", "task_id", record.ID, "recipe", record.Recipe, "inputs", len(req.Inputs))

	return record, t.dispatch(ctx, record)
}

// Status returns the current view of a task.
func (t *Task) Status(ctx context.Context, id string) (*TaskStatus, error) {
	record, err := t.get(ctx, id)
	if err != nil {
		return nil, err
	}

	return NewTaskStatus(record), nil
}

// ResumeRequest carries the user's answer to a paused task.
type ResumeRequest struct {
	TaskID       string
	Answers      map[string]string
	SkipOptional bool

	// Version, when set, must match the stored version.
	Version *int64
}

// Resume merges the answer into a paused task, persists it and dispatches it again. Of two
// concurrent resumes on the same version only one is stored; the other fails with
// persistence.ErrVersionConflict.
func (t *Task) Resume(ctx context.Context, req ResumeRequest) (*TaskStatus, error) {
	record, err := t.get(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}

	if record.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: task %s is %s", workflow.ErrInvalidTaskState, record.ID, record.Status)
	}

	if req.Version != nil && *req.Version != record.Version {
		return nil, persistence.NewTaskError("Resume", record.ID,
			fmt.Errorf("%w: expected %d, stored %d", persistence.ErrVersionConflict, *req.Version, record.Version))
	}

	recipe, err := t.recipes.Recipe(record.Recipe)
	if err != nil {
		return nil, err
	}

	next, err := workflow.ApplyAnswer(record.State, recipe.Schema(), req.Answers, req.SkipOptional)
	if err != nil {
		return nil, err
	}

	expected := record.Version
	record.State = next

	err = t.store.Save(ctx, record, expected)
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "Task resumed",
		"task_id", record.ID,
		"version", record.Version,
		"answers", len(req.Answers),
		"skip_optional", next.SkipOptional,
	)

	return NewTaskStatus(record), t.dispatch(ctx, record)
}

// Artifact returns the rendered artifact of a completed task.
func (t *Task) Artifact(ctx context.Context, id string) ([]byte, string, error) {
	record, err := t.get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	switch record.Status {
	case models.TaskStatusCompleted:
		return record.State.Artifact, record.State.ArtifactContentType, nil
	case models.TaskStatusFailed:
		return nil, "", fmt.Errorf("%w: task %s failed", workflow.ErrInvalidTaskState, id)
	default:
		return nil, "", fmt.Errorf("%w: task %s is %s", workflow.ErrArtifactNotReady, id, record.Status)
	}
}

// Execute runs a dispatched task from its last persisted state and persists the outcome.
// It returns the stored record, or nil when there was nothing to do: the task is gone,
// not in PROCESSING (a duplicate delivery), or another delivery advanced it first.
//
// Only transient failures are returned as errors; they make the delivery retry.
func (t *Task) Execute(ctx context.Context, id string) (*models.TaskRecord, error) {
	ctx, span := otelhelper.StartSpan(ctx, t.tracer, "task.execute", attribute.String(otelhelper.TaskIDKey, id))
	defer span.End()

	record, err := t.store.Get(ctx, id)
	if err != nil {
		if persistence.IsTaskNotFound(err) || errors.Is(err, persistence.ErrInvalidTaskID) {
			t.logger.WarnContext(ctx, "Dispatched task does not exist", "task_id", id)

			return nil, nil
		}

		otelhelper.SetError(span, err)

		return nil, err
	}

	logger := t.logger.With("task_id", id, "recipe", record.Recipe)

	if record.Status != models.TaskStatusProcessing {
		logger.DebugContext(ctx, "Skipping task", "status", record.Status, "version", record.Version)

		return nil, nil
	}

	recipe, err := t.recipes.Recipe(record.Recipe)
	if err != nil {
		return t.fail(ctx, record, record.State, "", err)
	}

	executor, err := workflow.NewExecutor(recipe.Graph(),
		workflow.WithLogger(logger),
		workflow.WithTracer(t.tracer),
		workflow.WithMaxSteps(t.maxSteps),
		workflow.WithStepObserver(t.checkpoint(record)),
	)
	if err != nil {
		return t.fail(ctx, record, record.State, "", err)
	}

	started := t.now()

	result, err := executor.Run(ctx, record.State)
	if err != nil {
		return t.handleRunError(ctx, record, err)
	}

	err = t.store.Save(ctx, withState(record, result), record.Version)
	if err != nil {
		return t.handleSaveError(ctx, record, err)
	}

	span.SetAttributes(
		attribute.String(otelhelper.TaskStatusKey, string(record.Status)),
		attribute.Int64(otelhelper.TaskVersionKey, record.Version),
	)

	logger.InfoContext(ctx, "Task run finished",
		"status", record.Status,
		"version", record.Version,
		"duration", t.now().Sub(started),
	)

	return record, nil
}

// Redispatch dispatches again every task still PROCESSING that was not written for
// olderThan. It returns how many tasks were dispatched.
func (t *Task) Redispatch(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := t.now().Add(-olderThan)

	ids, err := t.store.ListStale(ctx, models.TaskStatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale tasks: %w", err)
	}

	var (
		dispatched int
		errs       []error
	)

	for _, id := range ids {
		record, err := t.store.Get(ctx, id)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		if record.Status != models.TaskStatusProcessing || !record.UpdatedAt.Before(cutoff) {
			continue
		}

		err = t.dispatcher.Dispatch(ctx, record)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		dispatched++
	}

	if dispatched > 0 {
		t.logger.InfoContext(ctx, "Stale tasks dispatched again", "count", dispatched, "cutoff", cutoff)
	}

	return dispatched, errors.Join(errs...)
}

// checkpoint persists the state after every step so a crashed worker resumes from the last
// completed step. The rendered artifact is left to the final save.
func (t *Task) checkpoint(record *models.TaskRecord) workflow.StepObserver {
	return func(ctx context.Context, step string, state *models.WorkflowState) error {
		if state.HasArtifact() {
			return nil
		}

		err := t.store.Save(ctx, withState(record, state), record.Version)
		if err != nil {
			return err
		}

		t.logger.DebugContext(ctx, "Checkpoint saved", "task_id", record.ID, "step", step, "version", record.Version)

		return nil
	}
}

func (t *Task) handleRunError(ctx context.Context, record *models.TaskRecord, err error) (*models.TaskRecord, error) {
	if persistence.IsVersionConflict(err) {
		return t.handleSaveError(ctx, record, err)
	}

	// a cancelled worker leaves the task PROCESSING for the next delivery
	if ctx.Err() != nil {
		return nil, err
	}

	stepErr, ok := workflow.AsStepExecutionError(err)
	if !ok {
		return nil, err
	}

	last := stepErr.State
	if last == nil {
		last = record.State
	}

	return t.fail(ctx, record, last, stepErr.Step, stepErr.Err)
}

func (t *Task) handleSaveError(ctx context.Context, record *models.TaskRecord, err error) (*models.TaskRecord, error) {
	if persistence.IsVersionConflict(err) {
		t.logger.WarnContext(ctx, "Task advanced by another delivery, dropping this run",
			"task_id", record.ID,
			"version", record.Version,
		)

		return nil, nil
	}

	return nil, fmt.Errorf("failed to save task %s: %w", record.ID, err)
}

// fail persists last with the error set, which moves the task to FAILED.
func (t *Task) fail(ctx context.Context, record *models.TaskRecord, last *models.WorkflowState, step string, cause error) (*models.TaskRecord, error) {
	failed := last.Clone()
	failed.ClearQuestion()
	failed.SetError(cause.Error(), step)

	t.logger.ErrorContext(ctx, "Task failed", "task_id", record.ID, "step", step, "error", cause)

	err := t.store.Save(ctx, withState(record, failed), record.Version)
	if err != nil {
		return t.handleSaveError(ctx, record, err)
	}

	return record, nil
}

func (t *Task) get(ctx context.Context, id string) (*models.TaskRecord, error) {
	record, err := t.store.Get(ctx, id)
	if err != nil {
		if persistence.IsTaskNotFound(err) || errors.Is(err, persistence.ErrInvalidTaskID) {
			return nil, notFound(persistence.NewTaskError("Get", id, persistence.ErrTaskNotFound))
		}

		return nil, err
	}

	return record, nil
}

func (t *Task) dispatch(ctx context.Context, record *models.TaskRecord) error {
	err := t.dispatcher.Dispatch(ctx, record)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to dispatch task", "task_id", record.ID, "error", err)

		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}

	return nil
}

// withState swaps the state of record in place and returns it, ready for Save.
func withState(record *models.TaskRecord, state *models.WorkflowState) *models.TaskRecord {
	record.State = state.Clone()

	return record
}

func hasValues(record map[string]string) bool {
	for value := range maps.Values(record) {
		if strings.TrimSpace(value) != "" {
			return true
		}
	}

	return false
}
