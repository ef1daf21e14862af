package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/formflow/pkg/eventbus"
	"github.com/dukex/formflow/pkg/events"
	"github.com/dukex/formflow/pkg/mocks"
	"github.com/dukex/formflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	record *models.TaskRecord
	err    error
	ids    []string
}

func (s *stubExecutor) Execute(_ context.Context, id string) (*models.TaskRecord, error) {
	s.ids = append(s.ids, id)

	return s.record, s.err
}

func record(status models.TaskStatus, mutate func(*models.WorkflowState)) *models.TaskRecord {
	state := models.NewWorkflowState(nil, nil)
	mutate(state)

	return &models.TaskRecord{ID: "task-1", Version: 4, Status: status, State: state}
}

func dispatched() *events.TaskDispatched {
	return &events.TaskDispatched{BaseEvent: events.NewBaseEvent(events.TaskDispatchedEvent, "task-1")}
}

func TestSettled(t *testing.T) {
	t.Parallel()

	paused := record(models.TaskStatusWaitingForInput, func(s *models.WorkflowState) {
		s.MissingCritical = []string{"date_naissance"}
		s.SetQuestion("Please provide date_naissance.")
	})
	completed := record(models.TaskStatusCompleted, func(s *models.WorkflowState) {
		s.MissingOptional = []string{"telephone"}
		s.SetArtifact([]byte("%PDF-"), "application/pdf")
	})
	failed := record(models.TaskStatusFailed, func(s *models.WorkflowState) {
		s.SetError("extraction service unavailable", "extract")
	})

	tests := []struct {
		name   string
		record *models.TaskRecord
		want   eventbus.Event
	}{
		{name: "paused", record: paused, want: events.TaskPaused{}},
		{name: "completed", record: completed, want: events.TaskCompleted{}},
		{name: "failed", record: failed, want: events.TaskFailed{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			event := Settled(tt.record, "worker-1", time.Second)
			require.NotNil(t, event)
			assert.Equal(t, tt.want.GetType(), event.GetType())
		})
	}

	pausedEvent := Settled(paused, "worker-1", 0).(events.TaskPaused)
	assert.Equal(t, "Please provide date_naissance.", pausedEvent.Question)
	assert.Equal(t, []string{"date_naissance"}, pausedEvent.MissingCritical)
	assert.Equal(t, "worker-1", pausedEvent.WorkerID)
	assert.Equal(t, int64(4), pausedEvent.Version)

	failedEvent := Settled(failed, "worker-1", 0).(events.TaskFailed)
	assert.Equal(t, "extract", failedEvent.FailedStep)
	assert.Equal(t, "extraction service unavailable", failedEvent.Error)

	assert.Nil(t, Settled(record(models.TaskStatusProcessing, func(*models.WorkflowState) {}), "worker-1", 0))
}

func TestManager_HandleTaskDispatched(t *testing.T) {
	t.Parallel()

	completed := record(models.TaskStatusCompleted, func(s *models.WorkflowState) {
		s.SetArtifact([]byte("%PDF-"), "application/pdf")
	})

	executor := &stubExecutor{record: completed}
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "task-1", mock.AnythingOfType("events.TaskCompleted")).Return(nil)

	w := NewManager("worker-1", executor, bus, slog.New(slog.DiscardHandler))

	require.NoError(t, w.handleTaskDispatched(context.Background(), dispatched()))
	assert.Equal(t, []string{"task-1"}, executor.ids)
	bus.AssertExpectations(t)
}

func TestManager_HandleTaskDispatched_NothingToDo(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	w := NewManager("worker-1", &stubExecutor{}, bus, slog.New(slog.DiscardHandler))

	require.NoError(t, w.handleTaskDispatched(context.Background(), dispatched()))
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_HandleTaskDispatched_TransientFailure(t *testing.T) {
	t.Parallel()

	unavailable := errors.New("store unavailable")
	w := NewManager("worker-1", &stubExecutor{err: unavailable}, &mocks.MockEventBus{}, slog.New(slog.DiscardHandler))

	err := w.handleTaskDispatched(context.Background(), dispatched())
	require.ErrorIs(t, err, unavailable)
}

func TestManager_HandleTaskDispatched_PublishFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	failed := record(models.TaskStatusFailed, func(s *models.WorkflowState) {
		s.SetError("boom", "render")
	})

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "task-1", mock.Anything).Return(errors.New("broker unavailable"))

	w := NewManager("worker-1", &stubExecutor{record: failed}, bus, slog.New(slog.DiscardHandler))

	require.NoError(t, w.handleTaskDispatched(context.Background(), dispatched()))
}

func TestManager_IgnoresUnexpectedPayload(t *testing.T) {
	t.Parallel()

	executor := &stubExecutor{}
	w := NewManager("worker-1", executor, &mocks.MockEventBus{}, slog.New(slog.DiscardHandler))

	require.NoError(t, w.handleTaskDispatched(context.Background(), "not an event"))
	assert.Empty(t, executor.ids)
}

func TestManager_Start(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Handle", events.TaskDispatchedEvent, mock.Anything).Return(nil)
	bus.On("Subscribe", mock.Anything).Return(nil)

	w := NewManager("worker-1", &stubExecutor{}, bus, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, w.Start(ctx))
	bus.AssertExpectations(t)
}
