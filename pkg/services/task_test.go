package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/formflow/pkg/mocks"
	"github.com/dukex/formflow/pkg/models"
	"github.com/dukex/formflow/pkg/persistence"
	"github.com/dukex/formflow/pkg/persistence/file"
	"github.com/dukex/formflow/pkg/protocol"
	"github.com/dukex/formflow/pkg/recipes/formfill"
	"github.com/dukex/formflow/pkg/registry"
	"github.com/dukex/formflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, models.InputDocument) (map[string]string, error) {
	return nil, errors.New("extraction service unavailable")
}

type fixture struct {
	service    *Task
	store      persistence.TaskStore
	dispatcher *mocks.MockDispatcher
}

func newFixture(t *testing.T, deps protocol.Dependencies, opts ...Option) fixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	reg := registry.NewRegistry(logger, deps)
	reg.RegisterRecipe(formfill.NewFactory())

	d := &mocks.MockDispatcher{}
	d.On("Dispatch", mock.Anything, mock.Anything).Return(nil)

	return fixture{
		service:    NewTask(store, d, reg, logger, opts...),
		store:      store,
		dispatcher: d,
	}
}

func scenarioAInputs() []models.InputDocument {
	return []models.InputDocument{
		{Name: "cni.jpg", Kind: formfill.KindIdentityCard, Fields: map[string]string{"nom": "Durand", "prenom": "Élodie"}},
		{Name: "avis.pdf", Kind: formfill.KindTaxNotice, Fields: map[string]string{"numero_fiscal": "1234567890123", "adresse": "1 rue de la Paix, Lyon"}},
	}
}

func (f fixture) createPaused(t *testing.T) *models.TaskRecord {
	t.Helper()

	ctx := context.Background()

	record, err := f.service.Create(ctx, CreateRequest{Recipe: formfill.ID, Inputs: scenarioAInputs()})
	require.NoError(t, err)

	paused, err := f.service.Execute(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, paused)
	require.Equal(t, models.TaskStatusWaitingForInput, paused.Status)

	return paused
}

func TestTask_FullLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, protocol.Dependencies{})
	ctx := context.Background()

	record, err := f.service.Create(ctx, CreateRequest{Recipe: formfill.ID, Inputs: scenarioAInputs()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.Version)
	assert.Equal(t, models.TaskStatusProcessing, record.Status)

	_, _, err = f.service.Artifact(ctx, record.ID)
	require.ErrorIs(t, err, workflow.ErrArtifactNotReady)

	paused, err := f.service.Execute(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, paused)

	status, err := f.service.Status(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusWaitingForInput, status.Status)
	assert.Equal(t, []string{"date_naissance"}, status.MissingCritical)
	require.NotNil(t, status.Question)
	assert.Contains(t, *status.Question, "date_naissance")

	_, _, err = f.service.Artifact(ctx, record.ID)
	require.ErrorIs(t, err, workflow.ErrArtifactNotReady)

	resumed, err := f.service.Resume(ctx, ResumeRequest{
		TaskID:  record.ID,
		Answers: map[string]string{"date_naissance": "29/01/1998"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusProcessing, resumed.Status)
	assert.Nil(t, resumed.Question)

	completed, err := f.service.Execute(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, completed)
	assert.Equal(t, models.TaskStatusCompleted, completed.Status)

	artifact, contentType, err := f.service.Artifact(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(artifact, []byte("%PDF-")))
	assert.Equal(t, "application/pdf", contentType)

	f.dispatcher.AssertNumberOfCalls(t, "Dispatch", 2)
}

func TestTask_CreateValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, protocol.Dependencies{})

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{name: "unknown recipe", req: CreateRequest{Recipe: "tax-return", Inputs: scenarioAInputs()}},
		{name: "nothing to work on", req: CreateRequest{Recipe: formfill.ID, Record: map[string]string{"nom": "  "}}},
		{name: "unknown field", req: CreateRequest{Recipe: formfill.ID, Record: map[string]string{"shoe_size": "42"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := f.service.Create(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}

	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestTask_CreateDispatchFailureKeepsTask(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	reg := registry.NewRegistry(logger, protocol.Dependencies{})
	reg.RegisterRecipe(formfill.NewFactory())

	d := &mocks.MockDispatcher{}
	d.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("broker unavailable"))

	service := NewTask(store, d, reg, logger)

	record, err := service.Create(context.Background(), CreateRequest{Recipe: formfill.ID, Inputs: scenarioAInputs()})
	require.ErrorIs(t, err, ErrDispatchFailed)
	require.NotNil(t, record)

	stored, err := store.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusProcessing, stored.Status)
}

func TestTask_UnknownTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t, protocol.Dependencies{})
	ctx := context.Background()

	_, err := f.service.Status(ctx, "missing")
	require.ErrorIs(t, err, workflow.ErrInvalidTaskState)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflictError(err))

	_, err = f.service.Resume(ctx, ResumeRequest{TaskID: "missing", Answers: map[string]string{"nom": "x"}})
	assert.True(t, IsNotFound(err))

	_, _, err = f.service.Artifact(ctx, "../etc/passwd")
	assert.True(t, IsNotFound(err))

	record, err := f.service.Execute(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestTask_ResumeRejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t, protocol.Dependencies{})
	ctx := context.Background()
	paused := f.createPaused(t)

	stale := paused.Version - 1

	tests := []struct {
		name      string
		req       ResumeRequest
		wantErr   error
		validated bool
	}{
		{
			name:      "empty answer",
			req:       ResumeRequest{TaskID: paused.ID},
			wantErr:   workflow.ErrInvalidResumeState,
			validated: true,
		},
		{
			name:      "unknown field",
			req:       ResumeRequest{TaskID: paused.ID, Answers: map[string]string{"shoe_size": "42"}},
			wantErr:   workflow.ErrInvalidResumeState,
			validated: true,
		},
		{
			name:      "pattern mismatch",
			req:       ResumeRequest{TaskID: paused.ID, Answers: map[string]string{"date_naissance": "1998"}},
			wantErr:   workflow.ErrInvalidResumeState,
			validated: true,
		},
		{
			name:    "stale version",
			req:     ResumeRequest{TaskID: paused.ID, Answers: map[string]string{"date_naissance": "29/01/1998"}, Version: &stale},
			wantErr: persistence.ErrVersionConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Resume(ctx, tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.validated, IsValidationError(err))
		})
	}

	status, err := f.service.Status(ctx, paused.ID)
	require.NoError(t, err)
	assert.Equal(t, paused.Version, status.Version)
	assert.Equal(t, models.TaskStatusWaitingForInput, status.Status)
}

func TestTask_ResumeNotPaused(t *testing.T) {
	t.Parallel()

	f := newFixture(t, protocol.Dependencies{})

	record, err := f.service.Create(context.Background(), CreateRequest{Recipe: formfill.ID, Inputs: scenarioAInputs()})
	require.NoError(t, err)

	_, err = f.service.Resume(context.Background(), ResumeRequest{TaskID: record.ID, Answers: map[string]string{"date_naissance": "29/01/1998"}})
	require.ErrorIs(t, err, workflow.ErrInvalidResumeState)
}

func TestTask_ResumeTerminalTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t, protocol.Dependencies{})
	ctx := context.Background()

	record, err := f.service.Create(ctx, CreateRequest{Recipe: formfill.ID, Record: map[string]string{
		"nom":            "Durand",
		"prenom":         "Élodie",
		"date_naissance": "29/01/1998",
		"numero_fiscal":  "1234567890123",
		"adresse":        "1 rue de la Paix, Lyon",
	}})
	require.NoError(t, err)

	completed, err := f.service.Execute(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusCompleted, completed.Status)

	_, err = f.service.Resume(ctx, ResumeRequest{TaskID: record.ID, Answers: map[string]string{"telephone": "0600000000"}})
	require.ErrorIs(t, err, workflow.ErrInvalidTaskState)
	assert.True(t, IsConflictError(err))
}

// A version seen before the task settled must not hide the terminal state.
func TestTask_ResumeTerminalTaskWithStaleVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	completedTask := func(t *testing.T) (fixture, string, int64) {
		t.Helper()

		f := newFixture(t, protocol.Dependencies{})
		paused := f.createPaused(t)
		seen := paused.Version

		_, err := f.service.Resume(ctx, ResumeRequest{
			TaskID:  paused.ID,
			Answers: map[string]string{"date_naissance": "29/01/1998"},
			Version: &seen,
		})
		require.NoError(t, err)

		completed, err := f.service.Execute(ctx, paused.ID)
		require.NoError(t, err)
		require.Equal(t, models.TaskStatusCompleted, completed.Status)

		return f, paused.ID, seen
	}

	failedTask := func(t *testing.T) (fixture, string, int64) {
		t.Helper()

		f := newFixture(t, protocol.Dependencies{Extractor: failingExtractor{}})

		record, err := f.service.Create(ctx, CreateRequest{Recipe: formfill.ID, Inputs: scenarioAInputs()})
		require.NoError(t, err)

		failed, err := f.service.Execute(ctx, record.ID)
		require.NoError(t, err)
		require.Equal(t, models.TaskStatusFailed, failed.Status)

		return f, record.ID, record.Version
	}

	tests := []struct {
		name  string
		setup func(t *testing.T) (fixture, string, int64)
	}{
		{name: "completed task", setup: completedTask},
		{name: "failed task", setup: failedTask},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, id, seen := tt.setup(t)

			before, err := f.store.Get(ctx, id)
			require.NoError(t, err)
			require.NotEqual(t, seen, before.Version)

			_, err = f.service.Resume(ctx, ResumeRequest{
				TaskID:  id,
				Answers: map[string]string{"telephone": "0600000000"},
				Version: &seen,
			})
			require.ErrorIs(t, err, workflow.ErrInvalidTaskState)
			assert.NotErrorIs(t, err, persistence.ErrVersionConflict)
			assert.True(t, IsConflictError(err))

			after, err := f.store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, before.Version, after.Version)
			assert.Equal(t, before.Status, after.Status)
			assert.Equal(t, before.State, after.State)
		})
	}
}

// Two answers submitted concurrently against the same version: exactly one is stored.
func TestTask_ConcurrentResume(t *testing.T) {
	t.Parallel()

	f := newFixture(t, protocol.Dependencies{})
	ctx := context.Background()
	paused := f.createPaused(t)
	version := paused.Version

	answers := []string{"29/01/1998", "30/01/1998"}
	errs := make([]error, len(answers))

	var wg sync.WaitGroup

	for i, answer := range answers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, errs[i] = f.service.Resume(ctx, ResumeRequest{
				TaskID:  paused.ID,
				Answers: map[string]string{"date_naissance": answer},
				Version: &version,
			})
		}()
	}

	wg.Wait()

	var succeeded int

	for _, err := range errs {
		if err == nil {
			succeeded++

			continue
		}

		require.ErrorIs(t, err, persistence.ErrVersionConflict)
		assert.True(t, IsConflictError(err))
	}

	assert.Equal(t, 1, succeeded)

	stored, err := f.store.Get(ctx, paused.ID)
	require.NoError(t, err)
	assert.Equal(t, version+1, stored.Version)
	assert.Contains(t, answers, stored.State.Record["date_naissance"])
}

func TestTask_ExecuteSkipsDuplicateDelivery(t *testing.T) {
	t.Parallel()

	f := newFixture(t, protocol.Dependencies{})
	paused := f.createPaused(t)

	again, err := f.service.Execute(context.Background(), paused.ID)
	require.NoError(t, err)
	assert.Nil(t, again)

	stored, err := f.store.Get(context.Background(), paused.ID)
	require.NoError(t, err)
	assert.Equal(t, paused.Version, stored.Version)
}

func TestTask_ExecuteCheckpointsEveryStep(t *testing.T) {
	t.Parallel()

	f := newFixture(t, protocol.Dependencies{})
	paused := f.createPaused(t)

	// created at 1, one checkpoint for each of the four steps before the pause, then the final save
	assert.Equal(t, int64(6), paused.Version)
	assert.Equal(t, []string{
		formfill.StepExtract, formfill.StepClassify, formfill.StepConsolidate, formfill.StepValidate,
	}, paused.State.History)
}

func TestTask_ExecuteStepFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, protocol.Dependencies{Extractor: failingExtractor{}})
	ctx := context.Background()

	record, err := f.service.Create(ctx, CreateRequest{Recipe: formfill.ID, Inputs: scenarioAInputs()})
	require.NoError(t, err)

	failed, err := f.service.Execute(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, models.TaskStatusFailed, failed.Status)

	status, err := f.service.Status(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, status.Status)
	assert.Equal(t, formfill.StepExtract, status.FailedStep)
	require.NotNil(t, status.Error)
	assert.Contains(t, *status.Error, "extraction service unavailable")

	_, _, err = f.service.Artifact(ctx, record.ID)
	require.ErrorIs(t, err, workflow.ErrInvalidTaskState)
}

func TestTask_ExecuteCancelledLeavesTaskProcessing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, protocol.Dependencies{})

	record, err := f.service.Create(context.Background(), CreateRequest{Recipe: formfill.ID, Inputs: scenarioAInputs()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.service.Execute(ctx, record.ID)
	require.ErrorIs(t, err, context.Canceled)

	stored, err := f.store.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusProcessing, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
}

func TestTask_ExecuteDropsRunOnVersionConflict(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	record := &models.TaskRecord{
		ID:      "task-1",
		Recipe:  formfill.ID,
		Version: 1,
		Status:  models.TaskStatusProcessing,
		State:   models.NewWorkflowState(scenarioAInputs(), nil),
	}

	store := &mocks.MockTaskStore{}
	store.On("Get", mock.Anything, "task-1").Return(record, nil)
	store.On("Save", mock.Anything, mock.Anything, int64(1)).
		Return(persistence.NewTaskError("Save", "task-1", persistence.ErrVersionConflict)).Once()

	reg := registry.NewRegistry(logger, protocol.Dependencies{})
	reg.RegisterRecipe(formfill.NewFactory())

	service := NewTask(store, &mocks.MockDispatcher{}, reg, logger)

	result, err := service.Execute(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Nil(t, result)

	store.AssertExpectations(t)
}

func TestTask_ExecuteStoreUnavailable(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	unavailable := errors.New("connection refused")

	store := &mocks.MockTaskStore{}
	store.On("Get", mock.Anything, "task-1").Return(nil, unavailable)

	service := NewTask(store, &mocks.MockDispatcher{}, registry.NewRegistry(logger, protocol.Dependencies{}), logger)

	_, err := service.Execute(context.Background(), "task-1")
	require.ErrorIs(t, err, unavailable)
}

func TestTask_Redispatch(t *testing.T) {
	t.Parallel()

	later := time.Now().Add(time.Hour)
	f := newFixture(t, protocol.Dependencies{}, WithClock(func() time.Time { return later }))
	ctx := context.Background()

	processing, err := f.service.Create(ctx, CreateRequest{Recipe: formfill.ID, Inputs: scenarioAInputs()})
	require.NoError(t, err)

	paused := f.createPaused(t)

	count, err := f.service.Redispatch(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	f.dispatcher.AssertCalled(t, "Dispatch", mock.Anything, mock.MatchedBy(func(r *models.TaskRecord) bool {
		return r.ID == processing.ID
	}))

	// two creations, one redispatch; the paused task is left alone
	f.dispatcher.AssertNumberOfCalls(t, "Dispatch", 3)
	assert.NotEqual(t, processing.ID, paused.ID)
}

func TestTask_RedispatchIgnoresFreshTasks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, protocol.Dependencies{})
	ctx := context.Background()

	_, err := f.service.Create(ctx, CreateRequest{Recipe: formfill.ID, Inputs: scenarioAInputs()})
	require.NoError(t, err)

	count, err := f.service.Redispatch(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTask_HealthCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(t, protocol.Dependencies{})

	message, ok := f.service.HealthCheck(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "Task store is healthy", message)
}
