package persistence_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/formflow/pkg/models"
	"github.com/dukex/formflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		t.Parallel()

		notFound := persistence.NewTaskError("Get", "task-123", persistence.ErrTaskNotFound)
		conflict := persistence.NewTaskError("Save", "task-123", persistence.ErrVersionConflict)

		assert.True(t, persistence.IsTaskNotFound(notFound))
		assert.False(t, persistence.IsTaskNotFound(conflict))
		assert.True(t, persistence.IsVersionConflict(conflict))
		assert.True(t, errors.Is(notFound, persistence.ErrTaskNotFound))
		assert.False(t, persistence.IsTaskAlreadyExists(notFound))
	})

	t.Run("task error contains context", func(t *testing.T) {
		t.Parallel()

		err := persistence.NewTaskError("Save", "task-123", persistence.ErrVersionConflict)

		assert.Contains(t, err.Error(), "Save")
		assert.Contains(t, err.Error(), "task-123")
		assert.Contains(t, err.Error(), "task version conflict")
	})
}

func TestValidateID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id    string
		valid bool
	}{
		{id: "0b8f2a56-7a4c-4c59-9d0e-3f1f6f1d2b11", valid: true},
		{id: "task_1", valid: true},
		{id: "", valid: false},
		{id: "../etc/passwd", valid: false},
		{id: "a/b", valid: false},
		{id: "with space", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()

			err := persistence.ValidateID(tt.id)
			if tt.valid {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, persistence.ErrInvalidTaskID)
			}
		})
	}
}

func TestPrepareAndStamp(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	record := &models.TaskRecord{ID: "task-1", Recipe: "formfill", Version: 9, Status: models.TaskStatusCompleted, State: models.NewWorkflowState(nil, nil)}

	created, err := persistence.Prepare(record, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, models.TaskStatusProcessing, created.Status)
	assert.Equal(t, now, created.CreatedAt)
	assert.Equal(t, int64(9), record.Version, "caller record untouched")

	created.State.SetQuestion("?")

	saved := persistence.Stamp(created, 1, now.Add(time.Minute))
	assert.Equal(t, int64(2), saved.Version)
	assert.Equal(t, models.TaskStatusWaitingForInput, saved.Status)
	assert.Equal(t, now, saved.CreatedAt)

	persistence.Apply(record, saved)
	assert.Equal(t, int64(2), record.Version)
	assert.Equal(t, models.TaskStatusWaitingForInput, record.Status)

	_, err = persistence.Prepare(&models.TaskRecord{ID: "../x"}, now)
	require.ErrorIs(t, err, persistence.ErrInvalidTaskID)
}
