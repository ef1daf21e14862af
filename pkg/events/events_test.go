package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TaskDispatchedEvent, TaskDispatched{}.GetType())
	assert.Equal(t, TaskPausedEvent, TaskPaused{}.GetType())
	assert.Equal(t, TaskCompletedEvent, TaskCompleted{}.GetType())
	assert.Equal(t, TaskFailedEvent, TaskFailed{}.GetType())
}

func TestTaskDispatched_CarriesNoState(t *testing.T) {
	t.Parallel()

	event := TaskDispatched{
		BaseEvent: NewBaseEvent(TaskDispatchedEvent, "task-123"),
		Recipe:    "formfill",
		Version:   3,
	}

	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())

	jsonData, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"task.dispatched"`)
	assert.Contains(t, string(jsonData), `"task_id":"task-123"`)
	assert.Contains(t, string(jsonData), `"version":3`)
	assert.NotContains(t, string(jsonData), "state")
}
