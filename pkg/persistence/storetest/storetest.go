// Package storetest holds the behaviour every persistence.TaskStore must satisfy.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/formflow/pkg/models"
	"github.com/dukex/formflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one test.
type Factory func(t *testing.T) persistence.TaskStore

func newRecord() *models.TaskRecord {
	return &models.TaskRecord{
		ID:     uuid.NewString(),
		Recipe: "formfill",
		State: models.NewWorkflowState(
			[]models.InputDocument{{Name: "cni.jpg", Kind: "carte_identite", Fields: map[string]string{"nom": "Durand"}}},
			map[string]string{"prenom": "Élodie"},
		),
	}
}

// Run exercises a TaskStore implementation.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("create and get", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		record := newRecord()
		require.NoError(t, store.Create(ctx, record))
		assert.Equal(t, int64(1), record.Version)
		assert.Equal(t, models.TaskStatusProcessing, record.Status)
		assert.False(t, record.UpdatedAt.IsZero())

		got, err := store.Get(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.ID, got.ID)
		assert.Equal(t, "formfill", got.Recipe)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, models.TaskStatusProcessing, got.Status)
		assert.Equal(t, record.State.Record, got.State.Record)
		assert.Equal(t, record.State.Inputs, got.State.Inputs)
	})

	t.Run("create twice", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		record := newRecord()
		require.NoError(t, store.Create(ctx, record))

		err := store.Create(ctx, record)
		require.ErrorIs(t, err, persistence.ErrTaskAlreadyExists)
	})

	t.Run("get missing", func(t *testing.T) {
		store := factory(t)

		_, err := store.Get(context.Background(), uuid.NewString())
		require.ErrorIs(t, err, persistence.ErrTaskNotFound)
	})

	t.Run("save bumps version and derives status", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		record := newRecord()
		require.NoError(t, store.Create(ctx, record))

		record.State.SetQuestion("Please provide date_naissance.")
		record.State.MissingCritical = []string{"date_naissance"}

		require.NoError(t, store.Save(ctx, record, 1))
		assert.Equal(t, int64(2), record.Version)
		assert.Equal(t, models.TaskStatusWaitingForInput, record.Status)

		got, err := store.Get(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		assert.Equal(t, models.TaskStatusWaitingForInput, got.Status)
		require.NotNil(t, got.State.Question)
		assert.Equal(t, "Please provide date_naissance.", *got.State.Question)
		assert.Equal(t, []string{"date_naissance"}, got.State.MissingCritical)

		got.State.ClearQuestion()
		got.State.SetArtifact([]byte("%PDF-1.3"), "application/pdf")
		require.NoError(t, store.Save(ctx, got, 2))

		final, err := store.Get(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusCompleted, final.Status)
		assert.Equal(t, []byte("%PDF-1.3"), final.State.Artifact)
	})

	t.Run("save with stale version", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		record := newRecord()
		require.NoError(t, store.Create(ctx, record))
		require.NoError(t, store.Save(ctx, record, 1))

		stale := record.Clone()
		stale.State.SetError("boom", "extract")

		err := store.Save(ctx, stale, 1)
		require.ErrorIs(t, err, persistence.ErrVersionConflict)
		assert.Equal(t, int64(2), stale.Version, "failed save leaves the caller record alone")

		got, err := store.Get(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		assert.Nil(t, got.State.Error)
	})

	t.Run("save missing", func(t *testing.T) {
		store := factory(t)

		err := store.Save(context.Background(), newRecord(), 1)
		require.ErrorIs(t, err, persistence.ErrTaskNotFound)
	})

	t.Run("concurrent saves of one version", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		record := newRecord()
		require.NoError(t, store.Create(ctx, record))

		answers := []string{"29/01/1998", "30/01/1998"}
		results := make([]error, len(answers))

		var wg sync.WaitGroup

		for i, answer := range answers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				candidate := record.Clone()
				candidate.State.Record["date_naissance"] = answer
				candidate.State.HumanResponse = map[string]string{"date_naissance": answer}

				results[i] = store.Save(ctx, candidate, 1)
			}()
		}

		wg.Wait()

		winners := 0

		for _, err := range results {
			if err == nil {
				winners++

				continue
			}

			require.ErrorIs(t, err, persistence.ErrVersionConflict)
		}

		require.Equal(t, 1, winners)

		got, err := store.Get(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		assert.Contains(t, answers, got.State.Record["date_naissance"])
		assert.Equal(t, got.State.Record["date_naissance"], got.State.HumanResponse["date_naissance"])
	})

	t.Run("list stale", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		processing := newRecord()
		require.NoError(t, store.Create(ctx, processing))

		paused := newRecord()
		require.NoError(t, store.Create(ctx, paused))

		paused.State.SetQuestion("?")
		require.NoError(t, store.Save(ctx, paused, 1))

		ids, err := store.ListStale(ctx, models.TaskStatusProcessing, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, []string{processing.ID}, ids)

		ids, err = store.ListStale(ctx, models.TaskStatusProcessing, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("health check", func(t *testing.T) {
		store := factory(t)

		require.NoError(t, store.HealthCheck(context.Background()))
	})
}
