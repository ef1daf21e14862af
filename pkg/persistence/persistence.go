// Package persistence provides the task store shared by the API and the worker.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/formflow/pkg/models"
)

// TaskStore persists one TaskRecord per task id. Every write replaces the whole record.
//
// Save is a compare-and-swap on the record version: it succeeds only when the stored
// version equals expectedVersion, and then stores the record with the next version, the
// status derived from its state and a fresh UpdatedAt. On success the caller's record is
// updated with the stored values.
type TaskStore interface {
	Create(ctx context.Context, record *models.TaskRecord) error
	Get(ctx context.Context, id string) (*models.TaskRecord, error)
	Save(ctx context.Context, record *models.TaskRecord, expectedVersion int64) error

	// ListStale returns the ids of tasks in status that were last written before cutoff.
	ListStale(ctx context.Context, status models.TaskStatus, cutoff time.Time) ([]string, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Prepare returns the copy of record that Create should store: version 1, derived status
// and both timestamps set.
func Prepare(record *models.TaskRecord, now time.Time) (*models.TaskRecord, error) {
	err := ValidateID(record.ID)
	if err != nil {
		return nil, NewTaskError("Create", record.ID, err)
	}

	stored := record.Clone()
	stored.Version = 1
	stored.Status = models.DeriveStatus(stored.State)

	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}

	stored.UpdatedAt = now

	return stored, nil
}

// Stamp returns the copy of record that Save should store over version expectedVersion.
func Stamp(record *models.TaskRecord, expectedVersion int64, now time.Time) *models.TaskRecord {
	stored := record.Clone()
	stored.Version = expectedVersion + 1
	stored.Status = models.DeriveStatus(stored.State)
	stored.UpdatedAt = now

	return stored
}

// Apply copies the stored metadata back into the caller's record.
func Apply(record, stored *models.TaskRecord) {
	record.Version = stored.Version
	record.Status = stored.Status
	record.CreatedAt = stored.CreatedAt
	record.UpdatedAt = stored.UpdatedAt
}
