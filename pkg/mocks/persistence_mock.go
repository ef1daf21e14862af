package mocks

import (
	"context"
	"time"

	"github.com/dukex/formflow/pkg/models"
	"github.com/dukex/formflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockTaskStore is a mock implementation of persistence.TaskStore.
type MockTaskStore struct {
	mock.Mock
}

func (m *MockTaskStore) Create(ctx context.Context, record *models.TaskRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockTaskStore) Get(ctx context.Context, id string) (*models.TaskRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.TaskRecord), args.Error(1)
}

func (m *MockTaskStore) Save(ctx context.Context, record *models.TaskRecord, expectedVersion int64) error {
	args := m.Called(ctx, record, expectedVersion)

	return args.Error(0)
}

func (m *MockTaskStore) ListStale(ctx context.Context, status models.TaskStatus, cutoff time.Time) ([]string, error) {
	args := m.Called(ctx, status, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *MockTaskStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockTaskStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

var _ persistence.TaskStore = (*MockTaskStore)(nil)
