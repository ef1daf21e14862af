package mocks

import (
	"context"

	"github.com/dukex/formflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockDispatcher is a mock implementation of dispatcher.Dispatcher.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, record *models.TaskRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}
