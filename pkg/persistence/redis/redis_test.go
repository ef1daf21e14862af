//go:build integration

package redis_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/formflow/pkg/persistence"
	"github.com/dukex/formflow/pkg/persistence/redis"
	"github.com/dukex/formflow/pkg/persistence/storetest"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestPersistence(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)

	_, err = redis.NewPersistence(ctx, logger, url)
	require.NoError(t, err)

	storetest.Run(t, func(t *testing.T) persistence.TaskStore {
		t.Helper()

		opts, err := goredis.ParseURL(url)
		require.NoError(t, err)

		// a fresh prefix per test keeps the status indexes isolated
		store := redis.NewPersistenceWithClient(logger, goredis.NewClient(opts), "test-"+uuid.NewString())

		t.Cleanup(func() {
			_ = store.Close(context.Background())
		})

		return store
	})
}
