package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/formflow/pkg/persistence"
	"github.com/dukex/formflow/pkg/persistence/file"
	"github.com/dukex/formflow/pkg/persistence/postgresql"
	"github.com/dukex/formflow/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "redis", "rediss", "postgres", "postgresql"}

// NewTaskStore opens the task store named by the URL scheme. A URL without a known scheme
// is a directory for the file store.
func NewTaskStore(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.TaskStore, error) {
	provider := parsePersistenceProvider(databaseURL)

	logger.InfoContext(ctx, "Opening task store", "provider", provider)

	switch provider {
	case "redis", "rediss":
		return redis.NewPersistence(ctx, logger, databaseURL)
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		store, err := file.NewPersistence(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open file store: %w", err)
		}

		return store, nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
