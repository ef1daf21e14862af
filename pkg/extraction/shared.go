package extraction

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/formflow/pkg/cache"
	"github.com/dukex/formflow/pkg/models"
)

// Shared is a process-wide extraction client built on first use. The first call checks
// that the service is healthy; Close releases the connections.
type Shared struct {
	client *cache.Lazy[*Client]
}

// NewShared returns a Shared client for the service at baseURL.
func NewShared(baseURL string, timeout time.Duration, logger *slog.Logger) *Shared {
	init := func(ctx context.Context) (*Client, error) {
		client := NewClient(baseURL, timeout)

		err := client.HealthCheck(ctx)
		if err != nil {
			client.Close()

			return nil, err
		}

		logger.InfoContext(ctx, "Extraction service ready", "url", baseURL)

		return client, nil
	}

	teardown := func(_ context.Context, client *Client) error {
		client.Close()

		return nil
	}

	return &Shared{client: cache.NewLazy(init, teardown)}
}

func (s *Shared) Extract(ctx context.Context, doc models.InputDocument) (map[string]string, error) {
	client, err := s.client.Get(ctx)
	if err != nil {
		return nil, err
	}

	return client.Extract(ctx, doc)
}

func (s *Shared) Classify(ctx context.Context, doc models.InputDocument) (string, error) {
	client, err := s.client.Get(ctx)
	if err != nil {
		return "", err
	}

	return client.Classify(ctx, doc)
}

func (s *Shared) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
