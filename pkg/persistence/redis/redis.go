// Package redis provides a Redis task store. Each task is one JSON value; a sorted set per
// status indexes task ids by last update time for the stale-task sweeper.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/dukex/formflow/pkg/models"
	"github.com/dukex/formflow/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "formflow"

// Persistence implements persistence.TaskStore on Redis. Saves are optimistic
// transactions: WATCH the task key, compare versions, then MULTI/EXEC.
type Persistence struct {
	client redis.UniversalClient
	logger *slog.Logger
	prefix string
	now    func() time.Time
}

// NewPersistence connects to the Redis server at databaseURL (redis:// or rediss://).
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return NewPersistenceWithClient(logger, client, defaultPrefix), nil
}

// NewPersistenceWithClient wraps an existing client. Keys are namespaced by prefix.
func NewPersistenceWithClient(logger *slog.Logger, client redis.UniversalClient, prefix string) *Persistence {
	return &Persistence{
		client: client,
		logger: logger,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	return nil
}

func (p *Persistence) Create(ctx context.Context, record *models.TaskRecord) error {
	stored, err := persistence.Prepare(record, p.now())
	if err != nil {
		return err
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		return persistence.NewTaskError("Create", record.ID, fmt.Errorf("failed to encode task: %w", err))
	}

	key := p.taskKey(record.ID)

	err = p.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}

		if exists > 0 {
			return persistence.ErrTaskAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.ZAdd(ctx, p.statusKey(stored.Status), redis.Z{Score: score(stored.UpdatedAt), Member: stored.ID})

			return nil
		})

		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			err = persistence.ErrTaskAlreadyExists
		}

		return persistence.NewTaskError("Create", record.ID, err)
	}

	persistence.Apply(record, stored)

	return nil
}

func (p *Persistence) Get(ctx context.Context, id string) (*models.TaskRecord, error) {
	err := persistence.ValidateID(id)
	if err != nil {
		return nil, persistence.NewTaskError("Get", id, err)
	}

	record, err := decode(p.client.Get(ctx, p.taskKey(id)))
	if err != nil {
		return nil, persistence.NewTaskError("Get", id, err)
	}

	return record, nil
}

func (p *Persistence) Save(ctx context.Context, record *models.TaskRecord, expectedVersion int64) error {
	err := persistence.ValidateID(record.ID)
	if err != nil {
		return persistence.NewTaskError("Save", record.ID, err)
	}

	key := p.taskKey(record.ID)

	var stored *models.TaskRecord

	err = p.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := decode(tx.Get(ctx, key))
		if err != nil {
			return err
		}

		if current.Version != expectedVersion {
			return fmt.Errorf("%w: stored version %d, expected %d", persistence.ErrVersionConflict, current.Version, expectedVersion)
		}

		stored = persistence.Stamp(record, expectedVersion, p.now())
		stored.CreatedAt = current.CreatedAt

		payload, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("failed to encode task: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)

			if current.Status != stored.Status {
				pipe.ZRem(ctx, p.statusKey(current.Status), stored.ID)
			}

			pipe.ZAdd(ctx, p.statusKey(stored.Status), redis.Z{Score: score(stored.UpdatedAt), Member: stored.ID})

			return nil
		})

		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			err = fmt.Errorf("%w: concurrent write", persistence.ErrVersionConflict)
		}

		return persistence.NewTaskError("Save", record.ID, err)
	}

	persistence.Apply(record, stored)

	return nil
}

func (p *Persistence) ListStale(ctx context.Context, status models.TaskStatus, cutoff time.Time) ([]string, error) {
	ids, err := p.client.ZRangeByScore(ctx, p.statusKey(status), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list stale tasks: %w", err)
	}

	slices.Sort(ids)

	return ids, nil
}

func (p *Persistence) taskKey(id string) string {
	return p.prefix + ":task:" + id
}

func (p *Persistence) statusKey(status models.TaskStatus) string {
	return p.prefix + ":status:" + string(status)
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func decode(cmd *redis.StringCmd) (*models.TaskRecord, error) {
	data, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.ErrTaskNotFound
		}

		return nil, err
	}

	var record models.TaskRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}

	return &record, nil
}

var _ persistence.TaskStore = (*Persistence)(nil)
