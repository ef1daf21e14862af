// Package postgresql provides a PostgreSQL task store.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/formflow/pkg/models"
	"github.com/dukex/formflow/pkg/persistence"
	"github.com/dukex/formflow/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Persistence implements persistence.TaskStore for PostgreSQL. Saves are a single
// conditional UPDATE on the version column.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPersistence creates a new PostgreSQL persistence layer and runs its migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:     database,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Create(ctx context.Context, record *models.TaskRecord) error {
	stored, err := persistence.Prepare(record, p.now())
	if err != nil {
		return err
	}

	state, err := json.Marshal(stored.State)
	if err != nil {
		return persistence.NewTaskError("Create", record.ID, fmt.Errorf("failed to encode state: %w", err))
	}

	query := `
		INSERT INTO tasks (id, recipe, version, status, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = p.db.ExecContext(ctx, query,
		stored.ID, stored.Recipe, stored.Version, string(stored.Status), state, stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewTaskError("Create", record.ID, persistence.ErrTaskAlreadyExists)
		}

		return persistence.NewTaskError("Create", record.ID, fmt.Errorf("failed to insert task: %w", err))
	}

	persistence.Apply(record, stored)

	return nil
}

func (p *Persistence) Get(ctx context.Context, id string) (*models.TaskRecord, error) {
	err := persistence.ValidateID(id)
	if err != nil {
		return nil, persistence.NewTaskError("Get", id, err)
	}

	query := `
		SELECT
			id
		  , recipe
		  , version
		  , status
		  , state
		  , created_at
		  , updated_at
		FROM tasks
		WHERE id = $1
	`

	var (
		record models.TaskRecord
		status string
		state  []byte
	)

	err = p.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID, &record.Recipe, &record.Version, &status, &state, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTaskError("Get", id, persistence.ErrTaskNotFound)
		}

		return nil, persistence.NewTaskError("Get", id, fmt.Errorf("failed to scan task: %w", err))
	}

	record.Status = models.TaskStatus(status)

	err = json.Unmarshal(state, &record.State)
	if err != nil {
		return nil, persistence.NewTaskError("Get", id, fmt.Errorf("failed to decode state: %w", err))
	}

	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()

	return &record, nil
}

func (p *Persistence) Save(ctx context.Context, record *models.TaskRecord, expectedVersion int64) error {
	err := persistence.ValidateID(record.ID)
	if err != nil {
		return persistence.NewTaskError("Save", record.ID, err)
	}

	stored := persistence.Stamp(record, expectedVersion, p.now())

	state, err := json.Marshal(stored.State)
	if err != nil {
		return persistence.NewTaskError("Save", record.ID, fmt.Errorf("failed to encode state: %w", err))
	}

	query := `
		UPDATE tasks
		SET version = $1, status = $2, state = $3, updated_at = $4
		WHERE id = $5 AND version = $6
		RETURNING created_at
	`

	err = p.db.QueryRowContext(ctx, query,
		stored.Version, string(stored.Status), state, stored.UpdatedAt, stored.ID, expectedVersion,
	).Scan(&stored.CreatedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return persistence.NewTaskError("Save", record.ID, fmt.Errorf("failed to update task: %w", err))
		}

		return persistence.NewTaskError("Save", record.ID, p.missOrConflict(ctx, record.ID, expectedVersion))
	}

	stored.CreatedAt = stored.CreatedAt.UTC()
	persistence.Apply(record, stored)

	return nil
}

// missOrConflict explains why a conditional update touched no row.
func (p *Persistence) missOrConflict(ctx context.Context, id string, expectedVersion int64) error {
	var version int64

	err := p.db.QueryRowContext(ctx, "SELECT version FROM tasks WHERE id = $1", id).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrTaskNotFound
		}

		return fmt.Errorf("failed to read task version: %w", err)
	}

	return fmt.Errorf("%w: stored version %d, expected %d", persistence.ErrVersionConflict, version, expectedVersion)
}

func (p *Persistence) ListStale(ctx context.Context, status models.TaskStatus, cutoff time.Time) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT id FROM tasks WHERE status = $1 AND updated_at < $2 ORDER BY id", string(status), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale tasks: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	ids := make([]string, 0)

	for rows.Next() {
		var id string

		err = rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task id: %w", err)
		}

		ids = append(ids, id)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating stale tasks: %w", err)
	}

	return ids, nil
}

var _ persistence.TaskStore = (*Persistence)(nil)
