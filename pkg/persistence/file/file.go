// Package file provides a file-based task store. Each task is one JSON document under
// <root>/tasks; writes go through a temporary file and a rename.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dukex/formflow/pkg/models"
	"github.com/dukex/formflow/pkg/persistence"
)

// Persistence implements persistence.TaskStore on the local file system. It serialises
// writes within one process; run a single process per root.
type Persistence struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
}

// NewPersistence creates the store under root. A "file://" prefix is accepted.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	err := os.MkdirAll(filepath.Join(cleanRoot, "tasks"), 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create task directory: %w", err)
	}

	return &Persistence{
		root: cleanRoot,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the task directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	_, err := os.Stat(filepath.Join(p.root, "tasks"))
	if err != nil {
		return fmt.Errorf("task directory unavailable: %w", err)
	}

	return nil
}

func (p *Persistence) Create(_ context.Context, record *models.TaskRecord) error {
	stored, err := persistence.Prepare(record, p.now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, err = os.Stat(p.path(record.ID))
	if err == nil {
		return persistence.NewTaskError("Create", record.ID, persistence.ErrTaskAlreadyExists)
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return persistence.NewTaskError("Create", record.ID, err)
	}

	err = p.write(stored)
	if err != nil {
		return persistence.NewTaskError("Create", record.ID, err)
	}

	persistence.Apply(record, stored)

	return nil
}

func (p *Persistence) Get(_ context.Context, id string) (*models.TaskRecord, error) {
	err := persistence.ValidateID(id)
	if err != nil {
		return nil, persistence.NewTaskError("Get", id, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.read(id)
}

func (p *Persistence) Save(_ context.Context, record *models.TaskRecord, expectedVersion int64) error {
	err := persistence.ValidateID(record.ID)
	if err != nil {
		return persistence.NewTaskError("Save", record.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.read(record.ID)
	if err != nil {
		return err
	}

	if current.Version != expectedVersion {
		return persistence.NewTaskError("Save", record.ID,
			fmt.Errorf("%w: stored version %d, expected %d", persistence.ErrVersionConflict, current.Version, expectedVersion))
	}

	stored := persistence.Stamp(record, expectedVersion, p.now())
	stored.CreatedAt = current.CreatedAt

	err = p.write(stored)
	if err != nil {
		return persistence.NewTaskError("Save", record.ID, err)
	}

	persistence.Apply(record, stored)

	return nil
}

func (p *Persistence) ListStale(_ context.Context, status models.TaskStatus, cutoff time.Time) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	root := os.DirFS(filepath.Join(p.root, "tasks"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list task files: %w", err)
	}

	ids := make([]string, 0)

	for _, file := range jsonFiles {
		record, err := p.read(strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, err
		}

		if record.Status == status && record.UpdatedAt.Before(cutoff) {
			ids = append(ids, record.ID)
		}
	}

	slices.Sort(ids)

	return ids, nil
}

func (p *Persistence) path(id string) string {
	return filepath.Join(p.root, "tasks", id+".json")
}

func (p *Persistence) read(id string) (*models.TaskRecord, error) {
	data, err := os.ReadFile(p.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewTaskError("Get", id, persistence.ErrTaskNotFound)
		}

		return nil, persistence.NewTaskError("Get", id, err)
	}

	var record models.TaskRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, persistence.NewTaskError("Get", id, fmt.Errorf("failed to decode task: %w", err))
	}

	return &record, nil
}

func (p *Persistence) write(record *models.TaskRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Join(p.root, "tasks"), record.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}

	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write task: %w", err)
	}

	err = os.Rename(tmp.Name(), p.path(record.ID))
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace task: %w", err)
	}

	return nil
}

var _ persistence.TaskStore = (*Persistence)(nil)
