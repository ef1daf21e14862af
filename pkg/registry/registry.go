// Package registry keeps the recipes a process can run, native or loaded from plugins.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/formflow/pkg/protocol"
)

var (
	ErrRecipeNotRegistered = errors.New("recipe not registered")
	ErrInvalidPlugin       = errors.New("invalid plugin")
)

type Registry struct {
	logger *slog.Logger
	deps   protocol.Dependencies

	mu        sync.Mutex
	factories map[string]protocol.RecipeFactory
	recipes   map[string]protocol.Recipe
}

// NewRegistry returns an empty registry. deps are handed to every recipe it builds.
func NewRegistry(log *slog.Logger, deps protocol.Dependencies) *Registry {
	if deps.Logger == nil {
		deps.Logger = log
	}

	return &Registry{
		logger:    log.With("module", "registry"),
		deps:      deps,
		factories: make(map[string]protocol.RecipeFactory),
		recipes:   make(map[string]protocol.Recipe),
	}
}

func (r *Registry) LoadRecipePlugins(pluginsPath string) ([]protocol.RecipeFactory, error) {
	return loadPlugin[protocol.RecipeFactory](r.logger, pluginsPath, "Recipe")
}

// RegisterRecipe adds the factory, replacing any factory with the same id.
func (r *Registry) RegisterRecipe(factory protocol.RecipeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
	delete(r.recipes, factory.ID())
}

// IsRegistered reports whether a recipe id can be run.
func (r *Registry) IsRegistered(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.factories[id]

	return ok
}

// Recipe returns the recipe for id, building it on first use.
func (r *Registry) Recipe(id string) (protocol.Recipe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if recipe, ok := r.recipes[id]; ok {
		return recipe, nil
	}

	factory, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRecipeNotRegistered, id)
	}

	recipe, err := factory.Create(r.deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create recipe %q: %w", id, err)
	}

	r.recipes[id] = recipe

	return recipe, nil
}

// Factories returns the registered factories sorted by id.
func (r *Registry) Factories() []protocol.RecipeFactory {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]protocol.RecipeFactory, 0, len(r.factories))
	for _, factory := range r.factories {
		list = append(list, factory)
	}

	slices.SortFunc(list, func(a, b protocol.RecipeFactory) int {
		return strings.Compare(a.ID(), b.ID())
	})

	return list
}

// loadPlugin opens every .so under <pluginsPath>/<symbol>s and looks up the exported symbol.
// A missing directory yields no plugins.
func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	if pluginsPath == "" {
		return nil, nil
	}

	rootPath := filepath.Join(pluginsPath, strings.ToLower(symbolName)+"s")

	_, err := os.Stat(rootPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", rootPath), slog.String("type", symbolName))
	l.Info("Loading plugins", "count", len(pluginPathList))

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(filepath.Join(rootPath, p))
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", ErrInvalidPlugin, p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPlugin, p, err)
		}

		castV, ok := v.(T)
		if !ok {
			// plugins usually export a variable, so Lookup returns a pointer to it
			ptr, isPtr := v.(*T)
			if !isPtr {
				return nil, fmt.Errorf("%w: %s: symbol %s has type %T", ErrInvalidPlugin, p, symbolName, v)
			}

			castV = *ptr
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
