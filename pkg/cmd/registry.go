// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/formflow/pkg/extraction"
	"github.com/dukex/formflow/pkg/protocol"
	"github.com/dukex/formflow/pkg/recipes/formfill"
	"github.com/dukex/formflow/pkg/registry"
	"github.com/dukex/formflow/pkg/render"
	"github.com/dukex/formflow/pkg/schema"
)

// DependenciesConfig selects the collaborators handed to recipes.
type DependenciesConfig struct {
	// ExtractionURL is the extraction service. Empty uses the fields embedded in the inputs.
	ExtractionURL     string
	ExtractionTimeout time.Duration

	// SchemaFile overrides the built-in field schema.
	SchemaFile string
}

// NewDependencies builds the recipe collaborators. The returned close function releases
// the extraction client.
func NewDependencies(logger *slog.Logger, config DependenciesConfig) (protocol.Dependencies, func(context.Context) error, error) {
	deps := protocol.Dependencies{
		Logger:   logger,
		Renderer: render.NewPDFRenderer(),
	}

	closer := func(context.Context) error { return nil }

	if config.SchemaFile != "" {
		fields, err := schema.LoadFile(config.SchemaFile)
		if err != nil {
			return deps, closer, fmt.Errorf("failed to load schema: %w", err)
		}

		deps.Schema = fields
	}

	if config.ExtractionURL == "" {
		inline := extraction.NewInline()
		deps.Extractor = inline
		deps.Classifier = inline

		return deps, closer, nil
	}

	timeout := config.ExtractionTimeout
	if timeout <= 0 {
		timeout = extraction.DefaultTimeout
	}

	shared := extraction.NewShared(config.ExtractionURL, timeout, logger.With("module", "extraction"))
	deps.Extractor = shared
	deps.Classifier = shared

	return deps, shared.Close, nil
}

func registerRecipePlugins(reg *registry.Registry, pluginsPath string) error {
	recipePlugins, err := reg.LoadRecipePlugins(pluginsPath)
	if err != nil {
		return err
	}

	for _, plugin := range recipePlugins {
		reg.RegisterRecipe(plugin)
	}

	return nil
}

func registerNativeRecipes(reg *registry.Registry) {
	reg.RegisterRecipe(formfill.NewFactory())
}

// NewRegistry registers the native recipes and the plugins found under pluginsPath.
// Plugins may replace a native recipe by reusing its id.
func NewRegistry(log *slog.Logger, pluginsPath string, deps protocol.Dependencies) (*registry.Registry, error) {
	reg := registry.NewRegistry(log, deps)

	registerNativeRecipes(reg)

	err := registerRecipePlugins(reg, pluginsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe plugins: %w", err)
	}

	return reg, nil
}
