// Package protocol declares the contracts between the engine and pluggable recipes.
package protocol

import (
	"log/slog"

	"github.com/dukex/formflow/pkg/extraction"
	"github.com/dukex/formflow/pkg/render"
	"github.com/dukex/formflow/pkg/schema"
	"github.com/dukex/formflow/pkg/workflow"
)

// Recipe is a workflow definition together with the field schema it fills.
type Recipe interface {
	ID() string
	Schema() *schema.Schema
	Graph() *workflow.Graph
}

// RecipeFactory builds a Recipe from the shared collaborators of the process. Plugins
// export a value implementing it under the symbol "Recipe".
type RecipeFactory interface {
	ID() string
	Name() string
	Description() string
	Create(deps Dependencies) (Recipe, error)
}

// Dependencies contains the collaborators recipes are built from.
type Dependencies struct {
	Logger     *slog.Logger
	Extractor  extraction.Extractor
	Classifier extraction.Classifier
	Renderer   render.Renderer

	// Schema overrides the recipe's built-in field schema when set.
	Schema *schema.Schema
}
