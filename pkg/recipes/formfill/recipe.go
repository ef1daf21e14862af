// Package formfill is the form-filling recipe: it extracts values from identity and tax
// documents, consolidates them into one record, asks the user for whatever required value
// is still missing and renders the filled form as a PDF.
package formfill

import (
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/dukex/formflow/pkg/extraction"
	"github.com/dukex/formflow/pkg/models"
	"github.com/dukex/formflow/pkg/protocol"
	"github.com/dukex/formflow/pkg/render"
	"github.com/dukex/formflow/pkg/schema"
	"github.com/dukex/formflow/pkg/workflow"
)

// ID is the recipe identifier used in task records.
const ID = "formfill"

const (
	StepExtract     = "extract"
	StepClassify    = "classify"
	StepConsolidate = "consolidate"
	StepValidate    = "validate"
	StepRender      = "render"
)

//go:embed schema.yaml
var defaultSchema []byte

// DefaultSchema returns the built-in attestation schema.
func DefaultSchema() (*schema.Schema, error) {
	return schema.Parse(defaultSchema)
}

// Recipe is the form-filling workflow.
type Recipe struct {
	fields     *schema.Schema
	extractor  extraction.Extractor
	classifier extraction.Classifier
	renderer   render.Renderer
	logger     *slog.Logger
	graph      *workflow.Graph
}

// New builds the recipe. Missing collaborators fall back to the inline extractor and the
// PDF renderer.
func New(deps protocol.Dependencies) (*Recipe, error) {
	fields := deps.Schema
	if fields == nil {
		var err error

		fields, err = DefaultSchema()
		if err != nil {
			return nil, err
		}
	}

	r := &Recipe{
		fields:     fields,
		extractor:  deps.Extractor,
		classifier: deps.Classifier,
		renderer:   deps.Renderer,
		logger:     deps.Logger,
	}

	if r.extractor == nil {
		r.extractor = extraction.NewInline()
	}

	if r.classifier == nil {
		r.classifier = extraction.NewInline()
	}

	if r.renderer == nil {
		r.renderer = render.NewPDFRenderer()
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}

	r.logger = r.logger.With("module", "recipe", "recipe", ID)
	r.graph = r.buildGraph()

	err := r.graph.Validate()
	if err != nil {
		return nil, fmt.Errorf("formfill: %w", err)
	}

	return r, nil
}

func (r *Recipe) ID() string {
	return ID
}

func (r *Recipe) Schema() *schema.Schema {
	return r.fields
}

func (r *Recipe) Graph() *workflow.Graph {
	return r.graph
}

func (r *Recipe) buildGraph() *workflow.Graph {
	missingCritical := func(s *models.WorkflowState) bool {
		return len(s.MissingCritical) > 0
	}

	return workflow.NewGraph(StepExtract).
		AddStep(workflow.NewStep(StepExtract, r.extract), workflow.GoTo(workflow.Always, StepClassify)).
		AddStep(workflow.NewStep(StepClassify, r.classify), workflow.GoTo(workflow.Always, StepConsolidate)).
		AddStep(workflow.NewStep(StepConsolidate, r.consolidate), workflow.GoTo(workflow.Always, StepValidate)).
		AddStep(workflow.NewStep(StepValidate, r.validate),
			workflow.Pause(missingCritical, r.question),
			workflow.Terminal(workflow.Always),
		).
		SetCompletion(workflow.NewStep(StepRender, r.render))
}

// question lists the critical gaps, plus the optional ones until the user chose to skip them.
func (r *Recipe) question(state *models.WorkflowState) string {
	gaps := schema.Gaps{Critical: state.MissingCritical, Optional: state.MissingOptional}

	return r.fields.Question(gaps, !state.SkipOptional)
}

// Factory registers the recipe.
type Factory struct{}

func NewFactory() Factory {
	return Factory{}
}

func (Factory) ID() string {
	return ID
}

func (Factory) Name() string {
	return "Form filling"
}

func (Factory) Description() string {
	return "Extracts identity and tax fields from documents, asks for missing values and renders the filled form as PDF."
}

func (Factory) Create(deps protocol.Dependencies) (protocol.Recipe, error) {
	return New(deps)
}

var (
	_ protocol.RecipeFactory = Factory{}
	_ protocol.Recipe        = (*Recipe)(nil)
)
