package formfill

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/formflow/pkg/extraction"
	"github.com/dukex/formflow/pkg/models"
	"github.com/dukex/formflow/pkg/render"
	"github.com/dukex/formflow/pkg/schema"
)

// Document classes, highest trust first.
const (
	KindIdentityCard = "carte_identite"
	KindPassport     = "passeport"
	KindTaxNotice    = "avis_imposition"
	KindProofAddress = "justificatif_domicile"
)

var errNoInputs = errors.New("no input documents or seeded values")

var kindPriority = map[string]int{
	KindIdentityCard: 0,
	KindPassport:     1,
	KindTaxNotice:    2,
	KindProofAddress: 3,
}

func priority(kind string) int {
	if p, ok := kindPriority[kind]; ok {
		return p
	}

	if kind == extraction.KindUnknown || kind == "" {
		return 100
	}

	return 10
}

// extract runs the extractor on every input not extracted yet, so a re-dispatched run
// does not call the service again for documents it already read.
func (r *Recipe) extract(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error) {
	if len(state.Inputs) == 0 && len(state.Record) == 0 {
		return nil, errNoInputs
	}

	if state.Extractions == nil {
		state.Extractions = make(map[string]map[string]string, len(state.Inputs))
	}

	for _, doc := range state.Inputs {
		if _, done := state.Extractions[doc.Name]; done {
			continue
		}

		fields, err := r.extractor.Extract(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", doc.Name, err)
		}

		state.Extractions[doc.Name] = fields

		r.logger.DebugContext(ctx, "Document extracted", "document", doc.Name, "fields", len(fields))
	}

	return state, nil
}

func (r *Recipe) classify(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error) {
	if state.Classifications == nil {
		state.Classifications = make(map[string]string, len(state.Inputs))
	}

	for _, doc := range state.Inputs {
		if _, done := state.Classifications[doc.Name]; done {
			continue
		}

		kind, err := r.classifier.Classify(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("classify %s: %w", doc.Name, err)
		}

		state.Classifications[doc.Name] = kind
	}

	return state, nil
}

// consolidate fills the empty schema fields of the record from the extractions. Documents
// are consulted by class priority, then in submission order; the first non-blank value
// wins. Values already in the record, seeded by the client or answered by the user, are
// kept, and human answers always override.
func (r *Recipe) consolidate(_ context.Context, state *models.WorkflowState) (*models.WorkflowState, error) {
	if state.Record == nil {
		state.Record = make(map[string]string)
	}

	docs := slices.Clone(state.Inputs)
	slices.SortStableFunc(docs, func(a, b models.InputDocument) int {
		return cmp.Compare(priority(state.Classifications[a.Name]), priority(state.Classifications[b.Name]))
	})

	for _, field := range r.fields.Fields {
		if schema.HasValue(state.Record, field.Name) {
			continue
		}

		for _, doc := range docs {
			value := strings.TrimSpace(state.Extractions[doc.Name][field.Name])
			if value != "" {
				state.Record[field.Name] = value

				break
			}
		}
	}

	for name, value := range state.HumanResponse {
		state.Record[name] = value
	}

	return state, nil
}

func (r *Recipe) validate(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error) {
	gaps := r.fields.Classify(state.Record)
	state.MissingCritical = gaps.Critical
	state.MissingOptional = gaps.Optional

	r.logger.DebugContext(ctx, "Record validated",
		"missing_critical", gaps.Critical,
		"missing_optional", gaps.Optional,
	)

	return state, nil
}

func (r *Recipe) render(ctx context.Context, state *models.WorkflowState) (*models.WorkflowState, error) {
	doc := render.Document{
		Title: strings.ToUpper(r.fields.Name),
		Lines: make([]render.Line, 0, len(r.fields.Fields)),
	}

	for _, field := range r.fields.Fields {
		value, ok := state.Value(field.Name)
		if !ok {
			continue
		}

		doc.Lines = append(doc.Lines, render.Line{Label: field.DisplayName(), Value: value})
	}

	place, hasPlace := state.Value("lieu_signature")
	date, hasDate := state.Value("date_signature")

	switch {
	case hasPlace && hasDate:
		doc.Footer = fmt.Sprintf("Fait à %s, le %s", place, date)
	case hasPlace:
		doc.Footer = "Fait à " + place
	case hasDate:
		doc.Footer = "Fait le " + date
	}

	payload, err := r.renderer.Render(ctx, doc)
	if err != nil {
		return nil, err
	}

	state.SetArtifact(payload, r.renderer.ContentType())

	return state, nil
}
