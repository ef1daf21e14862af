// Package extraction defines the document extraction and classification collaborators used
// by recipe steps.
package extraction

import (
	"context"
	"errors"
	"strings"

	"github.com/dukex/formflow/pkg/models"
)

// KindUnknown is the class of a document the classifier could not recognise.
const KindUnknown = "unknown"

// ErrExtractionFailed indicates the extraction service could not process a document.
var ErrExtractionFailed = errors.New("extraction failed")

// Extractor pulls raw field values out of one input document.
type Extractor interface {
	Extract(ctx context.Context, doc models.InputDocument) (map[string]string, error)
}

// Classifier decides the kind of one input document.
type Classifier interface {
	Classify(ctx context.Context, doc models.InputDocument) (string, error)
}

// Inline reads values the client already embedded in the input documents. It never calls
// out and is the default when no extraction service is configured.
type Inline struct{}

func NewInline() Inline {
	return Inline{}
}

func (Inline) Extract(_ context.Context, doc models.InputDocument) (map[string]string, error) {
	fields := make(map[string]string, len(doc.Fields))

	for k, v := range doc.Fields {
		if strings.TrimSpace(v) != "" {
			fields[k] = strings.TrimSpace(v)
		}
	}

	return fields, nil
}

func (Inline) Classify(_ context.Context, doc models.InputDocument) (string, error) {
	kind := strings.TrimSpace(strings.ToLower(doc.Kind))
	if kind == "" {
		return KindUnknown, nil
	}

	return kind, nil
}
