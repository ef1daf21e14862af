// Package render turns a consolidated record into the final artifact of a task.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// ContentTypePDF is the content type of PDF artifacts.
const ContentTypePDF = "application/pdf"

// ErrRenderFailed indicates the artifact could not be produced.
var ErrRenderFailed = errors.New("render failed")

// Line is one labelled value printed on the document.
type Line struct {
	Label string
	Value string
}

// Document is the content of the artifact.
type Document struct {
	Title  string
	Lines  []Line
	Footer string
}

// Renderer produces an artifact from a document.
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
	ContentType() string
}

// PDFRenderer lays the document out on A4 pages.
type PDFRenderer struct {
	font string
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{font: "Helvetica"}
}

func (r *PDFRenderer) ContentType() string {
	return ContentTypePDF
}

func (r *PDFRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("formflow", true)
	pdf.AddPage()

	pdf.SetFont(r.font, "B", 16)
	pdf.CellFormat(0, 12, tr(doc.Title), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	for _, line := range doc.Lines {
		pdf.SetFont(r.font, "B", 11)
		pdf.CellFormat(60, 8, tr(line.Label), "B", 0, "L", false, 0, "")
		pdf.SetFont(r.font, "", 11)
		pdf.CellFormat(0, 8, tr(line.Value), "B", 1, "L", false, 0, "")
	}

	if doc.Footer != "" {
		pdf.Ln(10)
		pdf.SetFont(r.font, "I", 9)
		pdf.MultiCell(0, 5, tr(doc.Footer), "", "L", false)
	}

	var buf bytes.Buffer

	err = pdf.Output(&buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	return buf.Bytes(), nil
}
