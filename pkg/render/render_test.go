package render

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFRenderer_Render(t *testing.T) {
	t.Parallel()

	r := NewPDFRenderer()
	assert.Equal(t, ContentTypePDF, r.ContentType())

	out, err := r.Render(context.Background(), Document{
		Title: "Attestation sur l'honneur",
		Lines: []Line{
			{Label: "Nom", Value: "Durand"},
			{Label: "Prénom", Value: "Élodie"},
			{Label: "Date de naissance", Value: "29/01/1998"},
		},
		Footer: "Fait à Lyon",
	})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Contains(t, string(out), "%%EOF")
}

func TestPDFRenderer_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPDFRenderer().Render(ctx, Document{Title: "x"})
	require.ErrorIs(t, err, context.Canceled)
}
