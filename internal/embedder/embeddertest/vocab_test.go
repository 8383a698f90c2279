package embeddertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gigsearch/internal/embedder"
)

func TestVocabOverlap(t *testing.T) {
	v := NewVocab(16)
	ctx := context.Background()

	q, err := v.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: "logo"})
	require.NoError(t, err)
	doc, err := v.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: "logo concept art illustrator"})
	require.NoError(t, err)
	other, err := v.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: "video editor"})
	require.NoError(t, err)

	var withDoc, withOther float32
	for i := range q.Vector {
		withDoc += q.Vector[i] * doc.Vector[i]
		withOther += q.Vector[i] * other.Vector[i]
	}
	assert.InDelta(t, 0.5, withDoc, 1e-6)
	assert.Equal(t, float32(0), withOther)
	assert.Equal(t, 3, v.Calls())
}

func TestVocabFailure(t *testing.T) {
	v := NewVocab(4)
	v.SetFailure(ErrUnavailable)
	_, err := v.GenerateEmbedding(context.Background(), embedder.EmbeddingRequest{Text: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, v.HealthCheck(context.Background()), ErrUnavailable)

	v.SetFailure(nil)
	_, err = v.GenerateEmbedding(context.Background(), embedder.EmbeddingRequest{Text: "x"})
	assert.NoError(t, err)
}
