package bleveindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gigsearch/internal/lexical"
	"github.com/dshills/gigsearch/pkg/types"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func ids(hits []types.TextHit) []int64 {
	out := make([]int64, len(hits))
	for i, h := range hits {
		out[i] = h.FreelancerID
	}
	return out
}

func seed(t *testing.T, idx *Index) {
	t.Helper()
	docs := []types.LexicalDocument{
		{FreelancerID: 1, Title: "Graphic Designer", Skills: "logo branding illustrator"},
		{FreelancerID: 2, Title: "Video Editor", Skills: "premiere after-effects"},
		{FreelancerID: 3, Title: "Illustrator", Skills: "logo concept art"},
	}
	for _, d := range docs {
		require.NoError(t, idx.IndexDocument(context.Background(), d))
	}
}

func TestSearchText(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx)
	ctx := context.Background()

	hits, err := idx.SearchText(ctx, "logo", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 3}, ids(hits))

	hits, err = idx.SearchText(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.SearchText(ctx, `title:video OR "x`, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(hits))
}

func TestSearchTextTiesByIDDesc(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()
	for _, id := range []int64{4, 9, 6} {
		require.NoError(t, idx.IndexDocument(ctx, types.LexicalDocument{FreelancerID: id, Title: "Singer"}))
	}

	hits, err := idx.SearchText(ctx, "singer", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 6, 4}, ids(hits))
}

func TestIndexDocumentReplacesAndRemove(t *testing.T) {
	idx := newTestIndex(t)
	seed(t, idx)
	ctx := context.Background()

	require.NoError(t, idx.IndexDocument(ctx, types.LexicalDocument{FreelancerID: 1, Title: "Motion Designer"}))
	n, err := idx.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := idx.SearchText(ctx, "logo", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids(hits))

	doc, err := idx.GetDocument(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Motion Designer", doc.Title)
	assert.Empty(t, doc.Skills)

	require.NoError(t, idx.RemoveDocument(ctx, 3))
	require.NoError(t, idx.RemoveDocument(ctx, 3))
	_, err = idx.GetDocument(ctx, 3)
	assert.ErrorIs(t, err, lexical.ErrNotFound)

	assert.ErrorIs(t, idx.IndexDocument(ctx, types.LexicalDocument{}), types.ErrInvalidFreelancerID)
}

func TestOpenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical.bleve")
	ctx := context.Background()

	idx, err := Open(path, nil)
	require.NoError(t, err)
	seed(t, idx)
	require.NoError(t, idx.Close())

	idx, err = Open(path, nil)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	n, err := idx.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, path, idx.Path())
}
