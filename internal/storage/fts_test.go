package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gigsearch/internal/lexical"
	"github.com/dshills/gigsearch/pkg/types"
)

func indexDocs(t *testing.T, s *SQLiteStorage, docs ...types.LexicalDocument) {
	t.Helper()
	for _, d := range docs {
		require.NoError(t, s.IndexDocument(context.Background(), d))
	}
}

func hitIDs(hits []types.TextHit) []int64 {
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.FreelancerID
	}
	return ids
}

var scenarioDocs = []types.LexicalDocument{
	{FreelancerID: 1, Title: "Graphic Designer", Skills: "logo branding illustrator"},
	{FreelancerID: 2, Title: "Video Editor", Skills: "premiere after-effects"},
	{FreelancerID: 3, Title: "Illustrator", Skills: "logo concept art"},
}

func TestSearchTextScenario(t *testing.T) {
	s := setupTestDB(t)
	indexDocs(t, s, scenarioDocs...)

	hits, err := s.SearchText(context.Background(), "logo", 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 3}, hitIDs(hits))
	for _, h := range hits {
		assert.Greater(t, h.Score, 0.0)
	}
}

func TestSearchTextEmptyQuery(t *testing.T) {
	s := setupTestDB(t)
	indexDocs(t, s, scenarioDocs...)

	for _, q := range []string{"", "   ", "\t\n", "!!! ---"} {
		hits, err := s.SearchText(context.Background(), q, 5)
		require.NoError(t, err)
		assert.Empty(t, hits, "query %q", q)
	}
}

func TestSearchTextOperatorsAreLiteral(t *testing.T) {
	s := setupTestDB(t)
	indexDocs(t, s, scenarioDocs...)

	// FTS5 syntax in user input must not error or change semantics
	for _, q := range []string{`logo" OR "x`, "title:logo", "logo*", "NOT logo", "(logo", "NEAR(logo art)"} {
		_, err := s.SearchText(context.Background(), q, 5)
		assert.NoError(t, err, "query %q", q)
	}
}

func TestSearchTextRankingAndTies(t *testing.T) {
	s := setupTestDB(t)
	indexDocs(t, s,
		types.LexicalDocument{FreelancerID: 10, Title: "Singer", Bio: "jazz"},
		types.LexicalDocument{FreelancerID: 11, Title: "Singer", Bio: "jazz"},
		types.LexicalDocument{FreelancerID: 12, Title: "Dancer", Bio: "jazz jazz jazz ballet"},
	)

	hits, err := s.SearchText(context.Background(), "singer", 10)
	require.NoError(t, err)
	// identical documents tie and fall back to id descending
	assert.Equal(t, []int64{11, 10}, hitIDs(hits))

	hits, err = s.SearchText(context.Background(), "jazz", 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestSearchTextMatchesPortfolio(t *testing.T) {
	s := setupTestDB(t)
	indexDocs(t, s, types.LexicalDocument{
		FreelancerID: 5, Title: "Photographer", PortfolioText: "Wedding shoot candid moments",
	})

	hits, err := s.SearchText(context.Background(), "wedding", 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, hitIDs(hits))
}

func TestSearchTextLimit(t *testing.T) {
	s := setupTestDB(t)
	indexDocs(t, s, scenarioDocs...)

	hits, err := s.SearchText(context.Background(), "logo video", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = s.SearchText(context.Background(), "logo", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndexDocumentReplaces(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	indexDocs(t, s, scenarioDocs...)

	indexDocs(t, s, types.LexicalDocument{FreelancerID: 1, Title: "Motion Designer", Skills: "animation"})

	count, err := s.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	hits, err := s.SearchText(ctx, "logo", 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, hitIDs(hits))

	doc, err := s.GetDocument(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Motion Designer", doc.Title)
}

func TestIndexDocumentIdempotent(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	doc := scenarioDocs[0]

	indexDocs(t, s, doc)
	first, err := s.GetDocument(ctx, doc.FreelancerID)
	require.NoError(t, err)

	indexDocs(t, s, doc)
	second, err := s.GetDocument(ctx, doc.FreelancerID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, doc, *second)
}

func TestRemoveDocument(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	indexDocs(t, s, scenarioDocs...)

	require.NoError(t, s.RemoveDocument(ctx, 1))
	require.NoError(t, s.RemoveDocument(ctx, 1), "removing an absent document is a no-op")
	require.NoError(t, s.RemoveDocument(ctx, 404))

	_, err := s.GetDocument(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, lexical.ErrNotFound, "not-found is backend independent")

	hits, err := s.SearchText(ctx, "logo", 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, hitIDs(hits))
}

func TestIndexDocumentRejectsInvalidID(t *testing.T) {
	s := setupTestDB(t)
	err := s.IndexDocument(context.Background(), types.LexicalDocument{FreelancerID: 0, Title: "x"})
	assert.ErrorIs(t, err, types.ErrInvalidFreelancerID)
}

func TestBuildMatchExpression(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"logo", `"logo"`},
		{"Logo  Design logo", `"logo" OR "design"`},
		{`after-effects "pro"`, `"after" OR "effects" OR "pro"`},
		{"***", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, buildMatchExpression(tt.in), "input %q", tt.in)
	}
}
