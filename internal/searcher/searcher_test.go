package searcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gigsearch/internal/embedder/embeddertest"
	"github.com/dshills/gigsearch/internal/indexer"
	"github.com/dshills/gigsearch/internal/semantic"
	"github.com/dshills/gigsearch/internal/storage"
	"github.com/dshills/gigsearch/pkg/types"
)

// fakeText serves fixed lexical hits and counts calls
type fakeText struct {
	hits      []types.TextHit
	err       error
	calls     atomic.Int32
	lastLimit atomic.Int32
}

func (f *fakeText) SearchText(_ context.Context, _ string, limit int) ([]types.TextHit, error) {
	f.calls.Add(1)
	f.lastLimit.Store(int32(limit))
	return f.hits, f.err
}

// fakeVector serves fixed semantic hits and counts calls
type fakeVector struct {
	hits  []types.VectorHit
	err   error
	calls atomic.Int32
}

func (f *fakeVector) Search(context.Context, string, int) ([]types.VectorHit, error) {
	f.calls.Add(1)
	return f.hits, f.err
}

type testEnv struct {
	store    *storage.SQLiteStorage
	semantic *semantic.Index
	vocab    *embeddertest.Vocab
	indexer  *indexer.Indexer
	searcher *Searcher
}

var scenarioProfiles = []*types.FreelancerProfile{
	{FreelancerID: 1, Title: "Graphic Designer", Skills: "logo branding illustrator", Category: "Graphic Designer",
		MinBudget: 100, MaxBudget: 400, Experience: 5, Location: "Mumbai", Rating: 4.5},
	{FreelancerID: 2, Title: "Video Editor", Skills: "premiere after-effects", Category: "Video Editor",
		MinBudget: 300, MaxBudget: 900, Experience: 3, Location: "Pune", Rating: 4.8},
	{FreelancerID: 3, Title: "Illustrator", Skills: "logo concept art", Category: "Illustrator",
		MinBudget: 50, MaxBudget: 200, Experience: 7, Location: "Navi Mumbai", Rating: 4.5},
}

// setupTestSearcher wires a searcher over in-memory storage and a vocabulary embedder
func setupTestSearcher(t *testing.T, profiles ...*types.FreelancerProfile) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vocab := embeddertest.NewVocab(256)
	sem := semantic.New(semantic.Config{}, vocab, nil)
	idx := indexer.New(store, store, sem, indexer.Config{Workers: 1}, nil)

	ctx := context.Background()
	for _, p := range profiles {
		require.NoError(t, store.UpsertProfile(ctx, p))
		require.NoError(t, idx.ReindexOne(ctx, p.FreelancerID).Err())
	}

	s, err := NewSearcher(store, store, sem, Config{}, nil)
	require.NoError(t, err)
	return &testEnv{store: store, semantic: sem, vocab: vocab, indexer: idx, searcher: s}
}

func TestNewSearcher(t *testing.T) {
	s, err := NewSearcher(nil, nil, nil, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, s.cfg.DefaultLimit)
	assert.Equal(t, DefaultMaxLimit, s.cfg.MaxLimit)
	assert.Equal(t, DefaultRRFConstant, s.cfg.RRFConstant)
	assert.NotNil(t, s.cache)

	s, err = NewSearcher(nil, nil, nil, Config{CacheSize: -1}, nil)
	require.NoError(t, err)
	assert.Nil(t, s.cache)
	assert.Zero(t, s.CacheLen())
}

func TestSearch_LogoScenario(t *testing.T) {
	env := setupTestSearcher(t, scenarioProfiles...)

	resp, err := env.searcher.Search(context.Background(), SearchRequest{Query: "logo", Limit: 5})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 3}, resp.IDs())
	assert.NotContains(t, resp.IDs(), int64(2))
	assert.Equal(t, SearchModeHybrid, resp.Mode)
	assert.False(t, resp.Degraded)
	assert.Equal(t, 2, resp.LexicalHits)
	assert.Equal(t, 2, resp.SemanticHits)

	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
		assert.NotZero(t, r.LexicalRank)
		assert.NotZero(t, r.SemanticRank)
	}
}

func TestSearch_BrowseByCategory(t *testing.T) {
	env := setupTestSearcher(t, scenarioProfiles...)

	resp, err := env.searcher.Search(context.Background(), SearchRequest{
		Filters: types.Filters{Category: types.String("Video Editor")},
		Limit:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, resp.IDs())
	assert.Equal(t, SearchModeBrowse, resp.Mode)
}

func TestSearch_BrowseOrdering(t *testing.T) {
	env := setupTestSearcher(t, scenarioProfiles...)

	resp, err := env.searcher.Search(context.Background(), SearchRequest{Query: "   "})
	require.NoError(t, err)
	// rating desc, then experience desc
	assert.Equal(t, []int64{2, 3, 1}, resp.IDs())
}

func TestSearch_DeletePropagation(t *testing.T) {
	env := setupTestSearcher(t, scenarioProfiles...)
	ctx := context.Background()

	require.NoError(t, env.store.DeleteProfile(ctx, 1))
	res := env.indexer.ReindexOne(ctx, 1)
	require.True(t, res.OK())
	require.True(t, res.Deleted)
	env.searcher.InvalidateCache()

	resp, err := env.searcher.Search(ctx, SearchRequest{Query: "logo", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, resp.IDs())
}

func TestSearch_ValidationBeforeIndexes(t *testing.T) {
	lex := &fakeText{}
	sem := &fakeVector{}
	s, err := NewSearcher(nil, lex, sem, Config{}, nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  SearchRequest
	}{
		{"UnknownCategory", SearchRequest{Query: "logo", Filters: types.Filters{Category: types.String("Plumber")}}},
		{"NegativeBudget", SearchRequest{Query: "logo", Filters: types.Filters{MinBudget: types.Float64(-1)}}},
		{"InvertedBudget", SearchRequest{Query: "logo", Filters: types.Filters{MinBudget: types.Float64(500), MaxBudget: types.Float64(100)}}},
		{"NegativeLimit", SearchRequest{Query: "logo", Limit: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Search(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, types.IsValidation(err), "got %v", err)
		})
	}
	assert.Zero(t, lex.calls.Load())
	assert.Zero(t, sem.calls.Load())
}

func TestSearch_LimitClamping(t *testing.T) {
	env := setupTestSearcher(t)
	lex := &fakeText{}
	s, err := NewSearcher(env.store, lex, &fakeVector{}, Config{}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name          string
		limit         int
		wantCandidate int32
	}{
		{"ZeroLimit_UsesDefault", 0, 80},    // 20 * 4
		{"SmallLimit_MinCandidates", 5, 50}, // max(20, 50)
		{"ExcessiveLimit_CapsAt100", 500, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Search(ctx, SearchRequest{Query: "x", Limit: tt.limit, SkipCache: true})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCandidate, lex.lastLimit.Load())
		})
	}
}

func TestSearch_SemanticUnavailable(t *testing.T) {
	profiles := append([]*types.FreelancerProfile{}, scenarioProfiles...)
	profiles = append(profiles, &types.FreelancerProfile{
		FreelancerID: 4, Title: "Web Developer", Skills: "javascript react", Category: "Content Creator", Rating: 4,
	})
	env := setupTestSearcher(t, profiles...)
	env.vocab.SetFailure(embeddertest.ErrUnavailable)

	resp, err := env.searcher.Search(context.Background(), SearchRequest{Query: "javascript", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, resp.IDs())
	assert.True(t, resp.Degraded)
	assert.Equal(t, SearchModeLexical, resp.Mode)
	assert.Zero(t, resp.SemanticHits)

	resp, err = env.searcher.Search(context.Background(), SearchRequest{Query: "logo", Limit: 5})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 3}, resp.IDs())
	assert.Zero(t, env.searcher.CacheLen(), "degraded responses are not cached")
}

func TestSearch_LexicalUnavailable(t *testing.T) {
	env := setupTestSearcher(t, scenarioProfiles...)
	lex := &fakeText{err: errors.New("fts down")}
	s, err := NewSearcher(env.store, lex, env.semantic, Config{}, nil)
	require.NoError(t, err)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "logo", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, SearchModeSemantic, resp.Mode)
	assert.True(t, resp.Degraded)
	assert.Equal(t, []int64{3, 1}, resp.IDs())
}

func TestSearch_BothUnavailable(t *testing.T) {
	lexErr := errors.New("fts down")
	s, err := NewSearcher(nil, &fakeText{err: lexErr}, &fakeVector{err: types.ErrIndexUnavailable}, Config{}, nil)
	require.NoError(t, err)

	_, err = s.Search(context.Background(), SearchRequest{Query: "logo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, lexErr)
	assert.ErrorIs(t, err, types.ErrIndexUnavailable)
	assert.False(t, types.IsValidation(err))
}

func TestSearch_FilterCorrectness(t *testing.T) {
	profiles := []*types.FreelancerProfile{
		{FreelancerID: 1, Title: "Wedding Photographer", Category: "Photographer", MinBudget: 100, MaxBudget: 500, Location: "Mumbai"},
		{FreelancerID: 2, Title: "Product Photographer", Category: "photographer ", MinBudget: 50, MaxBudget: 150, Location: "Pune"},
		{FreelancerID: 3, Title: "Photographer turned Editor", Category: "Video Editor", MinBudget: 200, MaxBudget: 800, Location: "Delhi"},
	}
	env := setupTestSearcher(t, profiles...)
	ctx := context.Background()

	resp, err := env.searcher.Search(ctx, SearchRequest{Query: "photographer", Filters: types.Filters{Category: types.String("Photographer")}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, resp.IDs())
	for _, id := range resp.IDs() {
		p, err := env.store.GetProfile(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "photographer", types.NormalizeCategory(p.Category))
	}

	resp, err = env.searcher.Search(ctx, SearchRequest{Query: "photographer", Filters: types.Filters{MinBudget: types.Float64(300)}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 3}, resp.IDs())
	for _, id := range resp.IDs() {
		p, err := env.store.GetProfile(ctx, id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.MaxBudget, 300.0)
	}

	resp, err = env.searcher.Search(ctx, SearchRequest{Query: "photographer", Filters: types.Filters{Location: types.String("pUnE")}})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, resp.IDs())
}

func TestSearch_StaleCandidatesDropped(t *testing.T) {
	env := setupTestSearcher(t, scenarioProfiles...)
	lex := &fakeText{hits: []types.TextHit{{FreelancerID: 99, Score: 9}, {FreelancerID: 3, Score: 5}}}
	s, err := NewSearcher(env.store, lex, &fakeVector{}, Config{}, nil)
	require.NoError(t, err)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, resp.IDs())
	assert.Equal(t, 1, resp.StaleDropped)
	assert.Equal(t, 1, resp.Results[0].Rank)
}

func TestSearch_TruncatesToLimit(t *testing.T) {
	env := setupTestSearcher(t, scenarioProfiles...)
	lex := &fakeText{hits: []types.TextHit{{FreelancerID: 2}, {FreelancerID: 1}, {FreelancerID: 3}}}
	s, err := NewSearcher(env.store, lex, &fakeVector{}, Config{}, nil)
	require.NoError(t, err)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "q", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, resp.IDs())
}

func TestSearchWithCache(t *testing.T) {
	env := setupTestSearcher(t, scenarioProfiles...)
	ctx := context.Background()
	req := SearchRequest{Query: "logo", Limit: 5}

	first, err := env.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 1, env.searcher.CacheLen())

	second, err := env.searcher.Search(ctx, SearchRequest{Query: "  LOGO ", Limit: 5})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.IDs(), second.IDs())

	// mutating a returned response does not leak into the cache
	second.Results[0].FreelancerID = 777
	third, err := env.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.IDs(), third.IDs())

	skipped, err := env.searcher.Search(ctx, SearchRequest{Query: "logo", Limit: 5, SkipCache: true})
	require.NoError(t, err)
	assert.False(t, skipped.CacheHit)

	env.searcher.InvalidateCache()
	assert.Zero(t, env.searcher.CacheLen())
	fresh, err := env.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, fresh.CacheHit)
}

func TestStoreInCache_SkipsAfterInvalidation(t *testing.T) {
	s, err := NewSearcher(nil, nil, nil, Config{}, nil)
	require.NoError(t, err)
	key := computeQueryHash(SearchRequest{Query: "q", Limit: 1})

	gen := s.generation.Load()
	s.InvalidateCache()
	s.storeInCache(key, gen, &SearchResponse{Mode: SearchModeHybrid})
	assert.Zero(t, s.CacheLen())

	s.storeInCache(key, s.generation.Load(), &SearchResponse{Mode: SearchModeHybrid})
	assert.Equal(t, 1, s.CacheLen())
	assert.NotNil(t, s.checkCache(key))
}

func TestCheckCache_Expired(t *testing.T) {
	s, err := NewSearcher(nil, nil, nil, Config{}, nil)
	require.NoError(t, err)
	key := computeQueryHash(SearchRequest{Query: "q"})

	s.cache.Add(key, &cacheEntry{response: &SearchResponse{}})
	assert.Nil(t, s.checkCache(key))
	assert.Zero(t, s.CacheLen(), "expired entries are evicted on lookup")
}

func TestComputeQueryHash(t *testing.T) {
	base := SearchRequest{Query: "logo", Limit: 5}
	same := computeQueryHash(base)

	assert.Equal(t, same, computeQueryHash(SearchRequest{Query: "LOGO", Limit: 5}))
	assert.NotEqual(t, same, computeQueryHash(SearchRequest{Query: "logo", Limit: 6}))
	assert.NotEqual(t, same, computeQueryHash(SearchRequest{Query: "logo", Limit: 5,
		Filters: types.Filters{Category: types.String("Illustrator")}}))
	assert.NotEqual(t, same, computeQueryHash(SearchRequest{Query: "logo design", Limit: 5}))
}

func BenchmarkSearchHybrid(b *testing.B) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(b, err)
	defer func() { _ = store.Close() }()

	sem := semantic.New(semantic.Config{}, embeddertest.NewVocab(256), nil)
	idx := indexer.New(store, store, sem, indexer.Config{}, nil)
	ctx := context.Background()
	for _, p := range scenarioProfiles {
		require.NoError(b, store.UpsertProfile(ctx, p))
		require.NoError(b, idx.ReindexOne(ctx, p.FreelancerID).Err())
	}
	s, err := NewSearcher(store, store, sem, Config{CacheSize: -1}, nil)
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search(ctx, SearchRequest{Query: "logo art"}); err != nil {
			b.Fatal(err)
		}
	}
}
