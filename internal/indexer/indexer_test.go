package indexer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gigsearch/internal/embedder/embeddertest"
	"github.com/dshills/gigsearch/internal/lexical"
	"github.com/dshills/gigsearch/internal/semantic"
	"github.com/dshills/gigsearch/internal/storage"
	"github.com/dshills/gigsearch/pkg/types"
)

var errLexicalDown = errors.New("lexical down")

// flakyLexical fails IndexDocument for selected ids
type flakyLexical struct {
	lexical.Index
	mu   sync.Mutex
	fail map[int64]bool
}

func (f *flakyLexical) IndexDocument(ctx context.Context, doc types.LexicalDocument) error {
	f.mu.Lock()
	failing := f.fail[doc.FreelancerID]
	f.mu.Unlock()
	if failing {
		return errLexicalDown
	}
	return f.Index.IndexDocument(ctx, doc)
}

// brokenStore fails profile reads
type brokenStore struct {
	Store
	err error
}

func (b *brokenStore) GetProfile(context.Context, int64) (*types.FreelancerProfile, error) {
	return nil, b.err
}

type fixture struct {
	store    *storage.SQLiteStorage
	lexical  *flakyLexical
	semantic *semantic.Index
	vocab    *embeddertest.Vocab
	indexer  *Indexer
}

func setupFixture(t testing.TB) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vocab := embeddertest.NewVocab(256)
	sem := semantic.New(semantic.Config{}, vocab, nil)
	lex := &flakyLexical{Index: store, fail: map[int64]bool{}}

	return &fixture{
		store:    store,
		lexical:  lex,
		semantic: sem,
		vocab:    vocab,
		indexer:  New(store, lex, sem, Config{Workers: 2}, nil),
	}
}

func seedProfiles(t testing.TB, s *storage.SQLiteStorage) {
	t.Helper()
	ctx := context.Background()
	for _, p := range []*types.FreelancerProfile{
		{FreelancerID: 1, Title: "Graphic Designer", Skills: "logo branding illustrator", Category: "Graphic Designer", Rating: 4.5},
		{FreelancerID: 2, Title: "Video Editor", Skills: "premiere after-effects", Category: "Video Editor", Rating: 4.8},
		{FreelancerID: 3, Title: "Illustrator", Skills: "logo concept art", Category: "Illustrator", Rating: 4.5},
	} {
		require.NoError(t, s.UpsertProfile(ctx, p))
	}
}

func TestNew_DefaultWorkers(t *testing.T) {
	idx := New(nil, nil, nil, Config{}, nil)
	assert.GreaterOrEqual(t, idx.workers, 1)
	assert.NotNil(t, idx.logger)
}

func TestReindexOne_IndexesBoth(t *testing.T) {
	f := setupFixture(t)
	seedProfiles(t, f.store)
	ctx := context.Background()
	require.NoError(t, f.store.AddPortfolioItem(ctx, &types.PortfolioItem{FreelancerID: 1, Title: "Cafe", Description: "menu design"}))

	res := f.indexer.ReindexOne(ctx, 1)
	require.True(t, res.OK(), "%v", res.Err())
	assert.False(t, res.Deleted)
	assert.NoError(t, res.Err())

	doc, err := f.store.GetDocument(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Graphic Designer", doc.Title)
	assert.Equal(t, "Cafe menu design", doc.PortfolioText)

	_, ok := f.semantic.Vector(1)
	assert.True(t, ok)
}

func TestReindexOne_Idempotent(t *testing.T) {
	f := setupFixture(t)
	seedProfiles(t, f.store)
	ctx := context.Background()

	require.True(t, f.indexer.ReindexOne(ctx, 2).OK())
	doc1, err := f.store.GetDocument(ctx, 2)
	require.NoError(t, err)
	vec1, _ := f.semantic.Vector(2)

	require.True(t, f.indexer.ReindexOne(ctx, 2).OK())
	doc2, err := f.store.GetDocument(ctx, 2)
	require.NoError(t, err)
	vec2, _ := f.semantic.Vector(2)

	assert.Equal(t, doc1, doc2)
	assert.Equal(t, vec1, vec2)
}

func TestReindexOne_DeletedProfile(t *testing.T) {
	f := setupFixture(t)
	seedProfiles(t, f.store)
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		require.True(t, f.indexer.ReindexOne(ctx, id).OK())
	}

	require.NoError(t, f.store.DeleteProfile(ctx, 1))
	res := f.indexer.ReindexOne(ctx, 1)
	require.True(t, res.OK())
	assert.True(t, res.Deleted)

	_, err := f.store.GetDocument(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, ok := f.semantic.Vector(1)
	assert.False(t, ok)

	textHits, err := f.store.SearchText(ctx, "logo", 5)
	require.NoError(t, err)
	require.Len(t, textHits, 1)
	assert.Equal(t, int64(3), textHits[0].FreelancerID)

	vecHits, err := f.semantic.Search(ctx, "logo", 5)
	require.NoError(t, err)
	require.Len(t, vecHits, 1)
	assert.Equal(t, int64(3), vecHits[0].FreelancerID)

	// an id that never existed is a clean delete
	res = f.indexer.ReindexOne(ctx, 404)
	assert.True(t, res.OK())
	assert.True(t, res.Deleted)
}

func TestReindexOne_SemanticFailureIsolated(t *testing.T) {
	f := setupFixture(t)
	seedProfiles(t, f.store)
	ctx := context.Background()

	f.vocab.SetFailure(embeddertest.ErrUnavailable)
	res := f.indexer.ReindexOne(ctx, 1)
	assert.False(t, res.OK())
	assert.NoError(t, res.LexicalErr)
	assert.ErrorIs(t, res.SemanticErr, types.ErrIndexUnavailable)
	assert.ErrorIs(t, res.Err(), embeddertest.ErrUnavailable)

	_, err := f.store.GetDocument(ctx, 1)
	assert.NoError(t, err, "lexical document written despite semantic failure")
}

func TestReindexOne_LexicalFailureIsolated(t *testing.T) {
	f := setupFixture(t)
	seedProfiles(t, f.store)
	f.lexical.fail[1] = true

	res := f.indexer.ReindexOne(context.Background(), 1)
	assert.ErrorIs(t, res.LexicalErr, errLexicalDown)
	assert.NoError(t, res.SemanticErr)

	_, ok := f.semantic.Vector(1)
	assert.True(t, ok, "vector written despite lexical failure")
}

func TestReindexOne_StoreFailure(t *testing.T) {
	f := setupFixture(t)
	storeErr := errors.New("disk on fire")
	idx := New(&brokenStore{Store: f.store, err: storeErr}, f.lexical, f.semantic, Config{}, nil)

	res := idx.ReindexOne(context.Background(), 1)
	assert.ErrorIs(t, res.LexicalErr, storeErr)
	assert.ErrorIs(t, res.SemanticErr, storeErr)
	assert.False(t, res.Deleted)
}

func TestReindexOne_InvalidID(t *testing.T) {
	f := setupFixture(t)
	res := f.indexer.ReindexOne(context.Background(), 0)
	assert.ErrorIs(t, res.LexicalErr, types.ErrInvalidFreelancerID)
	assert.ErrorIs(t, res.SemanticErr, types.ErrInvalidFreelancerID)
}

func TestResult_Err(t *testing.T) {
	assert.NoError(t, Result{FreelancerID: 1}.Err())

	lexErr := errors.New("a")
	semErr := errors.New("b")
	err := Result{LexicalErr: lexErr, SemanticErr: semErr}.Err()
	assert.ErrorIs(t, err, lexErr)
	assert.ErrorIs(t, err, semErr)
	assert.Contains(t, err.Error(), "lexical: a")
	assert.Contains(t, err.Error(), "semantic: b")
}

func TestBootstrapIfEmpty_PopulatesIndexes(t *testing.T) {
	f := setupFixture(t)
	seedProfiles(t, f.store)
	ctx := context.Background()

	report, err := f.indexer.BootstrapIfEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Indexed)
	assert.Zero(t, report.Failed)

	docs, err := f.store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, docs)
	n, err := f.semantic.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	marker, err := f.store.GetState(ctx, storage.StateBootstrapCompleted)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, marker)

	// second run is a no-op
	calls := f.vocab.Calls()
	again, err := f.indexer.BootstrapIfEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, "indexes already populated", again.Reason)
	assert.Equal(t, calls, f.vocab.Calls())
}

func TestBootstrapIfEmpty_EmptyStore(t *testing.T) {
	f := setupFixture(t)
	report, err := f.indexer.BootstrapIfEmpty(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, "profile store is empty", report.Reason)
}

func TestBootstrapIfEmpty_RunsWhenOneIndexEmpty(t *testing.T) {
	f := setupFixture(t)
	seedProfiles(t, f.store)
	ctx := context.Background()

	// lexical populated, semantic empty
	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, f.store.IndexDocument(ctx, types.LexicalDocument{FreelancerID: id, Title: "x"}))
	}
	require.NoError(t, f.store.SetState(ctx, storage.StateBootstrapCompleted, "old"))

	report, err := f.indexer.BootstrapIfEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 3, report.Indexed)
}

func TestBootstrap_PartialFailure(t *testing.T) {
	f := setupFixture(t)
	seedProfiles(t, f.store)
	f.lexical.fail[2] = true
	ctx := context.Background()

	report, err := f.indexer.BootstrapIfEmpty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.LexicalFailures)
	assert.Zero(t, report.SemanticFailures)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "freelancer 2")

	// vector for 2 still staged and flushed
	_, ok := f.semantic.Vector(2)
	assert.True(t, ok)

	_, err = f.store.GetState(ctx, storage.StateBootstrapCompleted)
	assert.ErrorIs(t, err, storage.ErrNotFound, "incomplete bootstrap leaves no marker")
}

func TestBootstrap_SemanticDown(t *testing.T) {
	f := setupFixture(t)
	seedProfiles(t, f.store)
	f.vocab.SetFailure(embeddertest.ErrUnavailable)

	report, err := f.indexer.BootstrapIfEmpty(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, 3, report.SemanticFailures)
	assert.Zero(t, report.LexicalFailures)

	docs, err := f.store.CountDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, docs)
}

func TestBootstrap_Force(t *testing.T) {
	f := setupFixture(t)
	seedProfiles(t, f.store)
	ctx := context.Background()

	_, err := f.indexer.BootstrapIfEmpty(ctx)
	require.NoError(t, err)

	require.NoError(t, f.store.UpsertProfile(ctx, &types.FreelancerProfile{FreelancerID: 2, Title: "Colorist", Category: "Video Editor"}))
	report, err := f.indexer.Bootstrap(ctx, true)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 3, report.Indexed)

	doc, err := f.store.GetDocument(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Colorist", doc.Title)
}

func TestBootstrap_InProgress(t *testing.T) {
	f := setupFixture(t)
	require.True(t, f.indexer.lock.TryAcquire())
	assert.True(t, f.indexer.Bootstrapping())

	_, err := f.indexer.BootstrapIfEmpty(context.Background())
	assert.ErrorIs(t, err, ErrBootstrapInProgress)

	f.indexer.lock.Release()
	assert.False(t, f.indexer.Bootstrapping())
}

func TestBootstrap_Cancelled(t *testing.T) {
	f := setupFixture(t)
	seedProfiles(t, f.store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.indexer.Bootstrap(ctx, true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexLock(t *testing.T) {
	var l IndexLock
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}

func BenchmarkReindexOne(b *testing.B) {
	f := setupFixture(b)
	seedProfiles(b, f.store)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if res := f.indexer.ReindexOne(ctx, int64(i%3)+1); !res.OK() {
			b.Fatal(res.Err())
		}
	}
}
