package semantic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/gigsearch/internal/embedder"
	"github.com/dshills/gigsearch/internal/metrics"
	"github.com/dshills/gigsearch/pkg/types"
)

const (
	// DefaultMinSimilarity drops weak matches so unrelated profiles are not returned
	DefaultMinSimilarity = 0.3
	DefaultEmbedTimeout  = 5 * time.Second
)

var (
	// ErrIdentityMismatch means the persisted vectors came from another embedding model
	ErrIdentityMismatch = errors.New("embedding model differs from persisted index")
	// ErrDimensionMismatch means an embedding has a different length than the stored vectors
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Config locates the persisted index. An empty IndexFile keeps the index in memory only.
type Config struct {
	IndexFile     string
	ModelFile     string
	MinSimilarity float64
	EmbedTimeout  time.Duration
}

// Index is a flat inner-product vector index keyed by freelancer id.
type Index struct {
	cfg    Config
	emb    embedder.Embedder
	logger *zap.Logger

	mu       sync.RWMutex
	vectors  map[int64][]float32
	identity embedder.Identity
	dirty    bool

	loadMu  sync.Mutex
	loaded  atomic.Bool
	loadErr error
}

// New creates an index; nothing is read until first use.
func New(cfg Config, emb embedder.Embedder, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = DefaultMinSimilarity
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultEmbedTimeout
	}
	return &Index{
		cfg:      cfg,
		emb:      emb,
		logger:   logger.Named("semantic"),
		vectors:  make(map[int64][]float32),
		identity: embedder.IdentityOf(emb),
	}
}

func unavailable(err error) error {
	return &types.IndexUnavailableError{Component: "semantic", Err: err}
}

// ensureLoaded reads the persisted index once. Failures are not cached so a
// later call can succeed after the cause is fixed.
func (ix *Index) ensureLoaded() error {
	if ix.loaded.Load() {
		return nil
	}
	ix.loadMu.Lock()
	defer ix.loadMu.Unlock()
	if ix.loaded.Load() {
		return nil
	}

	if err := ix.load(); err != nil {
		ix.loadErr = err
		ix.logger.Warn("semantic index load failed", zap.Error(err))
		return unavailable(err)
	}
	ix.loadErr = nil
	ix.loaded.Store(true)
	return nil
}

func (ix *Index) load() error {
	live := embedder.IdentityOf(ix.emb)
	identity := live

	if ix.cfg.ModelFile != "" {
		persisted, err := ReadIdentity(ix.cfg.ModelFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return err
		case !persisted.Compatible(live):
			return fmt.Errorf("%w: persisted %s, configured %s", ErrIdentityMismatch, persisted, live)
		default:
			identity = persisted
			if identity.Dimension == 0 {
				identity.Dimension = live.Dimension
			}
		}
	}

	vectors := make(map[int64][]float32)
	if ix.cfg.IndexFile != "" {
		dim, loadedVectors, err := readVectorFile(ix.cfg.IndexFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return err
		default:
			if identity.Dimension != 0 && len(loadedVectors) > 0 && dim != identity.Dimension {
				return fmt.Errorf("%w: file has %d, model has %d", ErrDimensionMismatch, dim, identity.Dimension)
			}
			if identity.Dimension == 0 && len(loadedVectors) > 0 {
				identity.Dimension = dim
			}
			vectors = loadedVectors
		}
	}

	ix.mu.Lock()
	ix.vectors = vectors
	ix.identity = identity
	ix.mu.Unlock()

	metrics.SemanticVectors.Set(float64(len(vectors)))
	ix.logger.Info("semantic index loaded",
		zap.Int("vectors", len(vectors)),
		zap.String("identity", identity.String()))
	return nil
}

// embed produces a normalized vector with a bounded timeout. It never holds the index lock.
func (ix *Index) embed(ctx context.Context, text string, query bool) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.cfg.EmbedTimeout)
	defer cancel()

	emb, err := ix.emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text, Query: query})
	if err != nil {
		return nil, err
	}
	if len(emb.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty vector", embedder.ErrProviderFailed)
	}
	return embedder.NormalizeVector(emb.Vector), nil
}

// checkDimension must be called with ix.mu held for writing
func (ix *Index) checkDimension(vec []float32) error {
	if ix.identity.Dimension == 0 {
		ix.identity.Dimension = len(vec)
		return nil
	}
	if len(vec) != ix.identity.Dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), ix.identity.Dimension)
	}
	return nil
}

// Upsert replaces the vector for id and persists the index. Blank text, or
// text that embeds to the zero vector, removes the vector instead.
func (ix *Index) Upsert(ctx context.Context, id int64, text string) error {
	return ix.put(ctx, id, text, true)
}

// Stage is Upsert without persisting; call Flush when done. Used by bulk builds.
func (ix *Index) Stage(ctx context.Context, id int64, text string) error {
	return ix.put(ctx, id, text, false)
}

func (ix *Index) put(ctx context.Context, id int64, text string, persist bool) error {
	if id <= 0 {
		return types.ErrInvalidFreelancerID
	}
	if err := ix.ensureLoaded(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return ix.remove(id, persist)
	}

	vec, err := ix.embed(ctx, text, false)
	if err != nil {
		return unavailable(fmt.Errorf("embed freelancer %d: %w", id, err))
	}
	// text without a single feature embeds to zero and cannot be normalized
	if zero(vec) {
		return ix.remove(id, persist)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.checkDimension(vec); err != nil {
		return unavailable(err)
	}
	delete(ix.vectors, id)
	ix.vectors[id] = vec
	ix.dirty = true
	metrics.SemanticVectors.Set(float64(len(ix.vectors)))

	if !persist {
		return nil
	}
	return ix.saveLocked()
}

// Remove deletes the vector for id; absent ids are a no-op.
func (ix *Index) Remove(_ context.Context, id int64) error {
	if err := ix.ensureLoaded(); err != nil {
		return err
	}
	return ix.remove(id, true)
}

func (ix *Index) remove(id int64, persist bool) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.vectors[id]; !ok {
		return nil
	}
	delete(ix.vectors, id)
	ix.dirty = true
	metrics.SemanticVectors.Set(float64(len(ix.vectors)))
	if !persist {
		return nil
	}
	return ix.saveLocked()
}

// Flush persists staged changes
func (ix *Index) Flush() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if !ix.dirty {
		return nil
	}
	return ix.saveLocked()
}

func (ix *Index) saveLocked() error {
	if ix.cfg.IndexFile == "" {
		ix.dirty = false
		return nil
	}
	if err := writeVectorFile(ix.cfg.IndexFile, ix.identity.Dimension, ix.vectors); err != nil {
		return fmt.Errorf("save semantic index: %w", err)
	}
	if ix.cfg.ModelFile != "" {
		if err := WriteIdentity(ix.cfg.ModelFile, ix.identity); err != nil {
			return fmt.Errorf("save semantic model file: %w", err)
		}
	}
	ix.dirty = false
	return nil
}

// Search embeds text as a query and returns up to topK hits with similarity
// at or above the configured minimum, ordered by score then id descending.
func (ix *Index) Search(ctx context.Context, text string, topK int) ([]types.VectorHit, error) {
	if err := ix.ensureLoaded(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" || topK <= 0 {
		return []types.VectorHit{}, nil
	}

	q, err := ix.embed(ctx, text, true)
	if err != nil {
		return nil, unavailable(fmt.Errorf("embed query: %w", err))
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.identity.Dimension != 0 && len(q) != ix.identity.Dimension {
		return nil, unavailable(fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(q), ix.identity.Dimension))
	}

	hits := make([]types.VectorHit, 0, min(topK, len(ix.vectors)))
	for id, v := range ix.vectors {
		// negative ids are placeholders, never real freelancers
		if id < 0 {
			continue
		}
		score := dot(q, v)
		if score < ix.cfg.MinSimilarity {
			continue
		}
		hits = append(hits, types.VectorHit{FreelancerID: id, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].FreelancerID > hits[j].FreelancerID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func zero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

// Len returns the number of stored vectors, loading the index if needed
func (ix *Index) Len() (int, error) {
	if err := ix.ensureLoaded(); err != nil {
		return 0, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors), nil
}

// Vector returns a copy of the stored vector for id
func (ix *Index) Vector(id int64) ([]float32, bool) {
	if ix.ensureLoaded() != nil {
		return nil, false
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	v, ok := ix.vectors[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Identity returns the model identity the stored vectors belong to
func (ix *Index) Identity() embedder.Identity {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.identity
}

// Status reports whether the index can serve, attempting a load if needed
func (ix *Index) Status() (bool, string) {
	if err := ix.ensureLoaded(); err != nil {
		return false, err.Error()
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return true, fmt.Sprintf("%d vectors, %s", len(ix.vectors), ix.identity)
}

// Close flushes pending changes
func (ix *Index) Close() error {
	if !ix.loaded.Load() {
		return nil
	}
	return ix.Flush()
}
