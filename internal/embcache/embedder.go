// Package embcache persists embeddings across restarts so that bootstrap and
// repeated queries do not pay for the same text twice.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dshills/gigsearch/internal/embedder"
)

const cacheKeyPrefix = "emb:"

// ErrKeyNotFound is returned by stores for absent keys
var ErrKeyNotFound = errors.New("key not found")

// store is the consumer interface for the embedding cache.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedEmbedder caches embeddings in a key-value store.
type CachedEmbedder struct {
	embedder.Embedder
	store      store
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(inner embedder.Embedder, s store, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		Embedder:   inner,
		store:      s,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// GenerateEmbedding returns a cached embedding or calls the inner embedder.
func (c *CachedEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if err := embedder.ValidateRequest(req); err != nil {
		return nil, err
	}
	key := c.cacheKey(req.Query, req.Text)

	if emb, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return emb, nil
	}
	c.incCache("miss")

	emb, err := c.Embedder.GenerateEmbedding(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}

	c.putToCache(ctx, key, emb.Vector)
	return emb, nil
}

// GenerateBatch serves cached texts from the store and embeds only the misses.
func (c *CachedEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	if err := embedder.ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	out := make([]*embedder.Embedding, len(req.Texts))
	keys := make([]string, len(req.Texts))
	var missTexts []string
	var missIdx []int

	for i, text := range req.Texts {
		keys[i] = c.cacheKey(false, text)
		if emb, ok := c.getFromCache(ctx, keys[i]); ok {
			c.incCache("hit")
			out[i] = emb
			continue
		}
		c.incCache("miss")
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		resp, err := c.Embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: missTexts})
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		if len(resp.Embeddings) != len(missTexts) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
				embedder.ErrProviderFailed, len(resp.Embeddings), len(missTexts))
		}
		for j, emb := range resp.Embeddings {
			i := missIdx[j]
			out[i] = emb
			c.putToCache(ctx, keys[i], emb.Vector)
		}
	}

	return &embedder.BatchEmbeddingResponse{
		Embeddings: out,
		Provider:   c.Provider(),
		Model:      c.Model(),
	}, nil
}

// HealthCheck delegates when the wrapped embedder supports it
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.Embedder.(embedder.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheKey scopes entries to the provider and model so a model switch never
// serves stale vectors
func (c *CachedEmbedder) cacheKey(query bool, text string) string {
	kind := "d"
	if query {
		kind = "q"
	}
	h := sha256.Sum256([]byte(c.Provider() + "\x00" + c.Model() + "\x00" + kind + "\x00" + text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) (*embedder.Embedding, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := embedder.VectorFromBytes(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if dim := c.Dimension(); dim > 0 && len(vec) != dim {
		c.logger.Warn("Ignoring cached embedding with wrong dimension",
			zap.String("key", key), zap.Int("got", len(vec)), zap.Int("want", dim))
		return nil, false
	}

	return &embedder.Embedding{
		Vector:    vec,
		Dimension: len(vec),
		Provider:  c.Provider(),
		Model:     c.Model(),
		Hash:      key,
	}, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	if err := c.store.Set(ctx, key, embedder.VectorBytes(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}
