// Package embeddertest provides deterministic embedders for tests.
package embeddertest

import (
	"context"
	"errors"
	"sync"

	"github.com/dshills/gigsearch/internal/embedder"
	"github.com/dshills/gigsearch/internal/lexical"
)

// ErrUnavailable is returned while an embedder is set to fail
var ErrUnavailable = errors.New("embedder unavailable")

// Vocab assigns every distinct token its own axis, so cosine similarity is
// exactly the normalized token overlap and unrelated texts score 0.
type Vocab struct {
	mu       sync.Mutex
	dim      int
	axes     map[string]int
	model    string
	fail     error
	calls    int
	closed   bool
	provider string
}

// NewVocab creates an embedder with room for dim distinct tokens
func NewVocab(dim int) *Vocab {
	return &Vocab{dim: dim, axes: make(map[string]int), model: "vocab-v1", provider: "test"}
}

// WithModel changes the reported model name
func (v *Vocab) WithModel(model string) *Vocab {
	v.model = model
	return v
}

// SetFailure makes every later call return err; nil restores service
func (v *Vocab) SetFailure(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fail = err
}

// Calls returns the number of texts embedded so far
func (v *Vocab) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func (v *Vocab) embed(text string) ([]float32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.fail != nil {
		return nil, v.fail
	}
	v.calls++

	vec := make([]float32, v.dim)
	for _, tok := range lexical.Tokenize(text) {
		axis, ok := v.axes[tok]
		if !ok {
			if len(v.axes) >= v.dim {
				return nil, errors.New("vocabulary exhausted")
			}
			axis = len(v.axes)
			v.axes[tok] = axis
		}
		vec[axis] = 1
	}
	return embedder.NormalizeVector(vec), nil
}

func (v *Vocab) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if err := embedder.ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec, err := v.embed(req.Text)
	if err != nil {
		return nil, err
	}
	return &embedder.Embedding{Vector: vec, Dimension: v.dim, Provider: v.provider, Model: v.model}, nil
}

func (v *Vocab) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	if err := embedder.ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	out := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := v.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: out, Provider: v.provider, Model: v.model}, nil
}

// HealthCheck reports the configured failure
func (v *Vocab) HealthCheck(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fail
}

func (v *Vocab) Dimension() int   { return v.dim }
func (v *Vocab) Provider() string { return v.provider }
func (v *Vocab) Model() string    { return v.model }

func (v *Vocab) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}
