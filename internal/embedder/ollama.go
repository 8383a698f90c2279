package embedder

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// OllamaProvider embeds with a local Ollama server through its
// OpenAI-compatible endpoint. The dimension is learned from the first response
// unless configured.
type OllamaProvider struct {
	embedder  embeddings.Embedder
	model     string
	dimension atomic.Int64
	cache     *Cache
}

// NewOllamaProvider creates an embedder for host (e.g. http://localhost:11434)
func NewOllamaProvider(host, model string, dimension int, cache *Cache) (*OllamaProvider, error) {
	if host == "" {
		host = DefaultOllamaHost
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	baseURL := strings.TrimSuffix(host, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}

	// Ollama ignores the token, but the client requires one
	client, err := lcopenai.New(
		lcopenai.WithBaseURL(baseURL),
		lcopenai.WithToken("none"),
		lcopenai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}

	p := &OllamaProvider{
		embedder: emb,
		model:    model,
		cache:    cache,
	}
	if dimension > 0 {
		p.dimension.Store(int64(dimension))
	}
	return p, nil
}

func (o *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := cacheKey(o.model, req.Query, req.Text)
	if o.cache != nil {
		if emb, ok := o.cache.Get(hash); ok {
			return emb, nil
		}
	}

	var (
		vec []float32
		err error
	)
	if req.Query {
		vec, err = o.embedder.EmbedQuery(ctx, req.Text)
	} else {
		var vecs [][]float32
		vecs, err = o.embedder.EmbedDocuments(ctx, []string{req.Text})
		if err == nil {
			if len(vecs) == 0 {
				return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
			}
			vec = vecs[0]
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	emb, err := o.toEmbedding(vec, hash)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		o.cache.Set(hash, emb)
	}
	return emb, nil
}

func (o *OllamaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	vecs, err := o.embedder.EmbedDocuments(ctx, req.Texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	if len(vecs) != len(req.Texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(vecs), len(req.Texts))
	}

	out := make([]*Embedding, len(vecs))
	for i, v := range vecs {
		hash := cacheKey(o.model, false, req.Texts[i])
		emb, err := o.toEmbedding(v, hash)
		if err != nil {
			return nil, err
		}
		if o.cache != nil {
			o.cache.Set(hash, emb)
		}
		out[i] = emb
	}

	return &BatchEmbeddingResponse{Embeddings: out, Provider: ProviderOllama, Model: o.model}, nil
}

func (o *OllamaProvider) toEmbedding(vec []float32, hash string) (*Embedding, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrProviderFailed)
	}
	// First response fixes the dimension; later mismatches are provider errors
	if !o.dimension.CompareAndSwap(0, int64(len(vec))) && o.dimension.Load() != int64(len(vec)) {
		return nil, fmt.Errorf("%w: dimension changed from %d to %d", ErrProviderFailed, o.dimension.Load(), len(vec))
	}
	return &Embedding{
		Vector:    NormalizeVector(vec),
		Dimension: len(vec),
		Provider:  ProviderOllama,
		Model:     o.model,
		Hash:      hash,
	}, nil
}

func (o *OllamaProvider) Dimension() int {
	return int(o.dimension.Load())
}

func (o *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (o *OllamaProvider) Model() string {
	return o.model
}

func (o *OllamaProvider) Close() error {
	return nil
}
