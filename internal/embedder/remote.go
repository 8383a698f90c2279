package embedder

import (
	"context"
	"errors"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// RemoteProvider embeds through an OpenAI-compatible /embeddings endpoint.
// It serves both OpenAI and Jina AI, which accepts the same request shape.
type RemoteProvider struct {
	client    *openai.Client
	provider  string
	model     string
	dimension int
	// requestDims is sent as "dimensions" when the caller asked for truncated vectors
	requestDims int
	cache       *Cache
	retry       RetryConfig
}

// RemoteConfig configures a RemoteProvider
type RemoteConfig struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int // 0 means the provider default
}

// NewOpenAIProvider creates an OpenAI embedder
func NewOpenAIProvider(cfg RemoteConfig, cache *Cache) (*RemoteProvider, error) {
	cfg.Provider = ProviderOpenAI
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	return newRemoteProvider(cfg, OpenAIDimension, EnvOpenAIAPIKey, cache)
}

// NewJinaProvider creates a Jina AI embedder
func NewJinaProvider(cfg RemoteConfig, cache *Cache) (*RemoteProvider, error) {
	cfg.Provider = ProviderJina
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultJinaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultJinaModel
	}
	return newRemoteProvider(cfg, JinaDimension, EnvJinaAPIKey, cache)
}

func newRemoteProvider(cfg RemoteConfig, defaultDim int, keyEnv string, cache *Cache) (*RemoteProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, keyEnv)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	p := &RemoteProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		provider:  cfg.Provider,
		model:     cfg.Model,
		dimension: defaultDim,
		cache:     cache,
		retry:     DefaultRetryConfig(),
	}
	if cfg.Dimension > 0 {
		p.dimension = cfg.Dimension
		p.requestDims = cfg.Dimension
	}
	return p, nil
}

func (p *RemoteProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	hash := cacheKey(p.model, false, req.Text)
	if p.cache != nil {
		if emb, ok := p.cache.Get(hash); ok {
			return emb, nil
		}
	}

	// Use batch API for consistency
	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (p *RemoteProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings, err := retryWithBackoff(ctx, p.retry, func() ([]*Embedding, error) {
		return p.callAPI(ctx, req.Texts)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}

	// Cache successful embeddings
	for i, emb := range embeddings {
		emb.Hash = cacheKey(p.model, false, req.Texts[i])
		if p.cache != nil {
			p.cache.Set(emb.Hash, emb)
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.provider,
		Model:      p.model,
	}, nil
}

func (p *RemoteProvider) callAPI(ctx context.Context, texts []string) ([]*Embedding, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(p.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if p.requestDims > 0 {
		req.Dimensions = p.requestDims
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, parseAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrProviderFailed, len(resp.Data), len(texts))
	}

	// The API may return items out of order
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([]*Embedding, len(data))
	for i, d := range data {
		embeddings[i] = &Embedding{
			Vector:    NormalizeVector(d.Embedding),
			Dimension: len(d.Embedding),
			Provider:  p.provider,
			Model:     p.model,
		}
	}
	return embeddings, nil
}

// HealthCheck verifies API availability via ListModels.
func (p *RemoteProvider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", parseAPIError(err))
	}
	return nil
}

func (p *RemoteProvider) Dimension() int {
	return p.dimension
}

func (p *RemoteProvider) Provider() string {
	return p.provider
}

func (p *RemoteProvider) Model() string {
	return p.model
}

func (p *RemoteProvider) Close() error {
	return nil
}

// parseAPIError extracts a readable message from go-openai error types.
func parseAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		err := fmt.Errorf("embedding API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		if !retryableStatus(apiErr.HTTPStatusCode) {
			return permanent(err)
		}
		return err
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		err := fmt.Errorf("embedding API error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body))
		if !retryableStatus(reqErr.HTTPStatusCode) {
			return permanent(err)
		}
		return err
	}

	return fmt.Errorf("embedding request failed: %w", err)
}
