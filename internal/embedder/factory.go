package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables read by NewFromEnv
const (
	EnvProvider     = "GIGSEARCH_EMBEDDING_PROVIDER"
	EnvModel        = "GIGSEARCH_EMBEDDING_MODEL"
	EnvDimension    = "GIGSEARCH_EMBEDDING_DIMENSION"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvOllamaHost   = "OLLAMA_HOST"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string // API base URL, or the Ollama host
	Dimension int
	CacheSize int // 0 disables the in-memory cache
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. GIGSEARCH_EMBEDDING_PROVIDER (local, openai, jina, ollama)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	cfg := Config{
		Provider:  DetectProvider(),
		Model:     os.Getenv(EnvModel),
		CacheSize: 10000,
	}
	if raw := os.Getenv(EnvDimension); raw != "" {
		dim, err := strconv.Atoi(raw)
		if err != nil || dim < 0 {
			return nil, fmt.Errorf("%w: invalid %s %q", ErrInvalidInput, EnvDimension, raw)
		}
		cfg.Dimension = dim
	}

	switch cfg.Provider {
	case ProviderJina:
		cfg.APIKey = os.Getenv(EnvJinaAPIKey)
	case ProviderOpenAI:
		cfg.APIKey = os.Getenv(EnvOpenAIAPIKey)
	case ProviderOllama:
		cfg.BaseURL = os.Getenv(EnvOllamaHost)
	}

	return New(cfg)
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderJina:
		return NewJinaProvider(RemoteConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Dimension: cfg.Dimension}, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(RemoteConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Dimension: cfg.Dimension}, cache)
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Dimension, cache)
	case ProviderLocal, "":
		if cfg.Model != "" && cfg.Model != DefaultLocalModel {
			return nil, fmt.Errorf("%w: local provider has no model %s", ErrUnsupportedModel, cfg.Model)
		}
		return NewLocalProvider(cfg.Dimension, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
