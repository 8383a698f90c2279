// Package config loads gigsearch configuration from YAML, .env files and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/gigsearch/internal/embedder"
	"github.com/dshills/gigsearch/internal/lexical"
)

// Environment variables that override file values
const (
	EnvEnv            = "GIGSEARCH_ENV"
	EnvLogLevel       = "GIGSEARCH_LOG_LEVEL"
	EnvDataDir        = "GIGSEARCH_DATA_DIR"
	EnvDBPath         = "GIGSEARCH_DB_PATH"
	EnvLexicalBackend = "GIGSEARCH_LEXICAL_BACKEND"
	EnvHTTPAddr       = "GIGSEARCH_HTTP_ADDR"
	EnvConfigFile     = "GIGSEARCH_CONFIG"
)

const defaultEnvironment = "local"

// Config holds the gigsearch configuration.
type Config struct {
	Env       string          `yaml:"env"`       // prod, local, dev, docker, test
	LogLevel  string          `yaml:"log_level"` // debug, info, warn, error (default: determined by env)
	DataDir   string          `yaml:"data_dir"`
	Database  DatabaseConfig  `yaml:"database"`
	Lexical   LexicalConfig   `yaml:"lexical"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Semantic  SemanticConfig  `yaml:"semantic"`
	Search    SearchConfig    `yaml:"search"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// DatabaseConfig locates the SQLite profile store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LexicalConfig selects the keyword index backend.
type LexicalConfig struct {
	Backend string `yaml:"backend"`    // sqlite (default) or bleve
	Path    string `yaml:"bleve_path"` // index directory for the bleve backend
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider      string        `yaml:"provider"` // local, openai, jina, ollama
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Dimension     int           `yaml:"dimension"`
	Timeout       time.Duration `yaml:"timeout"`
	CacheSize     int           `yaml:"cache_size"` // in-memory LRU entries
	CacheDir      string        `yaml:"cache_dir"`  // persistent badger cache
	CacheInMemory bool          `yaml:"cache_in_memory"`
	CacheTTL      time.Duration `yaml:"cache_ttl"` // 0 keeps entries forever
}

// SemanticConfig locates the vector index files.
type SemanticConfig struct {
	IndexFile     string  `yaml:"index_file"`
	ModelFile     string  `yaml:"model_file"`
	MinSimilarity float64 `yaml:"min_similarity"`
}

// SearchConfig tunes ranking and the result cache.
type SearchConfig struct {
	DefaultLimit    int           `yaml:"default_limit"`
	MaxLimit        int           `yaml:"max_limit"`
	OverfetchFactor int           `yaml:"overfetch_factor"`
	MinCandidates   int           `yaml:"min_candidates"`
	RRFK            float64       `yaml:"rrf_k"`
	CacheSize       int           `yaml:"cache_size"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
}

// BootstrapConfig controls the bulk index population.
type BootstrapConfig struct {
	Workers int  `yaml:"workers"`
	OnStart bool `yaml:"on_start"` // Load defaults this to true
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads configuration from path. An empty path uses $GIGSEARCH_CONFIG,
// and with neither set the configuration comes from defaults and the
// environment alone.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}

	// unset keys keep these values through Unmarshal
	cfg := Config{Bootstrap: BootstrapConfig{OnStart: true}}
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}

		// Substitute env variables of the form ${VAR}
		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Env, EnvEnv)
	setFromEnv(&c.LogLevel, EnvLogLevel)
	setFromEnv(&c.DataDir, EnvDataDir)
	setFromEnv(&c.Database.Path, EnvDBPath)
	setFromEnv(&c.Lexical.Backend, EnvLexicalBackend)
	setFromEnv(&c.HTTP.Addr, EnvHTTPAddr)
	setFromEnv(&c.Embedding.Provider, embedder.EnvProvider)
	setFromEnv(&c.Embedding.Model, embedder.EnvModel)

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = embedder.DetectProvider()
	}
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))

	switch c.Embedding.Provider {
	case embedder.ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = os.Getenv(embedder.EnvOpenAIAPIKey)
		}
	case embedder.ProviderJina:
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = os.Getenv(embedder.EnvJinaAPIKey)
		}
	case embedder.ProviderOllama:
		if c.Embedding.BaseURL == "" {
			c.Embedding.BaseURL = os.Getenv(embedder.EnvOllamaHost)
		}
	}
}

func setFromEnv(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = defaultEnvironment
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "gigsearch.db")
	}
	if c.Lexical.Backend == "" {
		c.Lexical.Backend = lexical.BackendSQLite
	}
	if c.Lexical.Path == "" {
		c.Lexical.Path = filepath.Join(c.DataDir, "lexical.bleve")
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = embedder.ProviderLocal
	}
	if c.Embedding.Timeout <= 0 {
		c.Embedding.Timeout = 5 * time.Second
	}
	if c.Embedding.CacheSize == 0 {
		c.Embedding.CacheSize = 10000
	}
	if c.Embedding.CacheDir == "" {
		c.Embedding.CacheDir = filepath.Join(c.DataDir, "embcache")
	}

	if c.Semantic.IndexFile == "" {
		c.Semantic.IndexFile = filepath.Join(c.DataDir, "freelancers.vec")
	}
	if c.Semantic.ModelFile == "" {
		c.Semantic.ModelFile = filepath.Join(c.DataDir, "freelancers.model.json")
	}
	if c.Semantic.MinSimilarity == 0 {
		c.Semantic.MinSimilarity = 0.3
	}

	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 20
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 100
	}
	if c.Search.OverfetchFactor <= 0 {
		c.Search.OverfetchFactor = 4
	}
	if c.Search.MinCandidates <= 0 {
		c.Search.MinCandidates = 50
	}
	if c.Search.RRFK <= 0 {
		c.Search.RRFK = 60
	}
	if c.Search.CacheSize == 0 {
		c.Search.CacheSize = 1000
	}
	if c.Search.CacheTTL <= 0 {
		c.Search.CacheTTL = time.Minute
	}

	if c.Bootstrap.Workers <= 0 {
		c.Bootstrap.Workers = max(runtime.NumCPU()/2, 1)
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	switch c.Env {
	case "prod", "local", "dev", "docker", "test":
	default:
		return fmt.Errorf("env must be one of prod, local, dev, docker, test, got %q", c.Env)
	}
	switch c.Lexical.Backend {
	case lexical.BackendSQLite, lexical.BackendBleve:
	default:
		return fmt.Errorf("lexical.backend must be %q or %q, got %q", lexical.BackendSQLite, lexical.BackendBleve, c.Lexical.Backend)
	}
	switch c.Embedding.Provider {
	case embedder.ProviderLocal, embedder.ProviderOpenAI, embedder.ProviderJina, embedder.ProviderOllama:
	default:
		return fmt.Errorf("embedding.provider must be local, openai, jina or ollama, got %q", c.Embedding.Provider)
	}
	if (c.Embedding.Provider == embedder.ProviderOpenAI || c.Embedding.Provider == embedder.ProviderJina) && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required for provider %s", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must not be negative, got %d", c.Embedding.Dimension)
	}
	if c.Semantic.MinSimilarity < -1 || c.Semantic.MinSimilarity > 1 {
		return fmt.Errorf("semantic.min_similarity must be within [-1, 1], got %g", c.Semantic.MinSimilarity)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit %d exceeds search.max_limit %d", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
