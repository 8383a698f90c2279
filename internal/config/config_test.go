package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gigsearch/internal/embedder"
	"github.com/dshills/gigsearch/internal/lexical"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		EnvEnv, EnvLogLevel, EnvDataDir, EnvDBPath, EnvLexicalBackend, EnvHTTPAddr, EnvConfigFile,
		embedder.EnvProvider, embedder.EnvModel, embedder.EnvOpenAIAPIKey, embedder.EnvJinaAPIKey, embedder.EnvOllamaHost,
	} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gigsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, filepath.Join("data", "gigsearch.db"), cfg.Database.Path)
	assert.Equal(t, lexical.BackendSQLite, cfg.Lexical.Backend)
	assert.Equal(t, embedder.ProviderLocal, cfg.Embedding.Provider)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 0.3, cfg.Semantic.MinSimilarity)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.Equal(t, 4, cfg.Search.OverfetchFactor)
	assert.Equal(t, 50, cfg.Search.MinCandidates)
	assert.Equal(t, 60.0, cfg.Search.RRFK)
	assert.Equal(t, 1000, cfg.Search.CacheSize)
	assert.Equal(t, time.Minute, cfg.Search.CacheTTL)
	assert.GreaterOrEqual(t, cfg.Bootstrap.Workers, 1)
	assert.True(t, cfg.Bootstrap.OnStart, "startup bootstraps empty indexes by default")
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
env: test
data_dir: /var/lib/gigsearch
lexical:
  backend: bleve
embedding:
  provider: ollama
  model: nomic-embed-text
  base_url: http://ollama:11434
  timeout: 2s
semantic:
  min_similarity: 0.5
search:
  rrf_k: 30
  cache_ttl: 30s
bootstrap:
  workers: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "/var/lib/gigsearch/gigsearch.db", cfg.Database.Path)
	assert.Equal(t, "/var/lib/gigsearch/freelancers.vec", cfg.Semantic.IndexFile)
	assert.Equal(t, "/var/lib/gigsearch/lexical.bleve", cfg.Lexical.Path)
	assert.Equal(t, lexical.BackendBleve, cfg.Lexical.Backend)
	assert.Equal(t, embedder.ProviderOllama, cfg.Embedding.Provider)
	assert.Equal(t, "http://ollama:11434", cfg.Embedding.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 0.5, cfg.Semantic.MinSimilarity)
	assert.Equal(t, 30.0, cfg.Search.RRFK)
	assert.Equal(t, 30*time.Second, cfg.Search.CacheTTL)
	assert.Equal(t, 3, cfg.Bootstrap.Workers)
	assert.True(t, cfg.Bootstrap.OnStart, "absent on_start keeps the default")
}

func TestLoad_BootstrapOnStartDisabled(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
bootstrap:
  on_start: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Bootstrap.OnStart)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_DB_FILE", "/tmp/profiles.db")
	path := writeConfig(t, `
database:
  path: ${TEST_DB_FILE}
http:
  addr: ${TEST_UNSET_ADDR:-127.0.0.1:9000}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/profiles.db", cfg.Database.Path)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDBPath, "/env/db.sqlite")
	t.Setenv(EnvLexicalBackend, "bleve")
	t.Setenv(embedder.EnvProvider, "OpenAI")
	t.Setenv(embedder.EnvOpenAIAPIKey, "sk-test")
	path := writeConfig(t, `
database:
  path: /file/db.sqlite
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/env/db.sqlite", cfg.Database.Path)
	assert.Equal(t, lexical.BackendBleve, cfg.Lexical.Backend)
	assert.Equal(t, embedder.ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfigFile, writeConfig(t, "env: dev\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "env: [broken"))
	assert.ErrorContains(t, err, "failed to parse config")

	_, err = Load(writeConfig(t, "env: staging\n"))
	assert.ErrorContains(t, err, "invalid config")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"Valid", func(*Config) {}, ""},
		{"UnknownEnv", func(c *Config) { c.Env = "staging" }, "env must be"},
		{"UnknownBackend", func(c *Config) { c.Lexical.Backend = "elastic" }, "lexical.backend"},
		{"UnknownProvider", func(c *Config) { c.Embedding.Provider = "cohere" }, "embedding.provider"},
		{"MissingAPIKey", func(c *Config) { c.Embedding.Provider = embedder.ProviderJina }, "api_key is required"},
		{"NegativeDimension", func(c *Config) { c.Embedding.Dimension = -1 }, "embedding.dimension"},
		{"MinSimilarityRange", func(c *Config) { c.Semantic.MinSimilarity = 1.5 }, "min_similarity"},
		{"DefaultAboveMax", func(c *Config) { c.Search.DefaultLimit = 200 }, "default_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("GIGSEARCH_TEST_DOTENV=from-file\n"), 0o644))
	t.Setenv("GIGSEARCH_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("GIGSEARCH_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(envFile, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("GIGSEARCH_TEST_DOTENV"))
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("GS_SET", "value")
	t.Setenv("GS_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"${GS_SET}", "value"},
		{"${GS_EMPTY:-fallback}", "fallback"},
		{"${GS_SET:-fallback}", "value"},
		{"plain", "plain"},
		{"a ${GS_SET} b ${GS_EMPTY}", "a value b "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(expandEnvVars([]byte(tt.in))), "input %q", tt.in)
	}
}
