// Package engine wires the search subsystem together and owns its resources:
// the profile store, both indexes, the embedding chain, the index maintenance
// service and the query service.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/gigsearch/internal/config"
	"github.com/dshills/gigsearch/internal/embcache"
	"github.com/dshills/gigsearch/internal/embedder"
	"github.com/dshills/gigsearch/internal/indexer"
	"github.com/dshills/gigsearch/internal/lexical"
	"github.com/dshills/gigsearch/internal/lexical/bleveindex"
	zlog "github.com/dshills/gigsearch/internal/logger"
	"github.com/dshills/gigsearch/internal/metrics"
	"github.com/dshills/gigsearch/internal/searcher"
	"github.com/dshills/gigsearch/internal/semantic"
	"github.com/dshills/gigsearch/internal/storage"
	"github.com/dshills/gigsearch/pkg/types"
)

const healthCheckTimeout = 5 * time.Second

// Health check names
const (
	CheckDatabase = "database"
	CheckLexical  = "lexical"
	CheckSemantic = "semantic"
	CheckEmbedder = "embedder"
)

// Option customizes Open
type Option func(*options)

type options struct {
	embedder embedder.Embedder
}

// WithEmbedder uses e as the embedding provider instead of building one from
// configuration. Persistent caching and instrumentation still wrap it.
func WithEmbedder(e embedder.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// Engine is the search subsystem. It is safe for concurrent use.
type Engine struct {
	cfg    config.Config
	logger *zap.Logger

	db        *storage.SQLiteStorage
	lexical   lexical.Index
	closers   []io.Closer // closed in reverse order after the semantic flush
	embedder  embedder.Embedder
	semantic  *semantic.Index
	indexer   *indexer.Indexer
	searcher  *searcher.Searcher
	closeOnce sync.Once
	closeErr  error
}

// Open builds every component from cfg. When a semantic model file exists,
// the embedding model recorded there wins over the configured one.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *Engine, err error) {
	logger = zlog.OrNop(logger)
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = e.closeResources()
		}
	}()

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	e.db, err = storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, e.db)

	switch cfg.Lexical.Backend {
	case lexical.BackendBleve:
		if cfg.Lexical.Path != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.Lexical.Path), 0o755); err != nil {
				return nil, fmt.Errorf("create lexical dir: %w", err)
			}
		}
		bi, err := bleveindex.Open(cfg.Lexical.Path, logger.Named("bleve"))
		if err != nil {
			return nil, err
		}
		e.lexical = bi
		e.closers = append(e.closers, bi)
	default:
		e.lexical = e.db
	}

	base := o.embedder
	if base == nil {
		base, err = buildEmbedder(cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	e.closers = append(e.closers, base)
	emb := embedder.Embedder(embedder.NewInstrumented(base, logger.Named("embedder")))

	cacheStore, err := embcache.OpenBadgerStore(cfg.Embedding.CacheDir, cfg.Embedding.CacheInMemory, cfg.Embedding.CacheTTL, logger)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, cacheStore)
	e.embedder = embcache.New(emb, cacheStore, metrics.EmbeddingCacheTotal, logger.Named("embcache"))

	e.semantic = semantic.New(semantic.Config{
		IndexFile:     cfg.Semantic.IndexFile,
		ModelFile:     cfg.Semantic.ModelFile,
		MinSimilarity: cfg.Semantic.MinSimilarity,
		EmbedTimeout:  cfg.Embedding.Timeout,
	}, e.embedder, logger)

	e.indexer = indexer.New(e.db, e.lexical, e.semantic, indexer.Config{Workers: cfg.Bootstrap.Workers}, logger)

	e.searcher, err = searcher.NewSearcher(e.db, e.lexical, e.semantic, searcher.Config{
		DefaultLimit:    cfg.Search.DefaultLimit,
		MaxLimit:        cfg.Search.MaxLimit,
		OverfetchFactor: cfg.Search.OverfetchFactor,
		MinCandidates:   cfg.Search.MinCandidates,
		RRFConstant:     cfg.Search.RRFK,
		CacheSize:       cfg.Search.CacheSize,
		CacheTTL:        cfg.Search.CacheTTL,
	}, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("search engine opened",
		zap.String("database", cfg.Database.Path),
		zap.String("lexical_backend", cfg.Lexical.Backend),
		zap.String("embedding", embedder.IdentityOf(e.embedder).String()))

	if cfg.Bootstrap.OnStart {
		if _, err := e.Bootstrap(ctx, false); err != nil {
			logger.Error("startup bootstrap failed", zap.Error(err))
		}
	}
	return e, nil
}

// buildEmbedder creates the configured provider, replaced by the provider
// recorded in the semantic model file when the two disagree. If the recorded
// provider cannot be built the configured one is kept, and the semantic index
// reports the mismatch.
func buildEmbedder(cfg config.Config, logger *zap.Logger) (embedder.Embedder, error) {
	ec := embedder.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		Dimension: cfg.Embedding.Dimension,
		CacheSize: cfg.Embedding.CacheSize,
	}
	configured, err := embedder.New(ec)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	persisted, err := semantic.ReadIdentity(cfg.Semantic.ModelFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return configured, nil
	case err != nil:
		logger.Warn("unreadable semantic model file", zap.String("path", cfg.Semantic.ModelFile), zap.Error(err))
		return configured, nil
	case persisted.Compatible(embedder.IdentityOf(configured)):
		return configured, nil
	}

	logger.Warn("persisted embedding model overrides configuration",
		zap.String("persisted", persisted.String()),
		zap.String("configured", embedder.IdentityOf(configured).String()))

	pc := ec
	pc.Provider = persisted.Provider
	pc.Model = persisted.Model
	pc.Dimension = persisted.Dimension
	if persisted.Provider != cfg.Embedding.Provider {
		pc.APIKey, pc.BaseURL = providerCredentials(persisted.Provider)
	}

	override, err := embedder.New(pc)
	if err != nil {
		logger.Error("cannot build persisted embedding model, keeping configured one",
			zap.String("persisted", persisted.String()), zap.Error(err))
		return configured, nil
	}
	_ = configured.Close()
	return override, nil
}

// providerCredentials reads the environment credentials of a provider
func providerCredentials(provider string) (apiKey, baseURL string) {
	switch provider {
	case embedder.ProviderOpenAI:
		return os.Getenv(embedder.EnvOpenAIAPIKey), ""
	case embedder.ProviderJina:
		return os.Getenv(embedder.EnvJinaAPIKey), ""
	case embedder.ProviderOllama:
		return "", os.Getenv(embedder.EnvOllamaHost)
	}
	return "", ""
}

// OnProfileChanged must be called after every profile or portfolio write. It
// reindexes the freelancer synchronously and drops cached search results.
func (e *Engine) OnProfileChanged(ctx context.Context, id int64) indexer.Result {
	res := e.indexer.ReindexOne(ctx, id)
	e.searcher.InvalidateCache()
	return res
}

// Search returns ranked freelancer ids for query and filters
func (e *Engine) Search(ctx context.Context, query string, filters types.Filters, limit int) ([]int64, error) {
	resp, err := e.SearchDetailed(ctx, searcher.SearchRequest{Query: query, Filters: filters, Limit: limit})
	if err != nil {
		return nil, err
	}
	return resp.IDs(), nil
}

// SearchDetailed returns ranked results with per-signal metadata
func (e *Engine) SearchDetailed(ctx context.Context, req searcher.SearchRequest) (*searcher.SearchResponse, error) {
	return e.searcher.Search(ctx, req)
}

// Bootstrap populates the indexes from the profile store; see indexer.Bootstrap
func (e *Engine) Bootstrap(ctx context.Context, force bool) (*types.BootstrapReport, error) {
	report, err := e.indexer.Bootstrap(ctx, force)
	if report != nil && !report.Skipped {
		e.searcher.InvalidateCache()
	}
	return report, err
}

// Health reports whether search runs at full quality. A dead profile store
// makes search unavailable; a dead semantic side only degrades it to lexical.
func (e *Engine) Health(ctx context.Context) types.Health {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string, 4)
	var unavailable, degraded []string

	if err := e.db.Ping(ctx); err != nil {
		checks[CheckDatabase] = err.Error()
		unavailable = append(unavailable, "profile store unreachable")
	} else {
		checks[CheckDatabase] = "ok"
	}

	if n, err := e.lexical.CountDocuments(ctx); err != nil {
		checks[CheckLexical] = err.Error()
		degraded = append(degraded, "lexical index unavailable")
	} else {
		checks[CheckLexical] = fmt.Sprintf("ok (%d documents)", n)
	}

	if ok, detail := e.semantic.Status(); !ok {
		checks[CheckSemantic] = detail
		degraded = append(degraded, "semantic index unavailable")
	} else {
		checks[CheckSemantic] = "ok (" + detail + ")"
	}

	if hc, ok := e.embedder.(embedder.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			checks[CheckEmbedder] = err.Error()
			degraded = append(degraded, "embedding model unreachable")
		} else {
			checks[CheckEmbedder] = "ok"
		}
	}

	switch {
	case len(unavailable) > 0:
		return types.Health{Status: types.HealthUnavailable, Detail: joinDetail(append(unavailable, degraded...)), Checks: checks}
	case len(degraded) > 0:
		return types.Health{Status: types.HealthDegraded, Detail: joinDetail(degraded) + "; ranking quality reduced", Checks: checks}
	default:
		return types.Health{Status: types.HealthOK, Detail: "hybrid search available", Checks: checks}
	}
}

func joinDetail(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "; " + p
	}
	return out
}

// Store exposes the profile store for writers such as importers
func (e *Engine) Store() *storage.SQLiteStorage {
	return e.db
}

// Identity reports the embedding model of the stored vectors, or the live
// model when the semantic index cannot load.
func (e *Engine) Identity() embedder.Identity {
	if ok, _ := e.semantic.Status(); !ok {
		return embedder.IdentityOf(e.embedder)
	}
	return e.semantic.Identity()
}

// Config returns the configuration the engine was opened with
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Close flushes the semantic index and releases every resource. Safe to call twice.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		var errs []error
		if e.semantic != nil {
			if err := e.semantic.Close(); err != nil {
				errs = append(errs, fmt.Errorf("flush semantic index: %w", err))
			}
		}
		if err := e.closeResources(); err != nil {
			errs = append(errs, err)
		}
		e.closeErr = errors.Join(errs...)
		e.logger.Info("search engine closed")
	})
	return e.closeErr
}

func (e *Engine) closeResources() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
