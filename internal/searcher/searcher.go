package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/gigsearch/internal/metrics"
	"github.com/dshills/gigsearch/internal/storage"
	"github.com/dshills/gigsearch/pkg/types"
)

// SearchMode reports which signals produced a response
type SearchMode string

const (
	SearchModeHybrid   SearchMode = "hybrid"   // Lexical + semantic with RRF
	SearchModeLexical  SearchMode = "lexical"  // Semantic side failed
	SearchModeSemantic SearchMode = "semantic" // Lexical side failed
	SearchModeBrowse   SearchMode = "browse"   // Empty query, filters only
)

// Defaults applied to zero Config fields
const (
	DefaultLimit           = 20
	DefaultMaxLimit        = 100
	DefaultOverfetchFactor = 4
	DefaultMinCandidates   = 50
	DefaultRRFConstant     = 60.0
	DefaultCacheSize       = 1000
	DefaultCacheTTL        = time.Minute
)

// TextSearcher is the lexical retrieval dependency
type TextSearcher interface {
	SearchText(ctx context.Context, query string, limit int) ([]types.TextHit, error)
}

// VectorSearcher is the semantic retrieval dependency
type VectorSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]types.VectorHit, error)
}

// Config tunes candidate sizes, fusion and caching
type Config struct {
	DefaultLimit    int
	MaxLimit        int
	OverfetchFactor int
	MinCandidates   int
	RRFConstant     float64
	CacheSize       int // <0 disables the cache
	CacheTTL        time.Duration
}

func (c *Config) applyDefaults() {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = DefaultMaxLimit
	}
	if c.DefaultLimit > c.MaxLimit {
		c.DefaultLimit = c.MaxLimit
	}
	if c.OverfetchFactor <= 0 {
		c.OverfetchFactor = DefaultOverfetchFactor
	}
	if c.MinCandidates <= 0 {
		c.MinCandidates = DefaultMinCandidates
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = DefaultRRFConstant
	}
	if c.CacheSize == 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query     string
	Filters   types.Filters
	Limit     int  // 0 means the configured default
	SkipCache bool // Bypass the result cache for this request
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	Mode         SearchMode
	Degraded     bool // One retrieval signal failed
	LexicalHits  int
	SemanticHits int
	StaleDropped int // Candidates with no profile behind them
	Duration     time.Duration
	CacheHit     bool
}

// IDs returns the ranked freelancer ids
func (r *SearchResponse) IDs() []int64 {
	ids := make([]int64, len(r.Results))
	for i, res := range r.Results {
		ids[i] = res.FreelancerID
	}
	return ids
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher merges lexical and semantic retrieval and applies structured filters
type Searcher struct {
	profiles storage.ProfileStore
	lexical  TextSearcher
	semantic VectorSearcher
	cfg      Config
	logger   *zap.Logger

	cache      *lru.Cache[[32]byte, *cacheEntry]
	cacheMu    sync.RWMutex
	generation atomic.Uint64 // bumped by InvalidateCache
}

// NewSearcher creates a new Searcher instance
func NewSearcher(profiles storage.ProfileStore, lex TextSearcher, sem VectorSearcher, cfg Config, logger *zap.Logger) (*Searcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()

	s := &Searcher{
		profiles: profiles,
		lexical:  lex,
		semantic: sem,
		cfg:      cfg,
		logger:   logger.Named("searcher"),
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create LRU cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Search validates the request, then either browses by filters (empty query)
// or runs hybrid retrieval and filters the fused candidates.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	gen := s.generation.Load()
	key := computeQueryHash(req)
	if !req.SkipCache {
		if cached := s.checkCache(key); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	var (
		response *SearchResponse
		err      error
	)
	if req.Query == "" {
		response, err = s.browse(ctx, req)
	} else {
		response, err = s.hybridSearch(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	response.Duration = time.Since(startTime)
	metrics.SearchRequestsTotal.WithLabelValues(string(response.Mode)).Inc()
	metrics.SearchDuration.WithLabelValues(string(response.Mode)).Observe(response.Duration.Seconds())
	if response.Degraded {
		metrics.SearchDegradedTotal.Inc()
	}

	// degraded responses are not cached so recovery is visible immediately
	if !req.SkipCache && !response.Degraded {
		s.storeInCache(key, gen, response)
	}

	s.logger.Debug("search",
		zap.String("query", req.Query),
		zap.String("filters", req.Filters.Key()),
		zap.String("mode", string(response.Mode)),
		zap.Int("results", len(response.Results)),
		zap.Duration("duration", response.Duration))
	return response, nil
}

// validateRequest rejects bad filters before any index is touched and clamps the limit
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if err := req.Filters.Validate(); err != nil {
		return err
	}
	if req.Limit < 0 {
		return &types.ValidationError{Field: "limit", Value: strconv.Itoa(req.Limit), Reason: "must not be negative"}
	}
	if req.Limit == 0 {
		req.Limit = s.cfg.DefaultLimit
	}
	if req.Limit > s.cfg.MaxLimit {
		req.Limit = s.cfg.MaxLimit
	}
	req.Query = strings.TrimSpace(req.Query)
	return nil
}

func (s *Searcher) candidateLimit(limit int) int {
	return max(limit*s.cfg.OverfetchFactor, s.cfg.MinCandidates)
}

// hybridSearch runs both retrievals concurrently. Either one may fail; the
// request only fails when both do.
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	n := s.candidateLimit(req.Limit)

	var (
		g        errgroup.Group
		textHits []types.TextHit
		vecHits  []types.VectorHit
		textErr  error
		vecErr   error
	)
	g.Go(func() error {
		textHits, textErr = s.lexical.SearchText(ctx, req.Query, n)
		return nil
	})
	g.Go(func() error {
		vecHits, vecErr = s.semantic.Search(ctx, req.Query, n)
		return nil
	})
	_ = g.Wait()

	if textErr != nil && vecErr != nil {
		return nil, fmt.Errorf("both searches failed: %w", errors.Join(
			fmt.Errorf("lexical: %w", textErr),
			fmt.Errorf("semantic: %w", vecErr)))
	}

	response := &SearchResponse{
		Mode:         SearchModeHybrid,
		LexicalHits:  len(textHits),
		SemanticHits: len(vecHits),
	}
	switch {
	case vecErr != nil:
		response.Mode = SearchModeLexical
		response.Degraded = true
		s.logger.Warn("semantic search failed, serving lexical results", zap.Error(vecErr))
	case textErr != nil:
		response.Mode = SearchModeSemantic
		response.Degraded = true
		s.logger.Warn("lexical search failed, serving semantic results", zap.Error(textErr))
	}

	fused := fuseRRF(textHits, vecHits, s.cfg.RRFConstant)
	results, stale, err := s.filterCandidates(ctx, fused, req.Filters, req.Limit)
	if err != nil {
		return nil, err
	}
	response.Results = results
	response.StaleDropped = stale
	return response, nil
}

// filterCandidates joins fused candidates against the profile store in rank
// order, dropping ids without a profile and profiles failing the filters.
func (s *Searcher) filterCandidates(ctx context.Context, fused []fusedCandidate, filters types.Filters, limit int) ([]types.SearchResult, int, error) {
	if len(fused) == 0 {
		return []types.SearchResult{}, 0, nil
	}

	ids := make([]int64, len(fused))
	for i, c := range fused {
		ids[i] = c.id
	}
	profiles, err := s.profiles.GetProfiles(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve candidates: %w", err)
	}

	results := make([]types.SearchResult, 0, min(limit, len(fused)))
	stale := 0
	for _, c := range fused {
		p, ok := profiles[c.id]
		if !ok {
			stale++
			s.logger.Debug("dropping stale candidate", zap.Int64("freelancer_id", c.id), zap.Error(types.ErrStaleEntry))
			continue
		}
		if !filters.Match(p) {
			continue
		}
		results = append(results, types.SearchResult{
			FreelancerID: c.id,
			Rank:         len(results) + 1,
			Score:        c.score,
			LexicalRank:  c.lexicalRank,
			SemanticRank: c.semanticRank,
		})
		if len(results) == limit {
			break
		}
	}
	return results, stale, nil
}

// browse lists profiles matching the filters in rating then experience order
func (s *Searcher) browse(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	profiles, err := s.profiles.BrowseProfiles(ctx, req.Filters, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("browse profiles: %w", err)
	}

	results := make([]types.SearchResult, len(profiles))
	for i, p := range profiles {
		results[i] = types.SearchResult{
			FreelancerID: p.FreelancerID,
			Rank:         i + 1,
			Score:        p.Rating,
		}
	}
	return &SearchResponse{Results: results, Mode: SearchModeBrowse}, nil
}

// checkCache looks up cached search results
func (s *Searcher) checkCache(key [32]byte) *SearchResponse {
	if s.cache == nil {
		return nil
	}
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(key)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	// Check if entry has expired while holding read lock to avoid race condition
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(key)
		s.cacheMu.Unlock()
		return nil
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves a response unless the cache was invalidated since the
// search started, which would make it stale.
func (s *Searcher) storeInCache(key [32]byte, gen uint64, response *SearchResponse) {
	if s.cache == nil {
		return
	}
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(s.cfg.CacheTTL),
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation.Load() != gen {
		return
	}
	s.cache.Add(key, entry)
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	copy(dst.Results, src.Results)
	return &dst
}

// computeQueryHash computes a unique hash for a normalized search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(strings.ToLower(req.Query))
	data.WriteString("|")
	data.WriteString(req.Filters.Key())
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.Limit))
	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached response. Called after each reindex.
func (s *Searcher) InvalidateCache() {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	s.generation.Add(1)
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}
