// Package searcher implements hybrid freelancer search over the lexical and
// semantic indexes, with structured filters applied against the profile store.
//
// # Search Modes
//
// The mode is chosen per request and reported in SearchResponse.Mode:
//
//   - hybrid: lexical and semantic retrieval run concurrently and are merged
//     with Reciprocal Rank Fusion
//   - lexical / semantic: one side failed and the other served the request
//     (Degraded is set)
//   - browse: the query is empty, so profiles matching the filters are listed
//     by rating, then experience
//
// # Basic Usage
//
//	s, err := searcher.NewSearcher(store, lexicalIndex, semanticIndex, searcher.Config{}, logger)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:   "logo design",
//	    Filters: types.Filters{Location: types.String("mumbai")},
//	    Limit:   10,
//	})
//	if types.IsValidation(err) {
//	    // bad category or budget; no index was queried
//	}
//
// # Reciprocal Rank Fusion
//
// Each list contributes 1/(k + rank) for every id it returns, with k = 60 and
// equal weight for both signals:
//
//	score(d) = 1/(60 + lexicalRank(d)) + 1/(60 + semanticRank(d))
//
// Raw BM25 and cosine scores are never compared directly. An id found by both
// signals always outscores its single-signal contribution. Equal scores are
// ordered by freelancer id descending.
//
// # Over-fetching and Filters
//
// Each retrieval asks for max(limit*4, 50) candidates so that filter
// rejections still leave enough results. Fused candidates are resolved in one
// batch against the profile store; ids without a profile are stale and
// dropped, the rest must pass every active filter.
//
// # Caching
//
// Responses are kept in an LRU cache (1000 entries, one minute TTL by
// default) keyed by normalized query, filters and limit. InvalidateCache is
// called after every reindex. Degraded responses are never cached.
package searcher
