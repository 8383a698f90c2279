// Package indexer keeps the lexical and semantic indexes synchronized with the
// profile store.
//
// # Basic Usage
//
//	idx := indexer.New(store, lexicalIndex, semanticIndex, indexer.Config{}, logger)
//
//	// after every profile or portfolio write
//	res := idx.ReindexOne(ctx, freelancerID)
//	if !res.OK() {
//	    log.Printf("reindex %d: %v", freelancerID, res.Err())
//	}
//
// # Reindexing One Freelancer
//
// ReindexOne reads the profile and its portfolio, builds the LexicalDocument
// and writes it to the lexical index, then embeds the same text into the
// semantic index. When the profile no longer exists both entries are removed
// instead and Result.Deleted is set.
//
// The two indexes fail independently. A semantic failure (embedding backend
// down, vector file unloadable) never prevents the lexical write, and the
// reverse also holds. Result carries one error per index.
//
// # Bootstrap
//
// BootstrapIfEmpty is the one-time migration that makes existing profiles
// searchable:
//
//	report, err := idx.BootstrapIfEmpty(ctx)
//	// report.Indexed, report.Failed, report.LexicalFailures, ...
//
// It runs when either index is empty or when the bootstrap_completed marker
// is missing, and does nothing once both indexes are populated. Freelancers
// are processed on an ants worker pool (NumCPU/2 workers by default).
// Semantic vectors are staged in memory and flushed to disk once at the end.
//
// A freelancer that fails is counted in the report and the run continues.
// The completion marker is written only when every freelancer succeeded, so
// a partial bootstrap is retried on the next start.
//
// Only one bootstrap runs at a time; a concurrent call returns
// ErrBootstrapInProgress immediately rather than waiting.
package indexer
