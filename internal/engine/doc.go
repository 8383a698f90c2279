// Package engine is the composition root of gigsearch.
//
// Open builds the profile store, the configured lexical backend, the
// embedding chain (provider with its in-memory LRU, instrumentation, then
// the persistent badger cache), the semantic index, the indexer and the
// searcher. Callers then use three entry points:
//
//	eng, err := engine.Open(ctx, cfg, logger)
//	defer eng.Close()
//
//	res := eng.OnProfileChanged(ctx, id)           // after every profile write
//	ids, err := eng.Search(ctx, "logo", filters, 20)
//	health := eng.Health(ctx)
//
// Profile writes made through UpsertProfile, DeleteProfile and the portfolio
// helpers reindex automatically. Writers that go to the store directly must
// call OnProfileChanged themselves.
package engine
