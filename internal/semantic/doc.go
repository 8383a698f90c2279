// Package semantic is the vector side of freelancer search: one unit-length
// embedding per freelancer, searched by exact inner product.
//
// The index lives in memory and is persisted to two files written atomically
// (temp file + rename):
//
//   - the vector file: magic "GSVI", format version, dimension, count, then
//     (int64 freelancer id, dimension x float32) rows sorted by id, little-endian
//   - the model file: JSON {provider, model, dimension} identifying the
//     embedding model that produced the vectors
//
// The model file is authoritative. Opening an index with an embedder of a
// different identity fails with ErrIdentityMismatch rather than mixing vectors
// from two models.
//
// Loading is lazy and happens on first use. A failed load is retried on the
// next call. Embedding always runs outside the index lock with a bounded
// timeout, so a slow provider never blocks searches.
package semantic
