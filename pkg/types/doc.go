// Package types provides shared type definitions for the gigsearch engine.
//
// # Core Types
//
// FreelancerProfile and PortfolioItem mirror the rows of the external Profile
// Store. LexicalDocument is derived from them and is the single source of the
// text both indexes see:
//
//	doc := types.BuildLexicalDocument(profile, items)
//	lexical.IndexDocument(ctx, doc)
//	semantic.Upsert(ctx, doc.FreelancerID, doc.EmbeddingText())
//
// # Filters
//
// Filters is a typed replacement for a loose filter map. ParseFilters accepts raw
// transport strings and returns a *ValidationError for unknown categories and for
// budgets that are not finite, non-negative numbers:
//
//	f, err := types.ParseFilters("video editor", "100", "", "")
//	if types.IsValidation(err) {
//	    // reject the request
//	}
//
// # Errors
//
// ValidationError wraps ErrValidation. IndexUnavailableError matches
// ErrIndexUnavailable and signals that semantic search should degrade to
// lexical-only results.
package types
