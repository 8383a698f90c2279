// Package storage provides SQLite-based persistence for freelancer profiles and
// the keyword search index derived from them.
//
// The storage layer manages:
//   - Freelancer profiles and portfolio items (the Profile Store)
//   - The FTS5 lexical index, one document per freelancer
//   - Durable index-maintenance markers
//
// # Database Schema
//
// Tables:
//   - freelancer_profile: structured profile fields keyed by freelancer_id
//   - portfolio: portfolio items, cascade-deleted with their profile
//   - freelancer_search: FTS5 table whose rowid is the freelancer_id
//   - index_state: key/value markers such as bootstrap completion
//   - schema_version: applied migrations, compared as semver
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("gigsearch.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	err = db.UpsertProfile(ctx, &types.FreelancerProfile{
//	    FreelancerID: 1,
//	    Title:        "Graphic Designer",
//	    Skills:       "logo branding illustrator",
//	    Category:     "Graphic Designer",
//	})
//
// # Lexical Search
//
// SearchText tokenizes the query into quoted terms joined by OR and ranks with
// bm25(). Scores are negated so that higher means more relevant; ties are broken
// by freelancer_id descending:
//
//	hits, err := db.SearchText(ctx, "logo design", 50)
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with
// -tags "sqlite_cgo sqlite_fts5" switches to github.com/mattn/go-sqlite3.
//
// # Concurrency
//
// The database runs in WAL mode with a single open connection, so writes are
// serialized by database/sql. IndexDocument performs its delete and insert in
// one transaction.
package storage
