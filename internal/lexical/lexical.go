// Package lexical defines the keyword index contract shared by the SQLite FTS5
// index in internal/storage and the bleve index in internal/lexical/bleveindex.
package lexical

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/dshills/gigsearch/pkg/types"
)

// Backend names accepted by configuration
const (
	BackendSQLite = "sqlite"
	BackendBleve  = "bleve"
)

// ErrNotFound is returned by GetDocument, from every backend, for unknown ids
var ErrNotFound = errors.New("document not found")

// Index is an inverted index over LexicalDocuments keyed by freelancer id.
type Index interface {
	// IndexDocument replaces any existing document for doc.FreelancerID atomically
	IndexDocument(ctx context.Context, doc types.LexicalDocument) error

	// RemoveDocument is a no-op when the document is absent
	RemoveDocument(ctx context.Context, id int64) error

	// SearchText returns hits ordered by relevance descending, ties by id descending.
	// A query without tokens yields an empty slice.
	SearchText(ctx context.Context, query string, limit int) ([]types.TextHit, error)

	// GetDocument returns an error wrapping ErrNotFound for unknown ids
	GetDocument(ctx context.Context, id int64) (*types.LexicalDocument, error)
	CountDocuments(ctx context.Context) (int, error)
}

// Terms splits text into lowercase runs of letters and digits, in order and
// with repeats. Everything else is a separator.
func Terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Tokenize returns the Terms of a query without duplicates, keeping
// first-seen order. The result is safe to quote into FTS5 or bleve match syntax.
func Tokenize(query string) []string {
	fields := Terms(query)
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}
