package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/gigsearch/internal/lexical"
	"github.com/dshills/gigsearch/pkg/types"
)

var _ lexical.Index = (*SQLiteStorage)(nil)

// bm25 column weights: title, skills, bio, tags, portfolio_text
const bm25Weights = "2.0, 1.5, 1.0, 1.0, 0.75"

// IndexDocument replaces the FTS row for the freelancer inside one transaction,
// so readers never observe the old document removed without the new one present.
func (s *SQLiteStorage) IndexDocument(ctx context.Context, doc types.LexicalDocument) error {
	if doc.FreelancerID <= 0 {
		return types.ErrInvalidFreelancerID
	}
	err := s.withTx(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM freelancer_search WHERE rowid = ?`, doc.FreelancerID); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO freelancer_search (rowid, title, skills, bio, tags, portfolio_text)
			VALUES (?, ?, ?, ?, ?, ?)`,
			doc.FreelancerID, doc.Title, doc.Skills, doc.Bio, doc.Tags, doc.PortfolioText)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to index document %d: %w", doc.FreelancerID, err)
	}
	return nil
}

// RemoveDocument deletes the FTS row; absent rows are ignored
func (s *SQLiteStorage) RemoveDocument(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM freelancer_search WHERE rowid = ?`, id); err != nil {
		return fmt.Errorf("failed to remove document %d: %w", id, err)
	}
	return nil
}

// SearchText performs BM25 full-text search using FTS5
func (s *SQLiteStorage) SearchText(ctx context.Context, query string, limit int) ([]types.TextHit, error) {
	match := buildMatchExpression(query)
	if match == "" || limit <= 0 {
		return []types.TextHit{}, nil
	}

	// bm25() is lower-is-better, so negate it to get higher-is-better scores
	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, -bm25(freelancer_search, `+bm25Weights+`) AS score
		FROM freelancer_search
		WHERE freelancer_search MATCH ?
		ORDER BY score DESC, rowid DESC
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]types.TextHit, 0, limit)
	for rows.Next() {
		var h types.TextHit
		if err := rows.Scan(&h.FreelancerID, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, id int64) (*types.LexicalDocument, error) {
	doc := types.LexicalDocument{FreelancerID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT title, skills, bio, tags, portfolio_text
		FROM freelancer_search WHERE rowid = ?`, id).
		Scan(&doc.Title, &doc.Skills, &doc.Bio, &doc.Tags, &doc.PortfolioText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, lexical.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %d: %w", id, err)
	}
	return &doc, nil
}

func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM freelancer_search`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// buildMatchExpression turns free text into an FTS5 query of quoted terms
// joined by OR. Quoting every term neutralizes FTS5 operators and column
// filters in user input.
func buildMatchExpression(query string) string {
	tokens := lexical.Tokenize(query)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}
