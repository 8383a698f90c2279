// Package bleveindex implements lexical.Index on a bleve full-text index.
package bleveindex

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/dshills/gigsearch/internal/lexical"
	"github.com/dshills/gigsearch/pkg/types"
)

// searchable text fields, in the order documents are built
var textFields = []string{"title", "skills", "bio", "tags", "portfolio_text"}

// field boosts mirror the FTS5 bm25 column weights
var fieldBoosts = map[string]float64{
	"title":          2.0,
	"skills":         1.5,
	"bio":            1.0,
	"tags":           1.0,
	"portfolio_text": 0.75,
}

// Index stores one bleve document per freelancer, keyed by the decimal id.
type Index struct {
	index  bleve.Index
	path   string
	logger *zap.Logger
}

var _ lexical.Index = (*Index)(nil)

type bleveDoc struct {
	FreelancerID  int64  `json:"freelancer_id"`
	Title         string `json:"title"`
	Skills        string `json:"skills"`
	Bio           string `json:"bio"`
	Tags          string `json:"tags"`
	PortfolioText string `json:"portfolio_text"`
}

// Open opens the index at path, creating it when the directory does not
// exist. An empty path creates a memory-only index.
func Open(path string, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if path == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory bleve index: %w", err)
		}
		return &Index{index: idx, logger: logger}, nil
	}

	idx, err := bleve.Open(path)
	if err == nil {
		logger.Info("opened bleve index", zap.String("path", path))
		return &Index{index: idx, path: path, logger: logger}, nil
	}

	// An existing path that fails to open is corrupt or from another mapping
	if _, statErr := os.Stat(path); statErr == nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}

	idx, err = bleve.New(path, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	logger.Info("created bleve index", zap.String("path", path))
	return &Index{index: idx, path: path, logger: logger}, nil
}

func buildIndexMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Stored so GetDocument can rebuild the LexicalDocument
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = "en"
	textField.Store = true
	for _, f := range textFields {
		docMapping.AddFieldMappingsAt(f, textField)
	}

	idField := bleve.NewNumericFieldMapping()
	idField.Store = false
	docMapping.AddFieldMappingsAt("freelancer_id", idField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

func docKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// IndexDocument replaces the document; bleve's Index is an upsert by key.
func (ix *Index) IndexDocument(_ context.Context, doc types.LexicalDocument) error {
	if doc.FreelancerID <= 0 {
		return types.ErrInvalidFreelancerID
	}
	bd := bleveDoc{
		FreelancerID:  doc.FreelancerID,
		Title:         doc.Title,
		Skills:        doc.Skills,
		Bio:           doc.Bio,
		Tags:          doc.Tags,
		PortfolioText: doc.PortfolioText,
	}
	if err := ix.index.Index(docKey(doc.FreelancerID), bd); err != nil {
		return fmt.Errorf("index document %d: %w", doc.FreelancerID, err)
	}
	return nil
}

func (ix *Index) RemoveDocument(_ context.Context, id int64) error {
	if err := ix.index.Delete(docKey(id)); err != nil {
		return fmt.Errorf("remove document %d: %w", id, err)
	}
	return nil
}

// SearchText matches any query token in any text field.
func (ix *Index) SearchText(ctx context.Context, query string, limit int) ([]types.TextHit, error) {
	tokens := lexical.Tokenize(query)
	if len(tokens) == 0 || limit <= 0 {
		return []types.TextHit{}, nil
	}
	text := strings.Join(tokens, " ")

	// Match per field rather than _all, which is analyzed differently
	fieldQueries := make([]blevequery.Query, 0, len(textFields))
	for _, field := range textFields {
		q := bleve.NewMatchQuery(text)
		q.SetField(field)
		q.SetBoost(fieldBoosts[field])
		fieldQueries = append(fieldQueries, q)
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(fieldQueries...))
	req.Size = limit
	req.SortBy([]string{"-_score", "-freelancer_id"})

	res, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	hits := make([]types.TextHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			ix.logger.Warn("skipping bleve hit with non-numeric id", zap.String("id", h.ID))
			continue
		}
		hits = append(hits, types.TextHit{FreelancerID: id, Score: h.Score})
	}
	return hits, nil
}

func (ix *Index) GetDocument(ctx context.Context, id int64) (*types.LexicalDocument, error) {
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{docKey(id)}))
	req.Fields = textFields
	req.Size = 1

	res, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get document %d: %w", id, err)
	}
	if len(res.Hits) == 0 {
		return nil, fmt.Errorf("document %d: %w", id, lexical.ErrNotFound)
	}

	fields := res.Hits[0].Fields
	str := func(name string) string {
		s, _ := fields[name].(string)
		return s
	}
	return &types.LexicalDocument{
		FreelancerID:  id,
		Title:         str("title"),
		Skills:        str("skills"),
		Bio:           str("bio"),
		Tags:          str("tags"),
		PortfolioText: str("portfolio_text"),
	}, nil
}

func (ix *Index) CountDocuments(_ context.Context) (int, error) {
	n, err := ix.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return int(n), nil
}

// Path returns the on-disk location, empty for memory-only indexes
func (ix *Index) Path() string {
	return ix.path
}

func (ix *Index) Close() error {
	return ix.index.Close()
}
