package types

import "strings"

// FreelancerProfile is the canonical profile row owned by the Profile Store.
type FreelancerProfile struct {
	FreelancerID int64
	Title        string
	Skills       string // free text, comma or space separated
	Bio          string
	Tags         string
	Category     string
	MinBudget    float64
	MaxBudget    float64
	Experience   int // years
	Location     string
	Rating       float64
}

// Validate checks the invariants the store relies on.
func (p *FreelancerProfile) Validate() error {
	if p.FreelancerID <= 0 {
		return ErrInvalidFreelancerID
	}
	if p.MinBudget < 0 || p.MaxBudget < 0 {
		return &ValidationError{Field: "budget", Reason: "must not be negative"}
	}
	if p.MaxBudget > 0 && p.MinBudget > p.MaxBudget {
		return &ValidationError{Field: "budget", Reason: "min_budget exceeds max_budget"}
	}
	return nil
}

// PortfolioItem belongs to exactly one freelancer and only contributes text.
type PortfolioItem struct {
	ID           int64
	FreelancerID int64
	Title        string
	Description  string
}

// LexicalDocument is the derived, fully replaceable search document for one freelancer.
type LexicalDocument struct {
	FreelancerID  int64
	Title         string
	Skills        string
	Bio           string
	Tags          string
	PortfolioText string
}

// BuildLexicalDocument derives the search document from a profile and its portfolio.
// The result depends only on its inputs, so rebuilding it is idempotent.
func BuildLexicalDocument(p *FreelancerProfile, items []PortfolioItem) LexicalDocument {
	return LexicalDocument{
		FreelancerID:  p.FreelancerID,
		Title:         p.Title,
		Skills:        p.Skills,
		Bio:           p.Bio,
		Tags:          p.Tags,
		PortfolioText: PortfolioText(items),
	}
}

// PortfolioText concatenates "title description" for every item, space separated.
func PortfolioText(items []PortfolioItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		s := strings.TrimSpace(it.Title + " " + it.Description)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// EmbeddingText is the text fed to the embedding model. It covers the same
// fields as the lexical document so the two indexes describe identical content.
func (d LexicalDocument) EmbeddingText() string {
	fields := []string{d.Title, d.Skills, d.Bio, d.Tags, d.PortfolioText}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, "\n")
}

// IsEmpty reports whether the document carries no searchable text.
func (d LexicalDocument) IsEmpty() bool {
	return d.EmbeddingText() == ""
}
