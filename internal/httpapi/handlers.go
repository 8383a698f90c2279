package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	zlog "github.com/dshills/gigsearch/internal/logger"
	"github.com/dshills/gigsearch/internal/searcher"
	"github.com/dshills/gigsearch/pkg/types"
)

type freelancerResult struct {
	FreelancerID int64   `json:"freelancer_id"`
	Rank         int     `json:"rank"`
	Score        float64 `json:"score"`
	Title        string  `json:"title"`
	Skills       string  `json:"skills"`
	Category     string  `json:"category"`
	Experience   int     `json:"experience"`
	BudgetRange  string  `json:"budget_range"`
	Location     string  `json:"location"`
	Rating       float64 `json:"rating"`
}

type searchResponse struct {
	Success    bool               `json:"success"`
	Results    []freelancerResult `json:"results"`
	Mode       string             `json:"mode"`
	Degraded   bool               `json:"degraded"`
	DurationMS int64              `json:"duration_ms"`
}

// handleSearch serves GET /freelancers/search. "q" is the query ("skill" is
// accepted too); "budget" is the client's budget and keeps freelancers whose
// minimum rate fits it, the same as max_budget.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	query := params.Get("q")
	if query == "" {
		query = params.Get("skill")
	}
	maxBudget := params.Get("max_budget")
	if maxBudget == "" {
		maxBudget = params.Get("budget")
	}

	filters, err := types.ParseFilters(params.Get("category"), params.Get("min_budget"), maxBudget, params.Get("location"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	limit, err := parseLimit(params.Get("limit"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	resp, err := s.engine.SearchDetailed(r.Context(), searcher.SearchRequest{Query: query, Filters: filters, Limit: limit})
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	profiles, err := s.profiles.GetProfiles(r.Context(), resp.IDs())
	if err != nil {
		writeDomainError(r.Context(), w, fmt.Errorf("load result profiles: %w", err))
		return
	}

	out := searchResponse{
		Success:    true,
		Results:    make([]freelancerResult, 0, len(resp.Results)),
		Mode:       string(resp.Mode),
		Degraded:   resp.Degraded,
		DurationMS: resp.Duration.Milliseconds(),
	}
	for _, res := range resp.Results {
		p, ok := profiles[res.FreelancerID]
		if !ok {
			// deleted between ranking and lookup
			continue
		}
		out.Results = append(out.Results, freelancerResult{
			FreelancerID: p.FreelancerID,
			Rank:         len(out.Results) + 1,
			Score:        res.Score,
			Title:        p.Title,
			Skills:       p.Skills,
			Category:     p.Category,
			Experience:   p.Experience,
			BudgetRange:  formatBudget(p.MinBudget) + " - " + formatBudget(p.MaxBudget),
			Location:     p.Location,
			Rating:       p.Rating,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func formatBudget(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// handleReindex serves POST /freelancers/{id}/reindex
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "freelancer id must be a positive integer")
		return
	}

	res := s.engine.OnProfileChanged(r.Context(), id)
	body := map[string]any{
		"success":       res.OK(),
		"freelancer_id": id,
		"deleted":       res.Deleted,
		"lexical":       outcome(res.LexicalErr),
		"semantic":      outcome(res.SemanticErr),
	}
	if !res.OK() {
		zlog.FromContext(r.Context()).Warn("reindex incomplete", zap.Int64("freelancer_id", id), zap.Error(res.Err()))
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

// handleBootstrap serves POST /index/bootstrap[?force=true]
func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "force must be a boolean")
			return
		}
		force = v
	}

	report, err := s.engine.Bootstrap(r.Context(), force)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleHealth serves GET /healthz. Only unavailable answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health(r.Context())
	status := http.StatusOK
	if h.Status == types.HealthUnavailable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}
