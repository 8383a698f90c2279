package types

import "time"

// SearchResult is one ranked freelancer in a response. Ordering is the contract;
// Score is only meaningful relative to other results of the same query.
type SearchResult struct {
	FreelancerID int64
	Rank         int // Position in result set (1-based)
	Score        float64

	// Per-signal positions (1-based), 0 when the signal did not return the id
	LexicalRank  int
	SemanticRank int
}

// TextHit is a lexical index match. Higher Score is more relevant.
type TextHit struct {
	FreelancerID int64
	Score        float64
}

// VectorHit is a semantic index match scored by inner product of unit vectors.
type VectorHit struct {
	FreelancerID int64
	Score        float64
}

// HealthStatus is the coarse availability of the search subsystem.
type HealthStatus string

const (
	HealthOK          HealthStatus = "ok"
	HealthDegraded    HealthStatus = "degraded"
	HealthUnavailable HealthStatus = "unavailable"
)

// Health reports whether callers get full hybrid ranking or a reduced experience.
type Health struct {
	Status HealthStatus      `json:"status"`
	Detail string            `json:"detail"`
	Checks map[string]string `json:"checks,omitempty"`
}

// BootstrapReport summarizes a bulk index population. Failures are counted, not fatal.
type BootstrapReport struct {
	RunID            string        `json:"run_id"`
	Skipped          bool          `json:"skipped"`
	Reason           string        `json:"reason,omitempty"`
	Total            int           `json:"total"`
	Indexed          int           `json:"indexed"`
	Deleted          int           `json:"deleted"`
	Failed           int           `json:"failed"` // freelancers with at least one index failure
	LexicalFailures  int           `json:"lexical_failures"`
	SemanticFailures int           `json:"semantic_failures"`
	Errors           []string      `json:"errors,omitempty"`
	Duration         time.Duration `json:"duration"`
}
