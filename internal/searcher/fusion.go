package searcher

import (
	"sort"

	"github.com/dshills/gigsearch/pkg/types"
)

// fusedCandidate is one id after reciprocal rank fusion
type fusedCandidate struct {
	id           int64
	score        float64
	lexicalRank  int // 1-based, 0 when absent
	semanticRank int
}

// fuseRRF combines two ranked lists with equal weights:
// RRF(d) = Σ 1/(k + rank(d)). An id in both lists always scores above its
// score from either list alone. Ties break by id descending.
func fuseRRF(textHits []types.TextHit, vecHits []types.VectorHit, k float64) []fusedCandidate {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	byID := make(map[int64]*fusedCandidate, len(textHits)+len(vecHits))
	get := func(id int64) *fusedCandidate {
		c, ok := byID[id]
		if !ok {
			c = &fusedCandidate{id: id}
			byID[id] = c
		}
		return c
	}

	for i, h := range textHits {
		c := get(h.FreelancerID)
		if c.lexicalRank != 0 {
			continue
		}
		c.lexicalRank = i + 1
		c.score += 1.0 / (k + float64(i+1))
	}
	for i, h := range vecHits {
		c := get(h.FreelancerID)
		if c.semanticRank != 0 {
			continue
		}
		c.semanticRank = i + 1
		c.score += 1.0 / (k + float64(i+1))
	}

	results := make([]fusedCandidate, 0, len(byID))
	for _, c := range byID {
		results = append(results, *c)
	}
	sortFused(results)
	return results
}

// sortFused sorts by score descending, then id descending
func sortFused(results []fusedCandidate) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].id > results[j].id
	})
}
