package retrieve

import (
	"sort"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
)

type fusionWeights struct {
	vector  float64
	text    float64
	penalty float64
}

// fuseScores merges the lexical and vector candidate sets.
// Present in both: hybrid = vector_weight*vector + text_weight*text.
// Present in one:  hybrid = score * single_source_penalty.
// The union is sorted by hybrid score descending, ties broken by service id
// for a stable, reproducible order.
func fuseScores(
	lexical, vector []domain.ServiceCandidate,
	w fusionWeights,
	dropVectorOnly bool,
) []domain.ServiceCandidate {
	merged := make(map[int64]domain.ServiceCandidate, len(lexical)+len(vector))

	for _, c := range lexical {
		merged[c.ServiceID] = c
	}
	for _, c := range vector {
		if existing, ok := merged[c.ServiceID]; ok {
			existing.VectorScore = c.VectorScore
			merged[c.ServiceID] = existing
			continue
		}
		if dropVectorOnly {
			continue
		}
		merged[c.ServiceID] = c
	}

	out := make([]domain.ServiceCandidate, 0, len(merged))
	for _, c := range merged {
		c.HybridScore = hybridScore(c, w)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HybridScore != out[j].HybridScore {
			return out[i].HybridScore > out[j].HybridScore
		}
		return out[i].ServiceID < out[j].ServiceID
	})
	return out
}

func hybridScore(c domain.ServiceCandidate, w fusionWeights) float64 {
	switch {
	case c.VectorScore != nil && c.TextScore != nil:
		return w.vector**c.VectorScore + w.text**c.TextScore
	case c.VectorScore != nil:
		return *c.VectorScore * w.penalty
	case c.TextScore != nil:
		return *c.TextScore * w.penalty
	default:
		// Prevented by construction: every candidate carries at least one
		// sub-score when it leaves a repository.
		return 0
	}
}
