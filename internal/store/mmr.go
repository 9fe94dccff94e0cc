package store

import (
	"github.com/nickcecere/docrag/internal/embeddings"
)

// selectMMR picks k candidates by Maximal Marginal Relevance:
//
//	MMR(c) = λ·sim(c, query) - (1-λ)·max sim(c, selected)
//
// Similarities are cosine similarities between embeddings. Ties keep the
// candidate that ranked nearer.
func selectMMR(query []float32, cands []candidate, k int, lambda float64) []Result {
	if k > len(cands) {
		k = len(cands)
	}
	if k <= 0 {
		return nil
	}

	relevance := make([]float64, len(cands))
	for i, c := range cands {
		relevance[i] = embeddings.Cosine(query, c.embedding)
	}

	// maxSim[i] is the highest similarity of candidate i to anything selected
	maxSim := make([]float64, len(cands))
	used := make([]bool, len(cands))
	selected := make([]Result, 0, k)

	for len(selected) < k {
		best := -1
		bestScore := 0.0
		for i := range cands {
			if used[i] {
				continue
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim[i]
			if best == -1 || score > bestScore {
				best, bestScore = i, score
			}
		}

		used[best] = true
		selected = append(selected, cands[best].Result)

		for i := range cands {
			if used[i] {
				continue
			}
			if sim := embeddings.Cosine(cands[i].embedding, cands[best].embedding); len(selected) == 1 || sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}

	return selected
}

// fetchK returns how many candidates MMR considers for k results.
func fetchK(k, configured int) int {
	n := 4 * k
	if configured > n {
		n = configured
	}
	if n > maxKNN {
		n = maxKNN
	}
	return n
}
