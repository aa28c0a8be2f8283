// Package vector holds the scoring shared by the in-process index backends.
package vector

import (
	"math"
	"sort"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector has zero magnitude.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank sorts by score descending, breaking ties by passage ID, and keeps at
// most topK entries.
func Rank(results []domain.ScoredPassage, topK int) []domain.ScoredPassage {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Passage.ID < results[j].Passage.ID
	})
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
