package ranking

import (
	"cmp"
	"slices"

	"github.com/spigell/bookclub-matcher/internal/scoring"
)

const (
	growthWeight          = 0.5
	complementarityWeight = 0.3
	confidenceWeight      = 0.2
)

// Rank returns a sorted copy of results, best match first. Ties keep their input order.
//
// Similar mode orders by score. Complementary mode orders results carrying a
// remote analysis by GrowthValue and the others by score. When no result
// carries an analysis the whole set is ordered by score.
func Rank(results []scoring.Result, mode scoring.Mode) []scoring.Result {
	ranked := slices.Clone(results)

	key := func(r scoring.Result) float64 { return r.Score }
	if mode == scoring.ModeComplementary && slices.ContainsFunc(ranked, hasAnalysis) {
		key = func(r scoring.Result) float64 {
			if hasAnalysis(r) {
				return GrowthValue(r.Analysis)
			}
			return r.Score
		}
	}

	slices.SortStableFunc(ranked, func(a, b scoring.Result) int {
		return cmp.Compare(key(b), key(a))
	})
	return ranked
}

// GrowthValue weighs growth opportunities, complementarity and confidence of an analysis.
func GrowthValue(a *scoring.Analysis) float64 {
	if a == nil {
		return 0
	}
	return growthWeight*float64(a.GrowthOpportunityCount()) +
		complementarityWeight*a.Complementarity +
		confidenceWeight*a.Confidence
}

func hasAnalysis(r scoring.Result) bool {
	return r.Analysis != nil
}
