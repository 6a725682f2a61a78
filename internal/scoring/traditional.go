package scoring

import (
	"fmt"

	"github.com/spigell/bookclub-matcher/internal/roster"
)

const commitmentWeight = 0.8

// commitmentCompatibility is indexed by the ordinal commitment difference.
var commitmentCompatibility = []float64{1.0, 0.7, 0.4, 0.1}

// Traditional scores a pair from exact matches only. It never fails.
type Traditional struct{}

func (Traditional) Score(a, b *roster.Member, mode Mode) Result {
	res := newResult(a, b)

	compat := CommitmentCompatibility(a.Questionnaire.ReadingCommitment, b.Questionnaire.ReadingCommitment)
	score := float64(res.Breakdown.Exact) + compat*commitmentWeight

	if mode == ModeComplementary {
		score *= 0.7
		score = (1 - score/MaxScore) * 5
	}

	res.Score = clamp(score)
	res.Reason = fmt.Sprintf("%d exact matches, %d shared categories, commitment compatibility %.1f",
		res.Breakdown.Exact, res.Breakdown.Category, compat)

	return res
}

// CommitmentCompatibility maps the ordinal distance of two commitments to
// [0,1]. Missing commitments give 0.
func CommitmentCompatibility(a, b roster.Commitment) float64 {
	la, lb := a.Level(), b.Level()
	if la == 0 || lb == 0 {
		return 0
	}

	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if diff >= len(commitmentCompatibility) {
		return 0
	}
	return commitmentCompatibility[diff]
}
