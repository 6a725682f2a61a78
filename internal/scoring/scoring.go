package scoring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/bookclub-matcher/internal/ai"
	"github.com/spigell/bookclub-matcher/internal/filtering"
	"github.com/spigell/bookclub-matcher/internal/roster"
)

type Mode string

const (
	ModeSimilar       Mode = "similar"
	ModeComplementary Mode = "complementary"

	MaxScore = 10.0
)

var ErrUnknownMode = errors.New("unknown match mode")

// ParseMode accepts "similar" and "complementary". An empty value means similar.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSimilar:
		return ModeSimilar, nil
	case ModeComplementary:
		return ModeComplementary, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

type Breakdown struct {
	Exact    int `json:"exact"`
	Semantic int `json:"semantic"`
	Category int `json:"category"`
}

// Analysis is the part of a result that only the remote scorer provides.
type Analysis struct {
	GrowthOpportunities []string      `json:"growth_opportunities"`
	Complementarity     float64       `json:"complementarity"`
	Confidence          float64       `json:"confidence"`
	Dimensions          ai.Dimensions `json:"dimensions"`
	SharedElements      []string      `json:"shared_elements,omitempty"`
	Summary             string        `json:"summary,omitempty"`
}

func (a *Analysis) GrowthOpportunityCount() int {
	if a == nil {
		return 0
	}
	return len(a.GrowthOpportunities)
}

type Result struct {
	MemberA         string    `json:"member_a"`
	MemberB         string    `json:"member_b"`
	NameA           string    `json:"name_a,omitempty"`
	NameB           string    `json:"name_b,omitempty"`
	Priority        float64   `json:"priority"`
	Score           float64   `json:"score"`
	Reason          string    `json:"reason"`
	Breakdown       Breakdown `json:"breakdown"`
	Degraded        bool      `json:"degraded,omitempty"`
	TraditionalMode bool      `json:"traditional_mode,omitempty"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	Cached          bool      `json:"cached,omitempty"`
	Analysis        *Analysis `json:"analysis,omitempty"`
}

func newResult(a, b *roster.Member) Result {
	return Result{
		MemberA:   a.ID,
		MemberB:   b.ID,
		NameA:     a.Name,
		NameB:     b.Name,
		Breakdown: exactBreakdown(a, b),
	}
}

// exactBreakdown counts pairwise exact hobby and book matches and the shared categories.
func exactBreakdown(a, b *roster.Member) Breakdown {
	qa, qb := a.Questionnaire, b.Questionnaire
	return Breakdown{
		Exact:    pairwiseMatches(qa.Hobbies, qb.Hobbies) + pairwiseMatches(qa.FavoriteBooks, qb.FavoriteBooks),
		Category: filtering.SharedCount(qa.BookCategories, qb.BookCategories),
	}
}

// pairwiseMatches counts every (x, y) with x == y, so duplicates count multiply.
func pairwiseMatches(a, b []string) int {
	n := 0
	for _, x := range a {
		for _, y := range b {
			if x == y {
				n++
			}
		}
	}
	return n
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > MaxScore:
		return MaxScore
	default:
		return v
	}
}
