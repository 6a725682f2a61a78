package ai

import (
	"context"
	"errors"
)

// ErrContractViolation is returned when the analysis service answers with data
// outside of the documented contract, for example a score outside [0,1].
var ErrContractViolation = errors.New("analysis response violates contract")

type PersonalityProfile struct {
	Traits       []string `json:"traits"`
	ReadingStyle string   `json:"reading_style"`
	Openness     float64  `json:"openness"`
	Confidence   float64  `json:"confidence"`
}

type ImplicitAnalysis struct {
	Themes      []string `json:"themes"`
	Preferences []string `json:"preferences"`
	Confidence  float64  `json:"confidence"`
}

type Dimensions struct {
	GrowthPotential    float64 `json:"growth_potential"`
	ExploratoryBalance float64 `json:"exploratory_balance"`
	Complementarity    float64 `json:"complementarity"`
	SharedInterest     float64 `json:"shared_interest"`
}

type Compatibility struct {
	Score               float64    `json:"score"`
	Dimensions          Dimensions `json:"dimensions"`
	GrowthOpportunities []string   `json:"growth_opportunities"`
	Confidence          float64    `json:"confidence"`
	Summary             string     `json:"summary"`
}

type TextSimilarity struct {
	Score    float64  `json:"score"`
	Elements []string `json:"elements"`
}

// Analyzer is the semantic-analysis collaborator used by the remote scorer.
// Implementations return scores in [0,1].
type Analyzer interface {
	PersonalityProfile(ctx context.Context, text string, favoriteBooks []string) (*PersonalityProfile, error)
	ImplicitPreferences(ctx context.Context, text string, favoriteBooks, categories []string) (*ImplicitAnalysis, error)
	DeepCompatibility(ctx context.Context, profileA, profileB *PersonalityProfile, implicitA, implicitB *ImplicitAnalysis) (*Compatibility, error)
	TextPreferenceSimilarity(ctx context.Context, textA, textB string) (*TextSimilarity, error)
}
