package scoring

import (
	"context"
	"sync"

	"github.com/spigell/bookclub-matcher/internal/ai"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls []string
	err   error
	// failAt makes only the n-th call (1-based) fail with err. 0 fails every call.
	failAt int

	compat     ai.Compatibility
	similarity ai.TextSimilarity
	onCall     func(op string)
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		compat: ai.Compatibility{
			Score: 0.6,
			Dimensions: ai.Dimensions{
				GrowthPotential:    0.9,
				ExploratoryBalance: 0.5,
				Complementarity:    0.7,
			},
			GrowthOpportunities: []string{"poetry", "history"},
			Confidence:          0.8,
			Summary:             "both enjoy long character-driven novels",
		},
		similarity: ai.TextSimilarity{Score: 0.4, Elements: []string{"nightly reading"}},
	}
}

func (f *fakeAnalyzer) record(op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	n := len(f.calls)
	hook := f.onCall
	f.mu.Unlock()

	if hook != nil {
		hook(op)
	}
	if f.err != nil && (f.failAt == 0 || f.failAt == n) {
		return f.err
	}
	return nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAnalyzer) PersonalityProfile(context.Context, string, []string) (*ai.PersonalityProfile, error) {
	if err := f.record("personality"); err != nil {
		return nil, err
	}
	return &ai.PersonalityProfile{Traits: []string{"curious"}, Openness: 0.7, Confidence: 0.9}, nil
}

func (f *fakeAnalyzer) ImplicitPreferences(context.Context, string, []string, []string) (*ai.ImplicitAnalysis, error) {
	if err := f.record("implicit"); err != nil {
		return nil, err
	}
	return &ai.ImplicitAnalysis{Themes: []string{"identity"}, Confidence: 0.6}, nil
}

func (f *fakeAnalyzer) DeepCompatibility(context.Context, *ai.PersonalityProfile, *ai.PersonalityProfile, *ai.ImplicitAnalysis, *ai.ImplicitAnalysis) (*ai.Compatibility, error) {
	if err := f.record("compatibility"); err != nil {
		return nil, err
	}
	c := f.compat
	return &c, nil
}

func (f *fakeAnalyzer) TextPreferenceSimilarity(context.Context, string, string) (*ai.TextSimilarity, error) {
	if err := f.record("similarity"); err != nil {
		return nil, err
	}
	s := f.similarity
	return &s, nil
}
