package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spigell/bookclub-matcher/internal/ai"
	"go.uber.org/zap"
)

type stubGenerator struct {
	response    string
	err         error
	lastSystem  string
	lastMessage string
}

func (s *stubGenerator) GenerateContent(_ context.Context, system, message string) (string, error) {
	s.lastSystem = system
	s.lastMessage = message
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestAnalyzerPersonalityProfile(t *testing.T) {
	stub := &stubGenerator{response: `{"traits": ["curious", "patient"], "reading_style": "slow", "openness": "0.8", "confidence": 1.4}`}
	analyzer := NewAnalyzer(stub, 0, zap.NewNop())

	profile, err := analyzer.PersonalityProfile(context.Background(), "I read every night", []string{"Dune"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(profile.Traits) != 2 || profile.Traits[0] != "curious" {
		t.Fatalf("unexpected traits: %v", profile.Traits)
	}

	if profile.Openness != 0.8 {
		t.Fatalf("expected openness 0.8, got %v", profile.Openness)
	}

	if profile.Confidence != 1 {
		t.Fatalf("expected optional confidence to be clamped to 1, got %v", profile.Confidence)
	}

	if stub.lastSystem != personalityPrompt {
		t.Fatalf("expected personality prompt to be used as system instruction")
	}

	if !strings.Contains(stub.lastMessage, `"Dune"`) || !strings.Contains(stub.lastMessage, "I read every night") {
		t.Fatalf("expected member data in message, got %s", stub.lastMessage)
	}
}

func TestAnalyzerDeepCompatibility(t *testing.T) {
	raw := "```json\n" + `{
		"score": 0.7,
		"dimensions": {"growth_potential": 0.9, "exploratory_balance": 0.5, "complementarity": 0.6},
		"growth_opportunities": ["poetry", "history"],
		"confidence": 0.8,
		"summary": "Balanced pair"
	}` + "\n```"
	stub := &stubGenerator{response: raw}
	analyzer := NewAnalyzer(stub, 0, zap.NewNop())

	result, err := analyzer.DeepCompatibility(context.Background(),
		&ai.PersonalityProfile{Traits: []string{"curious"}},
		&ai.PersonalityProfile{Traits: []string{"bold"}},
		&ai.ImplicitAnalysis{}, &ai.ImplicitAnalysis{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Score != 0.7 || result.Dimensions.GrowthPotential != 0.9 || result.Dimensions.ExploratoryBalance != 0.5 {
		t.Fatalf("unexpected compatibility: %+v", result)
	}

	if len(result.GrowthOpportunities) != 2 {
		t.Fatalf("expected 2 growth opportunities, got %v", result.GrowthOpportunities)
	}

	if result.Dimensions.SharedInterest != 0 {
		t.Fatalf("expected missing dimension to default to 0, got %v", result.Dimensions.SharedInterest)
	}
}

func TestAnalyzerRejectsContractViolations(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "score above one", response: `{"score": 7, "elements": []}`},
		{name: "missing score", response: `{"elements": ["sci-fi"]}`},
		{name: "not an object", response: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := NewAnalyzer(&stubGenerator{response: tt.response}, 0, zap.NewNop())

			_, err := analyzer.TextPreferenceSimilarity(context.Background(), "a", "b")
			if !errors.Is(err, ai.ErrContractViolation) {
				t.Fatalf("expected contract violation, got %v", err)
			}
		})
	}
}

func TestAnalyzerPropagatesGeneratorError(t *testing.T) {
	cause := errors.New("boom")
	analyzer := NewAnalyzer(&stubGenerator{err: cause}, 0, zap.NewNop())

	_, err := analyzer.ImplicitPreferences(context.Background(), "text", nil, nil)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped generator error, got %v", err)
	}

	if !strings.HasPrefix(err.Error(), "implicit_preferences:") {
		t.Fatalf("expected operation prefix, got %q", err.Error())
	}
}

func TestAnalyzerMalformedJSON(t *testing.T) {
	analyzer := NewAnalyzer(&stubGenerator{response: "I think they match well"}, 0, zap.NewNop())

	if _, err := analyzer.TextPreferenceSimilarity(context.Background(), "a", "b"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCoerceStrings(t *testing.T) {
	got := coerceStrings([]any{" sci-fi ", "", 3.0})
	if len(got) != 2 || got[0] != "sci-fi" || got[1] != "3" {
		t.Fatalf("unexpected strings: %v", got)
	}

	if single := coerceStrings("poetry"); len(single) != 1 || single[0] != "poetry" {
		t.Fatalf("expected single value to become a list, got %v", single)
	}
}
