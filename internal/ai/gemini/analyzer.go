package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/bookclub-matcher/internal/ai"
	"go.uber.org/zap"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

// Analyzer implements ai.Analyzer on top of Gemini JSON responses.
type Analyzer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

var (
	//go:embed prompts/personality.md
	personalityPrompt string
	//go:embed prompts/implicit.md
	implicitPrompt string
	//go:embed prompts/compatibility.md
	compatibilityPrompt string
	//go:embed prompts/similarity.md
	similarityPrompt string
)

const defaultMaxLogLength = 200

var _ ai.Analyzer = (*Analyzer)(nil)

func NewAnalyzer(generator contentGenerator, maxLogLength int, logger *zap.Logger) *Analyzer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Analyzer{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (a *Analyzer) PersonalityProfile(ctx context.Context, text string, favoriteBooks []string) (*ai.PersonalityProfile, error) {
	data, err := a.request(ctx, "personality_profile", personalityPrompt, map[string]any{
		"text":           text,
		"favorite_books": nonNil(favoriteBooks),
	})
	if err != nil {
		return nil, err
	}

	openness, err := unitScore(data, "openness")
	if err != nil {
		return nil, err
	}

	return &ai.PersonalityProfile{
		Traits:       coerceStrings(data["traits"]),
		ReadingStyle: coerceString(data["reading_style"]),
		Openness:     openness,
		Confidence:   optionalUnitScore(data, "confidence"),
	}, nil
}

func (a *Analyzer) ImplicitPreferences(ctx context.Context, text string, favoriteBooks, categories []string) (*ai.ImplicitAnalysis, error) {
	data, err := a.request(ctx, "implicit_preferences", implicitPrompt, map[string]any{
		"text":            text,
		"favorite_books":  nonNil(favoriteBooks),
		"book_categories": nonNil(categories),
	})
	if err != nil {
		return nil, err
	}

	return &ai.ImplicitAnalysis{
		Themes:      coerceStrings(data["themes"]),
		Preferences: coerceStrings(data["preferences"]),
		Confidence:  optionalUnitScore(data, "confidence"),
	}, nil
}

func (a *Analyzer) DeepCompatibility(ctx context.Context, profileA, profileB *ai.PersonalityProfile, implicitA, implicitB *ai.ImplicitAnalysis) (*ai.Compatibility, error) {
	data, err := a.request(ctx, "deep_compatibility", compatibilityPrompt, map[string]any{
		"a": map[string]any{"profile": profileA, "implicit": implicitA},
		"b": map[string]any{"profile": profileB, "implicit": implicitB},
	})
	if err != nil {
		return nil, err
	}

	score, err := unitScore(data, "score")
	if err != nil {
		return nil, err
	}

	dims, _ := data["dimensions"].(map[string]any)
	if dims == nil {
		return nil, fmt.Errorf("%w: dimensions object is missing", ai.ErrContractViolation)
	}

	growth, err := unitScore(dims, "growth_potential")
	if err != nil {
		return nil, err
	}
	exploratory, err := unitScore(dims, "exploratory_balance")
	if err != nil {
		return nil, err
	}

	return &ai.Compatibility{
		Score: score,
		Dimensions: ai.Dimensions{
			GrowthPotential:    growth,
			ExploratoryBalance: exploratory,
			Complementarity:    optionalUnitScore(dims, "complementarity"),
			SharedInterest:     optionalUnitScore(dims, "shared_interest"),
		},
		GrowthOpportunities: coerceStrings(data["growth_opportunities"]),
		Confidence:          optionalUnitScore(data, "confidence"),
		Summary:             coerceString(data["summary"]),
	}, nil
}

func (a *Analyzer) TextPreferenceSimilarity(ctx context.Context, textA, textB string) (*ai.TextSimilarity, error) {
	data, err := a.request(ctx, "text_preference_similarity", similarityPrompt, map[string]any{
		"a": textA,
		"b": textB,
	})
	if err != nil {
		return nil, err
	}

	score, err := unitScore(data, "score")
	if err != nil {
		return nil, err
	}

	return &ai.TextSimilarity{
		Score:    score,
		Elements: coerceStrings(data["elements"]),
	}, nil
}

func (a *Analyzer) request(ctx context.Context, operation, system string, payload map[string]any) (map[string]any, error) {
	if a.generator == nil {
		return nil, fmt.Errorf("%s: generator is not configured", operation)
	}

	message, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", operation, err)
	}

	a.logger.Debug("gemini request",
		zap.String("operation", operation),
		zap.Int("message_length", utf8.RuneCount(message)),
		zap.String("message_preview", preview(string(message), a.maxLogLen)),
	)

	raw, err := a.generator.GenerateContent(ctx, system, string(message))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	a.logger.Debug("gemini response",
		zap.String("operation", operation),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", preview(raw, a.maxLogLen)),
	)

	data, err := parseObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	return data, nil
}

// preview flattens whitespace so indented payloads fit on one log line and
// cuts the result to limit runes.
func preview(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	flat := strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(flat) <= limit {
		return flat
	}
	return string([]rune(flat)[:limit]) + "..."
}

func parseObject(raw string) (map[string]any, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: response is not an object", ai.ErrContractViolation)
	}

	return data, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// unitScore reads a required score in [0,1].
func unitScore(data map[string]any, key string) (float64, error) {
	v := coerceFloat(data[key])
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s is missing or not a number", ai.ErrContractViolation, key)
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("%w: %s=%v is outside [0,1]", ai.ErrContractViolation, key, v)
	}
	return v, nil
}

// optionalUnitScore reads a score that may be absent; out of range values are clamped.
func optionalUnitScore(data map[string]any, key string) float64 {
	v := coerceFloat(data[key])
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

// coerceStrings accepts a list or a single value and drops empty entries.
func coerceStrings(v any) []string {
	var items []any
	switch val := v.(type) {
	case nil:
		return []string{}
	case []any:
		items = val
	default:
		items = []any{val}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := coerceString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
