package scoring

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/bookclub-matcher/internal/ai"
	"github.com/spigell/bookclub-matcher/internal/cache"
	"github.com/spigell/bookclub-matcher/internal/logger"
	"github.com/spigell/bookclub-matcher/internal/roster"
)

const (
	growthWeight      = 0.4
	exploratoryWeight = 0.3
	compatWeight      = 0.3

	probeText = "I read a novel every couple of weeks and like talking about it afterwards."
)

// analysisRecord is what the analysis tier stores. Both parts are symmetric
// in the pair so a hit is valid regardless of member order.
type analysisRecord struct {
	Compatibility ai.Compatibility  `json:"compatibility"`
	Similarity    ai.TextSimilarity `json:"similarity"`
}

// Remote scores pairs with the semantic-analysis service.
type Remote struct {
	analyzer ai.Analyzer
	cache    *cache.Manager
	logger   *zap.Logger
}

func NewRemote(analyzer ai.Analyzer, c *cache.Manager, logger *zap.Logger) *Remote {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = cache.New()
	}
	return &Remote{analyzer: analyzer, cache: c, logger: logger}
}

// Score returns the remote result for the pair. Cached analyses are marked
// with Result.Cached and involve no service call.
func (r *Remote) Score(ctx context.Context, a, b *roster.Member, mode Mode) (Result, error) {
	key := cache.AnalysisKey(a, b)

	var rec analysisRecord
	if r.cache.Get(ctx, cache.TierAnalysis, key, &rec) {
		res := r.combine(a, b, mode, &rec)
		res.Cached = true
		return res, nil
	}

	analyzed, err := r.analyze(ctx, a, b)
	if err != nil {
		return Result{}, err
	}

	r.cache.Set(ctx, cache.TierAnalysis, key, analyzed, a.ID, b.ID)

	return r.combine(a, b, mode, analyzed), nil
}

// analyze issues the six service calls for the pair, checking ctx before each one.
func (r *Remote) analyze(ctx context.Context, a, b *roster.Member) (*analysisRecord, error) {
	if r.analyzer == nil {
		return nil, fmt.Errorf("semantic analyzer is not configured")
	}

	log := logger.WithFields(r.logger, logger.PairFields(a.ID, b.ID)...)
	textA, textB := a.PreferenceText(), b.PreferenceText()
	qa, qb := a.Questionnaire, b.Questionnaire

	var (
		profileA, profileB   *ai.PersonalityProfile
		implicitA, implicitB *ai.ImplicitAnalysis
		compat               *ai.Compatibility
		similarity           *ai.TextSimilarity
	)

	steps := []struct {
		name string
		call func() error
	}{
		{"personality profile " + a.ID, func() (err error) {
			profileA, err = r.analyzer.PersonalityProfile(ctx, textA, qa.FavoriteBooks)
			return err
		}},
		{"personality profile " + b.ID, func() (err error) {
			profileB, err = r.analyzer.PersonalityProfile(ctx, textB, qb.FavoriteBooks)
			return err
		}},
		{"implicit preferences " + a.ID, func() (err error) {
			implicitA, err = r.analyzer.ImplicitPreferences(ctx, textA, qa.FavoriteBooks, qa.BookCategories)
			return err
		}},
		{"implicit preferences " + b.ID, func() (err error) {
			implicitB, err = r.analyzer.ImplicitPreferences(ctx, textB, qb.FavoriteBooks, qb.BookCategories)
			return err
		}},
		{"deep compatibility", func() (err error) {
			compat, err = r.analyzer.DeepCompatibility(ctx, profileA, profileB, implicitA, implicitB)
			return err
		}},
		{"text similarity", func() (err error) {
			similarity, err = r.analyzer.TextPreferenceSimilarity(ctx, textA, textB)
			return err
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := step.call(); err != nil {
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	if compat == nil || similarity == nil {
		return nil, fmt.Errorf("empty analysis result: %w", ai.ErrContractViolation)
	}

	log.Debug("pair analyzed",
		zap.Float64("compatibility", compat.Score),
		zap.Float64("similarity", similarity.Score),
	)

	return &analysisRecord{Compatibility: *compat, Similarity: *similarity}, nil
}

func (r *Remote) combine(a, b *roster.Member, mode Mode, rec *analysisRecord) Result {
	compat := rec.Compatibility
	dims := compat.Dimensions

	unit := compat.Score
	if mode == ModeComplementary {
		unit = growthWeight*dims.GrowthPotential + exploratoryWeight*dims.ExploratoryBalance + compatWeight*compat.Score
	}

	res := newResult(a, b)
	res.Score = clamp(unit * MaxScore)
	res.Breakdown.Semantic = len(rec.Similarity.Elements)
	res.Reason = compat.Summary
	if res.Reason == "" {
		res.Reason = fmt.Sprintf("semantic compatibility %.2f, text similarity %.2f", compat.Score, rec.Similarity.Score)
	}
	res.Analysis = &Analysis{
		GrowthOpportunities: append([]string(nil), compat.GrowthOpportunities...),
		Complementarity:     dims.Complementarity,
		Confidence:          compat.Confidence,
		Dimensions:          dims,
		SharedElements:      append([]string(nil), rec.Similarity.Elements...),
		Summary:             compat.Summary,
	}
	return res
}

// Probe makes a single cheap service call and bypasses every cache.
func (r *Remote) Probe(ctx context.Context) error {
	if r.analyzer == nil {
		return fmt.Errorf("semantic analyzer is not configured")
	}
	if _, err := r.analyzer.TextPreferenceSimilarity(ctx, probeText, probeText); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	return nil
}
