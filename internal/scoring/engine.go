package scoring

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/bookclub-matcher/internal/cache"
	"github.com/spigell/bookclub-matcher/internal/errmon"
	"github.com/spigell/bookclub-matcher/internal/filtering"
	"github.com/spigell/bookclub-matcher/internal/health"
	"github.com/spigell/bookclub-matcher/internal/logger"
	"github.com/spigell/bookclub-matcher/internal/metrics"
	"github.com/spigell/bookclub-matcher/internal/roster"
)

var ErrRemoteDisabled = errors.New("semantic analysis is disabled")

// Engine decides per pair between the remote and the traditional scorer.
type Engine struct {
	traditional Traditional
	remote      *Remote
	health      *health.Monitor
	errors      *errmon.Monitor
	cache       *cache.Manager
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

type EngineOption func(*Engine)

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine. A nil remote scores every pair traditionally.
func NewEngine(remote *Remote, h *health.Monitor, em *errmon.Monitor, c *cache.Manager, opts ...EngineOption) *Engine {
	e := &Engine{
		remote: remote,
		health: h,
		errors: em,
		cache:  c,
		logger: zap.NewNop(),
	}
	if e.health == nil {
		e.health = health.New()
	}
	if e.errors == nil {
		e.errors = errmon.New()
	}
	if e.cache == nil {
		e.cache = cache.New()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Health() *health.Monitor { return e.health }

func (e *Engine) Errors() *errmon.Monitor { return e.errors }

// RemoteEnabled reports whether a remote scorer is configured at all.
func (e *Engine) RemoteEnabled() bool { return e.remote != nil }

// Score scores one candidate pair. A nil result without error means the pair
// has no compatibility signal and is dropped. Only cancellation of ctx is
// returned as an error, remote failures fall back to the traditional scorer.
func (e *Engine) Score(ctx context.Context, pair filtering.Pair, mode Mode) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, scorer, err := e.score(ctx, pair.A, pair.B, mode)
	if err != nil {
		return nil, err
	}
	res.Priority = pair.Priority

	if res.Score <= 0 {
		e.metrics.ObserveDropped()
		e.logger.Debug("pair dropped, no compatibility signal", logger.PairFields(pair.A.ID, pair.B.ID)...)
		return nil, nil
	}

	e.metrics.ObservePair(scorer)
	return &res, nil
}

func (e *Engine) score(ctx context.Context, a, b *roster.Member, mode Mode) (Result, string, error) {
	if e.remote == nil {
		return e.fallbackOnly(a, b, mode), metrics.ScorerTraditional, nil
	}

	if !e.health.ShouldUseAI() {
		if !e.health.ProbeDue() {
			return e.fallbackOnly(a, b, mode), metrics.ScorerTraditional, nil
		}

		e.logger.Info("probing semantic analysis after cooldown")
		if err := e.Probe(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, "", ctxErr
			}
			return e.fallbackOnly(a, b, mode), metrics.ScorerTraditional, nil
		}
		if !e.health.ShouldUseAI() {
			return e.fallbackOnly(a, b, mode), metrics.ScorerTraditional, nil
		}
	}

	key := cache.PairResultKey(a, b, string(mode))
	var cached Result
	if e.cache.Get(ctx, cache.TierPairResult, key, &cached) {
		cached.Cached = true
		return cached, metrics.ScorerCached, nil
	}

	res, err := e.remote.Score(ctx, a, b, mode)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, "", ctxErr
		}
		e.recordFailure(err, a.ID+"/"+b.ID)

		e.logger.Warn("semantic scoring failed, using fallback",
			append(logger.PairFields(a.ID, b.ID), zap.Error(err))...,
		)

		fb := e.traditional.Score(a, b, mode)
		fb.Degraded = true
		fb.FailureReason = err.Error()
		return fb, metrics.ScorerFallback, nil
	}

	e.cache.Set(ctx, cache.TierPairResult, key, res, a.ID, b.ID)

	if res.Cached {
		return res, metrics.ScorerCached, nil
	}

	e.health.RecordSuccess()
	e.syncHealth()
	return res, metrics.ScorerRemote, nil
}

func (e *Engine) fallbackOnly(a, b *roster.Member, mode Mode) Result {
	res := e.traditional.Score(a, b, mode)
	res.TraditionalMode = true
	return res
}

// Probe makes one trial call to the analysis service and records the outcome.
func (e *Engine) Probe(ctx context.Context) error {
	if e.remote == nil {
		return ErrRemoteDisabled
	}

	if err := e.remote.Probe(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e.recordFailure(err, "probe")
		return err
	}

	e.health.RecordSuccess()
	e.syncHealth()
	return nil
}

func (e *Engine) recordFailure(err error, subject string) {
	e.health.RecordError()
	entry := e.errors.Log(err, fmt.Sprintf("%s: %v", subject, err))
	e.metrics.ObserveAnalysisError(string(entry.Category))
	e.syncHealth()
}

func (e *Engine) syncHealth() {
	st := e.health.State()
	e.metrics.SetCircuit(st.Degraded, st.BatchSize)
}
