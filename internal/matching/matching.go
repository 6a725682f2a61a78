package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/bookclub-matcher/internal/batch"
	"github.com/spigell/bookclub-matcher/internal/cache"
	"github.com/spigell/bookclub-matcher/internal/errmon"
	"github.com/spigell/bookclub-matcher/internal/filtering"
	"github.com/spigell/bookclub-matcher/internal/health"
	"github.com/spigell/bookclub-matcher/internal/logger"
	"github.com/spigell/bookclub-matcher/internal/metrics"
	"github.com/spigell/bookclub-matcher/internal/ranking"
	"github.com/spigell/bookclub-matcher/internal/roster"
	"github.com/spigell/bookclub-matcher/internal/scoring"
)

var ErrRunInProgress = errors.New("a matching run is already in progress")

const (
	runStatusOK        = "ok"
	runStatusCancelled = "cancelled"
	runStatusFailed    = "failed"
)

type Summary struct {
	Remote      int `json:"remote"`
	Cached      int `json:"cached"`
	Degraded    int `json:"degraded"`
	Traditional int `json:"traditional"`
}

// Report describes one finished, possibly cancelled, run.
type Report struct {
	RunID       string                         `json:"run_id"`
	Mode        scoring.Mode                   `json:"mode"`
	StartedAt   time.Time                      `json:"started_at"`
	FinishedAt  time.Time                      `json:"finished_at"`
	Members     int                            `json:"members"`
	Approved    int                            `json:"approved"`
	Candidates  int                            `json:"candidates"`
	Steps       []filtering.Step               `json:"steps"`
	Results     []scoring.Result               `json:"results"`
	Summary     Summary                        `json:"summary"`
	FromCache   bool                           `json:"from_cache,omitempty"`
	Cancelled   bool                           `json:"cancelled,omitempty"`
	Invalidated int                            `json:"invalidated,omitempty"`
	Health      health.State                   `json:"health"`
	Errors      errmon.Report                  `json:"errors"`
	Cache       map[cache.Tier]cache.TierStats `json:"cache"`
}

// Engine owns the state shared between runs of one process: caches, the
// circuit breaker and the error monitor live on the scoring engine and the
// cache manager it was built with.
type Engine struct {
	mu sync.Mutex

	roster    roster.Roster
	filter    *filtering.Filter
	cache     *cache.Manager
	scorer    *scoring.Engine
	chunkSize int
	delay     time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	fingerprints map[string]string
}

type Option func(*Engine)

func WithFilter(f *filtering.Filter) Option {
	return func(e *Engine) {
		if f != nil {
			e.filter = f
		}
	}
}

func WithChunkSize(n int) Option {
	return func(e *Engine) { e.chunkSize = n }
}

func WithChunkDelay(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(r roster.Roster, scorer *scoring.Engine, c *cache.Manager, opts ...Option) *Engine {
	e := &Engine{
		roster:       r,
		cache:        c,
		scorer:       scorer,
		chunkSize:    batch.DefaultChunkSize,
		delay:        batch.DefaultDelay,
		logger:       zap.NewNop(),
		now:          time.Now,
		fingerprints: make(map[string]string),
	}
	if e.cache == nil {
		e.cache = cache.New()
	}
	if e.scorer == nil {
		e.scorer = scoring.NewEngine(nil, nil, nil, e.cache)
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.filter == nil {
		e.filter = filtering.New(e.logger)
	}
	return e
}

func (e *Engine) Scorer() *scoring.Engine { return e.scorer }

func (e *Engine) Cache() *cache.Manager { return e.cache }

// Run loads the roster, filters and scores candidate pairs and ranks the
// results. When ctx is cancelled while scoring, the report holds the ranked
// partial results and the context error is returned alongside it.
func (e *Engine) Run(ctx context.Context, mode scoring.Mode, progress func(batch.Progress)) (*Report, error) {
	if !e.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.mu.Unlock()

	report := &Report{
		RunID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: e.now(),
	}
	log := logger.WithRun(e.logger, report.RunID, string(mode))
	log.Info("matching run started")

	members, err := e.roster.Load(ctx)
	if err != nil {
		e.finish(report, runStatusFailed)
		return nil, fmt.Errorf("load roster: %w", err)
	}
	report.Members = members.Len()
	report.Approved = members.CountByStatus()[roster.StatusApproved]
	report.Invalidated = e.invalidateChanged(ctx, members.Items)

	pairs, steps, err := e.filter.Candidates(ctx, members.Items)
	if err != nil {
		e.finish(report, runStatusCancelled)
		return nil, fmt.Errorf("filter candidates: %w", err)
	}
	report.Steps = steps
	report.Candidates = len(pairs)

	key := batchKey(pairs, mode)
	var results []scoring.Result
	if e.cache.Get(ctx, cache.TierBatchResult, key, &results) {
		report.FromCache = true
		log.Info("reusing cached batch result", zap.Int("results", len(results)))
	} else {
		scheduler := batch.New(e.scorer,
			batch.WithChunkSize(e.chunkSize),
			batch.WithDelay(e.delay),
			batch.WithLogger(log),
		)
		results, err = scheduler.Run(ctx, pairs, mode, progress)
		if err != nil && !isCancellation(err) {
			e.finish(report, runStatusFailed)
			return nil, fmt.Errorf("score candidates: %w", err)
		}
		report.Cancelled = err != nil
		if err == nil && e.cacheable(results) {
			e.cache.Set(ctx, cache.TierBatchResult, key, results, memberIDs(pairs)...)
		}
	}

	report.Results = ranking.Rank(results, mode)
	report.Summary = summarize(report.Results)

	status := runStatusOK
	if report.Cancelled {
		status = runStatusCancelled
	}
	e.finish(report, status)

	log.Info("matching run finished",
		zap.Int("members", report.Members),
		zap.Int("candidates", report.Candidates),
		zap.Int("results", len(report.Results)),
		zap.Int("degraded", report.Summary.Degraded),
		zap.Int("traditional", report.Summary.Traditional),
		zap.Bool("cancelled", report.Cancelled),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)

	if report.Cancelled {
		return report, err
	}
	return report, nil
}

func (e *Engine) finish(report *Report, status string) {
	report.FinishedAt = e.now()
	report.Health = e.scorer.Health().State()
	report.Errors = e.scorer.Errors().Report()
	report.Cache = e.cache.Stats()

	e.metrics.SetCacheStats(report.Cache)
	e.metrics.SetCircuit(report.Health.Degraded, report.Health.BatchSize)
	e.metrics.ObserveRun(status, report.FinishedAt.Sub(report.StartedAt), report.FinishedAt)
}

// invalidateChanged drops cached entries of members whose content changed or
// who left the roster since the previous run.
func (e *Engine) invalidateChanged(ctx context.Context, members []*roster.Member) int {
	current := make(map[string]string, len(members))
	for _, m := range members {
		current[m.ID] = cache.MemberFingerprint(m)
	}

	removed := 0
	for id, old := range e.fingerprints {
		if fp, ok := current[id]; !ok || fp != old {
			removed += e.cache.Invalidate(ctx, id)
		}
	}
	e.fingerprints = current

	if removed > 0 {
		e.logger.Info("cache entries invalidated for changed members", zap.Int("removed", removed))
	}
	return removed
}

// cacheable reports whether a full result set may be reused. Runs that fell
// back to traditional scoring are not kept so recovery is picked up.
func (e *Engine) cacheable(results []scoring.Result) bool {
	if !e.scorer.RemoteEnabled() {
		return true
	}
	for _, r := range results {
		if r.Degraded || r.TraditionalMode {
			return false
		}
	}
	return true
}

func batchKey(pairs []filtering.Pair, mode scoring.Mode) string {
	groups := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		groups = append(groups, p.IDs())
	}
	return string(mode) + ":" + cache.BatchKey(groups)
}

func memberIDs(pairs []filtering.Pair) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, p := range pairs {
		for _, id := range p.IDs() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

func summarize(results []scoring.Result) Summary {
	var s Summary
	for _, r := range results {
		switch {
		case r.Degraded:
			s.Degraded++
		case r.TraditionalMode:
			s.Traditional++
		case r.Cached:
			s.Cached++
		default:
			s.Remote++
		}
	}
	return s
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
