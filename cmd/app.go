package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/bookclub-matcher/internal/ai/gemini"
	"github.com/spigell/bookclub-matcher/internal/cache"
	"github.com/spigell/bookclub-matcher/internal/errmon"
	"github.com/spigell/bookclub-matcher/internal/filtering"
	"github.com/spigell/bookclub-matcher/internal/health"
	"github.com/spigell/bookclub-matcher/internal/logger"
	"github.com/spigell/bookclub-matcher/internal/matching"
	"github.com/spigell/bookclub-matcher/internal/metrics"
	"github.com/spigell/bookclub-matcher/internal/roster"
	"github.com/spigell/bookclub-matcher/internal/scoring"
	"github.com/spigell/bookclub-matcher/internal/secrets"
)

const geminiAPIKeyEnv = "GEMINI_API_KEY"

// application holds the process-wide components shared by every run.
type application struct {
	engine  *matching.Engine
	metrics *metrics.Metrics
	mirror  *cache.RedisMirror
	logger  *zap.Logger
}

func (a *application) Close() {
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.logger.Warn("closing redis mirror", zap.Error(err))
		}
	}
}

func newApplication(ctx context.Context, config *Config, logger *zap.Logger) (*application, error) {
	if strings.TrimSpace(config.Roster.Path) == "" {
		return nil, fmt.Errorf("%w (set roster.path or BOOKCLUB_ROSTER)", roster.ErrEmptyPath)
	}

	a := &application{
		metrics: metrics.New(),
		logger:  logger,
	}

	cacheOpts := []cache.Option{cache.WithLogger(logger)}
	if redisCfg := config.Cache.Redis; redisCfg != nil && strings.TrimSpace(redisCfg.Address) != "" {
		mirror := cache.NewRedisMirror(*redisCfg)
		if err := mirror.Ping(ctx); err != nil {
			logger.Warn("redis mirror unavailable, analysis cache stays in memory",
				zap.String("address", redisCfg.Address),
				zap.Error(err),
			)
			mirror.Close()
		} else {
			logger.Info("redis mirror attached to analysis cache", zap.String("address", redisCfg.Address))
			a.mirror = mirror
			cacheOpts = append(cacheOpts, cache.WithMirror(cache.TierAnalysis, mirror))
		}
	}
	c := cache.New(cacheOpts...)

	var remote *scoring.Remote
	if config.AI.Enabled {
		r, err := newRemoteScorer(ctx, config.AI, c, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("building remote scorer: %w", err)
		}
		remote = r
	} else {
		logger.Info("semantic analysis disabled, every pair is scored traditionally")
	}

	monitor := health.New(health.WithLogger(logger))
	errMonitor := errmon.New(errmon.WithLogger(logger), errmon.WithHook(alertOnCritical(logger)))
	scorer := scoring.NewEngine(remote, monitor, errMonitor, c,
		scoring.WithMetrics(a.metrics),
		scoring.WithLogger(logger),
	)

	checks := filtering.DefaultChecks()
	for _, name := range config.Matching.DisabledChecks {
		filtering.DisableByName(checks, strings.TrimSpace(name), "disabled in configuration")
	}
	for _, status := range filtering.Describe(checks) {
		logger.Debug("filter check", zap.String("name", status.Name), zap.Bool("enabled", status.Enabled))
	}

	opts := []matching.Option{
		matching.WithFilter(filtering.New(logger, checks...)),
		matching.WithChunkDelay(config.Matching.ChunkDelay),
		matching.WithMetrics(a.metrics),
		matching.WithLogger(logger),
	}
	if config.Matching.ChunkSize > 0 {
		opts = append(opts, matching.WithChunkSize(config.Matching.ChunkSize))
	}

	members := roster.NewFile(config.Roster.Path, logger)
	logger.Debug("roster configured", zap.String("path", members.Path()))

	a.engine = matching.New(members, scorer, c, opts...)
	return a, nil
}

// alertOnCritical logs critical analysis errors with their recovery advice.
// Such errors do not heal on retry, auth failures being the typical case.
func alertOnCritical(logger *zap.Logger) func(errmon.Entry) {
	return func(e errmon.Entry) {
		if e.Severity != errmon.SeverityCritical {
			return
		}
		logger.Error("semantic analysis needs attention",
			zap.String("category", string(e.Category)),
			zap.String("recovery", errmon.Kinds[e.Category].Recovery),
			zap.String("details", e.Details),
		)
	}
}

func newRemoteScorer(ctx context.Context, cfg *AIConfig, c *cache.Manager, log *zap.Logger) (*scoring.Remote, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  geminiAPIKeyEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file, GEMINI_API_KEY_FILE or GEMINI_API_KEY)", err)
	}

	genLogger := logger.WithCommonFields(log, "gemini", cfg.Gemini.Model).With(
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	analyzerLogger := logger.WithCommonFields(log, "gemini", generator.Model())
	analyzer := gemini.NewAnalyzer(generator, cfg.Gemini.MaxLogLength, analyzerLogger)

	return scoring.NewRemote(analyzer, c, log), nil
}
