package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/bookclub-matcher/internal/filtering"
	"github.com/spigell/bookclub-matcher/internal/scoring"
	"github.com/spigell/bookclub-matcher/internal/utils"
)

const (
	DefaultChunkSize = 50
	DefaultDelay     = 200 * time.Millisecond
)

// Progress is a snapshot emitted before every chunk and once at the end.
type Progress struct {
	Current            int           `json:"current"`
	Total              int           `json:"total"`
	Text               string        `json:"text"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
}

// Scorer scores a single pair. A nil result drops the pair.
type Scorer interface {
	Score(ctx context.Context, pair filtering.Pair, mode scoring.Mode) (*scoring.Result, error)
}

// Scheduler scores pairs chunk by chunk, strictly in order and one at a time.
type Scheduler struct {
	scorer    Scorer
	chunkSize int
	delay     time.Duration
	wait      func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*Scheduler)

func WithChunkSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithDelay sets the pause between chunks. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.delay = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(scorer Scorer, opts ...Option) *Scheduler {
	s := &Scheduler{
		scorer:    scorer,
		chunkSize: DefaultChunkSize,
		delay:     DefaultDelay,
		wait:      utils.WaitFor,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scores pairs in chunks. On cancellation it returns the results scored
// so far together with the context error.
func (s *Scheduler) Run(ctx context.Context, pairs []filtering.Pair, mode scoring.Mode, progress func(Progress)) ([]scoring.Result, error) {
	if progress == nil {
		progress = func(Progress) {}
	}

	total := len(pairs)
	results := make([]scoring.Result, 0, total)
	start := s.now()

	var estimate time.Duration
	for offset := 0; offset < total; offset += s.chunkSize {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := min(offset+s.chunkSize, total)
		progress(Progress{
			Current:            offset,
			Total:              total,
			Text:               fmt.Sprintf("scoring pairs %d-%d of %d", offset+1, end, total),
			EstimatedRemaining: estimate,
		})

		for _, pair := range pairs[offset:end] {
			res, err := s.scorer.Score(ctx, pair, mode)
			if err != nil {
				return results, err
			}
			if res != nil {
				results = append(results, *res)
			}
		}

		elapsed := s.now().Sub(start)
		estimate = time.Duration(float64(elapsed) / float64(end) * float64(total-end))

		s.logger.Debug("chunk scored",
			zap.Int("processed", end),
			zap.Int("total", total),
			zap.Int("kept", len(results)),
			zap.Duration("estimated_remaining", estimate),
		)

		if end < total {
			if err := s.wait(ctx, s.delay); err != nil {
				return results, err
			}
		}
	}

	progress(Progress{
		Current: total,
		Total:   total,
		Text:    fmt.Sprintf("scored %d pairs, %d kept", total, len(results)),
	})

	return results, nil
}
