package health

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultThreshold = 5
	DefaultCooldown  = 5 * time.Minute

	maxBatchSize = 5
	minBatchSize = 1

	shrinkRate = 0.3
	growRate   = 0.1
)

// State is a point-in-time copy of the monitor counters.
type State struct {
	ConsecutiveErrors int       `json:"consecutive_errors"`
	Degraded          bool      `json:"degraded"`
	DegradedSince     time.Time `json:"degraded_since,omitempty"`
	Errors            uint64    `json:"errors"`
	Successes         uint64    `json:"successes"`
	ErrorRate         float64   `json:"error_rate"`
	BatchSize         int       `json:"batch_size"`
}

// Monitor is a circuit breaker over the semantic-analysis service.
//
// The circuit opens once ConsecutiveErrors reaches the threshold. It closes
// again on the first ShouldUseAI check made after the cooldown has elapsed
// while no consecutive errors are recorded.
type Monitor struct {
	mu sync.Mutex

	consecutive   int
	errors        uint64
	successes     uint64
	degraded      bool
	degradedSince time.Time
	lastProbe     time.Time
	batchSize     int

	threshold int
	cooldown  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*Monitor)

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithThreshold(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.threshold = n
		}
	}
}

func WithCooldown(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.cooldown = d
		}
	}
}

func New(opts ...Option) *Monitor {
	m := &Monitor{
		batchSize: maxBatchSize,
		threshold: DefaultThreshold,
		cooldown:  DefaultCooldown,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ShouldUseAI reports whether the remote scorer may be called.
func (m *Monitor) ShouldUseAI() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.degraded {
		return true
	}

	elapsed := m.now().Sub(m.degradedSince)
	if elapsed < m.cooldown || m.consecutive != 0 {
		return false
	}

	m.degraded = false
	m.degradedSince = time.Time{}
	m.lastProbe = time.Time{}
	m.logger.Info("semantic analysis recovered, circuit closed", zap.Duration("degraded_for", elapsed))

	return true
}

// ProbeDue reports whether the circuit is open, its cooldown has elapsed and
// errors are still outstanding, so a single trial call is needed to find out
// whether the service is back. A true result reserves the probe: the next one
// is due only after another cooldown period.
func (m *Monitor) ProbeDue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.degraded || m.consecutive == 0 {
		return false
	}

	now := m.now()
	since := m.degradedSince
	if m.lastProbe.After(since) {
		since = m.lastProbe
	}
	if now.Sub(since) < m.cooldown {
		return false
	}

	m.lastProbe = now
	return true
}

// RecordSuccess resets the consecutive error counter. It does not close an
// open circuit by itself.
func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.successes++
	m.consecutive = 0
	m.adjustBatchSize()
}

func (m *Monitor) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errors++
	m.consecutive++

	if !m.degraded && m.consecutive >= m.threshold {
		m.degraded = true
		m.degradedSince = m.now()
		m.logger.Warn("semantic analysis degraded, circuit opened",
			zap.Int("consecutive_errors", m.consecutive),
			zap.Duration("cooldown", m.cooldown),
		)
	}

	m.adjustBatchSize()
}

// adjustBatchSize must be called with m.mu held.
func (m *Monitor) adjustBatchSize() {
	rate := m.errorRate()
	switch {
	case rate > shrinkRate && m.batchSize > minBatchSize:
		m.batchSize--
	case rate < growRate && m.consecutive == 0 && m.batchSize < maxBatchSize:
		m.batchSize++
	}
}

func (m *Monitor) errorRate() float64 {
	total := m.errors + m.successes
	if total == 0 {
		return 0
	}
	return float64(m.errors) / float64(total)
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return State{
		ConsecutiveErrors: m.consecutive,
		Degraded:          m.degraded,
		DegradedSince:     m.degradedSince,
		Errors:            m.errors,
		Successes:         m.successes,
		ErrorRate:         m.errorRate(),
		BatchSize:         m.batchSize,
	}
}

// Reset clears every counter and closes the circuit.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutive = 0
	m.errors, m.successes = 0, 0
	m.degraded = false
	m.degradedSince = time.Time{}
	m.lastProbe = time.Time{}
	m.batchSize = maxBatchSize

	m.logger.Info("health monitor reset")
}
