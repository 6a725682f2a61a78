package errmon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/bookclub-matcher/internal/ai"
)

type Category string

const (
	CategoryNetwork            Category = "network"
	CategoryRateLimit          Category = "rate_limit"
	CategoryServiceUnavailable Category = "service_unavailable"
	CategoryTimeout            Category = "timeout"
	CategoryAuth               Category = "auth"
	CategoryQuotaExceeded      Category = "quota_exceeded"
	CategoryServerError        Category = "server_error"
	CategoryParseError         Category = "parse_error"
	CategoryUnknown            Category = "unknown"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type Overall string

const (
	OverallHealthy  Overall = "healthy"
	OverallDegraded Overall = "degraded"
	OverallCritical Overall = "critical"
)

// Kind describes how an error category is treated. Recovery is advice for
// operators and is never executed automatically.
type Kind struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Recovery string   `json:"recovery"`
}

var Kinds = map[Category]Kind{
	CategoryNetwork:            {CategoryNetwork, SeverityMedium, "retry with backoff once connectivity is restored"},
	CategoryRateLimit:          {CategoryRateLimit, SeverityMedium, "slow down requests and retry after the advertised delay"},
	CategoryServiceUnavailable: {CategoryServiceUnavailable, SeverityHigh, "use fallback scoring until the service recovers"},
	CategoryTimeout:            {CategoryTimeout, SeverityMedium, "retry with a smaller batch"},
	CategoryAuth:               {CategoryAuth, SeverityCritical, "check the api key"},
	CategoryQuotaExceeded:      {CategoryQuotaExceeded, SeverityHigh, "wait for the quota window to reset or raise the quota"},
	CategoryServerError:        {CategoryServerError, SeverityHigh, "retry later, use fallback scoring meanwhile"},
	CategoryParseError:         {CategoryParseError, SeverityLow, "inspect the model response, the pair is scored by the fallback"},
	CategoryUnknown:            {CategoryUnknown, SeverityMedium, "inspect the logs"},
}

// Classify maps an error returned by the analysis stack to a category.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, apiErr.Message)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.Is(err, ai.ErrContractViolation) || errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return CategoryParseError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	return CategoryUnknown
}

func classifyStatus(code int, message string) Category {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return CategoryAuth
	case code == http.StatusTooManyRequests:
		if strings.Contains(strings.ToLower(message), "quota") {
			return CategoryQuotaExceeded
		}
		return CategoryRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return CategoryTimeout
	case code == http.StatusServiceUnavailable:
		return CategoryServiceUnavailable
	case code >= 500:
		return CategoryServerError
	default:
		return CategoryUnknown
	}
}

const (
	DefaultCapacity = 1000
	DefaultWindow   = 5 * time.Minute
)

type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Category  Category  `json:"category"`
	Severity  Severity  `json:"severity"`
	Details   string    `json:"details"`
}

type Report struct {
	Overall  Overall          `json:"overall"`
	Total    int              `json:"total"`
	Recent   int              `json:"recent"`
	Counts   map[Category]int `json:"counts"`
	LastSeen *Entry           `json:"last_seen,omitempty"`
}

// Monitor keeps the most recent errors in a ring buffer and derives the
// overall health label from the trailing window.
type Monitor struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	overall Overall

	window time.Duration
	now    func() time.Time
	logger *zap.Logger
	hooks  []func(Entry)
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

func WithCapacity(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.entries = make([]Entry, n)
		}
	}
}

// WithHook registers fn to be called with every logged entry.
func WithHook(fn func(Entry)) Option {
	return func(m *Monitor) {
		if fn != nil {
			m.hooks = append(m.hooks, fn)
		}
	}
}

func New(opts ...Option) *Monitor {
	m := &Monitor{
		entries: make([]Entry, DefaultCapacity),
		overall: OverallHealthy,
		window:  DefaultWindow,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Log classifies err, records it and returns the stored entry.
func (m *Monitor) Log(err error, details string) Entry {
	category := Classify(err)
	if details == "" && err != nil {
		details = err.Error()
	}

	m.mu.Lock()
	e := Entry{
		Timestamp: m.now(),
		Category:  category,
		Severity:  Kinds[category].Severity,
		Details:   details,
	}
	m.entries[m.next] = e
	m.next = (m.next + 1) % len(m.entries)
	if m.next == 0 {
		m.full = true
	}

	previous := m.overall
	m.overall = m.computeOverall()
	overall := m.overall
	hooks := m.hooks
	m.mu.Unlock()

	m.logger.Debug("analysis error recorded",
		zap.String("category", string(e.Category)),
		zap.String("severity", string(e.Severity)),
		zap.String("recovery", Kinds[category].Recovery),
	)
	if overall != previous {
		m.logger.Warn("analysis health changed",
			zap.String("from", string(previous)),
			zap.String("to", string(overall)),
		)
	}

	for _, hook := range hooks {
		hook(e)
	}

	return e
}

// computeOverall must be called with m.mu held.
func (m *Monitor) computeOverall() Overall {
	cutoff := m.now().Add(-m.window)
	total, severe := 0, 0
	for _, e := range m.snapshot() {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		total++
		if e.Severity == SeverityHigh || e.Severity == SeverityCritical {
			severe++
		}
	}

	switch {
	case severe >= 3 || total >= 10:
		return OverallCritical
	case severe >= 1 || total >= 5:
		return OverallDegraded
	default:
		return OverallHealthy
	}
}

// snapshot returns the stored entries oldest first. It must be called with m.mu held.
func (m *Monitor) snapshot() []Entry {
	if !m.full {
		return append([]Entry(nil), m.entries[:m.next]...)
	}
	out := make([]Entry, 0, len(m.entries))
	out = append(out, m.entries[m.next:]...)
	return append(out, m.entries[:m.next]...)
}

// Entries returns a copy of the buffered entries, oldest first.
func (m *Monitor) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshot()
}

// Overall recomputes the label against the current time so old errors age out
// even when nothing new is logged.
func (m *Monitor) Overall() Overall {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.overall = m.computeOverall()
	return m.overall
}

func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.snapshot()
	cutoff := m.now().Add(-m.window)
	m.overall = m.computeOverall()

	r := Report{
		Overall: m.overall,
		Total:   len(entries),
		Counts:  make(map[Category]int),
	}
	for _, e := range entries {
		r.Counts[e.Category]++
		if !e.Timestamp.Before(cutoff) {
			r.Recent++
		}
	}
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		r.LastSeen = &last
	}
	return r
}

func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make([]Entry, len(m.entries))
	m.next = 0
	m.full = false
	m.overall = OverallHealthy
}
