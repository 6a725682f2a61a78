package metrics

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"

	"github.com/spigell/bookclub-matcher/internal/cache"
)

const namespace = "bookclub_matcher"

// Scorer labels for PairsScored.
const (
	ScorerRemote      = "remote"
	ScorerCached      = "cached"
	ScorerFallback    = "fallback"
	ScorerTraditional = "traditional"
)

// Metrics holds the collectors of one engine. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	PairsScored    *prometheus.CounterVec
	PairsDropped   prometheus.Counter
	AnalysisErrors *prometheus.CounterVec
	CircuitOpen    prometheus.Gauge
	BatchSizeHint  prometheus.Gauge
	CacheEntries   *prometheus.GaugeVec
	CacheHitRatio  *prometheus.GaugeVec
	RunDuration    *prometheus.HistogramVec
	LastRun        prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PairsScored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pairs_scored_total",
				Help:      "Total number of candidate pairs scored, by scorer",
			},
			[]string{"scorer"},
		),
		PairsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pairs_dropped_total",
				Help:      "Total number of scored pairs dropped for having no compatibility signal",
			},
		),
		AnalysisErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analysis_errors_total",
				Help:      "Total number of semantic analysis failures, by category",
			},
			[]string{"category"},
		),
		CircuitOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_open",
				Help:      "1 while semantic analysis is disabled by the circuit breaker",
			},
		),
		BatchSizeHint: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "batch_size_hint",
				Help:      "Batch size suggested by the health monitor",
			},
		),
		CacheEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Number of entries per cache tier",
			},
			[]string{"tier"},
		),
		CacheHitRatio: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_hit_ratio",
				Help:      "Hit ratio per cache tier, between 0 and 1",
			},
			[]string{"tier"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of matching runs in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"status"},
		),
		LastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last finished matching run",
			},
		),
	}

	m.registry.MustRegister(
		m.PairsScored,
		m.PairsDropped,
		m.AnalysisErrors,
		m.CircuitOpen,
		m.BatchSizeHint,
		m.CacheEntries,
		m.CacheHitRatio,
		m.RunDuration,
		m.LastRun,
		collectors.NewGoCollector(),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObservePair(scorer string) {
	if m == nil {
		return
	}
	m.PairsScored.WithLabelValues(scorer).Inc()
}

func (m *Metrics) ObserveDropped() {
	if m == nil {
		return
	}
	m.PairsDropped.Inc()
}

func (m *Metrics) ObserveAnalysisError(category string) {
	if m == nil {
		return
	}
	m.AnalysisErrors.WithLabelValues(category).Inc()
}

func (m *Metrics) SetCircuit(open bool, batchSize int) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
	} else {
		m.CircuitOpen.Set(0)
	}
	m.BatchSizeHint.Set(float64(batchSize))
}

func (m *Metrics) SetCacheStats(stats map[cache.Tier]cache.TierStats) {
	if m == nil {
		return
	}
	for tier, s := range stats {
		m.CacheEntries.WithLabelValues(string(tier)).Set(float64(s.Size))
		m.CacheHitRatio.WithLabelValues(string(tier)).Set(s.HitRate / 100)
	}
}

// ObserveRun records a finished run. status is "ok", "cancelled" or "failed".
func (m *Metrics) ObserveRun(status string, d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(status).Observe(d.Seconds())
	m.LastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry in the node_exporter textfile collector format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %q: %w", path, err)
	}
	return nil
}

// WriteText renders the bookclub_matcher metric families in the text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil {
		return nil
	}

	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
