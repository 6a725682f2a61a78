package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/bookclub-matcher/internal/cache"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.ObservePair(ScorerRemote)
	m.ObserveDropped()
	m.ObserveAnalysisError("timeout")
	m.SetCircuit(true, 1)
	m.SetCacheStats(nil)
	m.ObserveRun("ok", time.Second, time.Now())

	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile("/nonexistent/metrics.prom"))
	assert.NoError(t, m.WriteText(&bytes.Buffer{}))
}

func TestMetricsRecord(t *testing.T) {
	m := New()

	m.ObservePair(ScorerRemote)
	m.ObservePair(ScorerRemote)
	m.ObservePair(ScorerFallback)
	m.ObserveDropped()
	m.ObserveAnalysisError("rate_limit")
	m.SetCircuit(true, 3)
	m.SetCacheStats(map[cache.Tier]cache.TierStats{
		cache.TierAnalysis: {Size: 4, Hits: 3, Misses: 1, HitRate: 75},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PairsScored.WithLabelValues(ScorerRemote)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PairsScored.WithLabelValues(ScorerFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PairsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisErrors.WithLabelValues("rate_limit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitOpen))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BatchSizeHint))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CacheEntries.WithLabelValues("analysis")))
	assert.Equal(t, 0.75, testutil.ToFloat64(m.CacheHitRatio.WithLabelValues("analysis")))

	m.SetCircuit(false, 5)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CircuitOpen))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveRun("ok", 2*time.Second, time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "bookclub.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `bookclub_matcher_run_duration_seconds_count{status="ok"} 1`)
	assert.Contains(t, string(data), "bookclub_matcher_last_run_timestamp_seconds 1.7e+09")
}

func TestWriteTextSkipsRuntimeMetrics(t *testing.T) {
	m := New()
	m.ObservePair(ScorerTraditional)

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, `bookclub_matcher_pairs_scored_total{scorer="traditional"} 1`)
	assert.False(t, strings.Contains(out, "go_goroutines"))
}
