package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Tier string

const (
	TierAnalysis    Tier = "analysis"
	TierPairResult  Tier = "pair_result"
	TierBatchResult Tier = "batch_result"
)

var Tiers = []Tier{TierAnalysis, TierPairResult, TierBatchResult}

type TierConfig struct {
	TTL     time.Duration
	MaxSize int
}

// DefaultTierConfigs are the TTL and size bounds applied when no override is given.
var DefaultTierConfigs = map[Tier]TierConfig{
	TierAnalysis:    {TTL: 7 * 24 * time.Hour, MaxSize: 2000},
	TierPairResult:  {TTL: 24 * time.Hour, MaxSize: 1000},
	TierBatchResult: {TTL: time.Hour, MaxSize: 100},
}

// After eviction a full tier keeps this fraction of its max size.
const evictRatio = 0.7

// ErrMiss is returned by a Mirror when the key is not stored.
var ErrMiss = errors.New("cache miss")

// Mirror is a shared second-level store for a tier. Failures are never fatal
// for the caller and are treated as misses.
type Mirror interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// envelope is the mirrored form of an entry. It carries the member ids so
// entries read back from a mirror stay reachable by Invalidate.
type envelope struct {
	IDs  []string        `json:"ids,omitempty"`
	Data json.RawMessage `json:"data"`
}

type entry struct {
	data      []byte
	timestamp time.Time
	ids       []string
}

type tier struct {
	cfg     TierConfig
	entries map[string]*entry
	hits    uint64
	misses  uint64
	mirror  Mirror
}

type TierStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// HitRateString renders the hit rate as a percentage, "0%" before the first access.
func (s TierStats) HitRateString() string {
	if s.Hits+s.Misses == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", s.HitRate)
}

// Manager holds the analysis, pair-result and batch-result tiers.
// Values are stored JSON encoded so they can be shared with a Mirror.
type Manager struct {
	mu     sync.Mutex
	tiers  map[Tier]*tier
	index  map[string]map[Tier]map[string]struct{}
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithTierConfig(t Tier, cfg TierConfig) Option {
	return func(m *Manager) {
		if existing, ok := m.tiers[t]; ok {
			existing.cfg = cfg
		}
	}
}

// WithMirror attaches a second-level store to the tier.
func WithMirror(t Tier, mirror Mirror) Option {
	return func(m *Manager) {
		if existing, ok := m.tiers[t]; ok {
			existing.mirror = mirror
		}
	}
}

func New(opts ...Option) *Manager {
	m := &Manager{
		tiers:  make(map[Tier]*tier, len(Tiers)),
		index:  make(map[string]map[Tier]map[string]struct{}),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, t := range Tiers {
		m.tiers[t] = &tier{cfg: DefaultTierConfigs[t], entries: make(map[string]*entry)}
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Get decodes the value stored under key into dst. Expired entries count as
// misses and stay in place until evicted or overwritten.
func (m *Manager) Get(ctx context.Context, t Tier, key string, dst any) bool {
	m.mu.Lock()
	tr, ok := m.tiers[t]
	if !ok {
		m.mu.Unlock()
		return false
	}

	e, found := tr.entries[key]
	if found && m.now().Sub(e.timestamp) < tr.cfg.TTL {
		data := e.data
		tr.hits++
		m.mu.Unlock()
		return m.decode(t, key, data, dst)
	}

	mirror := tr.mirror
	if mirror == nil {
		tr.misses++
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	raw, err := mirror.Get(ctx, string(t)+":"+key)
	var env envelope
	if err == nil {
		err = json.Unmarshal(raw, &env)
	}
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			m.logger.Warn("cache mirror read failed", zap.String("tier", string(t)), zap.Error(err))
		}
		m.mu.Lock()
		tr.misses++
		m.mu.Unlock()
		return false
	}

	data := []byte(env.Data)
	m.mu.Lock()
	tr.hits++
	m.store(t, tr, key, &entry{data: data, timestamp: m.now(), ids: env.IDs})
	m.mu.Unlock()

	return m.decode(t, key, data, dst)
}

// Set stores value under key, evicting the oldest entries when the tier is
// full. ids lists the members the value belongs to, for Invalidate.
// Encoding and mirror failures are logged and otherwise ignored.
func (m *Manager) Set(ctx context.Context, t Tier, key string, value any, ids ...string) {
	data, err := json.Marshal(value)
	if err != nil {
		m.logger.Warn("cache encode failed", zap.String("tier", string(t)), zap.String("key", key), zap.Error(err))
		return
	}

	m.mu.Lock()
	tr, ok := m.tiers[t]
	if !ok {
		m.mu.Unlock()
		return
	}
	m.store(t, tr, key, &entry{data: data, timestamp: m.now(), ids: slices.Clone(ids)})
	mirror := tr.mirror
	ttl := tr.cfg.TTL
	m.mu.Unlock()

	if mirror != nil {
		// A RawMessage holding valid JSON always marshals.
		env, _ := json.Marshal(envelope{IDs: ids, Data: data})
		if err := mirror.Set(ctx, string(t)+":"+key, env, ttl); err != nil {
			m.logger.Warn("cache mirror write failed", zap.String("tier", string(t)), zap.Error(err))
		}
	}
}

// store must be called with m.mu held.
func (m *Manager) store(t Tier, tr *tier, key string, e *entry) {
	if existing, ok := tr.entries[key]; ok {
		if len(e.ids) == 0 {
			e.ids = existing.ids
		}
		m.unindex(t, key, existing.ids)
	} else if tr.cfg.MaxSize > 0 && len(tr.entries) >= tr.cfg.MaxSize {
		m.evict(t, tr)
	}

	tr.entries[key] = e
	for _, id := range e.ids {
		byTier, ok := m.index[id]
		if !ok {
			byTier = make(map[Tier]map[string]struct{})
			m.index[id] = byTier
		}
		keys, ok := byTier[t]
		if !ok {
			keys = make(map[string]struct{})
			byTier[t] = keys
		}
		keys[key] = struct{}{}
	}
}

// evict drops the oldest entries until the tier holds floor(MaxSize*evictRatio) entries.
func (m *Manager) evict(t Tier, tr *tier) {
	target := int(float64(tr.cfg.MaxSize) * evictRatio)

	keys := make([]string, 0, len(tr.entries))
	for key := range tr.entries {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return tr.entries[a].timestamp.Compare(tr.entries[b].timestamp)
	})

	removed := 0
	for _, key := range keys {
		if len(tr.entries) <= target {
			break
		}
		m.unindex(t, key, tr.entries[key].ids)
		delete(tr.entries, key)
		removed++
	}

	m.logger.Debug("cache tier evicted",
		zap.String("tier", string(t)),
		zap.Int("removed", removed),
		zap.Int("size", len(tr.entries)),
	)
}

func (m *Manager) unindex(t Tier, key string, ids []string) {
	for _, id := range ids {
		byTier := m.index[id]
		if byTier == nil {
			continue
		}
		delete(byTier[t], key)
		if len(byTier[t]) == 0 {
			delete(byTier, t)
		}
		if len(byTier) == 0 {
			delete(m.index, id)
		}
	}
}

// Invalidate removes every entry recorded for the member id across all tiers
// and returns how many were removed.
func (m *Manager) Invalidate(ctx context.Context, id string) int {
	m.mu.Lock()
	byTier := m.index[id]
	mirrored := make(map[Mirror][]string)
	removed := 0
	for t, keys := range byTier {
		tr := m.tiers[t]
		for key := range keys {
			e, ok := tr.entries[key]
			if !ok {
				continue
			}
			m.unindex(t, key, e.ids)
			delete(tr.entries, key)
			removed++
			if tr.mirror != nil {
				mirrored[tr.mirror] = append(mirrored[tr.mirror], string(t)+":"+key)
			}
		}
	}
	delete(m.index, id)
	m.mu.Unlock()

	for mirror, keys := range mirrored {
		if err := mirror.Del(ctx, keys...); err != nil {
			m.logger.Warn("cache mirror delete failed", zap.Error(err))
		}
	}

	if removed > 0 {
		m.logger.Debug("cache invalidated", zap.String("member_id", id), zap.Int("removed", removed))
	}

	return removed
}

// Clear drops every local entry and resets the counters. Mirrors are left untouched.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tr := range m.tiers {
		tr.entries = make(map[string]*entry)
		tr.hits, tr.misses = 0, 0
	}
	m.index = make(map[string]map[Tier]map[string]struct{})
}

func (m *Manager) Len(t Tier) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tr, ok := m.tiers[t]; ok {
		return len(tr.entries)
	}
	return 0
}

func (m *Manager) Stats() map[Tier]TierStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[Tier]TierStats, len(m.tiers))
	for t, tr := range m.tiers {
		s := TierStats{
			Size:    len(tr.entries),
			MaxSize: tr.cfg.MaxSize,
			Hits:    tr.hits,
			Misses:  tr.misses,
		}
		if total := tr.hits + tr.misses; total > 0 {
			s.HitRate = float64(tr.hits) / float64(total) * 100
		}
		stats[t] = s
	}
	return stats
}

func (m *Manager) decode(t Tier, key string, data []byte, dst any) bool {
	if dst == nil {
		return true
	}
	if err := json.Unmarshal(data, dst); err != nil {
		m.logger.Warn("cache decode failed", zap.String("tier", string(t)), zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}
