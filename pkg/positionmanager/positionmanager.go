// Package positionmanager caches broker positions between sync points so
// the trading agent and tool bridge can make admission-control decisions
// without a broker round trip on every read (spec §4.5).
package positionmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/internal/metrics"
	"nof0-api/pkg/broker"
)

const (
	defaultSyncCooldown = 5 * time.Second
	defaultMaxPositions  = 5
	defaultMaxLossPercent = 0.05
)

// RiskGuard is the subset of riskguard.Guard that canOpenPosition needs;
// declared here to avoid a dependency from positionmanager back onto the
// riskguard package's concrete type.
type RiskGuard interface {
	IsWhitelisted(symbol string) bool
	CooldownRemaining(symbol string) time.Duration
}

// Manager is the spec §4.5 Position Manager: a broker-backed cache with a
// cooldown-gated sync and admission-control accessors.
type Manager struct {
	broker broker.Broker
	clock  broker.Clock

	mu           sync.Mutex
	positions    map[string]broker.Position
	lastSyncTime time.Time
	cooldown     time.Duration

	metrics *metrics.Metrics // optional
}

// SetMetrics attaches an active-positions gauge updated on every sync;
// optional.
func (m *Manager) SetMetrics(metric *metrics.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metric
}

// New constructs a Manager bound to b. clock may be nil to use the real
// wall clock.
func New(b broker.Broker, clock broker.Clock) *Manager {
	if clock == nil {
		clock = broker.RealClock{}
	}
	return &Manager{
		broker:    b,
		clock:     clock,
		positions: make(map[string]broker.Position),
		cooldown:  defaultSyncCooldown,
	}
}

// SyncPositions refreshes the cache from the broker unless the cooldown has
// not yet elapsed since the last sync (spec §4.5). symbols nil means "all
// symbols"; when given, only those symbols are evicted/replaced in the
// cache, leaving unrelated cached entries untouched.
func (m *Manager) SyncPositions(ctx context.Context, symbols []string) error {
	m.mu.Lock()
	if !m.lastSyncTime.IsZero() && m.clock.Now().Sub(m.lastSyncTime) < m.cooldown {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.ForceSync(ctx, symbols)
}

// ForceSync refreshes the cache from the broker regardless of cooldown
// (spec §4.5).
func (m *Manager) ForceSync(ctx context.Context, symbols []string) error {
	fetched, err := m.broker.GetPositions(ctx, symbols)
	if err != nil {
		logx.Infof("positionmanager: sync failed: %v", err)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(symbols) == 0 {
		m.positions = make(map[string]broker.Position, len(fetched))
	} else {
		for _, s := range symbols {
			delete(m.positions, s)
		}
	}
	for _, p := range fetched {
		m.positions[p.Symbol] = p
	}
	m.lastSyncTime = m.clock.Now()
	if m.metrics != nil {
		m.metrics.ActivePositions.Set(float64(len(m.positions)))
	}
	return nil
}

func (m *Manager) GetPosition(symbol string) (broker.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	return p, ok
}

func (m *Manager) HasPosition(symbol string) bool {
	_, ok := m.GetPosition(symbol)
	return ok
}

func (m *Manager) HasLongPosition(symbol string) bool {
	p, ok := m.GetPosition(symbol)
	return ok && p.Side == broker.Long
}

func (m *Manager) HasShortPosition(symbol string) bool {
	p, ok := m.GetPosition(symbol)
	return ok && p.Side == broker.Short
}

// GetAllPositions returns a snapshot copy of the cache.
func (m *Manager) GetAllPositions() map[string]broker.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]broker.Position, len(m.positions))
	for k, v := range m.positions {
		out[k] = v
	}
	return out
}

func (m *Manager) GetPositionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

func (m *Manager) GetTotalUnrealizedPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, p := range m.positions {
		total += p.UnrealizedPnl
	}
	return total
}

func (m *Manager) GetTotalMarginUsed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, p := range m.positions {
		if p.Leverage > 0 {
			total += p.Amount * p.EntryPrice / float64(p.Leverage)
		}
	}
	return total
}

// CanOpenPosition denies admission when symbol already has an open
// position or the cache is already at maxPositions (spec §4.5). A
// maxPositions <= 0 falls back to the spec default of 5.
func (m *Manager) CanOpenPosition(symbol string, guard RiskGuard, maxPositions int) (bool, string) {
	if maxPositions <= 0 {
		maxPositions = defaultMaxPositions
	}
	if guard != nil && !guard.IsWhitelisted(symbol) {
		return false, "symbol not in risk guard whitelist"
	}
	if guard != nil {
		if remaining := guard.CooldownRemaining(symbol); remaining > 0 {
			return false, fmt.Sprintf("cooldown active for %s: %s remaining", symbol, remaining)
		}
	}
	if m.HasPosition(symbol) {
		return false, "position already open for " + symbol
	}
	if m.GetPositionCount() >= maxPositions {
		return false, "maximum open position count reached"
	}
	return true, ""
}

// ShouldClosePosition reports whether symbol's unrealized loss exceeds
// maxLossPercent of its notional (spec §4.5). A maxLossPercent <= 0 falls
// back to the spec default of 0.05.
func (m *Manager) ShouldClosePosition(symbol string, maxLossPercent float64) bool {
	if maxLossPercent <= 0 {
		maxLossPercent = defaultMaxLossPercent
	}
	p, ok := m.GetPosition(symbol)
	if !ok || p.UnrealizedPnl >= 0 {
		return false
	}
	notional := p.Amount * p.EntryPrice
	if notional <= 0 {
		return false
	}
	return -p.UnrealizedPnl/notional > maxLossPercent
}
