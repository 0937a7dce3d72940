// Package riskguard implements the pre-trade validator: symbol whitelist,
// leverage bounds, per-trade cost bounds, and an optional per-symbol
// cooldown after close. The first three checks are immutable once built;
// the cooldown is the one piece of mutable state the Guard tracks, recorded
// by the caller on every successful close.
package riskguard

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Result is the outcome of a validate call.
type Result struct {
	Allowed bool
	Reason  string
}

// Guard enforces the three invariants from spec §4.1 against every
// proposed order.
type Guard struct {
	maxLeverage    int
	maxCostPerUSDT float64
	whitelist      map[string]struct{}
	whitelistOrder []string

	cooldownMs int
	mu         sync.Mutex
	lastClose  map[string]time.Time
	nowFn      func() time.Time
}

// New builds a Guard from the canonical RiskConfig fields. Symbols in
// whitelist are normalized the same way Normalize does, so callers may pass
// either "BTC" or "BTC/USDT".
func New(maxLeverage int, maxCostPerTrade float64, whitelist []string) *Guard {
	g := &Guard{
		maxLeverage:    maxLeverage,
		maxCostPerUSDT: maxCostPerTrade,
		whitelist:      make(map[string]struct{}, len(whitelist)),
		whitelistOrder: make([]string, 0, len(whitelist)),
		lastClose:      make(map[string]time.Time),
		nowFn:          time.Now,
	}
	for _, s := range whitelist {
		norm := Normalize(s)
		if _, ok := g.whitelist[norm]; ok {
			continue
		}
		g.whitelist[norm] = struct{}{}
		g.whitelistOrder = append(g.whitelistOrder, norm)
	}
	return g
}

// Normalize applies spec §3's symbol normalization: if there is no
// separator, "/USDT" is appended; exchange-specific suffixes like ":USDC"
// are preserved as-is when present.
func Normalize(symbol string) string {
	s := strings.TrimSpace(strings.ToUpper(symbol))
	if s == "" {
		return s
	}
	if strings.ContainsAny(s, "/:") {
		return s
	}
	return s + "/USDT"
}

// Validate implements the three checks from spec §4.1, in order.
func (g *Guard) Validate(symbol string, cost float64, leverage int) Result {
	norm := Normalize(symbol)
	if _, ok := g.whitelist[norm]; !ok {
		return Result{
			Allowed: false,
			Reason:  fmt.Sprintf("symbol %s is not whitelisted; allowed symbols: %s", norm, strings.Join(g.whitelistOrder, ", ")),
		}
	}
	if leverage < 1 || leverage > g.maxLeverage {
		return Result{
			Allowed: false,
			Reason:  fmt.Sprintf("leverage %d out of bounds [1,%d]", leverage, g.maxLeverage),
		}
	}
	if cost <= 0 || cost > g.maxCostPerUSDT {
		return Result{
			Allowed: false,
			Reason:  fmt.Sprintf("cost %.4f out of bounds (0,%.4f]", cost, g.maxCostPerUSDT),
		}
	}
	return Result{Allowed: true}
}

// MaxLeverage returns the configured leverage ceiling, for prompt rendering.
func (g *Guard) MaxLeverage() int { return g.maxLeverage }

// MaxCostPerTrade returns the configured per-trade cost ceiling.
func (g *Guard) MaxCostPerTrade() float64 { return g.maxCostPerUSDT }

// Whitelist returns the normalized whitelist in configured order.
func (g *Guard) Whitelist() []string {
	out := make([]string, len(g.whitelistOrder))
	copy(out, g.whitelistOrder)
	return out
}

// IsWhitelisted reports whether symbol (raw or normalized) is allowed.
func (g *Guard) IsWhitelisted(symbol string) bool {
	_, ok := g.whitelist[Normalize(symbol)]
	return ok
}

// SetCooldownMs enables the per-symbol post-close cooldown; a non-positive
// value (the default) leaves cooldown tracking disabled.
func (g *Guard) SetCooldownMs(ms int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cooldownMs = ms
}

// RecordClose marks symbol as just closed, starting its cooldown window.
func (g *Guard) RecordClose(symbol string) {
	norm := Normalize(symbol)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastClose[norm] = g.nowFn()
}

// CooldownRemaining returns how much of symbol's post-close cooldown is
// still outstanding; zero means the symbol may be opened again. Always zero
// when cooldown tracking is disabled or the symbol has no recorded close.
func (g *Guard) CooldownRemaining(symbol string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cooldownMs <= 0 {
		return 0
	}
	closedAt, ok := g.lastClose[Normalize(symbol)]
	if !ok {
		return 0
	}
	remaining := time.Duration(g.cooldownMs)*time.Millisecond - g.nowFn().Sub(closedAt)
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// PromptConstraints renders the current limits for inclusion in the LLM
// system prompt, the one place the spec allows the Guard's internals to
// leak outward.
func (g *Guard) PromptConstraints() string {
	return fmt.Sprintf(
		"Allowed symbols: %s. Leverage must be between 1 and %d. Cost per trade must be greater than 0 and at most %.2f USDT.",
		strings.Join(g.whitelistOrder, ", "), g.maxLeverage, g.maxCostPerUSDT,
	)
}
