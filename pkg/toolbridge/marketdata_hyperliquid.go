package toolbridge

import (
	"context"
	"fmt"
	"math"
	"sort"

	"nof0-api/pkg/market"
)

// defaultLiquidityThresholdUSD gates candidate coins out of the ranking when
// their open-interest notional falls below this, grounded on the teacher's
// Manager.selectCandidates liquidity gate.
const defaultLiquidityThresholdUSD = 1_000_000

// defaultCandidateLimit caps how many ranked candidates getMarketData
// surfaces alongside the requested symbol's own snapshot.
const defaultCandidateLimit = 5

// HyperliquidMarketData adapts the opaque Market Data collaborator's
// Hyperliquid-backed provider to the getMarketData tool's contract: a
// pre-formatted string summarizing price, trend, and positioning context
// (spec §4.6 — the tool never hands the model raw indicator series).
type HyperliquidMarketData struct {
	provider          market.MarketDataProvider
	candidateUniverse []string
}

// NewHyperliquidMarketData wraps an already-constructed provider.
func NewHyperliquidMarketData(provider market.MarketDataProvider) *HyperliquidMarketData {
	return &HyperliquidMarketData{provider: provider}
}

// SetCandidateUniverse configures the symbol pool getMarketData scans for
// candidate-coin enrichment (SPEC_FULL.md §C.1). Empty disables it.
func (m *HyperliquidMarketData) SetCandidateUniverse(symbols []string) {
	m.candidateUniverse = symbols
}

// CandidateCoin is one ranked alternative symbol surfaced alongside the
// requested symbol's own market data.
type CandidateCoin struct {
	Symbol   string
	Change1h float64
}

func (m *HyperliquidMarketData) GetMarketData(ctx context.Context, symbol string) (string, error) {
	data, err := m.provider.Get(symbol)
	if err != nil {
		return "", fmt.Errorf("market data: %w", err)
	}

	summary := fmt.Sprintf(
		"%s: price=%.4f, 1h=%.2f%%, 4h=%.2f%%, ema20=%.4f, macd=%.4f, rsi7=%.2f, funding=%.4f%%",
		data.Symbol, data.CurrentPrice, data.PriceChange1h, data.PriceChange4h,
		data.CurrentEMA20, data.CurrentMACD, data.CurrentRSI7, data.FundingRate*100,
	)
	if data.OpenInterest != nil {
		summary += fmt.Sprintf(", open_interest=%.2f (avg %.2f)", data.OpenInterest.Latest, data.OpenInterest.Average)
	}

	if candidates := m.selectCandidates(symbol); len(candidates) > 0 {
		summary += " | candidates:"
		for _, c := range candidates {
			summary += fmt.Sprintf(" %s(%+.2f%%)", c.Symbol, c.Change1h)
		}
	}

	return summary, nil
}

// selectCandidates ranks the configured symbol universe by |1h price
// change|, excluding the requested symbol and gating out illiquid names,
// grounded on the teacher's Manager.selectCandidates (rank_1h_abs).
func (m *HyperliquidMarketData) selectCandidates(exclude string) []CandidateCoin {
	if len(m.candidateUniverse) == 0 {
		return nil
	}

	candidates := make([]CandidateCoin, 0, len(m.candidateUniverse))
	for _, sym := range m.candidateUniverse {
		if sym == exclude {
			continue
		}
		data, err := m.provider.Get(sym)
		if err != nil {
			continue
		}
		if data.OpenInterest != nil {
			liquidityUSD := data.OpenInterest.Average * data.CurrentPrice
			if liquidityUSD < defaultLiquidityThresholdUSD {
				continue
			}
		}
		candidates = append(candidates, CandidateCoin{Symbol: data.Symbol, Change1h: data.PriceChange1h})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return math.Abs(candidates[i].Change1h) > math.Abs(candidates[j].Change1h)
	})

	if len(candidates) > defaultCandidateLimit {
		candidates = candidates[:defaultCandidateLimit]
	}
	return candidates
}
