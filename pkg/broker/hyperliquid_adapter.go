package broker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"nof0-api/pkg/exchange"
	"nof0-api/pkg/exchange/hyperliquid"
)

// hyperliquidProvider is the subset of *hyperliquid.Provider the adapter
// depends on. Declared locally so tests can substitute a fake without
// reaching into the hyperliquid package.
type hyperliquidProvider interface {
	IOCMarket(ctx context.Context, coin string, isBuy bool, qty float64, slippage float64, reduceOnly bool) (*exchange.OrderResponse, error)
	SetStopLoss(ctx context.Context, coin string, positionSide string, qty float64, stopPrice float64) error
	SetTakeProfit(ctx context.Context, coin string, positionSide string, qty float64, takeProfit float64) error
	LastPrice(ctx context.Context, coin string) (float64, error)
	GetPositions(ctx context.Context) ([]exchange.Position, error)
	GetAccountState(ctx context.Context) (*exchange.AccountState, error)
	GetAssetIndex(ctx context.Context, coin string) (int, error)
	UpdateLeverage(ctx context.Context, asset int, isCross bool, leverage int) error
}

// HyperliquidAdapter implements RawExchange against a live Hyperliquid
// account, adapted from pkg/exchange/hyperliquid's Provider (spec §6's
// abstract exchange wire contract made concrete).
type HyperliquidAdapter struct {
	provider hyperliquidProvider
	slippage float64

	mu         sync.Mutex
	marginMode map[string]MarginMode
}

// NewHyperliquidAdapter wraps an already-constructed provider. slippage is
// the fractional tolerance applied to IOC market orders (spec §6
// SLIPPAGE_TOLERANCE).
func NewHyperliquidAdapter(provider *hyperliquid.Provider, slippage float64) *HyperliquidAdapter {
	return &HyperliquidAdapter{
		provider:   provider,
		slippage:   slippage,
		marginMode: make(map[string]MarginMode),
	}
}

func (a *HyperliquidAdapter) LastPrice(ctx context.Context, symbol string) (float64, error) {
	return a.provider.LastPrice(ctx, coin(symbol))
}

// CreateOrder dispatches to the appropriate underlying Hyperliquid call
// depending on whether the request is a plain entry, a stop-loss/take-profit
// trigger, or an unprotected reduce-only close (spec §4.3's MAIN_ORDER,
// PROTECT and ROLLBACK substates all funnel through here).
func (a *HyperliquidAdapter) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	c := coin(req.Symbol)
	isBuy := req.Side == Buy

	switch {
	case req.ReduceOnly && req.Price > 0 && req.Type == Market:
		if err := a.provider.SetStopLoss(ctx, c, positionSideFor(req.Side), req.Amount, req.Price); err != nil {
			return "", fmt.Errorf("hyperliquid: stop-loss order: %w", err)
		}
		return "hl-sl-" + uuid.NewString(), nil
	case req.ReduceOnly && req.Price > 0 && req.Type == Limit:
		if err := a.provider.SetTakeProfit(ctx, c, positionSideFor(req.Side), req.Amount, req.Price); err != nil {
			return "", fmt.Errorf("hyperliquid: take-profit order: %w", err)
		}
		return "hl-tp-" + uuid.NewString(), nil
	default:
		resp, err := a.provider.IOCMarket(ctx, c, isBuy, req.Amount, a.slippage, req.ReduceOnly)
		if err != nil {
			return "", fmt.Errorf("hyperliquid: market order: %w", err)
		}
		return orderIDFromResponse(resp), nil
	}
}

func (a *HyperliquidAdapter) FetchPositions(ctx context.Context, symbols []string) ([]Position, error) {
	raw, err := a.provider.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: fetch positions: %w", err)
	}
	want := toSymbolSet(symbols)
	out := make([]Position, 0, len(raw))
	for _, p := range raw {
		pos := convertPosition(p)
		if pos.Amount == 0 {
			continue
		}
		if want != nil {
			if _, ok := want[normalizeCoin(p.Coin)]; !ok {
				continue
			}
		}
		out = append(out, pos)
	}
	return out, nil
}

func (a *HyperliquidAdapter) FetchAccount(ctx context.Context) (AccountSnapshot, error) {
	state, err := a.provider.GetAccountState(ctx)
	if err != nil {
		return AccountSnapshot{}, fmt.Errorf("hyperliquid: fetch account: %w", err)
	}
	accountValue := parseFloatOrZero(state.MarginSummary.AccountValue)
	usedMargin := parseFloatOrZero(state.MarginSummary.TotalMarginUsed)
	totalPnL := 0.0
	for _, p := range state.AssetPositions {
		totalPnL += parseFloatOrZero(p.UnrealizedPnl)
	}
	return AccountSnapshot{
		Balance:         accountValue,
		UsedMargin:      usedMargin,
		AvailableMargin: accountValue - usedMargin - totalPnL,
		TotalPnL:        totalPnL,
		TotalMargin:     usedMargin,
	}, nil
}

func (a *HyperliquidAdapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	idx, err := a.provider.GetAssetIndex(ctx, coin(symbol))
	if err != nil {
		return fmt.Errorf("hyperliquid: resolve asset index for %s: %w", symbol, err)
	}
	a.mu.Lock()
	mode, ok := a.marginMode[symbol]
	a.mu.Unlock()
	isCross := true
	if ok {
		isCross = mode != Isolated
	}
	if err := a.provider.UpdateLeverage(ctx, idx, isCross, leverage); err != nil {
		return fmt.Errorf("hyperliquid: update leverage for %s: %w", symbol, err)
	}
	return nil
}

func (a *HyperliquidAdapter) SetMarginMode(ctx context.Context, symbol string, mode MarginMode) error {
	a.mu.Lock()
	a.marginMode[symbol] = mode
	a.mu.Unlock()
	return nil
}

func positionSideFor(side Side) string {
	if side == Buy {
		return "SHORT"
	}
	return "LONG"
}

func orderIDFromResponse(resp *exchange.OrderResponse) string {
	if resp == nil {
		return "hl-" + uuid.NewString()
	}
	for _, st := range resp.Response.Data.Statuses {
		if st.Filled != nil {
			return strconv.FormatInt(st.Filled.Oid, 10)
		}
		if st.Resting != nil {
			return strconv.FormatInt(st.Resting.Oid, 10)
		}
	}
	return "hl-" + uuid.NewString()
}

func convertPosition(p exchange.Position) Position {
	szi := parseFloatOrZero(p.Szi)
	side := Long
	if szi < 0 {
		side = Short
	}
	return Position{
		Symbol:           normalizeCoin(p.Coin),
		Side:             side,
		Amount:           absFloat(szi),
		EntryPrice:       parseFloatOrZero(p.EntryPx),
		UnrealizedPnl:    parseFloatOrZero(p.UnrealizedPnl),
		Leverage:         p.Leverage.Value,
		LiquidationPrice: parseFloatOrZero(p.LiquidationPx),
	}
}

// coin strips the quote suffix ("BTC/USDT" -> "BTC") the exchange addresses
// instruments by base asset name only.
func coin(symbol string) string {
	if idx := strings.IndexAny(symbol, "/:"); idx >= 0 {
		return symbol[:idx]
	}
	return symbol
}

func normalizeCoin(c string) string {
	return strings.ToUpper(c) + "/USDT"
}

func toSymbolSet(symbols []string) map[string]struct{} {
	if len(symbols) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(s)] = struct{}{}
	}
	return set
}

func parseFloatOrZero(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
