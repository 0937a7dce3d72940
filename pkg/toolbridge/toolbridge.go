// Package toolbridge implements the Agent/Tool Bridge (spec §4.6): the four
// tools the trading agent's LLM driver exposes to the model, each dispatched
// from a single typed union rather than runtime-reflected schemas.
package toolbridge

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/pkg/broker"
	"nof0-api/pkg/llm"
	"nof0-api/pkg/positionmanager"
	"nof0-api/pkg/riskguard"
)

// MarketData is the Market Data collaborator, treated as an opaque external
// dependency per spec §4.6 (its internals are out of scope for this module).
type MarketData interface {
	GetMarketData(ctx context.Context, symbol string) (string, error)
}

// Searcher is the optional external web-search collaborator behind the
// search tool (spec §4.6); nil means unconfigured.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Bridge wires the Risk Guard, Position Manager, and Broker together to
// answer the four tool calls the trading agent exposes to its LLM.
type Bridge struct {
	guard     *riskguard.Guard
	positions *positionmanager.Manager
	brk       broker.Broker
	market    MarketData
	search    Searcher
}

// New constructs a Bridge. search may be nil; the search tool then always
// reports itself unconfigured.
func New(guard *riskguard.Guard, positions *positionmanager.Manager, brk broker.Broker, market MarketData, search Searcher) *Bridge {
	return &Bridge{guard: guard, positions: positions, brk: brk, market: market, search: search}
}

// Definitions returns the tool schemas to advertise to the LLM driver.
func (b *Bridge) Definitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Type: "function",
			Function: llm.FunctionDefinition{
				Name:        "getMarketData",
				Description: "Fetch current market data for a trading symbol.",
				Parameters: map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{"symbol": map[string]interface{}{"type": "string"}},
					"required":   []string{"symbol"},
				},
			},
		},
		{
			Type: "function",
			Function: llm.FunctionDefinition{
				Name:        "getAccountInfo",
				Description: "Force-sync and return account balance, margin, and open positions.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"symbols":        map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
						"initialCapital": map[string]interface{}{"type": "number"},
					},
				},
			},
		},
		{
			Type: "function",
			Function: llm.FunctionDefinition{
				Name:        "placeOrder",
				Description: "Open or close a position for a symbol.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"symbol":     map[string]interface{}{"type": "string"},
						"action":     map[string]interface{}{"type": "string", "enum": []string{"open_long", "close_long", "open_short", "close_short"}},
						"cost":       map[string]interface{}{"type": "number"},
						"leverage":   map[string]interface{}{"type": "integer"},
						"stopLoss":   map[string]interface{}{"type": "number"},
						"takeProfit": map[string]interface{}{"type": "number"},
					},
					"required": []string{"symbol", "action"},
				},
			},
		},
		{
			Type: "function",
			Function: llm.FunctionDefinition{
				Name:        "search",
				Description: "Search the web for supplementary context.",
				Parameters: map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
					"required":   []string{"query"},
				},
			},
		},
	}
}

// GetMarketDataArgs is the getMarketData tool's argument shape.
type GetMarketDataArgs struct {
	Symbol string `json:"symbol"`
}

func (b *Bridge) GetMarketData(ctx context.Context, args GetMarketDataArgs) map[string]interface{} {
	if b.market == nil {
		return map[string]interface{}{"success": false, "error": "market data collaborator not configured"}
	}
	data, err := b.market.GetMarketData(ctx, args.Symbol)
	if err != nil {
		return map[string]interface{}{"success": false, "symbol": args.Symbol, "error": err.Error()}
	}
	return map[string]interface{}{"success": true, "symbol": args.Symbol, "data": data}
}

// GetAccountInfoArgs is the getAccountInfo tool's argument shape.
type GetAccountInfoArgs struct {
	Symbols        []string `json:"symbols"`
	InitialCapital float64  `json:"initialCapital"`
}

func (b *Bridge) GetAccountInfo(ctx context.Context, args GetAccountInfoArgs) map[string]interface{} {
	if err := b.positions.ForceSync(ctx, args.Symbols); err != nil {
		logx.Infof("toolbridge: forceSync before getAccountInfo failed: %v", err)
	}
	snap, err := b.brk.GetAccountInfo(ctx)
	if err != nil {
		return map[string]interface{}{"success": false, "error": err.Error()}
	}

	currentValue := snap.AvailableMargin + b.positions.GetTotalUnrealizedPnL()
	result := map[string]interface{}{
		"success":            true,
		"balance":            snap.Balance,
		"usedMargin":         snap.UsedMargin,
		"availableMargin":    snap.AvailableMargin,
		"totalUnrealizedPnl": b.positions.GetTotalUnrealizedPnL(),
		"currentAccountValue": currentValue,
		"positions":          b.positions.GetAllPositions(),
	}
	if args.InitialCapital > 0 {
		result["totalReturnPct"] = (currentValue - args.InitialCapital) / args.InitialCapital
		result["sharpeRatio"] = simplifiedSharpe(b.positions.GetAllPositions())
	}
	return result
}

// PlaceOrderArgs is the placeOrder tool's argument shape.
type PlaceOrderArgs struct {
	Symbol     string   `json:"symbol"`
	Action     string   `json:"action"`
	Cost       *float64 `json:"cost,omitempty"`
	Leverage   *int     `json:"leverage,omitempty"`
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
}

// PlaceOrder dispatches per the spec §4.6.1 action table.
func (b *Bridge) PlaceOrder(ctx context.Context, args PlaceOrderArgs) map[string]interface{} {
	symbol := riskguard.Normalize(args.Symbol)
	switch strings.ToLower(args.Action) {
	case "open_long":
		return b.openPosition(ctx, symbol, broker.Buy, args)
	case "open_short":
		return b.openPosition(ctx, symbol, broker.Sell, args)
	case "close_long":
		return b.closePosition(ctx, symbol, broker.Long)
	case "close_short":
		return b.closePosition(ctx, symbol, broker.Short)
	default:
		return map[string]interface{}{"success": false, "error": fmt.Sprintf("unknown action %q", args.Action)}
	}
}

func (b *Bridge) openPosition(ctx context.Context, symbol string, side broker.Side, args PlaceOrderArgs) map[string]interface{} {
	if args.Cost == nil || args.Leverage == nil {
		return map[string]interface{}{"success": false, "error": "cost and leverage are required to open a position"}
	}

	verdict := b.guard.Validate(symbol, *args.Cost, *args.Leverage)
	if !verdict.Allowed {
		return map[string]interface{}{"success": false, "rejected": true, "error": verdict.Reason}
	}

	if allowed, reason := b.positions.CanOpenPosition(symbol, b.guard, 0); !allowed {
		return map[string]interface{}{"success": false, "error": reason}
	}

	req := broker.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     broker.Market,
		Cost:     *args.Cost,
		Leverage: *args.Leverage,
	}
	if args.StopLoss != nil {
		req.StopLoss = *args.StopLoss
	}
	if args.TakeProfit != nil {
		req.TakeProfit = *args.TakeProfit
	}

	result, err := b.brk.PlaceOrder(ctx, req)
	if err := b.positions.ForceSync(ctx, []string{symbol}); err != nil {
		logx.Infof("toolbridge: forceSync after open failed: %v", err)
	}
	if err != nil {
		return map[string]interface{}{"success": false, "error": err.Error()}
	}
	return orderResultToMap(result)
}

func (b *Bridge) closePosition(ctx context.Context, symbol string, want broker.PositionSide) map[string]interface{} {
	pos, ok := b.positions.GetPosition(symbol)
	if !ok || pos.Side != want {
		return map[string]interface{}{"success": false, "error": fmt.Sprintf("no open %s position for %s", want, symbol)}
	}

	side := broker.Sell
	if want == broker.Short {
		side = broker.Buy
	}
	result, err := b.brk.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       broker.Market,
		Amount:     pos.Amount,
		ReduceOnly: true,
	})
	if err := b.positions.ForceSync(ctx, []string{symbol}); err != nil {
		logx.Infof("toolbridge: forceSync after close failed: %v", err)
	}
	if err != nil {
		return map[string]interface{}{"success": false, "error": err.Error()}
	}
	b.guard.RecordClose(symbol)
	return orderResultToMap(result)
}

func orderResultToMap(r broker.OrderResult) map[string]interface{} {
	out := map[string]interface{}{"success": r.Success, "orderId": r.OrderID}
	if r.StopLossOrderID != "" {
		out["stopLossOrderId"] = r.StopLossOrderID
	}
	if r.TakeProfitOrderID != "" {
		out["takeProfitOrderId"] = r.TakeProfitOrderID
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	if r.Critical {
		out["critical"] = true
	}
	return out
}

// SearchArgs is the search tool's argument shape.
type SearchArgs struct {
	Query string `json:"query"`
}

func (b *Bridge) Search(ctx context.Context, args SearchArgs) map[string]interface{} {
	if b.search == nil {
		return map[string]interface{}{"success": false, "error": "search collaborator not configured"}
	}
	result, err := b.search.Search(ctx, args.Query)
	if err != nil {
		return map[string]interface{}{"success": false, "error": err.Error()}
	}
	return map[string]interface{}{"success": true, "result": result}
}

// simplifiedSharpe computes a rough per-position-return Sharpe ratio (spec
// §4.6): mean return over its own standard deviation, with no risk-free
// adjustment.
func simplifiedSharpe(positions map[string]broker.Position) float64 {
	if len(positions) == 0 {
		return 0
	}
	returns := make([]float64, 0, len(positions))
	for _, p := range positions {
		if p.EntryPrice <= 0 {
			continue
		}
		returns = append(returns, p.UnrealizedPnl/(p.Amount*p.EntryPrice))
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return 0
	}
	return mean / stddev
}
