// Package agent implements the Trading Agent (spec §4.8): the per-cycle
// driver that walks a symbol list, runs the LLM tool-invocation loop for
// each one, and persists a TradingSession audit record.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/pkg/llmdriver"
	"nof0-api/pkg/prompt"
	"nof0-api/pkg/riskguard"
)

// interSymbolPause matches the spec §4.8/§5 1000ms pause between symbols
// within one run.
const interSymbolPause = 1000 * time.Millisecond

// TradeRecord is one execution outcome within a session (spec §3).
type TradeRecord struct {
	Symbol     string  `json:"symbol"`
	Operation  string  `json:"operation"` // Buy | Sell | Hold
	Leverage   int     `json:"leverage,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
	Pricing    float64 `json:"pricing,omitempty"`
	StopLoss   float64 `json:"stopLoss,omitempty"`
	TakeProfit float64 `json:"takeProfit,omitempty"`
}

// ToolCallRecord is one opaque tool invocation recorded for audit (spec §3).
type ToolCallRecord struct {
	Name      string                 `json:"name"`
	Arguments string                 `json:"arguments"`
	Result    map[string]interface{} `json:"result"`
}

// TradingSession is the audit record persisted for one processSymbol
// invocation (spec §3).
type TradingSession struct {
	Symbol           string           `json:"symbol"`
	StartTime        time.Time        `json:"startTime"`
	EndTime          time.Time        `json:"endTime"`
	Reasoning        string           `json:"reasoning"`
	ToolCalls        []ToolCallRecord `json:"toolCalls"`
	Success          bool             `json:"success"`
	Error            string           `json:"error,omitempty"`
	Trades           []TradeRecord    `json:"trades,omitempty"`
	PromptDigest     string           `json:"promptDigest,omitempty"`
	Model            string           `json:"model,omitempty"`
	PromptTokens     int              `json:"promptTokens,omitempty"`
	CompletionTokens int              `json:"completionTokens,omitempty"`
	TotalTokens      int              `json:"totalTokens,omitempty"`
}

// Sink persists a completed TradingSession. Implementations must not let a
// write failure propagate (spec §4.9); the Agent only needs a place to hand
// the finished record off to.
type Sink interface {
	Record(ctx context.Context, session TradingSession) error
}

// Driver runs one symbol's bounded LLM tool-invocation loop.
type Driver interface {
	Run(ctx context.Context, systemPrompt, userPrompt string) (llmdriver.Result, error)
}

// Agent is the Trading Agent (spec §4.8).
type Agent struct {
	driver Driver
	guard  *riskguard.Guard
	sink   Sink
}

// New constructs an Agent.
func New(driver Driver, guard *riskguard.Guard, sink Sink) *Agent {
	return &Agent{driver: driver, guard: guard, sink: sink}
}

// Run implements scheduler.CycleFunc: process every symbol in order,
// pausing interSymbolPause between them.
func (a *Agent) Run(ctx context.Context, symbols []string) error {
	for i, symbol := range symbols {
		a.processSymbol(ctx, symbol)
		if i < len(symbols)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interSymbolPause):
			}
		}
	}
	return nil
}

func (a *Agent) processSymbol(ctx context.Context, symbol string) {
	start := time.Now()

	systemPrompt := a.systemPrompt()
	userPrompt := userPromptFor(symbol)

	result, err := a.driver.Run(ctx, systemPrompt, userPrompt)

	session := TradingSession{
		Symbol:           symbol,
		StartTime:        start,
		EndTime:          time.Now(),
		Reasoning:        result.Reasoning,
		ToolCalls:        toolCallRecords(result.ToolCalls),
		Success:          err == nil,
		PromptDigest:     prompt.Digest([]byte(systemPrompt + "\n" + userPrompt)),
		Model:            result.Model,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TotalTokens:      result.TotalTokens,
	}
	if err != nil {
		session.Error = err.Error()
		logx.WithContext(ctx).Errorf("agent: processSymbol %s failed: %v", symbol, err)
	} else {
		session.Trades = tradesFromToolCalls(symbol, result.ToolCalls)
	}

	if a.sink != nil {
		if recErr := a.sink.Record(ctx, session); recErr != nil {
			logx.WithContext(ctx).Errorf("agent: failed to persist session for %s: %v", symbol, recErr)
		}
	}
}

func (a *Agent) systemPrompt() string {
	constraints := ""
	if a.guard != nil {
		constraints = a.guard.PromptConstraints()
	}
	return fmt.Sprintf(
		"You are an autonomous futures trading agent. Use the available tools to "+
			"review market data and account state, then decide whether to open, close, "+
			"or hold a position. %s Always explain your final decision in plain text "+
			"once you are done calling tools.",
		constraints,
	)
}

func userPromptFor(symbol string) string {
	return fmt.Sprintf(
		"Analyze %s. Check current market data and account/position state, decide "+
			"whether to open a new position, close an existing one, or hold, and "+
			"execute that decision using the available tools.",
		symbol,
	)
}

func toolCallRecords(calls []llmdriver.ToolInvocation) []ToolCallRecord {
	out := make([]ToolCallRecord, 0, len(calls))
	for _, c := range calls {
		out = append(out, ToolCallRecord{Name: c.Name, Arguments: c.Arguments, Result: c.Result})
	}
	return out
}

// tradesFromToolCalls derives TradeRecords from placeOrder invocations in
// the step sequence; every other tool call leaves no trade trace.
func tradesFromToolCalls(symbol string, calls []llmdriver.ToolInvocation) []TradeRecord {
	var trades []TradeRecord
	hadOrder := false
	for _, c := range calls {
		if c.Name != "placeOrder" {
			continue
		}
		hadOrder = true
		if success, _ := c.Result["success"].(bool); !success {
			continue
		}
		trades = append(trades, TradeRecord{
			Symbol:    symbol,
			Operation: operationFromArguments(c.Arguments),
		})
	}
	if !hadOrder {
		trades = append(trades, TradeRecord{Symbol: symbol, Operation: "Hold"})
	}
	return trades
}

func operationFromArguments(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "open_long") || strings.Contains(lower, "close_short"):
		return "Buy"
	case strings.Contains(lower, "open_short") || strings.Contains(lower, "close_long"):
		return "Sell"
	default:
		return "Hold"
	}
}
