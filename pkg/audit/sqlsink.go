package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"nof0-api/pkg/agent"
)

// trackedSymbols is the closed symbol enum the relational log accepts
// (spec §4.9); anything else is logged and skipped rather than failing the
// whole write.
var trackedSymbols = map[string]struct{}{
	"BTC":  {},
	"ETH":  {},
	"BNB":  {},
	"SOL":  {},
	"DOGE": {},
}

// SQLSink is the second of the two independent append targets (spec §4.9):
// a parent reasoning-session row plus one child row per trade, grounded on
// the style (not the schema) of the teacher's internal/repo/trades.go.
type SQLSink struct {
	conn sqlx.SqlConn
}

// NewSQLSink constructs a SQLSink over an existing connection.
func NewSQLSink(conn sqlx.SqlConn) *SQLSink {
	return &SQLSink{conn: conn}
}

// Record inserts the parent session row and one trade row per TradeRecord.
func (s *SQLSink) Record(ctx context.Context, session agent.TradingSession) error {
	symbol, ok := normalizeTrackedSymbol(session.Symbol)
	if !ok {
		logx.WithContext(ctx).Infof("audit: symbol %q is outside the tracked enum, skipping relational log", session.Symbol)
		return nil
	}

	toolCallsBlob, err := msgpack.Marshal(session.ToolCalls)
	if err != nil {
		return fmt.Errorf("audit: marshal tool calls: %w", err)
	}
	toolNames := make([]string, 0, len(session.ToolCalls))
	for _, tc := range session.ToolCalls {
		toolNames = append(toolNames, tc.Name)
	}

	sessionID := uuid.NewString()
	_, err = s.conn.ExecCtx(ctx, `
INSERT INTO trade_sessions (id, symbol, start_time, end_time, reasoning, success, error, tool_names, tool_calls_blob, prompt_digest, model, prompt_tokens, completion_tokens, total_tokens)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sessionID, symbol, session.StartTime, session.EndTime, session.Reasoning, session.Success, session.Error,
		pq.Array(toolNames), toolCallsBlob,
		session.PromptDigest, session.Model, session.PromptTokens, session.CompletionTokens, session.TotalTokens,
	)
	if err != nil {
		return fmt.Errorf("audit: insert trade_sessions: %w", err)
	}

	for _, trade := range session.Trades {
		tradeSymbol, ok := normalizeTrackedSymbol(trade.Symbol)
		if !ok {
			logx.WithContext(ctx).Infof("audit: trade symbol %q is outside the tracked enum, skipping row", trade.Symbol)
			continue
		}
		operation := normalizeOperation(trade.Operation)
		_, err := s.conn.ExecCtx(ctx, `
INSERT INTO trade_records (id, session_id, symbol, operation, leverage, amount, pricing, stop_loss, take_profit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.NewString(), sessionID, tradeSymbol, operation,
			trade.Leverage, trade.Amount, trade.Pricing, trade.StopLoss, trade.TakeProfit,
		)
		if err != nil {
			logx.WithContext(ctx).Errorf("audit: insert trade_records for session %s: %v", sessionID, err)
		}
	}
	return nil
}

// normalizeTrackedSymbol maps a raw symbol (e.g. "BTC/USDT") onto the
// closed enum, reporting false if it isn't one of the tracked bases.
func normalizeTrackedSymbol(raw string) (string, bool) {
	base := raw
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		base = raw[:i]
	}
	base = strings.ToUpper(strings.TrimSpace(base))
	if _, ok := trackedSymbols[base]; !ok {
		return "", false
	}
	return base, true
}

// normalizeOperation folds a raw operation string onto {Buy, Sell, Hold}
// per spec §4.9.
func normalizeOperation(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "buy") || strings.Contains(lower, "long"):
		return "Buy"
	case strings.Contains(lower, "sell") || strings.Contains(lower, "short"):
		return "Sell"
	default:
		return "Hold"
	}
}
