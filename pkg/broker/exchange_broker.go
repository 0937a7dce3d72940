package broker

import (
	"context"

	"nof0-api/internal/metrics"
)

// ExchangeBroker is the production Broker, backed by a RawExchange
// collaborator (normally a HyperliquidAdapter) and the shared
// Protected-Order Protocol engine (spec §4.2, §4.3).
type ExchangeBroker struct {
	engine protocolEngine
}

// NewExchangeBroker constructs an ExchangeBroker. clock may be nil to use
// the real wall clock.
func NewExchangeBroker(raw RawExchange, clock Clock) *ExchangeBroker {
	return &ExchangeBroker{engine: newProtocolEngine(raw, clock)}
}

// SetMetrics attaches instrumentation to the order protocol; optional, and
// safe to skip entirely (e.g. in tests).
func (b *ExchangeBroker) SetMetrics(m *metrics.Metrics) {
	b.engine.metrics = m
}

func (b *ExchangeBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	return b.engine.placeOrder(ctx, req)
}

// GetPositions returns only non-zero-amount positions; unknown symbols
// resolve to an empty slice rather than an error (spec §4.2).
func (b *ExchangeBroker) GetPositions(ctx context.Context, symbols []string) ([]Position, error) {
	positions, err := b.engine.raw.FetchPositions(ctx, symbols)
	if err != nil {
		// Transient fetch errors degrade to an empty snapshot rather than
		// failing the caller's cycle (spec §4.2).
		return nil, nil
	}
	out := make([]Position, 0, len(positions))
	for _, p := range positions {
		if p.Amount != 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetAccountInfo degrades to a zeroed snapshot on transient error rather
// than failing the caller (spec §4.2).
func (b *ExchangeBroker) GetAccountInfo(ctx context.Context) (AccountSnapshot, error) {
	snap, err := b.engine.raw.FetchAccount(ctx)
	if err != nil {
		return AccountSnapshot{}, nil
	}
	return snap, nil
}

// SetLeverage is idempotent; failures are logged by the caller and never
// abort a cycle (spec §4.2), so they are returned as-is for the caller to
// decide how to log them.
func (b *ExchangeBroker) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return b.engine.raw.SetLeverage(ctx, symbol, leverage)
}

func (b *ExchangeBroker) SetMarginMode(ctx context.Context, symbol string, mode MarginMode) error {
	return b.engine.raw.SetMarginMode(ctx, symbol, mode)
}
