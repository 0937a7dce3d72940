// Package broker implements the Broker interface (spec §4.2): the
// Protected-Order Protocol state machine shared by the production
// ExchangeBroker and the in-memory SimulationBroker, plus the low-level
// RawExchange wire contract each is built on (spec §6).
package broker

import (
	"context"
	"time"
)

// Side is an order direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderType distinguishes market from limit execution.
type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// PositionSide is the resulting directional exposure.
type PositionSide string

const (
	Long  PositionSide = "long"
	Short PositionSide = "short"
)

// MarginMode selects isolated or cross margin accounting.
type MarginMode string

const (
	Isolated MarginMode = "isolated"
	Cross    MarginMode = "cross"
)

// OrderRequest is the spec §3 OrderRequest. Exactly one of Amount or
// (Cost ∧ Leverage) must be set; Price is required when Type is Limit;
// when ReduceOnly is true, StopLoss/TakeProfit must be empty.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Type       OrderType
	Amount     float64 // base-asset quantity; zero means "derive from Cost/Leverage"
	Cost       float64 // quote-currency notional-at-entry budget
	Price      float64 // required for Type=Limit
	Leverage   int
	StopLoss   float64 // absolute price; zero means "not requested"
	TakeProfit float64 // absolute price; zero means "not requested"
	ReduceOnly bool
}

// HasAmount reports whether Amount was given directly rather than derived.
func (r OrderRequest) HasAmount() bool { return r.Amount > 0 }

// OrderResult is the spec §3 OrderResult.
type OrderResult struct {
	Success bool
	OrderID string
	// StopLossOrderID/TakeProfitOrderID are populated on a successful
	// protected open; both empty on a reduce-only/closing order.
	StopLossOrderID   string
	TakeProfitOrderID string
	Error             string
	// Critical is set when protection failed AND rollback also failed;
	// Error then contains the "MANUAL INTERVENTION REQUIRED" phrase (§7).
	Critical bool
}

// Position is the spec §3 Position.
type Position struct {
	Symbol           string
	Side             PositionSide
	Amount           float64
	EntryPrice       float64
	MarkPrice        float64
	UnrealizedPnl    float64
	Leverage         int
	LiquidationPrice float64
}

// AccountSnapshot is the spec §3 AccountSnapshot.
// Semantic: Balance = AvailableMargin + UsedMargin + Σ position.UnrealizedPnl.
type AccountSnapshot struct {
	Balance         float64
	UsedMargin      float64
	AvailableMargin float64
	TotalPnL        float64
	TotalMargin     float64
}

// Broker is the polymorphic interface implemented by ExchangeBroker and
// SimulationBroker (spec §4.2).
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetPositions(ctx context.Context, symbols []string) ([]Position, error)
	GetAccountInfo(ctx context.Context) (AccountSnapshot, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginMode(ctx context.Context, symbol string, mode MarginMode) error
}

// RawExchange is the low-level wire contract (spec §6) an exchange
// collaborator must satisfy. Both the hyperliquid-backed adapter and the
// in-memory simulator implement it; the Protected-Order Protocol engine in
// protocol.go is written once against this interface.
type RawExchange interface {
	// LastPrice returns the exchange's reference ("last") price for symbol.
	LastPrice(ctx context.Context, symbol string) (float64, error)
	// CreateOrder submits a single raw order and returns its exchange id.
	CreateOrder(ctx context.Context, req OrderRequest) (orderID string, err error)
	// FetchPositions returns raw positions; symbols nil means "all".
	FetchPositions(ctx context.Context, symbols []string) ([]Position, error)
	// FetchAccount returns the current account snapshot.
	FetchAccount(ctx context.Context) (AccountSnapshot, error)
	// SetLeverage is idempotent; implementations should not error on re-set.
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	// SetMarginMode is idempotent; implementations should not error on re-set.
	SetMarginMode(ctx context.Context, symbol string, mode MarginMode) error
}

// Clock abstracts the passage of time so the retry/backoff loop in
// protocol.go can be driven deterministically under test.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
	Now() time.Time
}

// RealClock is the production Clock, a thin context-aware wrapper around
// time.Sleep/time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
