package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock skips real sleeps so retry/backoff paths run instantly under
// test while still exercising the same code path as RealClock.
type fakeClock struct{}

func (fakeClock) Now() time.Time                               { return time.Unix(0, 0) }
func (fakeClock) Sleep(ctx context.Context, d time.Duration) error { return nil }

func newTestBroker(t *testing.T) *SimulationBroker {
	t.Helper()
	b := NewSimulationBroker(10000, fakeClock{})
	b.DisableLatency()
	return b
}

func TestOpenLongWithStopLossSucceeds(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	result, err := b.PlaceOrder(ctx, OrderRequest{
		Symbol:   "BTC/USDT",
		Side:     Buy,
		Type:     Market,
		Cost:     100,
		Leverage: 5,
		StopLoss: 1,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotEmpty(t, result.OrderID)
	require.NotEmpty(t, result.StopLossOrderID)

	state := b.GetState()
	pos, ok := state.Positions["BTC/USDT"]
	require.True(t, ok)
	require.Equal(t, Long, pos.Side)
	require.Greater(t, pos.Amount, 0.0)
}

func TestCloseWithNoPositionErrors(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	result, err := b.PlaceOrder(ctx, OrderRequest{
		Symbol:     "ETH/USDT",
		Side:       Sell,
		Type:       Market,
		Amount:     1,
		ReduceOnly: true,
	})
	require.NoError(t, err)
	require.False(t, result.Success)
}

func TestProtectionFailureRollsBackAfterThreeRetries(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	attempts := 0
	b.SetFaultInjector(func(kind string, req OrderRequest) error {
		if kind == "stop_loss" {
			attempts++
			return errors.New("exchange rejected stop order")
		}
		return nil
	})

	result, err := b.PlaceOrder(ctx, OrderRequest{
		Symbol:   "SOL/USDT",
		Side:     Buy,
		Type:     Market,
		Cost:     50,
		Leverage: 3,
		StopLoss: 1,
	})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "protection failed; position closed", result.Error)
	require.False(t, result.Critical)
	require.Equal(t, maxProtectAttempts, attempts)

	state := b.GetState()
	_, stillOpen := state.Positions["SOL/USDT"]
	require.False(t, stillOpen, "rollback must flatten the position")
}

func TestProtectionFailureAndRollbackFailureIsCritical(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	b.SetFaultInjector(func(kind string, req OrderRequest) error {
		switch kind {
		case "stop_loss":
			return errors.New("exchange rejected stop order")
		case "close":
			return errors.New("exchange unreachable")
		}
		return nil
	})

	result, err := b.PlaceOrder(ctx, OrderRequest{
		Symbol:   "DOGE/USDT",
		Side:     Buy,
		Type:     Market,
		Cost:     20,
		Leverage: 2,
		StopLoss: 1,
	})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.True(t, result.Critical)
	require.Contains(t, result.Error, "MANUAL INTERVENTION REQUIRED")
	require.Contains(t, result.Error, result.OrderID)
}

func TestTakeProfitFailureAloneIsNonCritical(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	b.SetFaultInjector(func(kind string, req OrderRequest) error {
		if kind == "take_profit" {
			return errors.New("exchange rejected tp order")
		}
		return nil
	})

	result, err := b.PlaceOrder(ctx, OrderRequest{
		Symbol:     "BNB/USDT",
		Side:       Buy,
		Type:       Market,
		Cost:       30,
		Leverage:   2,
		TakeProfit: 999999,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, result.TakeProfitOrderID)
}

func TestReduceOnlyOrderRejectsProtectivePrices(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, OrderRequest{
		Symbol:     "BTC/USDT",
		Side:       Sell,
		Type:       Market,
		Amount:     1,
		ReduceOnly: true,
		StopLoss:   1,
	})
	require.Error(t, err)
}

func TestOppositeSideOrderClosesExistingPosition(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, OrderRequest{
		Symbol: "ETH/USDT", Side: Buy, Type: Market, Amount: 1,
	})
	require.NoError(t, err)

	_, err = b.PlaceOrder(ctx, OrderRequest{
		Symbol: "ETH/USDT", Side: Sell, Type: Market, Amount: 1,
	})
	require.NoError(t, err)

	state := b.GetState()
	_, stillOpen := state.Positions["ETH/USDT"]
	require.False(t, stillOpen)
}
