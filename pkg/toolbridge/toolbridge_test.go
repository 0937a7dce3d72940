package toolbridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"nof0-api/pkg/broker"
	"nof0-api/pkg/positionmanager"
	"nof0-api/pkg/riskguard"
)

type stubMarketData struct{}

func (stubMarketData) GetMarketData(ctx context.Context, symbol string) (string, error) {
	return "price=100000 change_24h=1.2%", nil
}

func newTestBridge(t *testing.T) (*Bridge, *broker.SimulationBroker) {
	t.Helper()
	guard := riskguard.New(10, 100, []string{"BTC/USDT", "ETH/USDT"})
	brk := broker.NewSimulationBroker(10000, nil)
	brk.DisableLatency()
	pm := positionmanager.New(brk, nil)
	return New(guard, pm, brk, stubMarketData{}, nil), brk
}

func TestGetMarketDataDelegates(t *testing.T) {
	b, _ := newTestBridge(t)
	result := b.GetMarketData(context.Background(), GetMarketDataArgs{Symbol: "BTC/USDT"})
	require.Equal(t, true, result["success"])
	require.Equal(t, "BTC/USDT", result["symbol"])
}

func TestPlaceOrderOpenLongThenCloseLong(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx := context.Background()

	cost := 50.0
	leverage := 3
	stopLoss := 1.0
	openResult := b.PlaceOrder(ctx, PlaceOrderArgs{
		Symbol: "BTC/USDT", Action: "open_long", Cost: &cost, Leverage: &leverage, StopLoss: &stopLoss,
	})
	require.Equal(t, true, openResult["success"])

	closeResult := b.PlaceOrder(ctx, PlaceOrderArgs{Symbol: "BTC/USDT", Action: "close_long"})
	require.Equal(t, true, closeResult["success"])
}

func TestPlaceOrderCloseWithNoPositionErrors(t *testing.T) {
	b, _ := newTestBridge(t)
	result := b.PlaceOrder(context.Background(), PlaceOrderArgs{Symbol: "ETH/USDT", Action: "close_long"})
	require.Equal(t, false, result["success"])
	require.Contains(t, result["error"], "no open")
}

func TestPlaceOrderRejectedByRiskGuardHasNoSideEffect(t *testing.T) {
	b, brk := newTestBridge(t)
	cost := 5000.0
	leverage := 3
	result := b.PlaceOrder(context.Background(), PlaceOrderArgs{
		Symbol: "BTC/USDT", Action: "open_long", Cost: &cost, Leverage: &leverage,
	})
	require.Equal(t, false, result["success"])
	require.Equal(t, true, result["rejected"])

	state := brk.GetState()
	require.Empty(t, state.Positions, "rejected validation must not reach the broker")
}

func TestSearchUnconfiguredReportsError(t *testing.T) {
	b, _ := newTestBridge(t)
	result := b.Search(context.Background(), SearchArgs{Query: "btc news"})
	require.Equal(t, false, result["success"])
}
