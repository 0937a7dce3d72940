package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTrackedSymbol(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		tracked bool
	}{
		{"BTC/USDT", "BTC", true},
		{"eth/usdt", "ETH", true},
		{"DOGE", "DOGE", true},
		{"SHIB/USDT", "", false},
	}
	for _, c := range cases {
		got, ok := normalizeTrackedSymbol(c.in)
		require.Equal(t, c.tracked, ok, c.in)
		require.Equal(t, c.want, got, c.in)
	}
}

func TestNormalizeOperation(t *testing.T) {
	require.Equal(t, "Buy", normalizeOperation("open_long"))
	require.Equal(t, "Buy", normalizeOperation("BUY"))
	require.Equal(t, "Sell", normalizeOperation("close_short"))
	require.Equal(t, "Sell", normalizeOperation("sell"))
	require.Equal(t, "Hold", normalizeOperation("hold"))
	require.Equal(t, "Hold", normalizeOperation(""))
}
