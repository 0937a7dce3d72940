package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nof0-api/pkg/agent"
)

func TestFileLogWritesSessionUnderDatedDirectory(t *testing.T) {
	dir := t.TempDir()
	f := NewFileLog(dir)

	start := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	session := agent.TradingSession{
		Symbol:    "BTC/USDT",
		StartTime: start,
		EndTime:   start.Add(2 * time.Second),
		Reasoning: "held",
		Success:   true,
	}

	require.NoError(t, f.Record(context.Background(), session))

	expectedDir := filepath.Join(dir, "trade-2026-07-30")
	entries, err := os.ReadDir(expectedDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Name(), "BTC-USDT")

	data, err := os.ReadFile(filepath.Join(expectedDir, entries[0].Name()))
	require.NoError(t, err)

	var roundTripped agent.TradingSession
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	require.Equal(t, "BTC/USDT", roundTripped.Symbol)
	require.True(t, roundTripped.Success)
}

func TestFileLogDefaultsBaseDir(t *testing.T) {
	f := NewFileLog("")
	require.Equal(t, "logs", f.baseDir)
}
