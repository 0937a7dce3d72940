package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"nof0-api/pkg/agent"
	"nof0-api/pkg/journal"
)

// FileLog is the first of the two independent append targets (spec §4.9):
// one JSON file per session under logs/trade-YYYY-MM-DD/, grounded on the
// teacher's journal.Writer MkdirAll+MarshalIndent+WriteFile idiom.
type FileLog struct {
	baseDir string
}

// NewFileLog constructs a FileLog rooted at baseDir ("logs" if empty).
func NewFileLog(baseDir string) *FileLog {
	if baseDir == "" {
		baseDir = "logs"
	}
	return &FileLog{baseDir: baseDir}
}

// Record writes session as indented JSON to
// <baseDir>/trade-YYYY-MM-DD/<symbol-with-slash-replaced>-<unixNanoStart>.json.
func (f *FileLog) Record(ctx context.Context, session agent.TradingSession) error {
	dir := filepath.Join(f.baseDir, "trade-"+session.StartTime.UTC().Format("2006-01-02"))
	safeSymbol := strings.ReplaceAll(session.Symbol, "/", "-")
	name := fmt.Sprintf("%s-%d.json", safeSymbol, session.StartTime.UnixNano())

	if _, err := journal.NewWriter(dir).Write(name, session); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}
