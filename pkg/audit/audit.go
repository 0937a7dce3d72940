// Package audit implements the Audit Sink (spec §4.9): two independent
// append targets for each completed TradingSession, neither of which may
// let a write failure propagate back to the core trading loop.
package audit

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/pkg/agent"
)

// CompositeSink attempts both append targets independently and swallows
// any failure after logging it, satisfying agent.Sink.
type CompositeSink struct {
	fileLog *FileLog
	sqlSink *SQLSink
}

// NewCompositeSink wires both targets. Either may be nil to disable it
// (e.g. no database configured in --dev mode).
func NewCompositeSink(fileLog *FileLog, sqlSink *SQLSink) *CompositeSink {
	return &CompositeSink{fileLog: fileLog, sqlSink: sqlSink}
}

// Record writes to the file log and the relational log, independently.
func (c *CompositeSink) Record(ctx context.Context, session agent.TradingSession) error {
	if c.fileLog != nil {
		if err := c.fileLog.Record(ctx, session); err != nil {
			logx.WithContext(ctx).Errorf("audit: file log write failed for %s: %v", session.Symbol, err)
		}
	}
	if c.sqlSink != nil {
		if err := c.sqlSink.Record(ctx, session); err != nil {
			logx.WithContext(ctx).Errorf("audit: relational log write failed for %s: %v", session.Symbol, err)
		}
	}
	return nil
}
