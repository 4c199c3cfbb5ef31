package backtest

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// indexHeader is the exact, unquoted header row for backtests/index.csv.
var indexHeader = []string{
	"run_id", "strategy_name", "start_time", "end_time",
	"total_trades", "win_rate", "total_pnl", "sharpe_ratio", "events_file",
}

// EventLogger owns the append-only NDJSON event stream for one run
// directory plus the shared index.csv across all runs under rootDir.
// Matches the teacher's event_store.go discipline of scoping a file
// handle for the lifetime of one writer and guaranteeing release.
type EventLogger struct {
	rootDir string
	log     *logrus.Entry

	indexMu sync.Mutex
}

// NewEventLogger builds an EventLogger rooted at rootDir (typically
// "<app-data>/backtests").
func NewEventLogger(rootDir string, log *logrus.Entry) *EventLogger {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &EventLogger{rootDir: rootDir, log: log.WithField("component", "event_logger")}
}

// RunEventWriter is a scoped, single-run NDJSON append writer. Callers
// must Close it on every exit path (defer immediately after Open).
type RunEventWriter struct {
	runID string
	path  string
	file  *os.File
	w     *bufio.Writer
}

// RunDir returns the run-scoped directory (backtests/<runId>/) that
// Open creates, for callers that write sibling report files there
// (result.json, trades.csv, equity_curve.csv, summary.txt).
func (l *EventLogger) RunDir(runID string) string {
	return filepath.Join(l.rootDir, runID)
}

// Open creates backtests/<runId>/ and opens events.ndjson for
// append-only writes.
func (l *EventLogger) Open(runID string) (*RunEventWriter, error) {
	dir := filepath.Join(l.rootDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backtest: create run directory: %w", err)
	}
	path := filepath.Join(dir, "events.ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("backtest: open events.ndjson: %w", err)
	}
	return &RunEventWriter{runID: runID, path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the absolute path to the open events.ndjson file.
func (w *RunEventWriter) Path() (string, error) {
	return filepath.Abs(w.path)
}

func (w *RunEventWriter) writeEvent(eventType string, fields map[string]any) error {
	fields["ts"] = time.Now().UnixMilli()
	fields["type"] = eventType
	fields["runId"] = w.runID

	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("backtest: marshal event: %w", err)
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("backtest: write event: %w", err)
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return fmt.Errorf("backtest: write event newline: %w", err)
	}
	return w.w.Flush()
}

// BacktestStart appends a backtest_start event.
func (w *RunEventWriter) BacktestStart(strategyName string, startingBalance string, asset string, timeframe Timeframe, tier DataTier) error {
	return w.writeEvent("backtest_start", map[string]any{
		"strategyName":    strategyName,
		"startingBalance": startingBalance,
		"asset":           asset,
		"timeframe":       string(timeframe),
		"tier":            tier.TierName(),
	})
}

// Trade appends a trade event for a single fill.
func (w *RunEventWriter) Trade(timestamp int64, action Action, price, size string, pnl *string) error {
	fields := map[string]any{
		"timestamp": timestamp,
		"action":    string(action),
		"price":     price,
		"size":      size,
	}
	if pnl != nil {
		fields["pnl"] = *pnl
	}
	return w.writeEvent("trade", fields)
}

// Error appends an error event. barTimestamp of 0 is omitted.
func (w *RunEventWriter) Error(message string, barTimestamp int64) error {
	fields := map[string]any{"message": message}
	if barTimestamp != 0 {
		fields["barTimestamp"] = barTimestamp
	}
	return w.writeEvent("error", fields)
}

// BacktestEnd appends the closing backtest_end event.
func (w *RunEventWriter) BacktestEnd(totalTrades int, winRate, totalPnL, sharpeRatio, maxDrawdown string) error {
	return w.writeEvent("backtest_end", map[string]any{
		"totalTrades": totalTrades,
		"winRate":     winRate,
		"totalPnL":    totalPnL,
		"sharpeRatio": sharpeRatio,
		"maxDrawdown": maxDrawdown,
	})
}

// Close flushes and releases the file handle. Safe to call multiple
// times.
func (w *RunEventWriter) Close() error {
	if w.file == nil {
		return nil
	}
	_ = w.w.Flush()
	err := w.file.Close()
	w.file = nil
	return err
}

// IndexRow is one row appended to the shared index.csv.
type IndexRow struct {
	RunID        string
	StrategyName string
	StartTime    time.Time
	EndTime      time.Time
	TotalTrades  int
	WinRate      string
	TotalPnL     string
	SharpeRatio  string
	EventsFile   string
}

// AppendIndex appends one row to backtests/index.csv, writing the
// header on first use and serializing concurrent writers with an
// exclusive file lock so interleaved rows never happen (spec §5).
func (l *EventLogger) AppendIndex(row IndexRow) error {
	l.indexMu.Lock()
	defer l.indexMu.Unlock()

	if err := os.MkdirAll(l.rootDir, 0o755); err != nil {
		return fmt.Errorf("backtest: create backtests root: %w", err)
	}
	path := filepath.Join(l.rootDir, "index.csv")

	needsHeader := false
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("backtest: open index.csv: %w", err)
	}
	defer f.Close()

	if err := lockExclusive(f); err != nil {
		return fmt.Errorf("backtest: lock index.csv: %w", err)
	}
	defer unlockFile(f)

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(indexHeader); err != nil {
			return fmt.Errorf("backtest: write index header: %w", err)
		}
	}
	record := []string{
		row.RunID, row.StrategyName,
		row.StartTime.UTC().Format(time.RFC3339), row.EndTime.UTC().Format(time.RFC3339),
		fmt.Sprintf("%d", row.TotalTrades), row.WinRate, row.TotalPnL, row.SharpeRatio, row.EventsFile,
	}
	if err := w.Write(record); err != nil {
		return fmt.Errorf("backtest: write index row: %w", err)
	}
	w.Flush()
	return w.Error()
}
