package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/mExOms/backtester/pkg/money"
)

var tradeFileHeader = []string{
	"run_id", "strategy_id", "trade_id", "position_id", "timestamp", "pair", "entry_price", "exit_price",
	"volume", "pnl", "entry_costs", "exit_costs", "reason",
}

// TradeStore is the read path strategy authors and report generators
// use to pull a strategy's full closed-trade history back out, FIFO
// ordered, independent of which run produced each trade.
type TradeStore interface {
	RecordTrades(runID, strategyID string, trades []CompletedTrade) error
	GetTradesByStrategy(strategyID string) ([]CompletedTrade, error)
}

// FileTradeStore appends every run's completed trades to one CSV file
// per strategy under rootDir, in the same column-per-field style as
// FileBarStore.
type FileTradeStore struct {
	rootDir string
	mu      sync.Mutex
}

// NewFileTradeStore builds a FileTradeStore rooted at rootDir.
func NewFileTradeStore(rootDir string) *FileTradeStore {
	return &FileTradeStore{rootDir: rootDir}
}

func (s *FileTradeStore) path(strategyID string) string {
	return filepath.Join(s.rootDir, strategyID+".csv")
}

// RecordTrades appends trades (already FIFO-ordered by the engine) to
// the strategy's trade file, creating it with a header if it does not
// yet exist.
func (s *FileTradeStore) RecordTrades(runID, strategyID string, trades []CompletedTrade) error {
	if len(trades) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.rootDir, 0o755); err != nil {
		return fmt.Errorf("backtest: create trade store dir: %w", err)
	}
	path := s.path(strategyID)
	needsHeader := false
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("backtest: open trade file: %w", err)
	}
	defer f.Close()

	if err := lockExclusive(f); err != nil {
		return fmt.Errorf("backtest: lock trade file: %w", err)
	}
	defer unlockFile(f)

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(tradeFileHeader); err != nil {
			return err
		}
	}
	for _, t := range trades {
		record := []string{
			runID, strategyID, t.TradeID, t.PositionID, strconv.FormatInt(t.Timestamp, 10), t.Pair,
			t.EntryPrice.String(), t.ExitPrice.String(), t.Volume.String(),
			t.PnL.String(), t.EntryCosts.String(), t.ExitCosts.String(), string(t.Reason),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// GetTradesByStrategy reads every trade ever recorded for strategyID,
// across all runs, in file order (which is append order, hence FIFO).
func (s *FileTradeStore) GetTradesByStrategy(strategyID string) ([]CompletedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path(strategyID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("backtest: open trade file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("backtest: read trade file: %w", err)
	}

	trades := make([]CompletedTrade, 0, len(rows))
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == "run_id" {
			continue
		}
		if len(row) < 13 {
			continue
		}
		ts, err := strconv.ParseInt(row[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("backtest: trade file row %d timestamp: %w", i, err)
		}
		entryPrice, err := money.NewFromString(row[6])
		if err != nil {
			return nil, err
		}
		exitPrice, err := money.NewFromString(row[7])
		if err != nil {
			return nil, err
		}
		volume, err := money.NewFromString(row[8])
		if err != nil {
			return nil, err
		}
		pnl, err := money.NewFromString(row[9])
		if err != nil {
			return nil, err
		}
		entryCosts, err := money.NewFromString(row[10])
		if err != nil {
			return nil, err
		}
		exitCosts, err := money.NewFromString(row[11])
		if err != nil {
			return nil, err
		}
		trades = append(trades, CompletedTrade{
			TradeID:    row[2],
			PositionID: row[3],
			Timestamp:  ts,
			Pair:       row[5],
			EntryPrice: entryPrice,
			ExitPrice:  exitPrice,
			Volume:     volume,
			PnL:        pnl,
			EntryCosts: entryCosts,
			ExitCosts:  exitCosts,
			Reason:     ExitReason(row[12]),
		})
	}
	return trades, nil
}
