package backtest_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mExOms/backtester/internal/backtest"
	"github.com/mExOms/backtester/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orchestratorBuyOnceEvaluator buys on the first bar and sells on the
// third, giving the Orchestrator exactly one trade to persist.
type orchestratorBuyOnceEvaluator struct {
	*backtest.DefaultEvaluator
	seen int
}

func newOrchestratorEvaluator() *orchestratorBuyOnceEvaluator {
	return &orchestratorBuyOnceEvaluator{DefaultEvaluator: backtest.NewDefaultEvaluator()}
}

func (e *orchestratorBuyOnceEvaluator) Evaluate(strategy backtest.Strategy, market backtest.MarketSnapshot, portfolio backtest.PortfolioSnapshot, isBacktesting bool) *backtest.Signal {
	e.seen++
	_, open := portfolio.OpenPositions[market.Pair]
	switch {
	case !open && e.seen == 1:
		return &backtest.Signal{Action: backtest.ActionBuy, Pair: market.Pair, Reason: "test_entry"}
	case open && e.seen == 3:
		return &backtest.Signal{Action: backtest.ActionSell, Pair: market.Pair, Reason: "test_exit"}
	default:
		return nil
	}
}

func writeBarFixture(t *testing.T, rootDir, asset string, timeframe backtest.Timeframe) {
	t.Helper()
	dir := filepath.Join(rootDir, asset)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	rows := []string{"timestamp,open,high,low,close,volume,tier"}
	price := 100.0
	for i := 0; i < 5; i++ {
		ts := int64(i+1) * 3_600_000
		close := price * 1.01
		rows = append(rows, formatRow(ts, price, close))
		price = close
	}
	content := ""
	for _, r := range rows {
		content += r + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, string(timeframe)+".csv"), []byte(content), 0o644))
}

func formatRow(ts int64, open, close float64) string {
	high := close * 1.002
	low := open * 0.998
	return fmt.Sprintf("%d,%s,%s,%s,%s,100.00000000,PREMIUM",
		ts, ftoa(open), ftoa(high), ftoa(low), ftoa(close))
}

func ftoa(v float64) string {
	return money.NewFromFloat(v).Display(8)
}

func TestOrchestrator_RunPersistsOnlyWhenTradesExist(t *testing.T) {
	dataDir := t.TempDir()
	writeBarFixture(t, dataDir, "BTCUSD", backtest.Timeframe1h)

	barStore := backtest.NewFileBarStore(dataDir)
	costModel := backtest.NewCostModel(backtest.DefaultCostModelConfig())
	eventsDir := t.TempDir()
	resultsDir := t.TempDir()
	tradesDir := t.TempDir()

	orch := backtest.NewOrchestrator(
		barStore, costModel, newOrchestratorEvaluator(),
		backtest.NewEventLogger(eventsDir, nil),
		backtest.NewFileResultStore(resultsDir),
		backtest.NewFileTradeStore(tradesDir),
		nil, nil,
	)

	req := backtest.RunRequest{
		Strategy: backtest.Strategy{
			ID: "strat-1", Name: "test-strategy",
			PositionSizePercent: decimal.NewFromInt(50),
			TradingPairs:        []string{"BTCUSD"},
		},
		Asset:           "BTCUSD",
		Timeframe:       backtest.Timeframe1h,
		StartingBalance: money.NewFromInt(10_000),
	}

	result, analytics, err := orch.Run(context.Background(), req, 1_700_000_000_000)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.True(t, analytics.TotalTrades == 1)

	runs, err := backtest.NewFileResultStore(resultsDir).ListRuns(context.Background(), "strat-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "bt_1700000000000", runs[0].RunID)

	trades, err := backtest.NewFileTradeStore(tradesDir).GetTradesByStrategy("strat-1")
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	reportDir := filepath.Join(eventsDir, "bt_1700000000000")
	for _, name := range []string{"result.json", "trades.csv", "equity_curve.csv", "summary.txt"} {
		_, err := os.Stat(filepath.Join(reportDir, name))
		assert.NoError(t, err, "expected report file %s", name)
	}
}

func TestOrchestrator_InvalidStrategyReturnsError(t *testing.T) {
	dataDir := t.TempDir()
	writeBarFixture(t, dataDir, "BTCUSD", backtest.Timeframe1h)

	barStore := backtest.NewFileBarStore(dataDir)
	costModel := backtest.NewCostModel(backtest.DefaultCostModelConfig())
	orch := backtest.NewOrchestrator(
		barStore, costModel, newOrchestratorEvaluator(),
		backtest.NewEventLogger(t.TempDir(), nil),
		backtest.NewFileResultStore(t.TempDir()),
		backtest.NewFileTradeStore(t.TempDir()),
		nil, nil,
	)

	req := backtest.RunRequest{
		Strategy:        backtest.Strategy{}, // missing ID, name, pairs
		Asset:           "BTCUSD",
		Timeframe:       backtest.Timeframe1h,
		StartingBalance: money.NewFromInt(10_000),
	}

	_, _, err := orch.Run(context.Background(), req, 1_700_000_000_000)
	assert.Error(t, err)
}
