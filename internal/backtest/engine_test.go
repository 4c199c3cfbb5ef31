package backtest_test

import (
	"context"
	"testing"

	"github.com/mExOms/backtester/internal/backtest"
	"github.com/mExOms/backtester/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buyAlwaysStrategy(pair string) backtest.Strategy {
	return backtest.Strategy{
		ID:                  "s1",
		Name:                "buy-and-hold",
		EntryConditions:     []backtest.Expr{"always_buy"},
		PositionSizePercent: decimal.NewFromInt(95),
		TradingPairs:        []string{pair},
		RiskLevel:           backtest.RiskLevelModerate,
		TradingMode:         backtest.TradingModeBacktest,
	}
}

// alwaysBuyEvaluator buys once (first bar with no open position) and
// never sells, to exercise the BACKTEST_END force-close path.
type alwaysBuyEvaluator struct{ *backtest.DefaultEvaluator }

func newAlwaysBuyEvaluator() *alwaysBuyEvaluator {
	return &alwaysBuyEvaluator{DefaultEvaluator: backtest.NewDefaultEvaluator()}
}

func (e *alwaysBuyEvaluator) Evaluate(strategy backtest.Strategy, market backtest.MarketSnapshot, portfolio backtest.PortfolioSnapshot, isBacktesting bool) *backtest.Signal {
	if _, open := portfolio.OpenPositions[market.Pair]; open {
		return nil
	}
	return &backtest.Signal{Action: backtest.ActionBuy, Pair: market.Pair, Reason: "always_buy"}
}

// buyOnceEvaluator emits a single BUY on the first bar and never signals
// again, isolating exit-mechanics tests from reopen behavior.
type buyOnceEvaluator struct {
	*backtest.DefaultEvaluator
	bought bool
}

func newBuyOnceEvaluator() *buyOnceEvaluator {
	return &buyOnceEvaluator{DefaultEvaluator: backtest.NewDefaultEvaluator()}
}

func (e *buyOnceEvaluator) Evaluate(strategy backtest.Strategy, market backtest.MarketSnapshot, portfolio backtest.PortfolioSnapshot, isBacktesting bool) *backtest.Signal {
	if e.bought {
		return nil
	}
	e.bought = true
	return &backtest.Signal{Action: backtest.ActionBuy, Pair: market.Pair, Reason: "buy_once"}
}

func driftingBars(n int, startPrice float64, driftPercent float64) []backtest.PriceBar {
	bars := make([]backtest.PriceBar, n)
	price := startPrice
	for i := 0; i < n; i++ {
		close := price * (1 + driftPercent/100)
		bars[i] = backtest.PriceBar{
			Timestamp: int64(i+1) * 60_000,
			Open:      money.NewFromFloat(price),
			High:      money.NewFromFloat(max(price, close) * 1.001),
			Low:       money.NewFromFloat(min(price, close) * 0.999),
			Close:     money.NewFromFloat(close),
			Volume:    money.NewFromInt(100),
			Tier:      backtest.TierPremium,
		}
		price = close
	}
	return bars
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func TestSimulationEngine_EmptyInput(t *testing.T) {
	engine := backtest.NewSimulationEngine(nil)
	strategy := buyAlwaysStrategy("BTCUSD")
	evaluator := backtest.NewDefaultEvaluator()
	costModel := backtest.NewCostModel(backtest.DefaultCostModelConfig())

	result := engine.RunBacktest(context.Background(), strategy, "BTCUSD", nil, money.NewFromInt(10_000), costModel, evaluator, nil, 0)

	assert.Equal(t, 0, result.TotalTrades())
	assert.True(t, result.EndingBalance.Equal(money.NewFromInt(10_000)))
	require.Len(t, result.EquityCurve, 1)
	assert.True(t, result.EquityCurve[0].Equal(money.NewFromInt(10_000)))
	assert.Empty(t, result.ValidationError)
}

func TestSimulationEngine_BuyAndHoldUptrend(t *testing.T) {
	engine := backtest.NewSimulationEngine(nil)
	strategy := buyAlwaysStrategy("BTCUSD")
	evaluator := newAlwaysBuyEvaluator()
	costModel := backtest.NewCostModel(backtest.DefaultCostModelConfig())
	bars := driftingBars(100, 100, 0.2)

	result := engine.RunBacktest(context.Background(), strategy, "BTCUSD", bars, money.NewFromInt(10_000), costModel, evaluator, nil, 0)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, backtest.ExitBacktestEnd, result.Trades[0].Reason)
	require.Len(t, result.EquityCurve, 101)
	totalPnLPercent := result.EndingBalance.Sub(money.NewFromInt(10_000)).Div(money.NewFromInt(10_000)).Decimal().Mul(decimal.NewFromInt(100))
	assert.True(t, totalPnLPercent.GreaterThan(decimal.NewFromInt(10)), "expected >10%% return, got %s", totalPnLPercent)
}

func TestSimulationEngine_StopLossPrecedence(t *testing.T) {
	engine := backtest.NewSimulationEngine(nil)
	strategy := backtest.Strategy{
		ID:                  "s2",
		Name:                "sl-precedence",
		PositionSizePercent: decimal.NewFromInt(100),
		StopLossPercent:     decimal.NewFromInt(5),
		TakeProfitPercent:   decimal.NewFromInt(10),
		TradingPairs:        []string{"BTCUSD"},
	}
	evaluator := newBuyOnceEvaluator()
	costModel := backtest.NewCostModel(backtest.CostModelConfig{
		Version:         "test",
		TakerFeePercent: decimal.Zero,
		MakerFeePercent: decimal.Zero,
		SpreadPercent:   decimal.Zero,
		SlippagePercent: decimal.Zero,
	})

	bars := []backtest.PriceBar{
		{Timestamp: 1, Open: money.NewFromInt(100), High: money.NewFromInt(100), Low: money.NewFromInt(100), Close: money.NewFromInt(100), Volume: money.NewFromInt(1), Tier: backtest.TierPremium},
		{Timestamp: 2, Open: money.NewFromInt(97), High: money.NewFromInt(111), Low: money.NewFromInt(94), Close: money.NewFromInt(97), Volume: money.NewFromInt(1), Tier: backtest.TierPremium},
	}

	result := engine.RunBacktest(context.Background(), strategy, "BTCUSD", bars, money.NewFromInt(10_000), costModel, evaluator, nil, 0)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, backtest.ExitStopLoss, result.Trades[0].Reason)
	assert.True(t, result.Trades[0].ExitPrice.Equal(money.NewFromInt(95)), "stop-loss fills at the stop price, not the bar close")
}

func TestSimulationEngine_MonetaryConservation(t *testing.T) {
	engine := backtest.NewSimulationEngine(nil)
	strategy := buyAlwaysStrategy("BTCUSD")
	evaluator := newAlwaysBuyEvaluator()
	costModel := backtest.NewCostModel(backtest.DefaultCostModelConfig())
	bars := driftingBars(20, 100, 0.5)

	result := engine.RunBacktest(context.Background(), strategy, "BTCUSD", bars, money.NewFromInt(10_000), costModel, evaluator, nil, 0)

	require.NotEmpty(t, result.Trades)
	totalPnL := money.Zero
	for _, tr := range result.Trades {
		expectedPnL := tr.ExitPrice.Mul(tr.Volume).Sub(tr.ExitCosts).Sub(tr.EntryPrice.Mul(tr.Volume).Add(tr.EntryCosts))
		assert.True(t, tr.PnL.Equal(expectedPnL))
		totalPnL = totalPnL.Add(tr.PnL)
	}
	assert.True(t, result.EndingBalance.Sub(money.NewFromInt(10_000)).Equal(totalPnL))
}

func TestSimulationEngine_CancellationTruncatesResult(t *testing.T) {
	engine := backtest.NewSimulationEngine(nil)
	strategy := buyAlwaysStrategy("BTCUSD")
	evaluator := newAlwaysBuyEvaluator()
	costModel := backtest.NewCostModel(backtest.DefaultCostModelConfig())
	bars := driftingBars(10, 100, 0.1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := engine.RunBacktest(ctx, strategy, "BTCUSD", bars, money.NewFromInt(10_000), costModel, evaluator, nil, 0)

	assert.True(t, result.Cancelled)
	assert.Equal(t, "cancelled", result.ValidationError)
	assert.Empty(t, result.Trades, "an in-flight position must not be force-closed on cancel")
}

// BenchmarkSimulationEngine_RunBacktest guards the hot loop's claim to
// being sequential and allocation-light: a SMA-crossover evaluator
// over a multi-year 1m bar series with no external I/O in the loop.
func BenchmarkSimulationEngine_RunBacktest(b *testing.B) {
	engine := backtest.NewSimulationEngine(nil)
	strategy := backtest.Strategy{
		ID:                  "bench",
		Name:                "sma-cross",
		EntryConditions:     []backtest.Expr{"sma_cross_up(20)"},
		ExitConditions:      []backtest.Expr{"sma_cross_down(20)"},
		PositionSizePercent: decimal.NewFromInt(50),
		TradingPairs:        []string{"BTCUSD"},
		TradingMode:         backtest.TradingModeBacktest,
	}
	costModel := backtest.NewCostModel(backtest.DefaultCostModelConfig())
	bars := driftingBars(50_000, 100, 0.01)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		evaluator := backtest.NewDefaultEvaluator()
		engine.RunBacktest(context.Background(), strategy, "BTCUSD", bars, money.NewFromInt(10_000), costModel, evaluator, bars, len(bars))
	}
}
