package backtest_test

import (
	"testing"

	"github.com/mExOms/backtester/internal/backtest"
	"github.com/mExOms/backtester/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trade(pnl int64, ts int64) backtest.CompletedTrade {
	return backtest.CompletedTrade{
		Timestamp:  ts,
		Pair:       "BTCUSD",
		EntryPrice: money.NewFromInt(100),
		ExitPrice:  money.NewFromInt(100),
		Volume:     money.NewFromInt(1),
		PnL:        money.NewFromInt(pnl),
		Reason:     backtest.ExitStrategySignal,
	}
}

func TestAnalytics_WinRateAndProfitFactor(t *testing.T) {
	result := backtest.BacktestResult{
		Trades: []backtest.CompletedTrade{
			trade(100, 1), trade(-50, 2), trade(200, 3),
		},
		EquityCurve: []money.Money{
			money.NewFromInt(10_000), money.NewFromInt(10_100), money.NewFromInt(10_050), money.NewFromInt(10_250),
		},
		Timeframe: backtest.Timeframe1d,
	}

	a := backtest.Compute(result, backtest.DefaultCostModelConfig())

	assert.Equal(t, 3, a.TotalTrades)
	assert.Equal(t, 2, a.WinningTrades)
	assert.Equal(t, 1, a.LosingTrades)
	winRateFloat, _ := a.WinRatePercent.Float64()
	assert.InDelta(t, 66.6667, winRateFloat, 0.001)
	assert.True(t, a.ProfitFactor.Equal(decimal.NewFromInt(6)), "gross profit 300 / gross loss 50 = 6")
}

func TestAnalytics_NoLossesIsInfinite(t *testing.T) {
	result := backtest.BacktestResult{
		Trades: []backtest.CompletedTrade{trade(100, 1)},
	}
	a := backtest.Compute(result, backtest.DefaultCostModelConfig())
	assert.True(t, a.ProfitFactorInfinite)
}

func TestAnalytics_NoTradesProfitFactorIsOne(t *testing.T) {
	a := backtest.Compute(backtest.BacktestResult{}, backtest.DefaultCostModelConfig())
	assert.True(t, a.ProfitFactor.Equal(decimal.NewFromInt(1)))
}

func TestAnalytics_MaxDrawdown(t *testing.T) {
	curve := []money.Money{
		money.NewFromInt(10_000), money.NewFromInt(12_000), money.NewFromInt(9_000), money.NewFromInt(11_000),
	}
	result := backtest.BacktestResult{EquityCurve: curve}
	a := backtest.Compute(result, backtest.DefaultCostModelConfig())
	assert.True(t, a.MaxDrawdownPercent.Equal(decimal.NewFromInt(25)), "drawdown from peak 12000 to trough 9000 is 25%%")
}

func TestAnalytics_SharpePositiveForVaryingPositiveReturns(t *testing.T) {
	curve := []money.Money{
		money.NewFromInt(10_000), money.NewFromInt(10_100), money.NewFromInt(10_150),
	}
	result := backtest.BacktestResult{EquityCurve: curve, Timeframe: backtest.Timeframe1d}
	a := backtest.Compute(result, backtest.DefaultCostModelConfig())
	assert.True(t, a.SharpeRatio.GreaterThan(decimal.Zero), "varying positive returns should yield a finite positive sharpe")
}

func TestAnalytics_SharpeConstantReturnIsZeroVariance(t *testing.T) {
	curve := []money.Money{
		money.NewFromInt(10_000), money.NewFromInt(10_100), money.NewFromInt(10_201),
	}
	result := backtest.BacktestResult{EquityCurve: curve, Timeframe: backtest.Timeframe1d}
	a := backtest.Compute(result, backtest.DefaultCostModelConfig())
	assert.True(t, a.SharpeRatio.IsZero(), "a perfectly constant return series has zero variance, so sharpe is defined as zero")
}

func TestAnalytics_SharpeFlatCurveIsZero(t *testing.T) {
	curve := []money.Money{money.NewFromInt(10_000), money.NewFromInt(10_000), money.NewFromInt(10_000)}
	result := backtest.BacktestResult{EquityCurve: curve, Timeframe: backtest.Timeframe1d}
	a := backtest.Compute(result, backtest.DefaultCostModelConfig())
	assert.True(t, a.SharpeRatio.IsZero())
}

func TestStatusTag_Boundaries(t *testing.T) {
	assert.Equal(t, backtest.StatusExcellent, backtest.StatusTag(decimal.NewFromInt(70), decimal.NewFromFloat(2.0), false))
	assert.Equal(t, backtest.StatusGood, backtest.StatusTag(decimal.NewFromFloat(69.9), decimal.NewFromFloat(2.0), false))
	assert.Equal(t, backtest.StatusFailed, backtest.StatusTag(decimal.NewFromFloat(49.9), decimal.NewFromFloat(1.0), false))
}

func TestDailyEquity_BucketsMultipleBarsPerDay(t *testing.T) {
	bars := []backtest.PriceBar{
		{Timestamp: 1_700_000_000_000},                // day 1, bar 1
		{Timestamp: 1_700_000_000_000 + 3_600_000},     // day 1, bar 2
		{Timestamp: 1_700_000_000_000 + 24*3_600_000},  // day 2, bar 1
	}
	equityCurve := []money.Money{
		money.NewFromInt(10_000), // starting balance, before bars[0]
		money.NewFromInt(10_050), // after bars[0]
		money.NewFromInt(10_075), // after bars[1], same day as bars[0]
		money.NewFromInt(9_900),  // after bars[2], next day
	}

	points := backtest.DailyEquity(bars, equityCurve)

	require.Len(t, points, 2)
	assert.True(t, points[0].Equity.Equal(money.NewFromInt(10_075)), "day 1 keeps the last mark-to-market value observed that day")
	assert.True(t, points[1].Equity.Equal(money.NewFromInt(9_900)))
}

func TestDailyEquity_MismatchedLengthsReturnsNil(t *testing.T) {
	bars := []backtest.PriceBar{{Timestamp: 1}}
	assert.Nil(t, backtest.DailyEquity(bars, nil))
	assert.Nil(t, backtest.DailyEquity(nil, []money.Money{money.NewFromInt(1)}))
}
