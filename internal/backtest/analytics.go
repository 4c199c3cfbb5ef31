package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/mExOms/backtester/pkg/money"
	"github.com/shopspring/decimal"
)

// periodsPerYear keys the Sharpe annualization factor by timeframe, on
// a crypto 24/7 trading schedule (never the 252-trading-day equities
// convention).
var periodsPerYear = map[Timeframe]float64{
	Timeframe1m:  525960,
	Timeframe5m:  105192,
	Timeframe15m: 35064,
	Timeframe30m: 17532,
	Timeframe1h:  8766,
	Timeframe4h:  2191.5,
	Timeframe1d:  365.25,
	Timeframe1w:  52,
}

// MonthlyReturn is the summed pnl of trades exiting in one calendar
// month, keyed "YYYY-MM" in the system's local time zone.
type MonthlyReturn struct {
	Month string
	PnL   money.Money
}

// DailyEquityPoint is the last mark-to-market equity value observed on
// one calendar day (UTC).
type DailyEquityPoint struct {
	Date   string
	Equity money.Money
}

// DailyEquity buckets a run's bar-by-bar equity curve into one
// end-of-day value per calendar day, the finer-grained counterpart to
// MonthlyReturns. bars and equityCurve must align the way
// SimulationEngine.RunBacktest produces them: equityCurve carries one
// more entry than bars (the starting balance recorded before the
// first bar), so equityCurve[i+1] is the mark taken after bars[i].
func DailyEquity(bars []PriceBar, equityCurve []money.Money) []DailyEquityPoint {
	if len(bars) == 0 || len(equityCurve) != len(bars)+1 {
		return nil
	}
	byDay := make(map[string]money.Money, len(bars))
	order := make([]string, 0, len(bars))
	for i, bar := range bars {
		day := time.UnixMilli(bar.Timestamp).UTC().Format("2006-01-02")
		if _, seen := byDay[day]; !seen {
			order = append(order, day)
		}
		byDay[day] = equityCurve[i+1]
	}
	points := make([]DailyEquityPoint, 0, len(order))
	for _, day := range order {
		points = append(points, DailyEquityPoint{Date: day, Equity: byDay[day]})
	}
	return points
}

// Analytics is the full set of performance metrics computed from a
// finished run's trade list and equity curve.
type Analytics struct {
	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	WinRatePercent       decimal.Decimal
	ProfitFactor         decimal.Decimal // meaningless when ProfitFactorInfinite is true
	ProfitFactorInfinite bool            // no losses and at least one win
	AverageProfit        money.Money
	AverageLoss          money.Money
	BestTrade            money.Money
	WorstTrade           money.Money
	MaxDrawdownPercent   decimal.Decimal
	SharpeRatio          decimal.Decimal
	MonthlyReturns       []MonthlyReturn
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int

	AggregatedFees     money.Money
	AggregatedSlippage money.Money
	ObservedCostBps    decimal.Decimal
	AssumedCostBps     decimal.Decimal
	CostDeltaBps       decimal.Decimal
}

// Compute derives Analytics from a completed (or truncated) run. Sharpe
// is annualized by result.Timeframe, which RunBacktest fills from
// DetectTimeframe; when it is empty or not a canonical timeframe, the
// 1d factor is used.
func Compute(result BacktestResult, costConfig CostModelConfig) Analytics {
	a := Analytics{
		TotalTrades:        len(result.Trades),
		AverageProfit:      money.Zero,
		AverageLoss:        money.Zero,
		BestTrade:          money.Zero,
		WorstTrade:         money.Zero,
		MaxDrawdownPercent: decimal.Zero,
		SharpeRatio:        decimal.Zero,
		AggregatedFees:     result.AggregatedFees,
		AggregatedSlippage: result.AggregatedSlippage,
	}

	computeTradeStats(&a, result.Trades)
	a.MaxDrawdownPercent = maxDrawdownPercent(result.EquityCurve)
	a.SharpeRatio = sharpeRatio(result.EquityCurve, result.Timeframe)
	a.MonthlyReturns = monthlyReturns(result.Trades)

	notional := totalNotional(result.Trades)
	totalCost := a.AggregatedFees.Add(a.AggregatedSlippage)
	a.ObservedCostBps = decimal.Zero
	if notional.IsPositive() {
		a.ObservedCostBps = totalCost.Div(notional).Decimal().Mul(decimal.NewFromInt(10_000))
	}
	a.AssumedCostBps = costConfig.AssumedCostBps()
	a.CostDeltaBps = a.ObservedCostBps.Sub(a.AssumedCostBps)

	return a
}

func computeTradeStats(a *Analytics, trades []CompletedTrade) {
	if len(trades) == 0 {
		a.ProfitFactor = decimal.NewFromInt(1)
		return
	}

	var grossProfit, grossLoss money.Money = money.Zero, money.Zero
	var profits, losses []money.Money
	best, worst := trades[0].PnL, trades[0].PnL

	streak, maxWinStreak, maxLossStreak := 0, 0, 0
	lastWasWin := false

	for _, t := range trades {
		if t.PnL.IsPositive() {
			a.WinningTrades++
			grossProfit = grossProfit.Add(t.PnL)
			profits = append(profits, t.PnL)
			if lastWasWin {
				streak++
			} else {
				streak = 1
			}
			lastWasWin = true
			if streak > maxWinStreak {
				maxWinStreak = streak
			}
		} else if t.PnL.IsNegative() {
			a.LosingTrades++
			grossLoss = grossLoss.Add(t.PnL.Abs())
			losses = append(losses, t.PnL)
			if !lastWasWin {
				streak++
			} else {
				streak = 1
			}
			lastWasWin = false
			if streak > maxLossStreak {
				maxLossStreak = streak
			}
		}

		if t.PnL.GreaterThan(best) {
			best = t.PnL
		}
		if t.PnL.LessThan(worst) {
			worst = t.PnL
		}
	}

	a.BestTrade = best
	a.WorstTrade = worst
	a.MaxConsecutiveWins = maxWinStreak
	a.MaxConsecutiveLosses = maxLossStreak
	a.AverageProfit = money.Sum(profits).DivInt(int64(len(profits)))
	a.AverageLoss = money.Sum(losses).DivInt(int64(len(losses)))

	a.WinRatePercent = decimal.NewFromInt(int64(a.WinningTrades)).Div(decimal.NewFromInt(int64(len(trades)))).Mul(decimal.NewFromInt(100))

	switch {
	case grossLoss.IsZero() && grossProfit.IsPositive():
		a.ProfitFactorInfinite = true
	case grossLoss.IsZero():
		a.ProfitFactor = decimal.NewFromInt(1)
	default:
		a.ProfitFactor = grossProfit.Div(grossLoss).Decimal()
	}
}

func maxDrawdownPercent(equityCurve []money.Money) decimal.Decimal {
	if len(equityCurve) == 0 {
		return decimal.Zero
	}
	peak := equityCurve[0]
	maxDD := decimal.Zero
	for _, eq := range equityCurve {
		if eq.GreaterThan(peak) {
			peak = eq
		}
		if peak.IsZero() {
			continue
		}
		dd := peak.Sub(eq).Div(peak).Decimal().Mul(decimal.NewFromInt(100))
		if dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	return maxDD
}

// sharpeRatio computes the annualized Sharpe ratio of per-bar returns
// on the equity curve. A zero-variance series (including a curve with
// fewer than two returns) yields a Sharpe of exactly zero.
func sharpeRatio(equityCurve []money.Money, timeframe Timeframe) decimal.Decimal {
	if len(equityCurve) < 3 {
		return decimal.Zero
	}

	returns := make([]float64, 0, len(equityCurve)-1)
	for i := 1; i < len(equityCurve); i++ {
		prev := equityCurve[i-1].Float64()
		cur := equityCurve[i].Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, (cur-prev)/prev)
	}
	if len(returns) < 2 {
		return decimal.Zero
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	stdDev := math.Sqrt(variance)

	if stdDev == 0 {
		return decimal.Zero
	}

	ppy, ok := periodsPerYear[timeframe]
	if !ok {
		ppy = periodsPerYear[Timeframe1d]
	}
	sharpe := (mean / stdDev) * math.Sqrt(ppy)
	return decimal.NewFromFloat(sharpe)
}

func monthlyReturns(trades []CompletedTrade) []MonthlyReturn {
	byMonth := make(map[string]money.Money)
	for _, t := range trades {
		key := time.UnixMilli(t.Timestamp).Format("2006-01")
		byMonth[key] = byMonth[key].Add(t.PnL)
	}
	keys := make([]string, 0, len(byMonth))
	for k := range byMonth {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]MonthlyReturn, 0, len(keys))
	for _, k := range keys {
		out = append(out, MonthlyReturn{Month: k, PnL: byMonth[k]})
	}
	return out
}

func totalNotional(trades []CompletedTrade) money.Money {
	total := money.Zero
	for _, t := range trades {
		total = total.Add(t.EntryPrice.Mul(t.Volume))
	}
	return total
}

// StatusTag derives the coarse run status from win rate and profit
// factor thresholds (spec §4.8).
func StatusTag(winRatePercent decimal.Decimal, profitFactor decimal.Decimal, profitFactorInfinite bool) RunStatus {
	effectivePF := profitFactor
	if profitFactorInfinite {
		effectivePF = decimal.NewFromInt(1 << 30) // effectively +Inf for threshold comparisons
	}
	switch {
	case winRatePercent.GreaterThanOrEqual(decimal.NewFromInt(70)) && effectivePF.GreaterThanOrEqual(decimal.NewFromFloat(2)):
		return StatusExcellent
	case winRatePercent.GreaterThanOrEqual(decimal.NewFromInt(60)) && effectivePF.GreaterThanOrEqual(decimal.NewFromFloat(1.5)):
		return StatusGood
	case winRatePercent.GreaterThanOrEqual(decimal.NewFromInt(50)) && effectivePF.GreaterThanOrEqual(decimal.NewFromFloat(1.0)):
		return StatusAcceptable
	default:
		return StatusFailed
	}
}
