package backtest

import (
	"context"

	"github.com/mExOms/backtester/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// largeOrderFraction is the balance fraction above which an entry or
// exit order is flagged as "large" to the cost model (spec §4.5.1:
// isLargeOrder = exitValue > balance*0.1).
var largeOrderFraction = decimal.NewFromFloat(0.1)

// SimulationEngine replays an ordered bar sequence against a strategy,
// a cost model, and a strategy evaluator, producing a BacktestResult.
// It holds no state between runs; RunBacktest owns every mutable value
// for the duration of one call, so two concurrent calls against the
// same engine never interfere (spec §5: runs do not share mutable
// state).
type SimulationEngine struct {
	log *logrus.Entry
}

// NewSimulationEngine builds a SimulationEngine. log may be nil, in
// which case an entry on a default logrus logger is used.
func NewSimulationEngine(log *logrus.Entry) *SimulationEngine {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &SimulationEngine{log: log.WithField("component", "simulation_engine")}
}

// runState is the engine's per-run mutable state. Kept as a local
// value (never a field on SimulationEngine) so the engine's own
// per-run state is never shared across runs or goroutines. The
// evaluator's price history lives in the StrategyEvaluator passed in.
type runState struct {
	balance       money.Money
	realizedPnL   money.Money
	openPositions map[string]Position
	trades        []CompletedTrade
	equityCurve   []money.Money
	aggFees       money.Money
	aggSlippage   money.Money
}

// RunBacktest is the Simulation Engine's entry point. pair is the
// single trading pair the bars belong to; multi-pair strategies run
// one bar sequence (and one RunBacktest call) per pair.
func (e *SimulationEngine) RunBacktest(
	ctx context.Context,
	strategy Strategy,
	pair string,
	bars []PriceBar,
	startingBalance money.Money,
	costModel *CostModel,
	evaluator StrategyEvaluator,
	ohlcBarsForTier []PriceBar,
	expectedBars int,
) BacktestResult {
	base := BacktestResult{
		StrategyID:      strategy.ID,
		StrategyName:    strategy.Name,
		Asset:           pair,
		StartingBalance: startingBalance,
		EndingBalance:   startingBalance,
		EquityCurve:     []money.Money{startingBalance},
	}

	if len(bars) == 0 {
		e.log.WithField("strategy", strategy.Name).Info("empty bar sequence, returning zero-trade result")
		return base
	}

	if err := ValidateSequence(bars); err != nil {
		base.ValidationError = err.Error()
		return base
	}

	if ohlcBarsForTier != nil {
		tierResult, err := ValidateTier(ohlcBarsForTier, expectedBars)
		if err != nil {
			base.ValidationError = err.Error()
			e.log.WithError(err).Warn("tier validation failed")
			return base
		}
		base.HasDataTier = true
		base.DataTier = tierResult.Tier
		base.DataQualityScore = tierResult.QualityScore
	}

	evaluator.ClearPriceHistory(pair)

	if tf, ok := DetectTimeframe(bars); ok {
		base.Timeframe = tf
	}

	state := &runState{
		balance:       startingBalance,
		realizedPnL:   money.Zero,
		openPositions: make(map[string]Position),
		trades:        nil,
		equityCurve:   []money.Money{startingBalance},
		aggFees:       money.Zero,
		aggSlippage:   money.Zero,
	}

	e.log.WithFields(logrus.Fields{"strategy": strategy.Name, "pair": pair, "bars": len(bars)}).Info("backtest started")

	for i, bar := range bars {
		select {
		case <-ctx.Done():
			return e.cancelledResult(base, state)
		default:
		}

		// Step 1: prime history with the PREVIOUS bar only. The
		// evaluator never sees bars[i] through price history before
		// this bar's decisions are finalized.
		if i > 0 {
			evaluator.UpdatePriceHistory(pair, bars[i-1])
		}

		// Step 2: position maintenance — stop-loss before take-profit.
		// Triggering uses the bar's intrabar low/high (a stop or limit
		// resting at that price would have been touched); the exit
		// itself fills AT the triggered price level, not at the bar's
		// close, since the close may have since moved away from it.
		if pos, open := state.openPositions[pair]; open {
			switch {
			case bar.Low.LessThanOrEqual(pos.StopLossPrice) && strategy.HasStopLoss():
				e.closePosition(state, pos, pos.StopLossPrice, bar.Timestamp, costModel, ExitStopLoss, ExecutionTaker)
			case bar.High.GreaterThanOrEqual(pos.TakeProfitPrice) && strategy.HasTakeProfit():
				execType := ExecutionTaker
				if strategy.PostOnly {
					execType = ExecutionMaker
				}
				e.closePosition(state, pos, pos.TakeProfitPrice, bar.Timestamp, costModel, ExitTakeProfit, execType)
			}
		}

		// Step 3: signal evaluation.
		market := MarketSnapshot{Pair: pair, Bar: bar}
		portfolio := PortfolioSnapshot{Balance: state.balance, OpenPositions: state.openPositions}
		signal := evaluator.Evaluate(strategy, market, portfolio, true)

		// Step 4: act on signal.
		if signal != nil {
			switch signal.Action {
			case ActionBuy:
				e.tryOpenPosition(state, strategy, pair, bar, costModel)
			case ActionSell:
				if pos, open := state.openPositions[pair]; open {
					execType := ExecutionTaker
					if strategy.PostOnly {
						execType = ExecutionMaker
					}
					e.closePosition(state, pos, bar.Close, bar.Timestamp, costModel, ExitStrategySignal, execType)
				}
			case ActionHold:
			}
		}

		// Step 5: mark-to-market.
		unrealized := money.Zero
		for _, pos := range state.openPositions {
			unrealized = unrealized.Add(pos.CurrentValue(bar.Close).Sub(pos.CostBasis()))
		}
		state.equityCurve = append(state.equityCurve, state.balance.Add(unrealized))
	}

	// End-of-run: force-close every remaining position at the last
	// bar's close, TAKER execution regardless of postOnly.
	last := bars[len(bars)-1]
	for _, pos := range state.openPositions {
		e.closePosition(state, pos, last.Close, last.Timestamp, costModel, ExitBacktestEnd, ExecutionTaker)
	}

	base.EndingBalance = state.balance
	base.Trades = state.trades
	base.EquityCurve = state.equityCurve
	base.AggregatedFees = state.aggFees
	base.AggregatedSlippage = state.aggSlippage

	e.log.WithFields(logrus.Fields{
		"strategy": strategy.Name,
		"trades":   len(state.trades),
		"ending":   state.balance.String(),
	}).Info("backtest finished")

	return base
}

func (e *SimulationEngine) cancelledResult(base BacktestResult, state *runState) BacktestResult {
	base.ValidationError = "cancelled"
	base.Cancelled = true
	base.EndingBalance = state.balance
	base.Trades = state.trades
	base.EquityCurve = state.equityCurve
	base.AggregatedFees = state.aggFees
	base.AggregatedSlippage = state.aggSlippage
	e.log.Warn("backtest cancelled between bars")
	return base
}

// tryOpenPosition accepts a BUY signal if no position is open for pair
// and the total entry cost does not exceed balance (ArithmeticInvariant
// guard: reject rather than allow a negative balance).
func (e *SimulationEngine) tryOpenPosition(state *runState, strategy Strategy, pair string, bar PriceBar, costModel *CostModel) {
	if _, open := state.openPositions[pair]; open {
		return
	}

	target := state.balance.PercentOf(strategy.PositionSizePercent)
	if !target.IsPositive() {
		return
	}

	execType := ExecutionTaker
	if strategy.PostOnly {
		execType = ExecutionMaker
	}
	isLarge := target.GreaterThan(state.balance.MulFrac(largeOrderFraction))
	cost := costModel.Compute(execType, target, money.Zero, isLarge)

	entryPrice := bar.Close.ApplyPercent(cost.SlippagePercent)
	if !entryPrice.IsPositive() {
		return
	}
	volume := target.Div(entryPrice)
	actualValue := entryPrice.Mul(volume)
	totalEntryCost := actualValue.Add(cost.Total)

	if totalEntryCost.GreaterThan(state.balance) {
		e.log.WithField("pair", pair).Debug("cost-rejected BUY: would exceed balance")
		return
	}

	stopLoss, takeProfit := StopLossTakeProfit(entryPrice, strategy.StopLossPercent, strategy.TakeProfitPercent, true)

	state.aggFees = state.aggFees.Add(cost.Fee)
	state.aggSlippage = state.aggSlippage.Add(cost.SlippageAmount)
	state.balance = state.balance.Sub(totalEntryCost)
	state.openPositions[pair] = Position{
		ID:              NewPositionID(),
		Pair:            pair,
		Side:            SideLong,
		EntryPrice:      entryPrice,
		Volume:          volume,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		EntryCosts:      cost.Total,
	}
}

// closePosition implements the single shared exit algorithm (spec
// §4.5.1), used identically by stop-loss, take-profit, strategy-SELL,
// and end-of-run force-close.
func (e *SimulationEngine) closePosition(state *runState, pos Position, referencePrice money.Money, timestamp int64, costModel *CostModel, reason ExitReason, execType ExecutionType) {
	exitValue := referencePrice.Mul(pos.Volume)
	isLarge := exitValue.GreaterThan(state.balance.MulFrac(largeOrderFraction))
	exitCost := costModel.Compute(execType, exitValue, money.Zero, isLarge)

	exitPrice := referencePrice.ApplyPercent(exitCost.SlippagePercent.Neg())
	proceeds := exitPrice.Mul(pos.Volume)
	netProceeds := proceeds.Sub(exitCost.Total)
	costBasis := pos.CostBasis()
	pnl := netProceeds.Sub(costBasis)

	state.aggFees = state.aggFees.Add(exitCost.Fee)
	state.aggSlippage = state.aggSlippage.Add(exitCost.SlippageAmount)
	state.balance = state.balance.Add(netProceeds)
	state.realizedPnL = state.realizedPnL.Add(pnl)
	state.trades = append(state.trades, CompletedTrade{
		TradeID:    NewTradeID(),
		PositionID: pos.ID,
		Timestamp:  timestamp,
		Pair:       pos.Pair,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Volume:     pos.Volume,
		PnL:        pnl,
		EntryCosts: pos.EntryCosts,
		ExitCosts:  exitCost.Total,
		Reason:     reason,
	})
	delete(state.openPositions, pos.Pair)
}
