package backtest

import "github.com/mExOms/backtester/pkg/money"

// MarketSnapshot is the evaluator's view of the bar under decision.
// Evaluators must never read ahead of this snapshot; the only
// historical context they may consult is whatever was previously
// pushed to them via UpdatePriceHistory.
type MarketSnapshot struct {
	Pair string
	Bar  PriceBar
}

// PortfolioSnapshot is the evaluator's view of simulated account state
// at decision time.
type PortfolioSnapshot struct {
	Balance       money.Money
	OpenPositions map[string]Position
}

// StrategyEvaluator is the abstract indicator/signal layer. The engine
// treats implementations as a black box; the only contract is the
// look-ahead-bias one documented on Evaluate.
type StrategyEvaluator interface {
	// UpdatePriceHistory appends bar to the evaluator's memory for pair.
	// The engine calls this with bars[i-1] before evaluating bar i, never
	// with the bar currently under decision.
	UpdatePriceHistory(pair string, bar PriceBar)

	// ClearPriceHistory discards all remembered bars for pair. Called by
	// the engine once at the start of every run.
	ClearPriceHistory(pair string)

	// Evaluate returns a Signal for the pair under market, or nil for no
	// opinion. When isBacktesting is true, the evaluator must base its
	// decision only on history fed via UpdatePriceHistory plus
	// market.Bar's price fields that are safe to observe at decision
	// time (open/high/low/close of the CURRENT bar, since the engine
	// itself only acts on the bar after it closes) — it must never be
	// handed a future bar.
	Evaluate(strategy Strategy, market MarketSnapshot, portfolio PortfolioSnapshot, isBacktesting bool) *Signal
}

// history is per-pair, per-evaluator-instance price memory. Earlier
// teacher code kept this as a package-level singleton map shared by
// every strategy run; here it is owned exclusively by one
// DefaultEvaluator value, so two concurrent runs never see each
// other's bars.
type history struct {
	bars []PriceBar
}

// DefaultEvaluator is a baseline StrategyEvaluator driven purely by
// Strategy.EntryConditions/ExitConditions expressions. It recognizes a
// small built-in vocabulary of expressions so the engine is
// exercisable without an external indicator library; production
// callers are expected to supply their own StrategyEvaluator wired to
// a real indicator set, per spec §1 ("indicator internals are out of
// scope").
type DefaultEvaluator struct {
	pairHistory map[string]*history
}

// NewDefaultEvaluator builds an evaluator with no price history. Each
// backtest run should construct (or Clear) its own evaluator instance.
func NewDefaultEvaluator() *DefaultEvaluator {
	return &DefaultEvaluator{pairHistory: make(map[string]*history)}
}

func (e *DefaultEvaluator) historyFor(pair string) *history {
	h, ok := e.pairHistory[pair]
	if !ok {
		h = &history{}
		e.pairHistory[pair] = h
	}
	return h
}

func (e *DefaultEvaluator) UpdatePriceHistory(pair string, bar PriceBar) {
	h := e.historyFor(pair)
	h.bars = append(h.bars, bar)
}

func (e *DefaultEvaluator) ClearPriceHistory(pair string) {
	delete(e.pairHistory, pair)
}

// Evaluate implements a minimal moving-average-crossover vocabulary:
// "sma_cross_up(N)" fires BUY when the current close crosses above the
// simple moving average of the last N historical closes; "sma_cross_down(N)"
// fires SELL symmetrically. Any other expression is ignored. This is
// intentionally small — callers needing real indicators (RSI, MACD,
// ...) supply their own StrategyEvaluator.
func (e *DefaultEvaluator) Evaluate(strategy Strategy, market MarketSnapshot, portfolio PortfolioSnapshot, isBacktesting bool) *Signal {
	h := e.historyFor(market.Pair)
	_, hasPosition := portfolio.OpenPositions[market.Pair]

	if !hasPosition {
		for _, cond := range strategy.EntryConditions {
			if n, ok := parseSMAExpr(cond, "sma_cross_up"); ok && smaCrossUp(h.bars, market.Bar, n) {
				return &Signal{Action: ActionBuy, Pair: market.Pair, Reason: string(cond)}
			}
		}
		return nil
	}

	for _, cond := range strategy.ExitConditions {
		if n, ok := parseSMAExpr(cond, "sma_cross_down"); ok && smaCrossDown(h.bars, market.Bar, n) {
			return &Signal{Action: ActionSell, Pair: market.Pair, Reason: string(cond)}
		}
	}
	return nil
}

func parseSMAExpr(expr Expr, prefix string) (int, bool) {
	s := string(expr)
	if len(s) <= len(prefix)+2 || s[:len(prefix)] != prefix || s[len(prefix)] != '(' || s[len(s)-1] != ')' {
		return 0, false
	}
	inner := s[len(prefix)+1 : len(s)-1]
	n := 0
	for _, c := range inner {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n <= 0 {
		return 0, false
	}
	return n, true
}

func sma(bars []PriceBar, n int) (money.Money, bool) {
	if len(bars) < n {
		return money.Zero, false
	}
	window := bars[len(bars)-n:]
	closes := make([]money.Money, len(window))
	for i, b := range window {
		closes[i] = b.Close
	}
	return money.Sum(closes).DivInt(int64(n)), true
}

func smaCrossUp(history []PriceBar, current PriceBar, n int) bool {
	avg, ok := sma(history, n)
	if !ok || len(history) == 0 {
		return false
	}
	prevClose := history[len(history)-1].Close
	return prevClose.LessThanOrEqual(avg) && current.Close.GreaterThan(avg)
}

func smaCrossDown(history []PriceBar, current PriceBar, n int) bool {
	avg, ok := sma(history, n)
	if !ok || len(history) == 0 {
		return false
	}
	prevClose := history[len(history)-1].Close
	return prevClose.GreaterThanOrEqual(avg) && current.Close.LessThan(avg)
}
