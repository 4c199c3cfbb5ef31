package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RiskLevel is a caller-supplied classification that travels with a
// strategy for reporting purposes; the core does not interpret it.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelModerate RiskLevel = "MODERATE"
	RiskLevelHigh     RiskLevel = "HIGH"
)

// TradingMode tags how the strategy is meant to be used outside the
// core; backtests always run as if TradingModeBacktest, regardless of
// what the strategy declares (see Strategy.TradingMode doc).
type TradingMode string

const (
	TradingModePaper    TradingMode = "PAPER"
	TradingModeLive     TradingMode = "LIVE"
	TradingModeBacktest TradingMode = "BACKTEST"
)

// Expr is an opaque entry/exit condition string interpreted by a
// StrategyEvaluator implementation. The core never parses it.
type Expr string

// Strategy is the immutable, declarative input to a single backtest
// run. It carries no behavior: all interpretation of EntryConditions
// and ExitConditions happens inside a StrategyEvaluator.
type Strategy struct {
	ID                  string
	Name                string
	EntryConditions     []Expr
	ExitConditions      []Expr
	PositionSizePercent decimal.Decimal // (0, 100]
	StopLossPercent     decimal.Decimal // >= 0; 0 means no stop-loss
	TakeProfitPercent   decimal.Decimal // >= 0; 0 means no take-profit
	TradingPairs        []string
	PostOnly            bool
	RiskLevel           RiskLevel
	// TradingMode is informational only. A backtest never places live
	// or paper orders regardless of this value (spec §9 open question:
	// paper-trading/emergency-stop influence live execution only).
	TradingMode TradingMode
}

// Validate checks the structural invariants a strategy must satisfy
// before a run starts.
func (s Strategy) Validate() error {
	if s.PositionSizePercent.LessThanOrEqual(decimal.Zero) || s.PositionSizePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("backtest: strategy %q positionSizePercent must be in (0,100], got %s", s.ID, s.PositionSizePercent)
	}
	if s.StopLossPercent.IsNegative() {
		return fmt.Errorf("backtest: strategy %q stopLossPercent must be >= 0", s.ID)
	}
	if s.TakeProfitPercent.IsNegative() {
		return fmt.Errorf("backtest: strategy %q takeProfitPercent must be >= 0", s.ID)
	}
	if len(s.TradingPairs) == 0 {
		return fmt.Errorf("backtest: strategy %q has no trading pairs", s.ID)
	}
	return nil
}

// HasStopLoss reports whether the strategy configures a stop-loss.
func (s Strategy) HasStopLoss() bool { return s.StopLossPercent.IsPositive() }

// HasTakeProfit reports whether the strategy configures a take-profit.
func (s Strategy) HasTakeProfit() bool { return s.TakeProfitPercent.IsPositive() }
