package backtest

import (
	"github.com/mExOms/backtester/pkg/money"
	"github.com/shopspring/decimal"
)

// RunStatus is the coarse outcome of a run, independent of the
// detailed analytics computed over its trades.
type RunStatus string

const (
	StatusExcellent  RunStatus = "EXCELLENT"
	StatusGood       RunStatus = "GOOD"
	StatusAcceptable RunStatus = "ACCEPTABLE"
	StatusFailed     RunStatus = "FAILED"
)

// BacktestResult is the complete output of one simulation run: the
// trade-by-trade and bar-by-bar detail plus the provenance and cost
// fields the Orchestrator and Analytics attach.
type BacktestResult struct {
	StrategyID      string
	StrategyName    string
	Asset           string
	Timeframe       Timeframe
	StartingBalance money.Money
	EndingBalance   money.Money
	Trades          []CompletedTrade
	EquityCurve     []money.Money

	// ValidationError is non-empty when the run failed pre-flight or
	// tier validation (then Trades is empty and EquityCurve is
	// [StartingBalance]) or was cancelled between bars (then it reads
	// "cancelled", Cancelled is true, and Trades/EquityCurve hold what
	// was produced up to the cancellation).
	ValidationError string
	Cancelled       bool

	HasDataTier      bool
	DataTier         DataTier
	DataQualityScore float64

	AggregatedFees     money.Money
	AggregatedSlippage money.Money
	ObservedCostBps    decimal.Decimal
	AssumedCostBps     decimal.Decimal
	CostDeltaBps       decimal.Decimal
}

// TotalTrades returns len(Trades).
func (r BacktestResult) TotalTrades() int { return len(r.Trades) }

// Failed reports whether the run ended in a validation/fatal error.
func (r BacktestResult) Failed() bool { return r.ValidationError != "" }
