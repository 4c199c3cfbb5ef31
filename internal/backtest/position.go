package backtest

import (
	"github.com/google/uuid"
	"github.com/mExOms/backtester/pkg/money"
	"github.com/shopspring/decimal"
)

// Side is the direction of a position. The core is long-only (spec
// non-goal: no short-selling); Side exists for forward compatibility
// with the evaluator contract and for readability at call sites.
type Side string

const (
	SideLong Side = "LONG"
)

// Action is the decision a StrategyEvaluator emits for a pair on a
// given bar.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is the evaluator's verdict for one pair on the bar it was
// just shown.
type Signal struct {
	Action Action
	Pair   string
	Reason string
}

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStopLoss       ExitReason = "STOP_LOSS"
	ExitTakeProfit     ExitReason = "TAKE_PROFIT"
	ExitStrategySignal ExitReason = "STRATEGY_SIGNAL"
	ExitBacktestEnd    ExitReason = "BACKTEST_END"
)

// Position is a live, open position owned exclusively by the
// SimulationEngine running the backtest. At most one Position exists
// per pair at any time.
type Position struct {
	ID              string
	Pair            string
	Side            Side
	EntryPrice      money.Money
	Volume          money.Money
	StopLossPrice   money.Money
	TakeProfitPrice money.Money
	EntryCosts      money.Money
}

// NewPositionID mints an internal object identifier for a newly opened
// position, the same way the teacher mints key/order identifiers:
// uuid.New().String(), never derived from the wire-visible run ID.
func NewPositionID() string {
	return uuid.New().String()
}

// CostBasis returns entryPrice*volume + entryCosts, the amount a
// closing trade must exceed to be profitable.
func (p Position) CostBasis() money.Money {
	return p.EntryPrice.Mul(p.Volume).Add(p.EntryCosts)
}

// CurrentValue returns the mark-to-market value of the position at a
// given close price.
func (p Position) CurrentValue(closePrice money.Money) money.Money {
	return closePrice.Mul(p.Volume)
}

// CompletedTrade is the immutable record of one finished round trip.
type CompletedTrade struct {
	TradeID    string
	PositionID string
	Timestamp  int64
	Pair       string
	EntryPrice money.Money
	ExitPrice  money.Money
	Volume     money.Money
	PnL        money.Money
	EntryCosts money.Money
	ExitCosts  money.Money
	Reason     ExitReason
}

// NewTradeID mints an internal identifier for a completed trade,
// prefixed the way the teacher prefixes client order IDs
// (fmt.Sprintf("oms_%s", uuid.New().String())).
func NewTradeID() string {
	return "trade_" + uuid.New().String()
}

// TradeCost is the output of the Trading Cost Model for one
// prospective order. Percentages are kept as plain decimals (not
// Money) since they are dimensionless rates, not currency amounts.
type TradeCost struct {
	Fee             money.Money
	SlippageAmount  money.Money
	SlippagePercent decimal.Decimal
	SpreadCost      money.Money
	SpreadPercent   decimal.Decimal // half the configured spread
	Total           money.Money
	TotalPercent    decimal.Decimal
}
