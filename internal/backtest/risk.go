package backtest

import (
	"github.com/mExOms/backtester/pkg/money"
	"github.com/shopspring/decimal"
)

// StopLossTakeProfit derives the stop-loss and take-profit prices for
// a position entered at entryPrice. For a long position the stop-loss
// sits below entry and the take-profit above it; a zero percent
// disables the corresponding level (callers check HasStopLoss /
// HasTakeProfit on the strategy before relying on the returned price).
func StopLossTakeProfit(entryPrice money.Money, stopLossPercent, takeProfitPercent decimal.Decimal, isBuy bool) (stopLoss, takeProfit money.Money) {
	if isBuy {
		stopLoss = entryPrice.ApplyPercent(stopLossPercent.Neg())
		takeProfit = entryPrice.ApplyPercent(takeProfitPercent)
		return stopLoss, takeProfit
	}
	// Symmetric for a short-side close, kept for completeness even
	// though the core is long-only (spec non-goal).
	stopLoss = entryPrice.ApplyPercent(stopLossPercent)
	takeProfit = entryPrice.ApplyPercent(takeProfitPercent.Neg())
	return stopLoss, takeProfit
}
