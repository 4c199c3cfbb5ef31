package backtest_test

import (
	"testing"

	"github.com/mExOms/backtester/internal/backtest"
	"github.com/mExOms/backtester/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStopLossTakeProfit_Long(t *testing.T) {
	entry := money.NewFromInt(100)
	sl, tp := backtest.StopLossTakeProfit(entry, decimal.NewFromInt(5), decimal.NewFromInt(10), true)

	assert.Equal(t, "95.00000000", sl.String())
	assert.Equal(t, "110.00000000", tp.String())
}

func TestStopLossTakeProfit_ZeroDisables(t *testing.T) {
	entry := money.NewFromInt(100)
	sl, tp := backtest.StopLossTakeProfit(entry, decimal.Zero, decimal.Zero, true)

	assert.True(t, sl.Equal(entry))
	assert.True(t, tp.Equal(entry))
}
